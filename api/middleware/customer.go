package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/cliniccare/pharmacy-backend/api/responses"
	pkgerrors "github.com/cliniccare/pharmacy-backend/pkg/errors"
	"github.com/cliniccare/pharmacy-backend/pkg/logger"
)

type contextKey string

const ctxCustomerEmail contextKey = "customer_email"

const customerEmailHeader = "X-Customer-Email"

// CustomerContext reads the cart owner identity from the X-Customer-Email
// header and seeds the request context with it. Cart routes refuse requests
// without one.
func CustomerContext(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			email := strings.ToLower(strings.TrimSpace(r.Header.Get(customerEmailHeader)))
			if email == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "missing X-Customer-Email header"))
				return
			}

			ctx := context.WithValue(r.Context(), ctxCustomerEmail, email)
			if logg != nil {
				ctx = logg.WithOwner(ctx, email)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func CustomerEmailFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxCustomerEmail).(string); ok {
		return v
	}
	return ""
}

// WithCustomerEmail injects the owner identity into the context.
func WithCustomerEmail(ctx context.Context, email string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxCustomerEmail, email)
}
