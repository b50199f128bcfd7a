package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/cliniccare/pharmacy-backend/api/responses"
	"github.com/cliniccare/pharmacy-backend/api/validators"
	"github.com/cliniccare/pharmacy-backend/internal/inventory"
	pkgerrors "github.com/cliniccare/pharmacy-backend/pkg/errors"
	"github.com/cliniccare/pharmacy-backend/pkg/logger"
)

const maxImageUploadBytes = 8 << 20

type createItemRequest struct {
	Name          string          `json:"name" validate:"required,max=100"`
	Code          string          `json:"item_code" validate:"required"`
	SupplierEmail string          `json:"supplier_email" validate:"required"`
	Price         decimal.Decimal `json:"price"`
	InStockQty    float64         `json:"in_stock_qty" validate:"gte=0"`
	ExpireDate    *time.Time      `json:"expire_date,omitempty"`
	Category      string          `json:"category,omitempty" validate:"max=100"`
	Description   string          `json:"description,omitempty" validate:"max=500"`
	Tags          []string        `json:"tags,omitempty"`
}

// updateItemRequest deliberately carries the item_code field so clients that
// echo the full resource back do not trip DisallowUnknownFields. The value is
// discarded: codes are immutable.
type updateItemRequest struct {
	Name          *string          `json:"name,omitempty" validate:"omitempty,max=100"`
	Code          *string          `json:"item_code,omitempty"`
	SupplierEmail *string          `json:"supplier_email,omitempty"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	InStockQty    *float64         `json:"in_stock_qty,omitempty" validate:"omitempty,gte=0"`
	ExpireDate    *time.Time       `json:"expire_date,omitempty"`
	Category      *string          `json:"category,omitempty" validate:"omitempty,max=100"`
	Description   *string          `json:"description,omitempty" validate:"omitempty,max=500"`
	Tags          *[]string        `json:"tags,omitempty"`
}

// CreateItem registers a new stocked item.
func CreateItem(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		var payload createItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.CreateItem(r.Context(), inventory.CreateItemInput{
			Name:          payload.Name,
			Code:          payload.Code,
			SupplierEmail: payload.SupplierEmail,
			Price:         payload.Price,
			InStockQty:    payload.InStockQty,
			ExpireDate:    payload.ExpireDate,
			Category:      payload.Category,
			Description:   payload.Description,
			Tags:          payload.Tags,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, item)
	}
}

// ListItems returns every visible item. Listing also sweeps for low-stock
// items and publishes alerts for them.
func ListItems(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		items, err := svc.ListItems(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

// GetItem fetches a single visible item by id.
func GetItem(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		item, err := svc.GetItem(r.Context(), chi.URLParam(r, "itemId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

// UpdateItem applies a partial mutation to an item.
func UpdateItem(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		var payload updateItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.UpdateItem(r.Context(), chi.URLParam(r, "itemId"), inventory.UpdateItemInput{
			Name:          payload.Name,
			SupplierEmail: payload.SupplierEmail,
			Price:         payload.Price,
			InStockQty:    payload.InStockQty,
			ExpireDate:    payload.ExpireDate,
			Category:      payload.Category,
			Description:   payload.Description,
			Tags:          payload.Tags,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

// DeleteItem soft-deletes an item. The row survives so historical cart lines
// keep their reference, and the code stays reserved.
func DeleteItem(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		if err := svc.DeleteItem(r.Context(), chi.URLParam(r, "itemId")); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

// SearchItems runs a case-insensitive substring search across the item's
// text fields.
func SearchItems(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		query := validators.SanitizeString(r.URL.Query().Get("q"), 200)
		items, err := svc.SearchItems(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

// ListExpiredItems returns visible items whose expiry date has passed.
func ListExpiredItems(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		items, err := svc.ListExpiredItems(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

// ListNonExpiredItems returns visible items that are still sellable,
// including items with no expiry date at all.
func ListNonExpiredItems(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		items, err := svc.ListNonExpiredItems(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

// ListBySupplier returns visible items sourced from one supplier email.
func ListBySupplier(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		email := strings.TrimSpace(r.URL.Query().Get("email"))
		items, err := svc.ListBySupplier(r.Context(), email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

// ListLowStockItems returns visible items below the stock threshold, lowest
// stock first. An optional threshold query parameter overrides the configured
// default for this call.
func ListLowStockItems(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		threshold, err := validators.ParseQueryInt(r, "threshold", 0, 1, 1_000_000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items, err := svc.ListLowStockItems(r.Context(), threshold)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

// UploadItemImage stores an item photo and records its public URL. Expects a
// multipart form with a single "image" part.
func UploadItemImage(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxImageUploadBytes)
		if err := r.ParseMultipartForm(maxImageUploadBytes); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart body"))
			return
		}

		file, header, err := r.FormFile("image")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "missing image part"))
			return
		}
		defer file.Close()

		contentType := header.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		item, err := svc.UploadItemImage(r.Context(), chi.URLParam(r, "itemId"), header.Filename, contentType, file)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}
