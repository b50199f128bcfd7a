package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/cliniccare/pharmacy-backend/api/responses"
	"github.com/cliniccare/pharmacy-backend/pkg/config"
	"github.com/cliniccare/pharmacy-backend/pkg/db"
	pkgerrors "github.com/cliniccare/pharmacy-backend/pkg/errors"
	"github.com/cliniccare/pharmacy-backend/pkg/logger"
	"github.com/cliniccare/pharmacy-backend/pkg/redis"
	"github.com/cliniccare/pharmacy-backend/pkg/storage/gcs"
)

const readinessTimeout = 5 * time.Second

// PubSubPinger matches the Pub/Sub client's health surface.
type PubSubPinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-ClinicCare-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every wired dependency. Optional dependencies passed as
// nil are reported as skipped rather than failing readiness.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger, pubsubP PubSubPinger, gcsP gcs.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-ClinicCare-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		statuses := map[string]string{}
		healthy := true

		check := func(name string, ping func(context.Context) error) {
			if ping == nil {
				statuses[name] = "skipped"
				return
			}
			if err := ping(ctx); err != nil {
				statuses[name] = "down"
				healthy = false
				if logg != nil {
					logg.Error(logg.WithField(ctx, "dependency", name), "health.dependency_down", err)
				}
				return
			}
			statuses[name] = "up"
		}

		check("database", pingFunc(dbP))
		check("redis", pingFunc(redisP))
		check("pubsub", pingFunc(pubsubP))
		check("gcs", pingFunc(gcsP))

		if !healthy {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeStorage, "dependency unavailable").WithDetails(statuses))
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"status":       "ready",
			"dependencies": statuses,
		})
	}
}

func pingFunc(p PubSubPinger) func(context.Context) error {
	if p == nil {
		return nil
	}
	return p.Ping
}
