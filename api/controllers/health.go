package controllers

import (
	"net/http"

	"go.uber.org/multierr"

	"github.com/Joelisking/marketplace-api-sub000/api/responses"
	"github.com/Joelisking/marketplace-api-sub000/pkg/config"
	"github.com/Joelisking/marketplace-api-sub000/pkg/db"
	pkgerrors "github.com/Joelisking/marketplace-api-sub000/pkg/errors"
	"github.com/Joelisking/marketplace-api-sub000/pkg/logger"
	"github.com/Joelisking/marketplace-api-sub000/pkg/redis"
)

const envHeader = "X-Marketplace-Env"

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports readiness only when every backing store answers.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		ctx := r.Context()

		checks := map[string]string{}
		var failures error

		if dbP != nil {
			if err := dbP.Ping(ctx); err != nil {
				checks["database"] = err.Error()
				failures = multierr.Append(failures, err)
			} else {
				checks["database"] = "ok"
			}
		}
		if redisP != nil {
			if err := redisP.Ping(ctx); err != nil {
				checks["redis"] = err.Error()
				failures = multierr.Append(failures, err)
			} else {
				checks["redis"] = "ok"
			}
		}

		if failures != nil {
			if logg != nil {
				logg.Error(ctx, "readiness check failed", failures)
			}
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeDependency, "not ready").WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
