package api

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/efir-portal/efir-api/config"
	"github.com/efir-portal/efir-api/models"
)

// Pinger is anything that can report whether its backend is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheckHandler reports liveness. When db is set a failed ping turns the
// response into a 503.
func HealthCheckHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := WithQueryTimeout(r.Context())
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				zap.S().Errorw("health check ping failed", "error", err)
				config.WriteJSON(w, http.StatusServiceUnavailable, models.HealthCheckResponse{Alive: false})
				return
			}
		}
		config.WriteJSON(w, http.StatusOK, models.HealthCheckResponse{Alive: true})
	}
}
