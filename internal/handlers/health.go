package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const healthCheckTimeout = 2 * time.Second

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Health returns a handler reporting UP while db answers pings. db may be nil.
func Health(db Pinger, logger logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().UTC()
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				logger.WithError(err).Warn("health check failed")
				writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
					Status:    "DOWN",
					Message:   "Database is unreachable",
					Timestamp: now,
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, HealthResponse{
			Status:    "UP",
			Message:   "GetActive API is running",
			Timestamp: now,
		})
	}
}
