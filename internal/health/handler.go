// Package health serves the liveness endpoint.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger checks a dependency. A nil Pinger is skipped.
type Pinger func(ctx context.Context) error

// Handler reports service status, the running environment and the server time.
// When the database ping fails the status is "degraded" with a 503.
func Handler(env string, db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, code := "ok", http.StatusOK
		body := gin.H{"environment": env}

		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := db(ctx); err != nil {
				status, code = "degraded", http.StatusServiceUnavailable
				body["database"] = "unavailable"
			} else {
				body["database"] = "ok"
			}
		}

		body["status"] = status
		body["timestamp"] = time.Now().UTC().Format(time.RFC3339)
		c.JSON(code, body)
	}
}
