package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthChecker probes one dependency
type HealthChecker func(ctx context.Context) error

// HealthCheck reports service health. A failing required check turns the
// response into 503; optional ones are reported as degraded.
func HealthCheck(serviceName string, required, optional map[string]HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := "healthy"
		code := http.StatusOK
		checks := gin.H{}

		for name, check := range required {
			if err := check(ctx); err != nil {
				checks[name] = err.Error()
				status = "unhealthy"
				code = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}
		for name, check := range optional {
			if err := check(ctx); err != nil {
				checks[name] = err.Error()
				if code == http.StatusOK {
					status = "degraded"
				}
				continue
			}
			checks[name] = "ok"
		}

		c.JSON(code, gin.H{
			"status":  status,
			"service": serviceName,
			"checks":  checks,
		})
	}
}
