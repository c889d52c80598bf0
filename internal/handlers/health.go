package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/timecapsule/internal/monitoring"
	"github.com/charlesng35/timecapsule/pkg/response"
)

// Health reports process liveness.
func Health(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"status": "ok"})
}

// Readiness runs the dependency checks. A down check answers 503; a degraded one
// still reports ready.
func Readiness(manager *monitoring.HealthManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if manager == nil {
			response.Success(c, http.StatusOK, monitoring.HealthReport{Status: monitoring.StatusUp})
			return
		}

		report := manager.Evaluate(requestContext(c))
		if report.Status == monitoring.StatusDown {
			c.JSON(http.StatusServiceUnavailable, response.Response{
				Success: false,
				Data:    report,
				Error: &response.ErrorInfo{
					Code:    "SERVICE_UNAVAILABLE",
					Message: "One or more dependencies are unavailable",
				},
			})
			return
		}
		response.Success(c, http.StatusOK, report)
	}
}
