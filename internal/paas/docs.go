package paas

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func RegisterDocs(r *gin.Engine) {
	r.GET("/docs", func(c *gin.Context) {
		c.Header("Content-Type", "text/markdown; charset=utf-8")
		c.String(http.StatusOK, `# Hypercopy Executor

Turns trading intents into broker orders and tracks each one to a terminal
status. Every status change is recorded as an exec event.

## Auth

When a JWT secret is configured, /api/* routes require an HS256 Bearer
token whose subject is the user id. Health endpoints and /metrics are public.

## Routes

- GET /healthz
- GET /readyz
- GET /metrics
- GET /swagger/index.html
- POST /api/v2/executions
- GET /api/v2/executions
- GET /api/v2/executions/:id
- GET /api/v2/executions/:id/events
- POST /api/v2/executions/:id/submit
- POST /api/v2/executions/:id/refresh
- POST /api/v2/executions/:id/cancel
- POST /api/v2/executions/sweep
- GET /api/v2/marks/:symbol
- POST /api/v2/broker/builder-fee/approve
- GET /api/v2/system-settings/switches
- GET /api/v2/system-settings/switches/:name
- PUT /api/v2/system-settings/switches/:name
`)
	})
}
