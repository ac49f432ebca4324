package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthCheck pings one dependency.
type HealthCheck func(ctx context.Context) error

// HealthHandler reports whether the service and its stores respond.
type HealthHandler struct {
	checks map[string]HealthCheck
}

// NewHealthHandler creates a HealthHandler running checks by name.
func NewHealthHandler(checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}
	return c.JSON(status, echo.Map{
		"status":       state,
		"service":      "bazaar-chat",
		"dependencies": deps,
	})
}
