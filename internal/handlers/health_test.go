package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name   string
		checks map[string]HealthCheck
		status int
		state  string
	}{
		{"all up", map[string]HealthCheck{"postgres": ok, "redis": ok}, http.StatusOK, "healthy"},
		{"redis down", map[string]HealthCheck{"postgres": ok, "redis": down}, http.StatusServiceUnavailable, "degraded"},
		{"no dependencies", nil, http.StatusOK, "healthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.GET("/health", NewHealthHandler(tt.checks).Health)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			require.Equal(t, tt.status, rec.Code)
			var body struct {
				Status       string            `json:"status"`
				Service      string            `json:"service"`
				Dependencies map[string]string `json:"dependencies"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.state, body.Status)
			assert.Equal(t, "bazaar-chat", body.Service)
			for name := range tt.checks {
				assert.Contains(t, body.Dependencies, name)
			}
		})
	}
}
