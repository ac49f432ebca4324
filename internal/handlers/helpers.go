package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/anonto42/bazaar/backend/internal/middleware"
	"github.com/anonto42/bazaar/backend/internal/models"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// retryAfterSeconds is advertised when the store is temporarily unreachable.
const retryAfterSeconds = "5"

func getClaims(c echo.Context) *models.JwtCustomClaims {
	claims, _ := c.Get(middleware.ContextKeyUser).(*models.JwtCustomClaims)
	return claims
}

// getUserIDFromContext returns the authenticated user id, or 0.
func getUserIDFromContext(c echo.Context) uint {
	if claims := getClaims(c); claims != nil {
		return claims.UserID
	}
	return 0
}

// requireUser returns the authenticated user id or a 401.
func requireUser(c echo.Context) (uint, error) {
	if id := getUserIDFromContext(c); id != 0 {
		return id, nil
	}
	return 0, echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
}

func isAdmin(c echo.Context) bool {
	claims := getClaims(c)
	return claims != nil && claims.Role == string(models.RoleAdmin)
}

// bindStrict decodes a JSON body rejecting unknown fields, then validates it.
func bindStrict(c echo.Context, v interface{}) error {
	dec := json.NewDecoder(c.Request().Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request payload: %v", models.ErrInvalidInput, err)
	}
	if c.Echo().Validator != nil {
		if err := c.Validate(v); err != nil {
			return err
		}
	}
	return nil
}

func parseIDParam(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid %s", models.ErrInvalidInput, name)
	}
	return uint(id), nil
}

// parseOptionalUint reads a non-negative integer query parameter; absent means 0.
func parseOptionalUint(c echo.Context, name string) (uint, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s", models.ErrInvalidInput, name)
	}
	return uint(v), nil
}

// httpError maps core errors onto HTTP responses.
func httpError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, models.ErrConversationNotFound),
		errors.Is(err, models.ErrNotificationNotFound),
		errors.Is(err, models.ErrParticipantNotFound):
		return echo.NewHTTPError(http.StatusNotFound, errorBody("not_found", err.Error()))
	case errors.Is(err, models.ErrNotAParticipant):
		return echo.NewHTTPError(http.StatusForbidden, errorBody("not_a_participant", err.Error()))
	case errors.Is(err, models.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, errorBody("invalid_input", err.Error()))
	case errors.Is(err, models.ErrStoreUnreachable):
		log.Warn().Err(err).Str("path", c.Path()).Msg("store unreachable")
		c.Response().Header().Set("Retry-After", retryAfterSeconds)
		return echo.NewHTTPError(http.StatusServiceUnavailable, errorBody("store_unreachable", "storage is temporarily unreachable, retry later"))
	case errors.Is(err, models.ErrStoreUnavailable):
		log.Error().Err(err).Str("path", c.Path()).Msg("store unavailable")
		return echo.NewHTTPError(http.StatusInternalServerError, errorBody("store_unavailable", "chat is not configured"))
	default:
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
		return echo.NewHTTPError(http.StatusInternalServerError, errorBody("internal", "internal server error"))
	}
}

func errorBody(code, message string) echo.Map {
	return echo.Map{"success": false, "code": code, "message": message}
}
