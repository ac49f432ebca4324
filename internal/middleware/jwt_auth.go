package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anonto42/bazaar/backend/internal/models"
	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

// ContextKeyUser is where authenticated claims are stored on the echo context.
const ContextKeyUser = "user"

// Authenticator turns a bearer token into claims. It is how alternative token
// issuers plug into JWTAuthMiddleware.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.JwtCustomClaims, error)
}

// JWTAuthMiddleware checks for a valid HS256 JWT and extracts user claims.
// Tokens that are not ours are offered to fallback when it is non-nil.
func JWTAuthMiddleware(secret string, fallback Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenString, err := bearerToken(c)
			if err != nil {
				return err
			}

			claims, err := ParseToken(tokenString, secret)
			if err != nil && fallback != nil {
				claims, err = fallback.Authenticate(c.Request().Context(), tokenString)
			}
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
			}

			c.Set(ContextKeyUser, claims)
			return next(c)
		}
	}
}

// ParseToken validates an HS256 token signed with secret.
func ParseToken(tokenString, secret string) (*models.JwtCustomClaims, error) {
	claims := &models.JwtCustomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == 0 {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// bearerToken reads "Authorization: Bearer <token>", falling back to the
// token query parameter because browsers cannot set headers on websockets.
func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		if t := c.QueryParam("token"); t != "" {
			return t, nil
		}
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Missing Authorization header")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Invalid Authorization header format")
	}
	return parts[1], nil
}

// RequireAdmin rejects principals whose claims do not carry the admin role.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := c.Get(ContextKeyUser).(*models.JwtCustomClaims)
			if !ok || claims.Role != string(models.RoleAdmin) {
				return echo.NewHTTPError(http.StatusForbidden, "Admin access required")
			}
			return next(c)
		}
	}
}
