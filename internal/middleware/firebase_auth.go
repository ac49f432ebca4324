package middleware

import (
	"context"
	"fmt"
	"net/http"

	"firebase.google.com/go/v4/auth"
	"github.com/anonto42/bazaar/backend/internal/models"
	"github.com/labstack/echo/v4"
)

// IDTokenVerifier is the part of *auth.Client used to check Firebase ID tokens.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// UserLookup maps a Firebase UID to the local user.
type UserLookup interface {
	GetUserByFirebaseUID(ctx context.Context, firebaseUID string) (*models.User, error)
}

// FirebaseAuthenticator accepts Firebase ID tokens of users known locally.
type FirebaseAuthenticator struct {
	verifier IDTokenVerifier
	users    UserLookup
}

// NewFirebaseAuthenticator returns nil when verifier is nil so it can be
// passed straight to JWTAuthMiddleware.
func NewFirebaseAuthenticator(verifier IDTokenVerifier, users UserLookup) Authenticator {
	if verifier == nil {
		return nil
	}
	return &FirebaseAuthenticator{verifier: verifier, users: users}
}

func (a *FirebaseAuthenticator) Authenticate(ctx context.Context, idToken string) (*models.JwtCustomClaims, error) {
	token, err := a.verifier.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("invalid or expired ID token: %w", err)
	}
	user, err := a.users.GetUserByFirebaseUID(ctx, token.UID)
	if err != nil {
		return nil, fmt.Errorf("no user for firebase uid %s: %w", token.UID, err)
	}
	claims := &models.JwtCustomClaims{UserID: user.ID, Email: user.Email}
	if role, ok := token.Claims["role"].(string); ok {
		claims.Role = role
	}
	return claims, nil
}

// FirebaseAuthMiddleware creates an Echo middleware that only accepts Firebase ID tokens
func FirebaseAuthMiddleware(verifier IDTokenVerifier, users UserLookup) echo.MiddlewareFunc {
	authn := &FirebaseAuthenticator{verifier: verifier, users: users}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			idToken, err := bearerToken(c)
			if err != nil {
				return err
			}
			claims, err := authn.Authenticate(c.Request().Context(), idToken)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired ID token")
			}
			c.Set(ContextKeyUser, claims)
			return next(c)
		}
	}
}
