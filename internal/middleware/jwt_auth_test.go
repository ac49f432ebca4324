package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/anonto42/bazaar/backend/internal/models"
	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const secret = "middleware-secret"

func sign(t *testing.T, key string, claims *models.JwtCustomClaims) string {
	t.Helper()
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return token
}

// run passes a request through mw and reports the status and the claims the
// downstream handler saw.
func run(t *testing.T, mw echo.MiddlewareFunc, target, header string) (int, *models.JwtCustomClaims) {
	t.Helper()
	e := echo.New()
	var seen *models.JwtCustomClaims
	e.GET("/*", func(c echo.Context) error {
		seen, _ = c.Get(ContextKeyUser).(*models.JwtCustomClaims)
		return c.NoContent(http.StatusNoContent)
	}, mw)

	req := httptest.NewRequest(http.MethodGet, target, nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec.Code, seen
}

type stubAuthenticator struct {
	claims *models.JwtCustomClaims
	calls  int
}

func (s *stubAuthenticator) Authenticate(_ context.Context, token string) (*models.JwtCustomClaims, error) {
	s.calls++
	if token != "firebase-token" {
		return nil, errors.New("unknown token")
	}
	return s.claims, nil
}

func TestJWTAuthMiddleware(t *testing.T) {
	valid := sign(t, secret, &models.JwtCustomClaims{UserID: 7, Email: "a@example.com"})
	forged := sign(t, "someone-else", &models.JwtCustomClaims{UserID: 7})
	expired := sign(t, secret, &models.JwtCustomClaims{UserID: 7, RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))}})
	anonymous := sign(t, secret, &models.JwtCustomClaims{})

	tests := []struct {
		name   string
		target string
		header string
		status int
	}{
		{"bearer header", "/x", "Bearer " + valid, http.StatusNoContent},
		{"lowercase scheme", "/x", "bearer " + valid, http.StatusNoContent},
		{"query token", "/x?token=" + valid, "", http.StatusNoContent},
		{"missing", "/x", "", http.StatusUnauthorized},
		{"wrong scheme", "/x", "Basic " + valid, http.StatusUnauthorized},
		{"bad signature", "/x", "Bearer " + forged, http.StatusUnauthorized},
		{"expired", "/x", "Bearer " + expired, http.StatusUnauthorized},
		{"no user id", "/x", "Bearer " + anonymous, http.StatusUnauthorized},
		{"garbage", "/x", "Bearer not.a.jwt", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, claims := run(t, JWTAuthMiddleware(secret, nil), tt.target, tt.header)
			assert.Equal(t, tt.status, status)
			if tt.status == http.StatusNoContent {
				require.NotNil(t, claims)
				assert.Equal(t, uint(7), claims.UserID)
			} else {
				assert.Nil(t, claims)
			}
		})
	}
}

func TestJWTAuthMiddlewareFallback(t *testing.T) {
	stub := &stubAuthenticator{claims: &models.JwtCustomClaims{UserID: 11}}
	mw := JWTAuthMiddleware(secret, stub)

	status, claims := run(t, mw, "/x", "Bearer firebase-token")
	assert.Equal(t, http.StatusNoContent, status)
	require.NotNil(t, claims)
	assert.Equal(t, uint(11), claims.UserID)

	status, _ = run(t, mw, "/x", "Bearer "+sign(t, secret, &models.JwtCustomClaims{UserID: 3}))
	assert.Equal(t, http.StatusNoContent, status)
	assert.Equal(t, 1, stub.calls, "own tokens never reach the fallback")

	status, _ = run(t, mw, "/x", "Bearer junk")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRequireAdmin(t *testing.T) {
	chain := func(next echo.HandlerFunc) echo.HandlerFunc {
		return JWTAuthMiddleware(secret, nil)(RequireAdmin()(next))
	}

	status, _ := run(t, chain, "/x", "Bearer "+sign(t, secret, &models.JwtCustomClaims{UserID: 1, Role: "admin"}))
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = run(t, chain, "/x", "Bearer "+sign(t, secret, &models.JwtCustomClaims{UserID: 1}))
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = run(t, RequireAdmin(), "/x", "")
	assert.Equal(t, http.StatusForbidden, status)
}

type fakeVerifier struct {
	tokens map[string]*auth.Token
}

func (f fakeVerifier) VerifyIDToken(_ context.Context, idToken string) (*auth.Token, error) {
	if tok, ok := f.tokens[idToken]; ok {
		return tok, nil
	}
	return nil, errors.New("token signature invalid")
}

type fakeUsers map[string]*models.User

func (f fakeUsers) GetUserByFirebaseUID(_ context.Context, uid string) (*models.User, error) {
	if u, ok := f[uid]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func TestFirebaseAuthenticator(t *testing.T) {
	verifier := fakeVerifier{tokens: map[string]*auth.Token{
		"staff":    {UID: "fb-staff", Claims: map[string]interface{}{"role": "admin"}},
		"customer": {UID: "fb-customer"},
		"stranger": {UID: "fb-unknown"},
	}}
	staff := &models.User{Email: "staff@example.com"}
	staff.ID = 21
	customer := &models.User{Email: "c@example.com"}
	customer.ID = 22
	authn := NewFirebaseAuthenticator(verifier, fakeUsers{"fb-staff": staff, "fb-customer": customer})
	require.NotNil(t, authn)

	claims, err := authn.Authenticate(context.Background(), "staff")
	require.NoError(t, err)
	assert.Equal(t, uint(21), claims.UserID)
	assert.Equal(t, "admin", claims.Role)

	claims, err = authn.Authenticate(context.Background(), "customer")
	require.NoError(t, err)
	assert.Equal(t, "c@example.com", claims.Email)
	assert.Empty(t, claims.Role)

	_, err = authn.Authenticate(context.Background(), "stranger")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = authn.Authenticate(context.Background(), "forged")
	assert.Error(t, err)
}

func TestNewFirebaseAuthenticatorNilVerifier(t *testing.T) {
	assert.Nil(t, NewFirebaseAuthenticator(nil, fakeUsers{}))
}

func TestFirebaseAuthMiddleware(t *testing.T) {
	customer := &models.User{}
	customer.ID = 5
	mw := FirebaseAuthMiddleware(fakeVerifier{tokens: map[string]*auth.Token{"ok": {UID: "u"}}}, fakeUsers{"u": customer})

	status, claims := run(t, mw, "/x", "Bearer ok")
	assert.Equal(t, http.StatusNoContent, status)
	require.NotNil(t, claims)
	assert.Equal(t, uint(5), claims.UserID)

	status, _ = run(t, mw, "/x", "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, status)
}
