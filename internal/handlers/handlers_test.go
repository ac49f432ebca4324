package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/anonto42/bazaar/backend/internal/identity"
	"github.com/anonto42/bazaar/backend/internal/middleware"
	"github.com/anonto42/bazaar/backend/internal/models"
	"github.com/anonto42/bazaar/backend/internal/realtime"
	"github.com/anonto42/bazaar/backend/internal/repositories"
	"github.com/anonto42/bazaar/backend/internal/services"
	"github.com/anonto42/bazaar/backend/internal/testutil"
	"github.com/anonto42/bazaar/backend/validators"
	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "test-secret"

type testServer struct {
	e             *echo.Echo
	db            *gorm.DB
	hub           *realtime.Hub
	conversations *services.ConversationService
	notifications *services.NotificationService

	buyer  *models.User
	owner  *models.User
	vendor *models.Vendor
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := testutil.NewDB(t)
	s := &testServer{db: db, hub: realtime.NewHub(16)}
	t.Cleanup(s.hub.Close)

	s.buyer = testutil.CreateUser(t, db, "alice")
	s.owner = testutil.CreateUser(t, db, "bob")
	s.vendor = testutil.CreateVendor(t, db, s.owner.ID, "Bob's Bakery")

	messages := repositories.NewPostgresMessageRepository(db)
	directory := identity.NewDirectory(repositories.NewPostgresUserRepository(db), nil)
	enricher := services.NewEnricher(directory, messages)
	s.notifications = services.NewNotificationService(repositories.NewPostgresNotificationRepository(db), 0)
	s.conversations = services.NewConversationService(
		repositories.NewPostgresConversationRepository(db), messages, directory, s.hub, enricher,
		services.WithNotifier(services.NewDirectNotifier(services.NewMessageAlerts(s.notifications, directory))),
	)

	s.e = echo.New()
	s.e.Validator = validators.NewValidator()
	api := s.e.Group("/api/v1", middleware.JWTAuthMiddleware(testSecret, nil))
	NewConversationHandler(s.conversations, nil).RegisterConversationRoutes(api)
	NewSocketHandler(s.conversations).RegisterSocketRoutes(api)
	notificationHandler := NewNotificationHandler(s.notifications, enricher)
	notificationHandler.RegisterNotificationRoutes(api)
	notificationHandler.RegisterAdminRoutes(api.Group("/admin", middleware.RequireAdmin()))
	return s
}

func signToken(t *testing.T, userID uint, role string) string {
	t.Helper()
	claims := &models.JwtCustomClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data), string(env.Data))
	}
	return env
}

// openConversation creates the alice/Bob's Bakery conversation through the API.
func (s *testServer) openConversation(t *testing.T) models.Conversation {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/conversations", signToken(t, s.buyer.ID, ""), fmt.Sprintf(`{"vendor_id":%d}`, s.vendor.ID))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var conv models.Conversation
	decode(t, rec, &conv)
	return conv
}
