package router

import (
	"context"
	"fmt"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/anonto42/bazaar/backend/internal/handlers"
	"github.com/anonto42/bazaar/backend/internal/identity"
	"github.com/anonto42/bazaar/backend/internal/middleware"
	"github.com/anonto42/bazaar/backend/internal/models"
	"github.com/anonto42/bazaar/backend/internal/realtime"
	"github.com/anonto42/bazaar/backend/internal/repositories"
	"github.com/anonto42/bazaar/backend/internal/services"
	"github.com/anonto42/bazaar/backend/pkg/config"
	"github.com/labstack/echo/v4"
	eMiddleware "github.com/labstack/echo/v4/middleware"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// Dependencies are the connections and optional collaborators routes are built from.
type Dependencies struct {
	Config       *config.Config
	Postgres     *gorm.DB
	Mongo        *mongo.Client           // required when notifications.backend is mongo
	Redis        *redis.Client           // enables cross-process delivery
	FirebaseAuth *auth.Client            // enables Firebase tokens and profile overlay
	Notifier     services.MessageNotifier // defaults to a DirectNotifier
}

// App exposes what the process needs after wiring: background loops and services.
type App struct {
	Hub           *realtime.Hub
	Broker        *realtime.RedisBroker // nil without Redis
	Alerts        *services.MessageAlerts
	Conversations *services.ConversationService
	Notifications *services.NotificationService
}

// Migrate creates or updates the PostgreSQL schema.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Vendor{},
		&models.Conversation{},
		&models.Message{},
		&models.Notification{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	log.Info().Msg("PostgreSQL auto-migrations completed for all models.")
	return nil
}

// SetupRoutes configures all application routes and injects dependencies
func SetupRoutes(e *echo.Echo, deps Dependencies) (*App, error) {
	cfg := deps.Config

	// --- Initialize Repositories ---
	userRepo := repositories.NewPostgresUserRepository(deps.Postgres)
	conversationRepo := repositories.NewPostgresConversationRepository(deps.Postgres)
	messageRepo := repositories.NewPostgresMessageRepository(deps.Postgres)
	notificationRepo, err := notificationRepository(deps)
	if err != nil {
		return nil, err
	}

	// --- Identity and enrichment ---
	var overlay *identity.FirebaseOverlay
	if deps.FirebaseAuth != nil {
		overlay = identity.NewFirebaseOverlay(deps.FirebaseAuth)
	}
	directory := identity.NewDirectory(userRepo, overlay)
	enricher := services.NewEnricher(directory, messageRepo)

	// --- Delivery channel ---
	app := &App{Hub: realtime.NewHub(cfg.Chat.Buffer)}
	var broker realtime.Broker = app.Hub
	if deps.Redis != nil {
		app.Broker = realtime.NewRedisBroker(deps.Redis, app.Hub)
		broker = app.Broker
		log.Info().Msg("Chat delivery uses Redis pub/sub.")
	}

	// --- Services ---
	app.Notifications = services.NewNotificationService(notificationRepo, cfg.Notifications.PageSize)
	app.Alerts = services.NewMessageAlerts(app.Notifications, directory)
	notifier := deps.Notifier
	if notifier == nil {
		notifier = services.NewDirectNotifier(app.Alerts)
	}
	app.Conversations = services.NewConversationService(conversationRepo, messageRepo, directory, broker, enricher,
		services.WithNotifier(notifier))

	// Health check - always accessible
	health := handlers.NewHealthHandler(healthChecks(deps))
	e.GET("/health", health.Health)

	// --- Protected routes (require authentication) ---
	api := e.Group("/api/v1")
	var fallback middleware.Authenticator
	if deps.FirebaseAuth != nil {
		fallback = middleware.NewFirebaseAuthenticator(deps.FirebaseAuth, userRepo)
	}
	api.Use(middleware.JWTAuthMiddleware(cfg.JWT.Secret, fallback))

	conversationHandler := handlers.NewConversationHandler(app.Conversations, sendRateLimiter(cfg))
	conversationHandler.RegisterConversationRoutes(api)
	log.Info().Msg("Conversation routes configured.")

	socketHandler := handlers.NewSocketHandler(app.Conversations)
	socketHandler.RegisterSocketRoutes(api)
	log.Info().Msg("Websocket routes configured.")

	notificationHandler := handlers.NewNotificationHandler(app.Notifications, enricher)
	notificationHandler.RegisterNotificationRoutes(api)
	admin := api.Group("/admin", middleware.RequireAdmin())
	notificationHandler.RegisterAdminRoutes(admin)
	log.Info().Msg("Notification routes configured.")

	log.Info().Msg("All routes configured.")
	return app, nil
}

func notificationRepository(deps Dependencies) (repositories.NotificationRepository, error) {
	if deps.Config.Notifications.Backend != "mongo" {
		return repositories.NewPostgresNotificationRepository(deps.Postgres), nil
	}
	if deps.Mongo == nil {
		return nil, fmt.Errorf("notifications.backend is mongo but no MongoDB client is configured")
	}
	repo := repositories.NewMongoNotificationRepository(deps.Mongo.Database(deps.Config.Mongo.Database))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := repo.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("mongo notification indexes: %w", err)
	}
	log.Info().Msg("Notifications are stored in MongoDB.")
	return repo, nil
}

// sendRateLimiter limits message sends per authenticated user.
func sendRateLimiter(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.Chat.SendRate <= 0 {
		return nil
	}
	store := eMiddleware.NewRateLimiterMemoryStoreWithConfig(eMiddleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(cfg.Chat.SendRate),
		Burst:     cfg.Chat.SendBurst,
		ExpiresIn: 3 * time.Minute,
	})
	return eMiddleware.RateLimiterWithConfig(eMiddleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			if claims, ok := c.Get(middleware.ContextKeyUser).(*models.JwtCustomClaims); ok {
				return fmt.Sprintf("user:%d", claims.UserID), nil
			}
			return c.RealIP(), nil
		},
	})
}

func healthChecks(deps Dependencies) map[string]handlers.HealthCheck {
	checks := map[string]handlers.HealthCheck{
		"postgres": func(ctx context.Context) error {
			sqlDB, err := deps.Postgres.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if deps.Mongo != nil {
		checks["mongo"] = func(ctx context.Context) error { return deps.Mongo.Ping(ctx, nil) }
	}
	if deps.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() }
	}
	return checks
}
