package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anonto42/bazaar/backend/internal/queue"
	"github.com/anonto42/bazaar/backend/internal/realtime"
	"github.com/anonto42/bazaar/backend/internal/router"
	"github.com/anonto42/bazaar/backend/pkg/config"
	"github.com/anonto42/bazaar/backend/pkg/firebase"
	"github.com/anonto42/bazaar/backend/validators"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

const version = "0.1.0"

func main() {
	app := &cli.App{
		Name:    "bazaar",
		Usage:   "marketplace conversation and notification service",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				Value:   "bazaar.toml",
				EnvVars: []string{"MARKET_CONFIG"},
			},
		},
		Before: func(c *cli.Context) error {
			config.SetupLogging("info", false)
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API, websocket delivery and background workers",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "create or update the PostgreSQL schema and exit",
				Action: migrate,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("exiting")
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	config.SetupLogging(cfg.Log.Level, cfg.Log.Pretty)
	return cfg, nil
}

func migrate(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	db, err := config.InitDB(c.Context, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}
	defer db.CloseDB()
	return router.Migrate(db.Postgres)
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database connections
	db, err := config.InitDB(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}
	defer db.CloseDB()
	if err := router.Migrate(db.Postgres); err != nil {
		return err
	}

	// Initialize Firebase
	firebaseAuth, err := firebase.NewAuthClient(ctx, firebase.Options{
		CredentialsFile: cfg.Firebase.Credentials,
		ProjectID:       cfg.Firebase.Project,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize Firebase: %w", err)
	}

	deps := router.Dependencies{
		Config:       cfg,
		Postgres:     db.Postgres,
		Mongo:        db.Mongo,
		FirebaseAuth: firebaseAuth,
	}

	if cfg.Redis.URL != "" {
		rdb, err := realtime.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		deps.Redis = rdb
	}

	var redisOpt asynq.RedisConnOpt
	if cfg.Queue.Enabled {
		redisOpt, err = queue.ParseRedisURL(cfg.Redis.URL)
		if err != nil {
			return err
		}
		client := asynq.NewClient(redisOpt)
		defer client.Close()
		deps.Notifier = queue.NewAsynqNotifier(client)
	}

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.Validator = validators.NewValidator()
	config.SetupMiddleware(e)

	app, err := router.SetupRoutes(e, deps)
	if err != nil {
		return err
	}
	defer app.Hub.Close()

	g, gctx := errgroup.WithContext(ctx)
	if app.Broker != nil {
		g.Go(func() error { return app.Broker.Run(gctx) })
		// appends must not be accepted before the relay is subscribed
		select {
		case <-app.Broker.Ready():
		case <-gctx.Done():
			return g.Wait()
		}
	}
	g.Go(func() error {
		log.Info().Str("port", cfg.HTTP.Port).Msg("HTTP server listening")
		if err := e.Start(":" + cfg.HTTP.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		app.Hub.Close()
		return e.Shutdown(shutdownCtx)
	})
	if cfg.Queue.Enabled {
		worker := queue.NewWorker(redisOpt, cfg.Queue.Concurrency, app.Alerts)
		g.Go(func() error { return worker.Run(gctx) })
	}

	err = g.Wait()
	log.Info().Msg("server stopped")
	return err
}
