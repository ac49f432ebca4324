package config

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB holds the database connections
type DB struct {
	Postgres *gorm.DB
	Mongo    *mongo.Client
}

// InitDB opens PostgreSQL and, when a URI is configured, MongoDB.
func InitDB(ctx context.Context, cfg *Config) (*DB, error) {
	if cfg.Postgres.DSN == "" {
		return nil, fmt.Errorf("postgres.dsn is not set (MARKET_POSTGRES_DSN or POSTGRES_CONN_STR)")
	}

	postgresDB, err := initPostgres(cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.IsProduction())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	db := &DB{Postgres: postgresDB}

	if cfg.Mongo.URI != "" {
		mongoClient, err := initMongo(ctx, cfg.Mongo.URI)
		if err != nil {
			db.CloseDB()
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		db.Mongo = mongoClient
	}
	return db, nil
}

// GormConfig is the gorm configuration shared by every connection. Driver
// errors are translated so unique violations surface as gorm.ErrDuplicatedKey.
func GormConfig(quiet bool) *gorm.Config {
	level := logger.Warn
	if quiet {
		level = logger.Error
	}
	return &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(level),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}
}

// initPostgres opens the pool and pings it once. maxConns <= 0 leaves the pool unbounded.
func initPostgres(dsn string, maxConns int, quiet bool) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), GormConfig(quiet))
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(maxConns)
		sqlDB.SetMaxIdleConns(max(maxConns/5, 2))
	}
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	if err = sqlDB.Ping(); err != nil {
		return nil, err
	}

	log.Info().Int("max_conns", maxConns).Msg("Successfully connected to PostgreSQL")
	return db, nil
}

// initMongo initializes the MongoDB connection
func initMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	log.Info().Msg("Successfully connected to MongoDB")
	return client, nil
}

// CloseDB closes the database connections
func (db *DB) CloseDB() {
	if db.Postgres != nil {
		sqlDB, err := db.Postgres.DB()
		if err != nil {
			log.Error().Err(err).Msg("Error getting SQL DB from GORM")
		} else if err := sqlDB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing PostgreSQL connection")
		} else {
			log.Info().Msg("PostgreSQL connection closed")
		}
	}

	if db.Mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.Mongo.Disconnect(ctx); err != nil {
			log.Error().Err(err).Msg("Error closing MongoDB connection")
		} else {
			log.Info().Msg("MongoDB connection closed")
		}
	}
}
