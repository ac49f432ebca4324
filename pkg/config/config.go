package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog/log"
)

// EnvPrefix namespaces the environment variables read by Load.
const EnvPrefix = "MARKET_"

// defaultJWTSecret only suits development; production must override it.
const defaultJWTSecret = "supersecretjwtkey"

// Config is the service configuration. Keys are single words per level so
// that MARKET_CHAT_SENDRATE maps onto chat.sendrate.
type Config struct {
	Env  string `koanf:"env"`
	HTTP struct {
		Port string `koanf:"port"`
	} `koanf:"http"`
	Postgres struct {
		DSN      string `koanf:"dsn"`
		MaxConns int    `koanf:"maxconns"`
	} `koanf:"postgres"`
	Mongo struct {
		URI      string `koanf:"uri"`
		Database string `koanf:"database"`
	} `koanf:"mongo"`
	Redis struct {
		URL string `koanf:"url"`
	} `koanf:"redis"`
	Firebase struct {
		Credentials string `koanf:"credentials"` // service account JSON file
		Project     string `koanf:"project"`
	} `koanf:"firebase"`
	JWT struct {
		Secret string `koanf:"secret"`
	} `koanf:"jwt"`
	Notifications struct {
		Backend  string `koanf:"backend"` // postgres or mongo
		PageSize int    `koanf:"pagesize"`
	} `koanf:"notifications"`
	Chat struct {
		SendRate  float64 `koanf:"sendrate"` // messages per second per user
		SendBurst int     `koanf:"sendburst"`
		Buffer    int     `koanf:"buffer"` // per-subscriber backlog
	} `koanf:"chat"`
	Queue struct {
		Enabled     bool `koanf:"enabled"`
		Concurrency int  `koanf:"concurrency"`
	} `koanf:"queue"`
	Log struct {
		Level  string `koanf:"level"`
		Pretty bool   `koanf:"pretty"`
	} `koanf:"log"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"env":                    "development",
		"http.port":              "8080",
		"postgres.maxconns":      25,
		"mongo.database":         "bazaar",
		"jwt.secret":             defaultJWTSecret,
		"notifications.backend":  "postgres",
		"notifications.pagesize": 50,
		"chat.sendrate":          2.0,
		"chat.sendburst":         10,
		"chat.buffer":            64,
		"queue.enabled":          false,
		"queue.concurrency":      10,
		"log.level":              "info",
		"log.pretty":             false,
	}
}

// legacyEnv maps the unprefixed variable names older deployments use.
var legacyEnv = map[string]string{
	"PORT":                      "http.port",
	"ENV":                       "env",
	"POSTGRES_CONN_STR":         "postgres.dsn",
	"MONGO_URI":                 "mongo.uri",
	"REDIS_URL":                 "redis.url",
	"FIREBASE_CREDENTIALS_PATH": "firebase.credentials",
	"FIREBASE_PROJECT_ID":       "firebase.project",
	"JWT_SECRET":                "jwt.secret",
}

// Load layers defaults, the optional TOML file at path, legacy environment
// variables and finally MARKET_* variables. A .env file is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, assuming environment variables are set.")
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("config: defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, fmt.Errorf("config: load %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}

	legacy := map[string]interface{}{}
	for name, key := range legacyEnv {
		if v := os.Getenv(name); v != "" {
			legacy[key] = v
		}
	}
	if err := k.Load(confmap.Provider(legacy, "."), nil); err != nil {
		return nil, fmt.Errorf("config: legacy env: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Notifications.Backend {
	case "postgres":
	case "mongo":
		if c.Mongo.URI == "" {
			return fmt.Errorf("config: mongo.uri is required when notifications.backend is mongo")
		}
	default:
		return fmt.Errorf("config: unknown notifications.backend %q", c.Notifications.Backend)
	}
	if c.Queue.Enabled && c.Redis.URL == "" {
		return fmt.Errorf("config: redis.url is required when queue.enabled is set")
	}
	if c.IsProduction() && (c.JWT.Secret == "" || c.JWT.Secret == defaultJWTSecret) {
		return fmt.Errorf("config: jwt.secret must be set in production")
	}
	if c.Chat.SendRate < 0 || c.Chat.SendBurst < 0 {
		return fmt.Errorf("config: chat.sendrate and chat.sendburst must not be negative")
	}
	return nil
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
