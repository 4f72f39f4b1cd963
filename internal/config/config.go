package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRemote   = "remote"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	AuthSecret            string
	AccessTokenTTLMinutes int
	StoreBackend          string
	StoreFallback         bool
	RemoteStoreURL        string
	RemoteStoreToken      string
	RemoteStoreTimeoutMS  int
	LocalSnapshotPath     string
	CartTTLMinutes        int
	LogLevel              string
	LogFormat             string
	RateLimitRPS          float64
	RateLimitBurst        int
	SeedAdminPassword     string
}

// Load reads configuration from the environment, after merging an optional
// .env file from the working directory.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("config: could not load .env file")
	}
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 480)
	v.SetDefault("STORE_FALLBACK", false)
	v.SetDefault("REMOTE_STORE_TIMEOUT_MS", 3000)
	v.SetDefault("CART_TTL_MINUTES", 120)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("RATE_LIMIT_RPS", 20.0)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	return v
}

func FromViper(v *viper.Viper) Config {
	cfg := Config{
		Port:                  v.GetString("PORT"),
		AllowedOrigin:         v.GetString("ALLOWED_ORIGIN"),
		DatabaseURL:           strings.TrimSpace(v.GetString("DATABASE_URL")),
		RedisAddr:             strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword:         v.GetString("REDIS_PASSWORD"),
		RedisDB:               v.GetInt("REDIS_DB"),
		AuthSecret:            strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes: v.GetInt("ACCESS_TOKEN_TTL_MINUTES"),
		StoreBackend:          strings.ToLower(strings.TrimSpace(v.GetString("STORE_BACKEND"))),
		StoreFallback:         v.GetBool("STORE_FALLBACK"),
		RemoteStoreURL:        strings.TrimSpace(v.GetString("REMOTE_STORE_URL")),
		RemoteStoreToken:      strings.TrimSpace(v.GetString("REMOTE_STORE_TOKEN")),
		RemoteStoreTimeoutMS:  v.GetInt("REMOTE_STORE_TIMEOUT_MS"),
		LocalSnapshotPath:     strings.TrimSpace(v.GetString("LOCAL_SNAPSHOT_PATH")),
		CartTTLMinutes:        v.GetInt("CART_TTL_MINUTES"),
		LogLevel:              v.GetString("LOG_LEVEL"),
		LogFormat:             strings.ToLower(v.GetString("LOG_FORMAT")),
		RateLimitRPS:          v.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst:        v.GetInt("RATE_LIMIT_BURST"),
		SeedAdminPassword:     v.GetString("SEED_ADMIN_PASSWORD"),
	}

	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 480
	}
	if cfg.RemoteStoreTimeoutMS < 1 {
		cfg.RemoteStoreTimeoutMS = 3000
	}
	if cfg.CartTTLMinutes < 1 {
		cfg.CartTTLMinutes = 120
	}
	if cfg.RateLimitBurst < 1 {
		cfg.RateLimitBurst = 1
	}
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = BackendMemory
		if cfg.DatabaseURL != "" {
			cfg.StoreBackend = BackendPostgres
		}
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) RemoteStoreTimeout() time.Duration {
	return time.Duration(c.RemoteStoreTimeoutMS) * time.Millisecond
}

func (c Config) CartTTL() time.Duration {
	return time.Duration(c.CartTTLMinutes) * time.Minute
}

// Validate rejects backend selections that cannot start.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("STORE_BACKEND=postgres requires DATABASE_URL")
		}
	case BackendRemote:
		if c.RemoteStoreURL == "" {
			return fmt.Errorf("STORE_BACKEND=remote requires REMOTE_STORE_URL")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.StoreFallback && c.StoreBackend == BackendMemory {
		return fmt.Errorf("STORE_FALLBACK needs a postgres or remote primary store")
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must not be negative")
	}
	return nil
}
