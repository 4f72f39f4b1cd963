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

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"posdemo/backend/internal/cache"
	"posdemo/backend/internal/config"
	"posdemo/backend/internal/domain"
	"posdemo/backend/internal/httpapi"
	"posdemo/backend/internal/logging"
	"posdemo/backend/internal/service"
	"posdemo/backend/internal/store"
	"posdemo/backend/internal/store/fallback"
	"posdemo/backend/internal/store/memory"
	pgstore "posdemo/backend/internal/store/postgres"
	"posdemo/backend/internal/store/remote"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatalf("invalid security configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	backend, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("store unavailable: %v", err)
	}
	closers := []func() error{backend.store.Close}
	logger.WithField("store", backend.name).Info("store ready")

	if err := ensureAdmin(ctx, backend.users, cfg.SeedAdminPassword, logger); err != nil {
		logger.WithError(err).Warn("could not create initial admin account")
	}

	carts := cache.CartCache(cache.NewMemoryCartCache())
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisCartCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.WithError(err).Warn("redis unavailable, keeping cart sessions in memory")
			_ = redisCache.Close()
		} else {
			carts = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("cart cache: redis")
		}
	} else {
		logger.Info("cart cache: memory")
	}

	svc := service.New(backend.store, carts, cfg.CartTTL(), logger)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), backend.users)
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin:  cfg.AllowedOrigin,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}, logger)

	runCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go api.RunJanitor(runCtx)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.Address()).Info("POS backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown error")
	}
	stopJanitor()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.WithError(err).Error("close error")
		}
	}

	logger.Info("server stopped")
}

type storeBackend struct {
	store store.Store
	users store.UserStore
	name  string
}

// buildStore opens the configured primary store. With fallback enabled the
// primary is wrapped so that outages are served from the local snapshot
// store. Accounts live in postgres when it is the primary and in the local
// store otherwise.
func buildStore(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storeBackend, error) {
	local, err := memory.Open(cfg.LocalSnapshotPath)
	if err != nil {
		return storeBackend{}, err
	}

	var (
		primary store.Store
		users   store.UserStore = local
	)
	switch cfg.StoreBackend {
	case config.BackendMemory:
		logger.WithField("snapshot", cfg.LocalSnapshotPath).Info("store: memory")
		return storeBackend{store: local, users: local, name: config.BackendMemory}, nil
	case config.BackendPostgres:
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			if !cfg.StoreFallback {
				return storeBackend{}, fmt.Errorf("postgres: %w", err)
			}
			logger.WithError(err).Warn("postgres unavailable at startup, serving from local store")
			return storeBackend{store: local, users: local, name: config.BackendMemory}, nil
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return storeBackend{}, err
		}
		primary, users = pg, pg
	case config.BackendRemote:
		primary = remote.New(cfg.RemoteStoreURL, cfg.RemoteStoreToken, cfg.RemoteStoreTimeout(), logger)
	default:
		return storeBackend{}, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	if cfg.StoreFallback {
		logger.WithFields(logrus.Fields{
			"primary": cfg.StoreBackend,
			"timeout": cfg.RemoteStoreTimeout().String(),
		}).Info("store: primary with local fallback")
		return storeBackend{
			store: fallback.New(primary, local, cfg.RemoteStoreTimeout(), logger),
			users: users,
			name:  cfg.StoreBackend + "+fallback",
		}, nil
	}

	logger.WithField("backend", cfg.StoreBackend).Info("store: primary only")
	return storeBackend{store: primary, users: users, name: cfg.StoreBackend}, nil
}

// ensureAdmin creates an admin account when the user store is empty and a
// seed password is configured.
func ensureAdmin(ctx context.Context, users store.UserStore, password string, logger *logrus.Logger) error {
	existing, err := users.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	if len(password) < 8 {
		logger.Warn("user store is empty and SEED_ADMIN_PASSWORD is not set, nobody can log in")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return users.CreateUser(ctx, domain.UserAccount{
		Username:  "admin",
		Password:  string(hash),
		Role:      domain.RoleAdmin,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.StoreBackend == config.BackendRemote && cfg.RemoteStoreToken == "" {
		return fmt.Errorf("REMOTE_STORE_TOKEN must be set when STORE_BACKEND=remote")
	}
	return nil
}
