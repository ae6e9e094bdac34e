package main

import (
	"context"
	"database/sql"
	"flag"
	"net"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/tmercier/keepsake/pkg/api"
	"github.com/tmercier/keepsake/pkg/audit"
	"github.com/tmercier/keepsake/pkg/auth"
	"github.com/tmercier/keepsake/pkg/config"
	"github.com/tmercier/keepsake/pkg/middleware"
	"github.com/tmercier/keepsake/pkg/observability"
	"github.com/tmercier/keepsake/pkg/storage"
)

func main() {
	configFile := flag.String("config", "", "path to a YAML config file (overrides KEEPSAKE_CONFIG_FILE)")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	if *configFile != "" {
		os.Setenv("KEEPSAKE_CONFIG_FILE", *configFile)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	if level, err := logrus.ParseLevel(cfg.Observability.LogLevel); err == nil {
		log.SetLevel(level)
	}
	appLog := observability.NewLogger(cfg.LogLevel(), os.Stdout)

	salt, err := cfg.SaltBytes()
	if err != nil {
		log.WithError(err).Fatal("invalid HMAC salt")
	}

	var (
		tokens      auth.TokenStore
		users       auth.UserLookup
		accounts    api.AccountCreator
		purger      storage.Purger
		db          *sql.DB
		redisClient *redis.Client
		closeStore  func() error
	)
	switch cfg.Storage.Type {
	case storage.TypeMemory:
		mem := storage.NewMemoryStore()
		tokens, users, accounts, purger = mem, mem, mem, mem
	case storage.TypeSQLite:
		st, err := storage.OpenSQLite(cfg.Storage.SQLitePath)
		if err != nil {
			log.WithError(err).Fatal("failed to open sqlite store")
		}
		tokens, users, accounts, purger = st, st, st, st
		db = st.DB()
		closeStore = st.Close
	case storage.TypePostgres:
		st, err := storage.OpenPostgres(cfg.Storage.PostgresURL, cfg.Storage.PostgresMaxConns)
		if err != nil {
			log.WithError(err).Fatal("failed to open postgres store")
		}
		tokens, users, accounts, purger = st, st, st, st
		db = st.DB()
		closeStore = st.Close
	case storage.TypeRedis:
		st, err := storage.OpenRedis(cfg.Storage.RedisURL, cfg.Storage.CleanupRetention)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to redis")
		}
		// Redis holds tokens only; accounts live in process memory.
		mem := storage.NewMemoryStore()
		tokens, users, accounts, purger = st, mem, mem, st
		redisClient = st.Client()
	default:
		log.WithField("type", cfg.Storage.Type).Fatal("unknown storage type")
	}
	log.WithField("type", cfg.Storage.Type).Info("storage backend ready")

	if cfg.Storage.CacheEnabled {
		users = storage.NewCachedUserLookup(users, cfg.Storage.CacheSize, cfg.Storage.CacheTTL)
	}

	authenticator, err := auth.NewDatabaseAuthenticator(users, tokens, salt, cfg.AuthOptions())
	if err != nil {
		log.WithError(err).Fatal("failed to build authenticator")
	}

	cleanup, err := storage.NewCleanup(purger, cfg.Storage.CleanupSchedule, cfg.Storage.CleanupRetention, log)
	if err != nil {
		log.WithError(err).Fatal("invalid cleanup schedule")
	}
	cleanup.Start()

	var auditLog audit.Logger = audit.NewLogrusLogger(log)
	if cfg.Observability.AuditToDatabase {
		if db == nil {
			log.Warn("audit to database requested but no SQL store is configured")
		} else {
			dbLog, err := audit.NewDBLogger(db)
			if err != nil {
				log.WithError(err).Fatal("failed to initialize audit table")
			}
			auditLog = audit.NewMultiLogger(auditLog, dbLog)
		}
	}

	var (
		metrics  *observability.Metrics
		registry *prometheus.Registry
	)
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		metrics = observability.NewMetrics(registry)
	}

	var rateLimiter *middleware.LoginRateLimiter
	if cfg.Auth.RateLimitEnabled {
		client := redisClient
		if client == nil && cfg.Storage.RedisURL != "" {
			opts, err := redis.ParseURL(cfg.Storage.RedisURL)
			if err != nil {
				log.WithError(err).Fatal("invalid redis URL for rate limiting")
			}
			client = redis.NewClient(opts)
			redisClient = client
		}
		if client == nil {
			log.Warn("login rate limiting requested but no redis is configured")
		} else {
			rateLimiter = middleware.NewLoginRateLimiter(client, middleware.LoginRateLimitConfig{
				AttemptsPerWindow: cfg.Auth.RateLimitAttempts,
				WindowDuration:    cfg.Auth.RateLimitWindow,
			}, log)
		}
	}

	tracerProvider, err := observability.InitTracing(context.Background(), observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, appLog)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize tracing")
	}

	server := api.NewServer(api.Config{
		Authenticator:   authenticator,
		Users:           users,
		Accounts:        accounts,
		AuditLog:        auditLog,
		Metrics:         metrics,
		Registry:        registry,
		Health:          observability.NewHealthChecker(db, redisClient),
		RateLimiter:     rateLimiter,
		Logger:          log,
		CredentialField: cfg.Auth.Field,
		BcryptCost:      cfg.Auth.BcryptCost,
		Slide:           cfg.Auth.SlideWindow,
		Tracing:         cfg.Observability.OTelEnabled,
	})

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(appLog, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		cleanup.Stop()
		return nil
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return auditLog.Close()
	})
	if closeStore != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return closeStore()
		})
	}
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return redisClient.Close()
		})
	}
	if tracerProvider != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownTracing(ctx, tracerProvider, appLog)
		})
	}

	go func() {
		log.WithField("addr", addr).Info("server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		log.WithError(err).Error("shutdown finished with errors")
	}
}
