package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/obexdata/warehouse-copilot/internal/audit"
	"github.com/obexdata/warehouse-copilot/internal/config"
	"github.com/obexdata/warehouse-copilot/internal/cubes"
	"github.com/obexdata/warehouse-copilot/internal/guard"
	"github.com/obexdata/warehouse-copilot/internal/llm"
	"github.com/obexdata/warehouse-copilot/internal/partition"
	"github.com/obexdata/warehouse-copilot/internal/pipeline"
	"github.com/obexdata/warehouse-copilot/internal/server"
	"github.com/obexdata/warehouse-copilot/internal/session"
	"github.com/obexdata/warehouse-copilot/internal/viz"
	"github.com/obexdata/warehouse-copilot/internal/warehouse"
)

// env bootstrap function
func loadEnv(logger *logrus.Logger) {
	// Get the project root directory (where go.mod is)
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	envPath := filepath.Join(projectRoot, ".env")

	if err := godotenv.Load(envPath); err != nil {
		logger.Warnf("no .env file found at %s, using system environment variables", envPath)
	} else {
		logger.Infof("loaded .env from %s", envPath)
	}
}

// main wires the copilot pipeline behind the HTTP API with graceful shutdown
func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logger.SetLevel(logrus.InfoLevel)

	// load .env BEFORE anything reads os.Getenv
	loadEnv(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	// Warehouse pool: the only component allowed to execute SQL
	pool, err := warehouse.NewPool(ctx, warehouse.Config{
		URL:              cfg.WarehouseURL,
		MaxConns:         int32(cfg.WarehouseConns),
		StatementTimeout: cfg.StatementTimeout,
		AnchorTable:      cfg.AnchorTable,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to warehouse")
	}
	defer pool.Close()

	registry := cubes.Builtin()
	resolver := partition.NewResolver(pool, logger)

	generator, err := llm.NewClient(llm.Config{
		APIKey:    cfg.OpenRouterAPIKey,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
		Timeout:   cfg.LLMTimeout,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to create LLM client")
	}

	// Conversation history is optional: without Redis the copilot still
	// answers, it just cannot resolve follow-ups.
	var sessions *session.Store
	rclient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: 0})
	if err := rclient.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Warn("Redis unavailable, follow-up context disabled")
	} else {
		sessions, err = session.NewStore(rclient)
		if err != nil {
			logger.WithError(err).Fatal("failed to create session store")
		}
	}

	// Audit journal is optional and never gates responses.
	var journal audit.Logger = audit.Nop{}
	if cfg.AuditEnabled {
		store, err := audit.NewStore(ctx, audit.Config{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
		}, logger)
		if err != nil {
			logger.WithError(err).Warn("audit store unavailable, journaling disabled")
		} else {
			journal = store
			defer store.Close()
		}
	}

	p := pipeline.New(pipeline.Options{
		Generator: generator,
		Guard:     guard.New(registry),
		Resolver:  resolver,
		Executor:  pool,
		Selector:  viz.NewSelector(generator, logger),
		Journal:   journal,
		Registry:  registry,
		Logger:    logger,
	})

	srv, err := server.NewServer(server.ServerDeps{
		Handlers: &server.Handlers{
			Pipeline:    p,
			Resolver:    resolver,
			Sessions:    sessions,
			Logger:      logger,
			ChatTimeout: cfg.HTTPTimeout,
		},
		Config: server.ServerConfig{
			Addr:      cfg.ListenAddr,
			APIKey:    cfg.APIKey,
			RateLimit: cfg.RateLimit,
		},
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create server")
	}

	go func() {
		logger.WithField("addr", cfg.ListenAddr).Info("copilot API listening")
		if err := srv.Start(); err != nil {
			logger.WithError(err).Info("server stopped")
		}
	}()

	<-sigCh
	logger.Info("shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("shutdown error")
	}
	_ = srv.WaitClosed(ctx)
}
