package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/superglue-ai/agent-runtime/internal/auth"
	"github.com/superglue-ai/agent-runtime/internal/client"
	"github.com/superglue-ai/agent-runtime/internal/ops"
	"github.com/superglue-ai/agent-runtime/internal/registry"
	"github.com/superglue-ai/agent-runtime/internal/server"
	"github.com/superglue-ai/agent-runtime/internal/session"
	"github.com/superglue-ai/agent-runtime/internal/storage"
)

func main() {
	// Logger
	logger := mustBuildLogger(envOrDefault("AGENT_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	// Config from env
	port := envOrDefault("AGENT_PORT", "8090")
	endpoint := envOrDefault("SUPERGLUE_ENDPOINT", "http://localhost:3000")
	apiKey := os.Getenv("SUPERGLUE_API_KEY")
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	postgresDSN := os.Getenv("POSTGRES_DSN")
	authCacheTTL := envOrDefaultInt("AGENT_AUTH_CACHE_TTL_S", 30)
	draftTTLMin := envOrDefaultInt("AGENT_DRAFT_TTL_MIN", 120)
	clientTimeoutS := envOrDefaultInt("AGENT_CLIENT_TIMEOUT_S", 120)

	logger.Info("starting agent server",
		zap.String("port", port),
		zap.String("endpoint", endpoint),
		zap.Int("draft_ttl_min", draftTTLMin),
	)

	// Storage — ClickHouse or LogWriter fallback
	var writer storage.EventWriter
	if clickhouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	defer writer.Close()

	// Postgres — shared by auth and the draft store when configured
	var db *sql.DB
	if postgresDSN != "" {
		var err error
		db, err = sql.Open("pgx", postgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(context.Background()); err != nil {
			logger.Fatal("failed to ping postgres", zap.Error(err))
		}
	}

	// Auth — Postgres if DSN provided, otherwise static
	var authenticator auth.Authenticator
	if db != nil {
		authenticator = auth.NewPostgresAuthenticator(auth.PostgresAuthConfig{
			DB:       db,
			CacheTTL: time.Duration(authCacheTTL) * time.Second,
			Logger:   logger,
		})
		logger.Info("postgres authenticator connected")
	} else {
		authenticator = auth.NewStaticAuthenticator()
		logger.Info("using static authenticator (no POSTGRES_DSN)")
	}

	// Draft store — Postgres if DSN provided, otherwise in-memory
	draftTTL := time.Duration(draftTTLMin) * time.Minute
	var drafts session.DraftStore
	if db != nil {
		drafts = session.NewPostgresDraftStore(session.PostgresDraftStoreConfig{
			DB:     db,
			TTL:    draftTTL,
			Logger: logger,
		})
		logger.Info("postgres draft store connected")
	} else {
		drafts = session.NewMemoryDraftStore(draftTTL)
		logger.Info("using in-memory draft store (no POSTGRES_DSN)")
	}

	// Backend client
	backend := client.NewHTTPClient(client.HTTPClientConfig{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Timeout:  time.Duration(clientTimeoutS) * time.Second,
		Logger:   logger,
	})

	// Registry with every operation
	reg := registry.New(writer, logger)
	reg.MustRegister(ops.All()...)
	logger.Info("operations registered", zap.Int("count", len(reg.Operations())))

	srv := server.New(server.Config{
		Registry: reg,
		Auth:     authenticator,
		Client:   backend,
		Drafts:   drafts,
		Logger:   logger,
	})

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("agent server listening", zap.String("addr", httpServer.Addr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
