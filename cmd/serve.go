package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"chatgate/internal/api"
	"chatgate/internal/backend"
	"chatgate/internal/chat"
	"chatgate/internal/config"
	"chatgate/internal/log"
	"chatgate/internal/observability"
	"chatgate/internal/registry"
	"chatgate/internal/relay"
	"chatgate/internal/session"
)

// Server timeout configuration. The write timeout is long because a chat
// response streams for as long as the model keeps producing tokens.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 5 * time.Minute
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

// runServe builds the full gateway and serves until interrupted.
func runServe(parent context.Context) error {
	// Best-effort: a missing .env just means the environment is already set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{
		Level: log.ParseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})
	logger.Info("starting chatgate", "version", AppVersion, "addr", cfg.Addr)

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Tracing.Enabled {
		shutdownTracing, err := observability.Setup(ctx, observability.Config{
			Endpoint: cfg.Tracing.Endpoint,
			Service:  cfg.Tracing.Service,
		}, logger)
		if err != nil {
			return fmt.Errorf("setting up tracing: %w", err)
		}
		defer func() {
			flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer flushCancel()
			if err := shutdownTracing(flushCtx); err != nil {
				logger.Warn("flushing traces", "error", err)
			}
		}()
	}

	store, err := session.NewStore(cfg.StoreDir, logger)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing session store", "error", err)
		}
	}()

	reg, err := registry.New(cfg.Models)
	if err != nil {
		return fmt.Errorf("building model registry: %w", err)
	}

	gen, err := backend.NewOllama(ctx, cfg.OllamaHost, reg.Names(), logger)
	if err != nil {
		return fmt.Errorf("initializing backend: %w", err)
	}

	orch, err := chat.New(chat.Config{
		Registry:      reg,
		Relay:         relay.New(gen, logger),
		Store:         store,
		Logger:        logger,
		HistoryWindow: cfg.HistoryWindow,
	})
	if err != nil {
		return fmt.Errorf("building orchestrator: %w", err)
	}

	apiServer, err := api.NewServer(api.ServerConfig{
		Logger:       logger,
		Registry:     reg,
		Orchestrator: orch,
		Store:        store,
		CORSOrigins:  cfg.CORSOrigins,
		RateBurst:    cfg.RateBurst,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("gateway ready",
		"addr", cfg.Addr,
		"store", cfg.StoreDir,
		"ollama", cfg.OllamaHost,
		"models", reg.Names(),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}
