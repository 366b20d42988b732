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

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/funcionariopro/internal/app/bootstrap"
	appconfig "github.com/wolfman30/funcionariopro/internal/config"
	"github.com/wolfman30/funcionariopro/pkg/logging"
)

func main() {
	// Optional local overrides
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting funcionariopro API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"llm_provider", cfg.LLMProvider,
	)

	app, err := bootstrap.Build(context.Background(), cfg, logger, bootstrap.Options{})
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	srv := newHTTPServer(cfg, app.Handler)

	// Wait for interrupt signal to gracefully shutdown the server
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	exitCode := 0
	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		exitCode = 1
	}
	if err := app.Close(); err != nil {
		logger.Error("failed to release resources", "error", err)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
	os.Exit(exitCode)
}

// newHTTPServer leaves room in WriteTimeout for a full LLM round trip.
func newHTTPServer(cfg *appconfig.Config, handler http.Handler) *http.Server {
	writeTimeout := 15 * time.Second
	if budget := cfg.LLMTimeout + 15*time.Second; budget > writeTimeout {
		writeTimeout = budget
	}
	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}
}
