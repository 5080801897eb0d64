package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"brandkit-backend/internal/bootstrap"
	"brandkit-backend/internal/shared/config"
	"brandkit-backend/internal/shared/server"
	"brandkit-backend/internal/shared/telemetry"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg := config.Load()
	app, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}

	addr := server.Addr(cfg.Port)
	telemetry.Info("api.start", map[string]any{
		"addr":         addr,
		"env":          cfg.Env,
		"object_store": cfg.ObjectStoreType,
		"database":     app.DB != nil,
		"prewarm_sqs":  app.Queue != nil,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: addr, Handler: app.Router}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	case <-ctx.Done():
	}

	log.Printf("shutdown requested, waiting up to %s for requests and background prewarms", shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	if err := app.Drain(shutdownCtx); err != nil {
		log.Printf("background prewarms still running at exit: %v", err)
	}
}
