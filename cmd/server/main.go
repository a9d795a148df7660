package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bbb-recordings-gateway/internal/bigbluebutton"
	"bbb-recordings-gateway/internal/platform/config"
	"bbb-recordings-gateway/internal/platform/logger"
	"bbb-recordings-gateway/internal/platform/metrics"
	"bbb-recordings-gateway/internal/recordings"
	"bbb-recordings-gateway/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	configPath := config.GetEnv("CONFIG_FILE", "config.yaml")
	cfg, err := config.New(configPath)
	if err != nil {
		// Logger is not up yet.
		panic(err)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	store, err := storage.Open(cfg.Storage.DatabasePath)
	if err != nil {
		log.Error("store open failed", "error", err, "path", cfg.Storage.DatabasePath)
		os.Exit(1)
	}
	defer store.Close()

	client := bigbluebutton.NewClient(cfg.BBB.ServerURL, cfg.BBB.SharedSecret, log)
	met := metrics.New()
	svc := recordings.NewService(client, store, cfg, met, log)
	h := recordings.NewHandler(svc, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() {
			if n, err := store.CountAllImports(r.Context()); err == nil {
				met.SetImportReferences(n)
			}
		}).ServeHTTP(w, r)
	})
	r.Route("/api/v1", h.Routes)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Server.Port,
		"bbb_server", cfg.BBB.ServerURL,
		"sort_order", cfg.Recordings.SortOrder,
		"log_level", cfg.Logging.Level,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
