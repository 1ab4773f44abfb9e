package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/ghodss/yaml"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	serverpkg "github.com/onkernel/bagctl"
	"github.com/onkernel/bagctl/cmd/api/api"
	"github.com/onkernel/bagctl/cmd/config"
	"github.com/onkernel/bagctl/lib/bag"
	"github.com/onkernel/bagctl/lib/logger"
	"github.com/onkernel/bagctl/lib/player"
)

func main() {
	slogger := slog.New(logger.NewTextHandler(os.Stdout, slog.LevelInfo))

	// Load configuration from environment variables
	config, err := config.Load()
	if err != nil {
		slogger.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	level, _ := logger.ParseLevel(config.LogLevel)
	slogger = slog.New(logger.NewTextHandler(os.Stdout, level))
	slogger.Info("server configuration", "config", config)

	// context cancellation on SIGINT/SIGTERM
	ctx, stop := bag.InterruptContext(context.Background())
	defer stop()
	ctx = logger.AddToContext(ctx, slogger)

	// ensure rosbag is available
	mustRosbag(config.RosbagPath)

	r := chi.NewRouter()
	r.Use(
		chiMiddleware.Logger,
		chiMiddleware.Recoverer,
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctxWithLogger := logger.AddToContext(r.Context(), slogger)
				next.ServeHTTP(w, r.WithContext(ctxWithLogger))
			})
		},
	)

	apiService, err := api.New(player.NewFactory(bag.Params{
		BinaryPath:      config.RosbagPath,
		StopGracePeriod: &config.StopGracePeriod,
		ExitFlushDelay:  &config.ExitFlushDelay,
	}))
	if err != nil {
		slogger.Error("failed to create api service", "err", err)
		os.Exit(1)
	}
	apiService.Routes(r)

	// endpoints to expose the OpenAPI description
	r.Get("/spec.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.oai.openapi")
		w.Write(serverpkg.OpenAPIYAML)
	})
	r.Get("/spec.json", func(w http.ResponseWriter, r *http.Request) {
		jsonData, err := yaml.YAMLToJSON(serverpkg.OpenAPIYAML)
		if err != nil {
			http.Error(w, "failed to convert YAML to JSON", http.StatusInternalServerError)
			logger.FromContext(r.Context()).Error("failed to convert YAML to JSON", "err", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(jsonData)
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slogger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slogger.Error("http server failed", "err", err)
			stop()
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	slogger.Info("shutdown signal received", "cause", context.Cause(ctx))

	shutdownCtx := context.WithoutCancel(ctx)
	g, _ := errgroup.WithContext(shutdownCtx)

	g.Go(func() error {
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return apiService.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slogger.Error("server failed to shutdown", "err", err)
	}
}

func mustRosbag(path string) {
	if _, err := exec.LookPath(path); err != nil {
		panic(fmt.Errorf("rosbag not found or not executable: %w", err))
	}
}
