package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benchscale/benchscale/internal/api"
	"github.com/benchscale/benchscale/internal/database"
	"github.com/benchscale/benchscale/internal/workload"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	port := getEnv("PORT", "8080")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openStore(ctx)
	if err != nil {
		fatal("open store", err)
	}
	defer closeRepo()

	registry, err := loadRegistry()
	if err != nil {
		fatal("load catalogue", err)
	}

	srv := api.NewServer(repo, registry)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	httpSrv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	slog.Info("benchscale API server starting", "port", port)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fatal("server failed", err)
	}
}

// openStore uses Postgres when DATABASE_URL is set and the CSV store in
// BENCHSCALE_DATA_DIR otherwise.
func openStore(ctx context.Context) (database.Repo, func(), error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dir := getEnv("BENCHSCALE_DATA_DIR", ".")
		slog.Info("using CSV store", "dir", dir)
		return database.NewFileStore(dir), func() {}, nil
	}
	repo, err := database.NewRepository(ctx, dbURL)
	if err != nil {
		return nil, nil, err
	}
	if err := repo.Migrate(ctx); err != nil {
		repo.Close()
		return nil, nil, err
	}
	return repo, repo.Close, nil
}

func loadRegistry() (*workload.Registry, error) {
	if path := os.Getenv("BENCHSCALE_CATALOGUE"); path != "" {
		return workload.LoadCatalogueFile(path)
	}
	return workload.DefaultCatalogue()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
