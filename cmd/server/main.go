// Command server runs the movie form page.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kuitang/movieform/internal/catalog"
	"github.com/kuitang/movieform/internal/config"
	"github.com/kuitang/movieform/internal/obs"
	"github.com/kuitang/movieform/internal/ratelimit"
	"github.com/kuitang/movieform/internal/s3client"
	"github.com/kuitang/movieform/internal/session"
	"github.com/kuitang/movieform/internal/web"
)

func main() {
	obs.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		slog.Error("server_failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags, err := config.ParseFlags(args, stdout)
	if err != nil {
		return err
	}
	cfg, err := config.LoadConfig(flags)
	if err != nil {
		return err
	}
	cfg.PrintStartupSummary(stdout)

	handler, cleanup, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server_listening", "addr", cfg.ListenAddr, "base_url", cfg.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	case <-ctx.Done():
	}

	slog.Info("server_shutting_down", "timeout", cfg.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newApp loads the seed catalog and wires the routes. cleanup stops background sweepers.
func newApp(ctx context.Context, cfg *config.Config) (http.Handler, func(), error) {
	var store catalog.ObjectGetter
	if s3cfg, ok := cfg.S3Config(); ok {
		client, err := s3client.New(ctx, s3cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("create S3 client: %w", err)
		}
		store = client
	}

	seedCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	seed, err := catalog.LoadSeed(seedCtx, cfg.SeedSource, store)
	cancel()
	if err != nil {
		return nil, nil, fmt.Errorf("load seed: %w", err)
	}

	renderer, err := web.NewRenderer(cfg.TemplatesDir)
	if err != nil {
		return nil, nil, err
	}

	limiter := ratelimit.NewRateLimiter(cfg.RateLimitConfig)
	sessions := session.NewStore(cfg.SessionConfig, seed, limiter.Forget)

	mux := http.NewServeMux()
	web.NewMovieHandler(renderer, sessions, limiter, cfg.StaticDir).RegisterRoutes(mux)

	handler := obs.RequestContextMiddleware(obs.AccessLogMiddleware("http", mux))
	cleanup := func() {
		sessions.Stop()
		limiter.Stop()
	}
	return handler, cleanup, nil
}
