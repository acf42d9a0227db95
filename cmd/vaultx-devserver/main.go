// Command vaultx-devserver serves the hosted vault API locally for offline
// use and integration testing.
//
// Environment:
//
//	VAULTX_DEV_ADDR       listen address (default 127.0.0.1:54321)
//	VAULTX_DEV_DB         sqlite file, or :memory: (default)
//	VAULTX_DEV_ANON_KEY   key clients send in the apikey header
//	VAULTX_DEV_CONFIRM    "true" withholds sessions until sign-up is confirmed
//	VAULTX_DEV_TOKEN_TTL  access token lifetime (default 1h)
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/illarion/vaultx/internal/devserver"
)

type settings struct {
	addr                string
	dbPath              string
	anonKey             string
	requireConfirmation bool
	tokenTTL            time.Duration
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func loadSettings() (settings, error) {
	s := settings{
		addr:     envOr("VAULTX_DEV_ADDR", "127.0.0.1:54321"),
		dbPath:   envOr("VAULTX_DEV_DB", ":memory:"),
		anonKey:  envOr("VAULTX_DEV_ANON_KEY", devserver.DefaultConfig().AnonKey),
		tokenTTL: time.Hour,
	}

	if v := os.Getenv("VAULTX_DEV_CONFIRM"); v != "" {
		confirm, err := strconv.ParseBool(v)
		if err != nil {
			return s, fmt.Errorf("VAULTX_DEV_CONFIRM has invalid value %q: %w", v, err)
		}
		s.requireConfirmation = confirm
	}
	if v := os.Getenv("VAULTX_DEV_TOKEN_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil || ttl <= 0 {
			return s, fmt.Errorf("VAULTX_DEV_TOKEN_TTL has invalid value %q", v)
		}
		s.tokenTTL = ttl
	}
	return s, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func run() error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"addr", cfg.addr,
		"db_path", cfg.dbPath,
		"require_confirmation", cfg.requireConfirmation,
		"token_ttl", cfg.tokenTTL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *devserver.DB
	if cfg.dbPath == ":memory:" {
		db, err = devserver.OpenMemoryDB(ctx, "vaultx-devserver")
	} else {
		db, err = devserver.OpenDB(ctx, cfg.dbPath)
	}
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	if err := devserver.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	api, err := devserver.New(db, devserver.Config{
		AnonKey:             cfg.anonKey,
		TokenTTL:            cfg.tokenTTL,
		RequireConfirmation: cfg.requireConfirmation,
		Logger:              slog.Default(),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.addr,
		Handler:           api,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", cfg.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
