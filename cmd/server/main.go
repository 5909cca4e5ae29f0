// Package main is the entry point for the pg-advisor server binary.
// It loads configuration, opens the history store, wires the services,
// and serves the REST API with a periodic orphan-sandbox sweep.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/robfig/cron/v3"

	"pg-advisor/internal/api"
	"pg-advisor/internal/app"
	"pg-advisor/internal/config"
	"pg-advisor/internal/db"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is a development convenience; real environment variables win.
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load .env: %v\n", err)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	pair, err := db.Open(cfg.StorePath, 4)
	if err != nil {
		return err
	}
	defer pair.Close() //nolint:errcheck

	appl, err := app.New(app.Deps{Cfg: cfg, Store: pair, Logger: logger})
	if err != nil {
		return err
	}
	defer appl.Close() //nolint:errcheck

	handler := api.NewHandler(appl.Services.Optimize, appl.Services.Connections, appl.StorePing, logger)
	router := api.NewRouter(handler, api.RouterOptions{
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})

	// Periodic sweep for sandbox schemas leaked by crashed sessions.
	// A sandbox older than the session deadline cannot belong to a
	// live run.
	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@every "+cfg.SweepEvery.String(), func() {
		sweepCtx, sweepCancel := context.WithTimeout(context.Background(), time.Minute)
		defer sweepCancel()
		if n := appl.Services.Optimize.SweepOrphans(sweepCtx, cfg.SessionTimeout); n > 0 {
			logger.Info("swept orphaned sandboxes", "count", n)
		}
	}); err != nil {
		return fmt.Errorf("sweep schedule: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
		// Synchronous optimize responses block for up to a whole
		// session, so the write timeout must outlast one.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.SessionTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("pg-advisor listening",
		"addr", cfg.ListenAddr,
		"env", cfg.Env,
		"healthz", "http://"+dialableHost(cfg.ListenAddr)+"/healthz")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// dialableHost turns a listen address into a host:port a local client
// can reach: empty and wildcard hosts become localhost.
func dialableHost(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "localhost:8080"
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		return net.JoinHostPort("localhost", port)
	}
	return net.JoinHostPort(host, port)
}
