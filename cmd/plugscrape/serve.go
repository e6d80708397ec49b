package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/use-agent/plugscrape/api"
	"github.com/use-agent/plugscrape/config"
	"github.com/use-agent/plugscrape/popup"
)

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "listen host")
	fs.IntVar(&cfg.Server.Port, "port", cfg.Server.Port, "listen port")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	logger.Info("plugscrape starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxPages", cfg.Browser.MaxPages,
		"sessionIdleTTL", cfg.Server.SessionIdleTTL,
	)

	a, err := newApp(ctx, cfg, logger, appOptions{})
	if err != nil {
		logger.Error("failed to initialise", "error", err)
		return 1
	}
	defer a.close()

	reg := a.registry(nil,
		popup.WithIdleTTL(cfg.Server.SessionIdleTTL),
		popup.WithMaxSessions(cfg.Server.MaxSessions),
	)
	defer reg.CloseAll()

	startTime := time.Now()
	router := api.NewRouter(reg, a.catalog, a.scraper, cfg, startTime)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server error", "error", err)
			return 1
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	// Give in-flight requests 5 seconds to complete. Event streams are
	// ended by closing the sessions first.
	reg.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server forced shutdown", "error", err)
	} else {
		logger.Info("HTTP server drained gracefully")
	}

	// a.close() runs via defer and kills Chrome if it was started.
	logger.Info("plugscrape stopped")
	return 0
}
