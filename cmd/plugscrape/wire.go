package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/use-agent/plugscrape/config"
	"github.com/use-agent/plugscrape/engine"
	"github.com/use-agent/plugscrape/exporter"
	"github.com/use-agent/plugscrape/extractor"
	"github.com/use-agent/plugscrape/i18n"
	"github.com/use-agent/plugscrape/popup"
	"github.com/use-agent/plugscrape/prefs"
	"github.com/use-agent/plugscrape/scraper"
	"github.com/use-agent/plugscrape/webhook"
)

// app holds the long-lived collaborators shared by every session.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	catalog *i18n.Catalog
	store   prefs.Store
	scraper *scraper.Scraper
	fetcher engine.Engine
	memory  *engine.DomainMemory
	builder *exporter.Exporter
	hook    *webhook.Notifier
}

// appOptions override parts of the default wiring.
type appOptions struct {
	// htmlFile, when set, serves the page from disk instead of the network.
	htmlFile string
}

func loadCatalog(cfg config.ExportConfig, logger *slog.Logger) (*i18n.Catalog, error) {
	catalog := i18n.Builtin()
	if cfg.LocalesDir == "" {
		return catalog, nil
	}
	loaded, err := catalog.LoadDir(cfg.LocalesDir)
	if err != nil {
		return nil, err
	}
	logger.Info("extra locales loaded", "dir", cfg.LocalesDir, "locales", loaded)
	return catalog, nil
}

func openStore(ctx context.Context, cfg config.PrefsConfig, logger *slog.Logger) (prefs.Store, error) {
	if cfg.Path == "" {
		return prefs.NewMemory(logger), nil
	}
	return prefs.OpenSQLite(ctx, cfg.Path, logger)
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts appOptions) (*app, error) {
	catalog, err := loadCatalog(cfg.Export, logger)
	if err != nil {
		return nil, err
	}
	store, err := openStore(ctx, cfg.Prefs, logger)
	if err != nil {
		return nil, fmt.Errorf("open preferences: %w", err)
	}

	// The browser is launched on first use, so text exports served by the
	// HTTP engine never start Chromium.
	sc := scraper.New(cfg.Browser, cfg.Scraper)

	a := &app{
		cfg:     cfg,
		logger:  logger,
		catalog: catalog,
		store:   store,
		scraper: sc,
		builder: exporter.New(sc, logger),
	}
	if cfg.Webhook.URL != "" {
		a.hook = &webhook.Notifier{
			URL:    cfg.Webhook.URL,
			Secret: cfg.Webhook.Secret,
			Logger: logger,
		}
	}

	switch {
	case opts.htmlFile != "":
		a.fetcher = &engine.FileEngine{Path: opts.htmlFile}
	case cfg.Engine.EnableMultiEngine:
		a.memory = engine.NewDomainMemory(cfg.Engine.DomainMemoryTTL)
		engines := []engine.Engine{
			engine.NewHTTPEngine(cfg.Engine.HTTPTimeout),
			engine.NewBrowserEngine(sc.Snapshot, cfg.Scraper.Stealth),
		}
		d := engine.NewDispatcher(engines, cfg.Engine.EscalationDelays, a.memory)
		// A login form or an error page is a valid HTML response; only a
		// snapshot that carries the plugin table wins the race.
		d.SetAccept(func(r *engine.FetchResult) bool {
			return extractor.HasRows(r.HTML)
		})
		a.fetcher = d
		logger.Info("multi-engine dispatcher enabled",
			"engines", len(engines),
			"delays", cfg.Engine.EscalationDelays,
		)
	default:
		a.fetcher = engine.NewBrowserEngine(sc.Snapshot, cfg.Scraper.Stealth)
	}
	return a, nil
}

// registry returns a session registry over the app's collaborators. When a
// webhook is configured it receives every finished export besides notifier.
func (a *app) registry(notifier popup.Notifier, opts ...popup.RegistryOption) *popup.Registry {
	var hook popup.Notifier
	if a.hook != nil {
		hook = a.hook
	}
	return popup.NewRegistry(popup.Deps{
		Store:    a.store,
		Catalog:  a.catalog,
		Fetcher:  a.fetcher,
		Builder:  a.builder,
		Notifier: webhook.Multi(notifier, hook),
		Logger:   a.logger,
		Timeout:  a.cfg.Scraper.DefaultTimeout,
	}, opts...)
}

func (a *app) close() {
	if a.hook != nil {
		a.hook.Wait()
	}
	if a.memory != nil {
		a.memory.Stop()
	}
	a.scraper.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing preferences failed", "error", err)
	}
}
