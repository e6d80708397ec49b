// Package scraper owns the headless browser: it snapshots pages that need a
// real browser and prints document layouts to PDF.
package scraper

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/plugscrape/config"
	"github.com/use-agent/plugscrape/models"
)

// Scraper manages the browser lifecycle and the page pool. The browser is
// launched on first use, so text exports served by the HTTP engine never
// start Chromium. It is safe for concurrent use.
type Scraper struct {
	browserCfg config.BrowserConfig
	scraperCfg config.ScraperConfig

	mu       sync.Mutex
	browser  *rod.Browser
	pagePool rod.Pool[rod.Page]

	launched    atomic.Bool
	activePages atomic.Int32
}

// New returns a Scraper; no browser is started yet.
func New(browserCfg config.BrowserConfig, scraperCfg config.ScraperConfig) *Scraper {
	if browserCfg.MaxPages <= 0 {
		browserCfg.MaxPages = 1
	}
	return &Scraper{
		browserCfg: browserCfg,
		scraperCfg: scraperCfg,
		pagePool:   rod.NewPagePool(browserCfg.MaxPages),
	}
}

func (s *Scraper) newLauncher() (*launcher.Launcher, error) {
	l := launcher.New().
		Headless(s.browserCfg.Headless).
		NoSandbox(s.browserCfg.NoSandbox)

	bin := s.browserCfg.BrowserBin
	if bin == "" && s.browserCfg.AutoDownload {
		path, err := launcher.NewBrowser().Get()
		if err != nil {
			return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to download browser", err)
		}
		bin = path
	}
	if bin != "" {
		l = l.Bin(bin)
	}
	if s.browserCfg.DefaultProxy != "" {
		l = l.Proxy(s.browserCfg.DefaultProxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "TranslateUI")
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("no-first-run"))
	return l, nil
}

// ensureBrowser launches and connects the browser once.
func (s *Scraper) ensureBrowser() (*rod.Browser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser != nil {
		return s.browser, nil
	}

	l, err := s.newLauncher()
	if err != nil {
		return nil, err
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL, "maxPages", s.browserCfg.MaxPages)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}
	s.browser = browser
	s.launched.Store(true)
	return browser, nil
}

// acquire borrows a page from the pool. release must be called when done;
// it blanks the page so the pooled tab does not keep the old DOM alive.
func (s *Scraper) acquire() (*rod.Page, func(), error) {
	browser, err := s.ensureBrowser()
	if err != nil {
		return nil, nil, err
	}
	page, err := s.pagePool.Get(func() (*rod.Page, error) {
		return browser.Page(proto.TargetCreateTarget{})
	})
	if err != nil {
		return nil, nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to acquire page from pool", err)
	}
	s.activePages.Add(1)

	release := func() {
		if err := page.Navigate("about:blank"); err != nil {
			slog.Warn("cleanup: failed to navigate to about:blank", "error", err)
		}
		s.pagePool.Put(page)
		s.activePages.Add(-1)
	}
	return page, release, nil
}

// Stats returns a snapshot of the pool's state.
func (s *Scraper) Stats() models.PoolStats {
	return models.PoolStats{
		Launched:    s.launched.Load(),
		MaxPages:    s.browserCfg.MaxPages,
		ActivePages: int(s.activePages.Load()),
	}
}

// Close drains the page pool and kills the browser process, if one was started.
func (s *Scraper) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser == nil {
		return
	}
	slog.Info("scraper shutting down: draining page pool")
	s.pagePool.Cleanup(func(p *rod.Page) {
		_ = p.Close()
	})
	if err := s.browser.Close(); err != nil {
		slog.Warn("closing browser failed", "error", err)
	}
	s.browser = nil
	s.launched.Store(false)
	slog.Info("scraper shutdown complete")
}

