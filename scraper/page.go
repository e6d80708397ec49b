package scraper

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/plugscrape/engine"
	"github.com/use-agent/plugscrape/models"
)

// Snapshot loads req.URL in a pooled tab and returns the rendered HTML with
// the final document location. It has the engine.BrowserFetchFunc shape.
//
// Stealth, headers, cookies and the hijack router are installed before
// navigation, because they only apply to navigations that start afterwards.
func (s *Scraper) Snapshot(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	timeout := req.Timeout
	if timeout <= 0 || timeout > s.scraperCfg.DefaultTimeout {
		timeout = s.scraperCfg.DefaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	page, release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	if req.Stealth || s.scraperCfg.Stealth {
		defer injectStealth(page)()
	}

	if len(req.Headers) > 0 {
		_ = proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(req.Headers)}.Call(page)
		// Pooled tabs are reused by other sessions.
		defer func() {
			_ = proto.NetworkSetExtraHTTPHeaders{Headers: proto.NetworkHeaders{}}.Call(page)
		}()
	}
	setCookies(page, req)

	router := setupHijack(page, s.scraperCfg.BlockedResourceTypes)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	p := page.Context(ctx)
	navCtx := p
	if s.scraperCfg.NavigationTimeout > 0 {
		navCtx = p.Timeout(s.scraperCfg.NavigationTimeout)
	}
	if err := navCtx.Navigate(req.URL); err != nil {
		return nil, categorizeError(err, "navigation to target URL failed")
	}
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", err)
	}

	rawHTML, err := p.HTML()
	if err != nil {
		return nil, categorizeError(err, "failed to extract page HTML")
	}

	statusCode := 0
	if res, err := p.Eval(`() => {
		try {
			const e = performance.getEntriesByType("navigation");
			if (e.length > 0) return e[0].responseStatus || 0;
		} catch (err) {}
		return 0;
	}`); err == nil {
		statusCode = res.Value.Int()
	}

	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = req.URL
	}

	return &engine.FetchResult{
		HTML:       rawHTML,
		Title:      evalStringOrEmpty(p, `() => document.title`),
		StatusCode: statusCode,
		FinalURL:   finalURL,
		EngineName: "rod",
	}, nil
}

// scriptInjector installs scripts that run before every document of a tab.
// *rod.Page implements it.
type scriptInjector interface {
	EvalOnNewDocument(js string) (remove func() error, err error)
}

// injectStealth installs the stealth script and returns the func removing it.
// Pooled tabs are reused by requests that did not ask for stealth.
func injectStealth(p scriptInjector) func() {
	remove, err := p.EvalOnNewDocument(stealth.JS)
	if err != nil {
		slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
		return func() {}
	}
	return func() {
		if err := remove(); err != nil {
			slog.Debug("stealth script removal failed", "error", err)
		}
	}
}

func setCookies(page *rod.Page, req *engine.FetchRequest) {
	if len(req.Cookies) == 0 {
		return
	}
	host := ""
	if u, err := url.Parse(req.URL); err == nil {
		host = u.Hostname()
	}
	for _, c := range req.Cookies {
		domain := c.Domain
		if domain == "" {
			domain = host
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		_, _ = proto.NetworkSetCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   domain,
			Path:     path,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		}.Call(page)
	}
}

// evalStringOrEmpty evaluates js and returns its string result, or "".
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts headers to proto.NetworkHeaders (map[string]gson.JSON).
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError maps browser errors onto error codes.
func categorizeError(err error, msg string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}
