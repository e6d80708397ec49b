package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/plugscrape/config"
	"github.com/use-agent/plugscrape/engine"
	"github.com/use-agent/plugscrape/exporter"
	"github.com/use-agent/plugscrape/i18n"
	"github.com/use-agent/plugscrape/models"
	"github.com/use-agent/plugscrape/popup"
	"github.com/use-agent/plugscrape/prefs"
)

const pluginPage = `<table class="generaltable"><tbody>
<tr class="additional status-uptodate"><td class="pluginname"><span class="displayname">Foo</span><span class="componentname">mod_foo</span></td></tr>
<tr class="additional status-uptodate"><td class="pluginname"><span class="displayname">Bar</span><span class="componentname">block_bar</span></td></tr>
</tbody></table>`

type pageFetcher struct{ html string }

func (p pageFetcher) Name() string { return "fake" }

func (p pageFetcher) Fetch(_ context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	return &engine.FetchResult{HTML: p.html, FinalURL: req.URL, EngineName: "fake"}, nil
}

type idlePool struct{}

func (idlePool) Stats() models.PoolStats { return models.PoolStats{MaxPages: 4} }

func newTestRouter(t *testing.T, html string, cfg *config.Config) (http.Handler, *popup.Registry) {
	t.Helper()
	catalog := i18n.Builtin()
	reg := popup.NewRegistry(popup.Deps{
		Store:   prefs.NewMemory(nil),
		Catalog: catalog,
		Fetcher: pageFetcher{html: html},
		Builder: exporter.New(nil, nil, exporter.WithClock(func() time.Time {
			return time.Date(2024, 2, 3, 10, 0, 0, 0, time.UTC)
		})),
		Now: func() time.Time { return time.Date(2024, 2, 3, 10, 0, 0, 0, time.UTC) },
	})
	t.Cleanup(reg.CloseAll)
	if cfg == nil {
		cfg = config.Load()
		cfg.Server.Mode = "test"
		cfg.RateLimit.RequestsPerSecond = 1000
		cfg.RateLimit.Burst = 1000
	}
	return NewRouter(reg, catalog, idlePool{}, cfg, time.Now()), reg
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return doAs(t, h, "", method, path, body)
}

func doAs(t *testing.T, h http.Handler, key, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func createSession(t *testing.T, h http.Handler) models.SessionResponse {
	t.Helper()
	w := do(t, h, http.MethodPost, "/api/v1/sessions", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("create session: %d %s", w.Code, w.Body.String())
	}
	var resp models.SessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestHealthAndLocales(t *testing.T) {
	h, _ := newTestRouter(t, pluginPage, nil)

	w := do(t, h, http.MethodGet, "/api/v1/health", "")
	var health models.HealthResponse
	if w.Code != http.StatusOK || json.Unmarshal(w.Body.Bytes(), &health) != nil || health.Status != "healthy" {
		t.Errorf("health: %d %s", w.Code, w.Body.String())
	}

	w = do(t, h, http.MethodGet, "/api/v1/locales", "")
	var locales models.LocalesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &locales); err != nil {
		t.Fatal(err)
	}
	if len(locales.Locales) != 2 || locales.Default != "en" {
		t.Errorf("locales = %+v", locales)
	}
}

func TestSessionLifecycle(t *testing.T) {
	h, reg := newTestRouter(t, pluginPage, nil)

	s := createSession(t, h)
	if s.Language != "en" || s.Status.Outcome != "idle" || s.Strings["btn_txt"] != "Simple version [TXT]" {
		t.Errorf("session = %+v", s)
	}

	w := do(t, h, http.MethodPut, "/api/v1/sessions/"+s.ID+"/language", `{"language":"fr"}`)
	var updated models.SessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &updated); err != nil {
		t.Fatal(err)
	}
	if w.Code != http.StatusOK || updated.Language != "fr" || updated.Strings["btn_pdf"] != "Version avancée [PDF]" {
		t.Errorf("set language: %d %+v", w.Code, updated)
	}

	if w := do(t, h, http.MethodPut, "/api/v1/sessions/"+s.ID+"/language", `{"language":"xx"}`); w.Code != http.StatusBadRequest {
		t.Errorf("unsupported language: %d", w.Code)
	}

	if w := do(t, h, http.MethodDelete, "/api/v1/sessions/"+s.ID, ""); w.Code != http.StatusNoContent {
		t.Errorf("delete: %d", w.Code)
	}
	if reg.Len() != 0 {
		t.Error("session still registered")
	}
	if w := do(t, h, http.MethodGet, "/api/v1/sessions/"+s.ID, ""); w.Code != http.StatusNotFound {
		t.Errorf("get deleted session: %d", w.Code)
	}
}

func TestExport_Attachment(t *testing.T) {
	h, _ := newTestRouter(t, pluginPage, nil)
	s := createSession(t, h)

	w := do(t, h, http.MethodPost, "/api/v1/sessions/"+s.ID+"/export",
		`{"url":"https://Campus.Example.org/admin/plugins.php","kind":"txt"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("export: %d %s", w.Code, w.Body.String())
	}
	if got := w.Body.String(); got != "mod_foo\nblock_bar" {
		t.Errorf("body = %q", got)
	}
	if got := w.Header().Get("Content-Disposition"); got != `attachment; filename=plugins_campusexampleorg_2024-02-03.txt` {
		t.Errorf("Content-Disposition = %q", got)
	}
	if got := w.Header().Get("Content-Type"); got != "text/plain; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := w.Header().Get("X-Plugin-Count"); got != "2" {
		t.Errorf("X-Plugin-Count = %q", got)
	}

	w = do(t, h, http.MethodGet, "/api/v1/sessions/"+s.ID, "")
	var after models.SessionResponse
	_ = json.Unmarshal(w.Body.Bytes(), &after)
	if after.Status.Outcome != "done" || after.Status.Message != "Extraction completed. 2 plugin(s) exported." {
		t.Errorf("status after export = %+v", after.Status)
	}
}

func TestExport_Errors(t *testing.T) {
	h, _ := newTestRouter(t, "<p>login</p>", nil)
	s := createSession(t, h)
	path := "/api/v1/sessions/" + s.ID + "/export"

	w := do(t, h, http.MethodPost, path, `{"url":"https://lms.test/admin/plugins.php"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("nothing found: %d %s", w.Code, w.Body.String())
	}
	var resp models.ExportErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error.Code != models.ErrCodeNothingFound || resp.Status.Level != "error" || resp.Status.Message != "No additional plugins found." {
		t.Errorf("response = %+v", resp)
	}

	tests := []struct {
		name string
		body string
	}{
		{"missing url", `{"kind":"pdf"}`},
		{"bad url", `{"url":"not a url"}`},
		{"bad kind", `{"url":"https://lms.test","kind":"csv"}`},
		{"bad json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(t, h, http.MethodPost, path, tt.body); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}

	if w := do(t, h, http.MethodPost, "/api/v1/sessions/missing/export", `{"url":"https://lms.test"}`); w.Code != http.StatusNotFound {
		t.Errorf("unknown session: %d", w.Code)
	}
}

func TestAuthProtectsSessions(t *testing.T) {
	cfg := config.Load()
	cfg.Server.Mode = "test"
	cfg.Auth.Enabled = true
	cfg.Auth.APIKeys = []string{"k"}
	cfg.RateLimit.RequestsPerSecond = 1000
	cfg.RateLimit.Burst = 1000
	h, _ := newTestRouter(t, pluginPage, cfg)

	if w := do(t, h, http.MethodPost, "/api/v1/sessions", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated create: %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/api/v1/health", ""); w.Code != http.StatusOK {
		t.Errorf("health should not need auth: %d", w.Code)
	}
}

func TestSessionsAreScopedToTheirAPIKey(t *testing.T) {
	cfg := config.Load()
	cfg.Server.Mode = "test"
	cfg.Auth.Enabled = true
	cfg.Auth.APIKeys = []string{"alice", "bob"}
	cfg.RateLimit.RequestsPerSecond = 1000
	cfg.RateLimit.Burst = 1000
	h, reg := newTestRouter(t, pluginPage, cfg)

	w := doAs(t, h, "alice", http.MethodPost, "/api/v1/sessions", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var s models.SessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &s); err != nil {
		t.Fatal(err)
	}
	base := "/api/v1/sessions/" + s.ID

	requests := []struct {
		method, path, body string
	}{
		{http.MethodGet, base, ""},
		{http.MethodPut, base + "/language", `{"language":"fr"}`},
		{http.MethodPost, base + "/export", `{"url":"https://lms.example.edu/admin/plugins.php"}`},
		{http.MethodGet, base + "/events", ""},
		{http.MethodDelete, base, ""},
	}
	for _, r := range requests {
		if w := doAs(t, h, "bob", r.method, r.path, r.body); w.Code != http.StatusNotFound {
			t.Errorf("%s %s as another key: %d, want 404", r.method, r.path, w.Code)
		}
	}
	if reg.Len() != 1 {
		t.Fatal("another key closed the session")
	}
	if w := doAs(t, h, "alice", http.MethodGet, base, ""); w.Code != http.StatusOK {
		t.Errorf("owner get: %d", w.Code)
	}
	if w := doAs(t, h, "alice", http.MethodDelete, base, ""); w.Code != http.StatusNoContent {
		t.Errorf("owner delete: %d", w.Code)
	}
}
