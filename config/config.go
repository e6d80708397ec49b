package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Scraper   ScraperConfig
	Engine    EngineConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
	Prefs     PrefsConfig
	Export    ExportConfig
	Webhook   WebhookConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "127.0.0.1"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"

	// SessionIdleTTL closes API sessions unused for this long. Zero disables it.
	SessionIdleTTL time.Duration // default: 30m

	// MaxSessions caps open API sessions. Zero means no cap.
	MaxSessions int // default: 256
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxPages is the page pool capacity (max concurrent tabs).
	MaxPages int // default: 4

	// DefaultProxy is the proxy URL for browser navigation.
	DefaultProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker or as root).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// AutoDownload fetches a compatible Chromium when none is installed.
	AutoDownload bool // default: false
}

// ScraperConfig controls how the admin page is loaded in the browser.
type ScraperConfig struct {
	// DefaultTimeout is the deadline for a whole export (fetch + extract + render).
	DefaultTimeout time.Duration // default: 60s

	// NavigationTimeout is the max time for page.Navigate alone.
	NavigationTimeout time.Duration // default: 20s

	// BlockedResourceTypes lists resource types not loaded while snapshotting.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string

	// Stealth masks navigator.webdriver and friends before navigation.
	Stealth bool // default: false
}

// EngineConfig controls the page acquisition dispatcher.
type EngineConfig struct {
	// EnableMultiEngine races the HTTP engine against the browser engine.
	// When false, only the browser engine is used.
	EnableMultiEngine bool // default: true

	// EscalationDelays is the staged start delay for each engine tier.
	EscalationDelays []time.Duration // default: [0s, 3s]

	// HTTPTimeout is the deadline for the plain HTTP engine.
	HTTPTimeout time.Duration // default: 10s

	// DomainMemoryTTL is how long the winning engine is remembered per host.
	DomainMemoryTTL time.Duration // default: 24h
}

// AuthConfig controls API key authentication of the HTTP surface.
type AuthConfig struct {
	Enabled bool // default: false
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 // default: 2
	Burst             int     // default: 5
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "text"
}

// PrefsConfig controls where the language preference lives.
type PrefsConfig struct {
	// Path is the SQLite database file. Empty keeps preferences in memory.
	Path string
}

// ExportConfig controls export defaults.
type ExportConfig struct {
	// OutputDir is where the CLI saves exported files.
	OutputDir string // default: "."

	// LocalesDir optionally holds extra <locale>.yaml string tables.
	LocalesDir string
}

// WebhookConfig controls the export outcome webhook.
type WebhookConfig struct {
	// URL receives a POST for every finished export. Empty disables it.
	URL string

	// Secret signs the body with HMAC-SHA256 when set.
	Secret string
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("PLUGSCRAPE_HOST", "127.0.0.1"),
			Port: envIntOr("PLUGSCRAPE_PORT", 8080),
			Mode: envOr("PLUGSCRAPE_MODE", "release"),

			SessionIdleTTL: envDurationOr("PLUGSCRAPE_SESSION_IDLE_TTL", 30*time.Minute),
			MaxSessions:    envIntOr("PLUGSCRAPE_MAX_SESSIONS", 256),
		},
		Browser: BrowserConfig{
			Headless:     envBoolOr("PLUGSCRAPE_HEADLESS", true),
			MaxPages:     envIntOr("PLUGSCRAPE_MAX_PAGES", 4),
			DefaultProxy: os.Getenv("PLUGSCRAPE_PROXY"),
			NoSandbox:    envBoolOr("PLUGSCRAPE_NO_SANDBOX", false),
			BrowserBin:   os.Getenv("PLUGSCRAPE_BROWSER_BIN"),
			AutoDownload: envBoolOr("PLUGSCRAPE_BROWSER_AUTO_DOWNLOAD", false),
		},
		Scraper: ScraperConfig{
			DefaultTimeout:    envDurationOr("PLUGSCRAPE_TIMEOUT", 60*time.Second),
			NavigationTimeout: envDurationOr("PLUGSCRAPE_NAV_TIMEOUT", 20*time.Second),
			BlockedResourceTypes: envSliceOr("PLUGSCRAPE_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
			Stealth: envBoolOr("PLUGSCRAPE_STEALTH", false),
		},
		Engine: EngineConfig{
			EnableMultiEngine: envBoolOr("PLUGSCRAPE_MULTI_ENGINE", true),
			EscalationDelays:  envDurationSliceOr("PLUGSCRAPE_ESCALATION_DELAYS", []time.Duration{0, 3 * time.Second}),
			HTTPTimeout:       envDurationOr("PLUGSCRAPE_HTTP_TIMEOUT", 10*time.Second),
			DomainMemoryTTL:   envDurationOr("PLUGSCRAPE_DOMAIN_MEMORY_TTL", 24*time.Hour),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("PLUGSCRAPE_AUTH_ENABLED", false),
			APIKeys: envSliceOr("PLUGSCRAPE_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("PLUGSCRAPE_RATE_RPS", 2.0),
			Burst:             envIntOr("PLUGSCRAPE_RATE_BURST", 5),
		},
		Log: LogConfig{
			Level:  envOr("PLUGSCRAPE_LOG_LEVEL", "info"),
			Format: envOr("PLUGSCRAPE_LOG_FORMAT", "text"),
		},
		Prefs: PrefsConfig{
			Path: os.Getenv("PLUGSCRAPE_PREFS_PATH"),
		},
		Export: ExportConfig{
			OutputDir:  envOr("PLUGSCRAPE_OUTPUT_DIR", "."),
			LocalesDir: os.Getenv("PLUGSCRAPE_LOCALES_DIR"),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("PLUGSCRAPE_WEBHOOK_URL"),
			Secret: os.Getenv("PLUGSCRAPE_WEBHOOK_SECRET"),
		},
	}
}

func envDurationSliceOr(key string, fallback []time.Duration) []time.Duration {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]time.Duration, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				if d, err := time.ParseDuration(trimmed); err == nil {
					result = append(result, d)
				}
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
