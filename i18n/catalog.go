// Package i18n holds the user-facing string tables. A Catalog is built once
// and passed to whoever needs text; nothing in the module reads a global table.
package i18n

import (
	"fmt"
	"sort"
	"sync"
)

// DefaultLocale is used when a requested locale has no table.
const DefaultLocale = "en"

// Headers are the localized column titles of the plugin table.
type Headers struct {
	Name          string `yaml:"name"`
	Component     string `yaml:"component"`
	Release       string `yaml:"release"`
	VersionNumber string `yaml:"versionnumber"`
}

// Strings is the string table of one locale.
type Strings struct {
	Title             string  `yaml:"title"`
	Description       string  `yaml:"description"`
	Languages         string  `yaml:"languages"`
	BtnText           string  `yaml:"btn_txt"`
	BtnDocument       string  `yaml:"btn_pdf"`
	Headers           Headers `yaml:"headers"`
	AdditionalPlugins string  `yaml:"additionnal_plugins"`
	Plugins           string  `yaml:"plugins"`
	GeneratedOn       string  `yaml:"generate_on"`
	From              string  `yaml:"from"`
	NothingFound      string  `yaml:"nothing_found"`
	Exported          string  `yaml:"exported"`
	ExtractionDone    string  `yaml:"extraction_done"`
	ExtractionError   string  `yaml:"extraction_error"`
	ExtractionRunning string  `yaml:"extraction_running"`

	// DateTimeLayout is a Go time layout for the "generated on" stamp.
	DateTimeLayout string `yaml:"datetime_layout"`
}

// Count renders "<n> plugin(s)".
func (s *Strings) Count(n int) string {
	return fmt.Sprintf("%d %s", n, s.Plugins)
}

// Done renders the completion message, including the record count.
func (s *Strings) Done(n int) string {
	return fmt.Sprintf("%s %s %s", s.ExtractionDone, s.Count(n), s.Exported)
}

// Map flattens the table into UI keys, the way the popup labels look them up.
func (s *Strings) Map() map[string]string {
	return map[string]string{
		"title":                 s.Title,
		"description":           s.Description,
		"languages":             s.Languages,
		"btn_txt":               s.BtnText,
		"btn_pdf":               s.BtnDocument,
		"headers.name":          s.Headers.Name,
		"headers.component":     s.Headers.Component,
		"headers.release":       s.Headers.Release,
		"headers.versionnumber": s.Headers.VersionNumber,
		"additionnal_plugins":   s.AdditionalPlugins,
		"plugins":               s.Plugins,
		"nothing_found":         s.NothingFound,
		"extraction_done":       s.ExtractionDone,
		"extraction_error":      s.ExtractionError,
		"extraction_running":    s.ExtractionRunning,
	}
}

// fillFrom copies every empty field of s from fallback.
func (s *Strings) fillFrom(fallback *Strings) {
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&s.Title, fallback.Title)
	fill(&s.Description, fallback.Description)
	fill(&s.Languages, fallback.Languages)
	fill(&s.BtnText, fallback.BtnText)
	fill(&s.BtnDocument, fallback.BtnDocument)
	fill(&s.Headers.Name, fallback.Headers.Name)
	fill(&s.Headers.Component, fallback.Headers.Component)
	fill(&s.Headers.Release, fallback.Headers.Release)
	fill(&s.Headers.VersionNumber, fallback.Headers.VersionNumber)
	fill(&s.AdditionalPlugins, fallback.AdditionalPlugins)
	fill(&s.Plugins, fallback.Plugins)
	fill(&s.GeneratedOn, fallback.GeneratedOn)
	fill(&s.From, fallback.From)
	fill(&s.NothingFound, fallback.NothingFound)
	fill(&s.Exported, fallback.Exported)
	fill(&s.ExtractionDone, fallback.ExtractionDone)
	fill(&s.ExtractionError, fallback.ExtractionError)
	fill(&s.ExtractionRunning, fallback.ExtractionRunning)
	fill(&s.DateTimeLayout, fallback.DateTimeLayout)
}

// Catalog maps locale codes to string tables. It is safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	locales map[string]*Strings
}

// New returns a catalog holding the given tables. The default locale must be
// among them.
func New(tables map[string]*Strings) (*Catalog, error) {
	if _, ok := tables[DefaultLocale]; !ok {
		return nil, fmt.Errorf("i18n: catalog needs a %q table", DefaultLocale)
	}
	c := &Catalog{locales: make(map[string]*Strings, len(tables))}
	for code, s := range tables {
		c.locales[code] = s
	}
	return c, nil
}

// Builtin returns a catalog with the English and French tables.
func Builtin() *Catalog {
	c, _ := New(map[string]*Strings{
		"en": English(),
		"fr": French(),
	})
	return c
}

// Add registers (or replaces) a locale. Missing fields are taken from the
// default locale so a partial table never renders blanks.
func (c *Catalog) Add(code string, s *Strings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if def, ok := c.locales[DefaultLocale]; ok && code != DefaultLocale {
		s.fillFrom(def)
	}
	c.locales[code] = s
}

// Has reports whether the locale has its own table.
func (c *Catalog) Has(code string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.locales[code]
	return ok
}

// Lookup returns the table for code, falling back to the default locale.
func (c *Catalog) Lookup(code string) *Strings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.locales[code]; ok {
		return s
	}
	return c.locales[DefaultLocale]
}

// Locales returns the sorted locale codes.
func (c *Catalog) Locales() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	codes := make([]string, 0, len(c.locales))
	for code := range c.locales {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
