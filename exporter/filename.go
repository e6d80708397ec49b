package exporter

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/use-agent/plugscrape/models"
)

// FallbackSlug names files whose source host cannot be determined.
const FallbackSlug = "moodle_plugins"

var (
	slugStripRe  = regexp.MustCompile(`[^a-z0-9 -]`)
	slugSpaceRe  = regexp.MustCompile(`\s+`)
	slugHyphenRe = regexp.MustCompile(`-+`)
)

// Slug lowercases s and keeps only letters, digits and single hyphens.
// "My.School.EDU" becomes "myschooledu".
func Slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugStripRe.ReplaceAllString(s, "")
	s = slugSpaceRe.ReplaceAllString(s, "-")
	return slugHyphenRe.ReplaceAllString(s, "-")
}

// HostSlug returns the slug of the URL's host name, or FallbackSlug when the
// URL does not parse or yields nothing usable.
func HostSlug(sourceURL string) string {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return FallbackSlug
	}
	if slug := Slug(u.Hostname()); slug != "" {
		return slug
	}
	return FallbackSlug
}

// Filename builds "plugins_<slug>_<YYYY-MM-DD>.<ext>". The date is the UTC
// calendar date of now.
func Filename(kind models.ExportKind, sourceURL string, now time.Time) string {
	return "plugins_" + HostSlug(sourceURL) + "_" + now.UTC().Format("2006-01-02") + "." + kind.Extension()
}
