// Package extractor reads plugin records out of the plugin overview table.
// It never touches the network or a live page: callers hand it a parsed
// document root, which keeps it testable against static fixtures.
package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/use-agent/plugscrape/models"
)

// Mode selects how much of each row is read.
type Mode int

const (
	// ModeKeys reads only the component identifier and drops rows without one.
	ModeKeys Mode = iota
	// ModeFull reads all four fields and keeps every matched row.
	ModeFull
)

// ModeFor returns the extraction mode an export kind needs.
func ModeFor(kind models.ExportKind) Mode {
	if kind.KeysOnly() {
		return ModeKeys
	}
	return ModeFull
}

// RowPatterns are the row selectors, in the order they are tried.
// Sites list add-ons either as "additional" rows or, on older themes,
// as "extension" rows; only up-to-date entries are exported.
var RowPatterns = []string{
	"table.generaltable tbody tr.additional.status-uptodate",
	"table.generaltable tbody tr.extension.status-uptodate",
}

var rowMatchers = compile(RowPatterns)

func compile(patterns []string) []cascadia.Selector {
	out := make([]cascadia.Selector, len(patterns))
	for i, p := range patterns {
		out[i] = cascadia.MustCompile(p)
	}
	return out
}

// Field selectors, relative to a row.
const (
	selKey           = ".componentname"
	selName          = ".pluginname .displayname"
	selComponent     = ".pluginname .componentname"
	selRelease       = ".version .release"
	selVersionNumber = ".version .versionnumber"
)

// Rows returns the matched rows of the first pattern that matches anything,
// and that pattern's index. Later patterns are not evaluated once one matches.
// When nothing matches, it returns an empty selection and -1.
func Rows(root *goquery.Selection) (*goquery.Selection, int) {
	for i, m := range rowMatchers {
		rows := root.FindMatcher(m)
		if rows.Length() > 0 {
			return rows, i
		}
	}
	return root.FindMatcher(rowMatchers[0]), -1
}

// Extract returns the records of the matched rows in document order.
// The result is never nil.
func Extract(root *goquery.Selection, mode Mode) []models.PluginRecord {
	rows, _ := Rows(root)
	records := make([]models.PluginRecord, 0, rows.Length())

	rows.Each(func(_ int, row *goquery.Selection) {
		if mode == ModeKeys {
			key := firstText(row, selKey)
			if key == "" {
				return
			}
			records = append(records, models.PluginRecord{Component: key})
			return
		}
		records = append(records, models.PluginRecord{
			Name:          TextOnly(row.Find(selName).First()),
			Component:     firstText(row, selComponent),
			Release:       firstText(row, selRelease),
			VersionNumber: firstText(row, selVersionNumber),
		})
	})
	return records
}

// Components returns the component identifiers of records, in order.
func Components(records []models.PluginRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Component)
	}
	return out
}

func firstText(row *goquery.Selection, selector string) string {
	return strings.TrimSpace(row.Find(selector).First().Text())
}

// TextOnly returns the visible text of the first element in sel, ignoring
// icons and images, with whitespace runs collapsed to single spaces.
// The element itself is left untouched.
func TextOnly(sel *goquery.Selection) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	clone := sel.First().Clone()
	clone.Find("img, svg, i, .icon").Remove()
	return strings.Join(strings.Fields(clone.Text()), " ")
}
