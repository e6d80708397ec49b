package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/plugscrape/models"
)

// ParseDocument parses a page snapshot.
func ParseDocument(rawHTML string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeMalformedSource, "page markup could not be parsed", err)
	}
	return doc, nil
}

// ExtractHTML parses rawHTML and extracts its records.
func ExtractHTML(rawHTML string, mode Mode) ([]models.PluginRecord, error) {
	doc, err := ParseDocument(rawHTML)
	if err != nil {
		return nil, err
	}
	return Extract(doc.Selection, mode), nil
}

// HasRows reports whether rawHTML contains at least one plugin row.
func HasRows(rawHTML string) bool {
	doc, err := ParseDocument(rawHTML)
	if err != nil {
		return false
	}
	rows, _ := Rows(doc.Selection)
	return rows.Length() > 0
}
