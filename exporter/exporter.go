// Package exporter turns extracted plugin records into downloadable files.
package exporter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"

	"github.com/use-agent/plugscrape/i18n"
	"github.com/use-agent/plugscrape/models"
)

// ErrNothingFound is returned by Build when a job has nothing to export.
var ErrNothingFound = models.NewScrapeError(models.ErrCodeNothingFound, "no additional plugins found", nil)

// Artifact is a serialized export, ready for the file-save side channel.
type Artifact struct {
	Filename string
	MIMEType string
	Content  []byte
	// Count is the number of records written.
	Count int
}

// DocumentRenderer prints an HTML layout to PDF.
type DocumentRenderer interface {
	RenderPDF(ctx context.Context, html string, page PageConfig) ([]byte, error)
}

// Exporter builds artifacts for every export kind. It is safe for concurrent use.
type Exporter struct {
	renderer DocumentRenderer
	page     PageConfig
	md       *converter.Converter
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithPageConfig overrides the document page setup.
func WithPageConfig(p PageConfig) Option {
	return func(e *Exporter) { e.page = p }
}

// WithClock overrides the clock used for filenames.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// New returns an Exporter. renderer may be nil, in which case document
// exports fail with ErrCodeRenderFailed.
func New(renderer DocumentRenderer, logger *slog.Logger, opts ...Option) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Exporter{
		renderer: renderer,
		page:     DefaultPageConfig(),
		md:       newMarkdownConverter(),
		logger:   logger,
		now:      time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Build serializes job using the string table s. It returns ErrNothingFound
// when the job has no exportable records, and never produces an empty file.
func (e *Exporter) Build(ctx context.Context, job *models.ExportJob, s *i18n.Strings) (*Artifact, error) {
	if job.Timestamp.IsZero() {
		job.Timestamp = e.now()
	}
	if len(job.Records) == 0 {
		return nil, ErrNothingFound
	}

	start := time.Now()
	var (
		content []byte
		count   int
		err     error
	)
	switch job.Kind {
	case models.KindText:
		content, count = buildText(job.Records)
	case models.KindDocument:
		content, err = e.buildDocument(ctx, job, s)
		count = len(job.Records)
	case models.KindMarkdown:
		content, err = e.buildMarkdown(job, s)
		count = len(job.Records)
	case models.KindSpreadsheet:
		content, err = buildSpreadsheet(job, s)
		count = len(job.Records)
	default:
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, fmt.Sprintf("unknown export kind %q", job.Kind), nil)
	}
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrNothingFound
	}

	a := &Artifact{
		Filename: Filename(job.Kind, job.SourceURL, job.Timestamp),
		MIMEType: job.Kind.MIMEType(),
		Content:  content,
		Count:    count,
	}
	e.logger.Debug("artifact built",
		"kind", job.Kind,
		"filename", a.Filename,
		"records", count,
		"bytes", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return a, nil
}

// buildText writes one component identifier per line. Rows without one are
// skipped, so the count may be lower than len(records).
func buildText(records []models.PluginRecord) ([]byte, int) {
	lines := make([]string, 0, len(records))
	for _, r := range records {
		if c := strings.TrimSpace(r.Component); c != "" {
			lines = append(lines, c)
		}
	}
	return []byte(strings.Join(lines, "\n")), len(lines)
}

func (e *Exporter) buildDocument(ctx context.Context, job *models.ExportJob, s *i18n.Strings) ([]byte, error) {
	if e.renderer == nil {
		return nil, models.NewScrapeError(models.ErrCodeRenderFailed, "no document renderer configured", nil)
	}
	html, err := RenderLayout(job, s, e.page)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeRenderFailed, "document layout failed", err)
	}
	pdf, err := e.renderer.RenderPDF(ctx, html, e.page)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeRenderFailed, "document rendering failed", err)
	}
	return pdf, nil
}
