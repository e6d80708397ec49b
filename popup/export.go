package popup

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/use-agent/plugscrape/engine"
	"github.com/use-agent/plugscrape/exporter"
	"github.com/use-agent/plugscrape/extractor"
	"github.com/use-agent/plugscrape/i18n"
	"github.com/use-agent/plugscrape/models"
)

// Export runs one export action: snapshot the page, extract, build the
// artifact and hand it to saver. Only one export per session runs at a time;
// a second call while one is in flight fails with ErrBusy.
//
// The status line shows a generic error on failure; the detail is logged.
// When no plugins are found nothing is saved.
func (s *Session) Export(ctx context.Context, t Target, saver exporter.Saver) (*Result, error) {
	if t.URL == "" {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "a page URL is required", nil)
	}
	if t.Kind == "" {
		t.Kind = models.KindText
	}
	if _, err := models.ParseKind(string(t.Kind)); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), nil)
	}
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer s.busy.Store(false)

	if s.deps.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.deps.Timeout)
		defer cancel()
	}

	// The table is fixed at click time; a later language switch does not
	// change a running export.
	str := s.Strings()
	log := s.deps.Logger.With("session", s.id, "kind", t.Kind, "url", t.URL)
	start := time.Now()

	s.relay.Show(Notice{Outcome: OutcomeRunning, Level: LevelNormal, Message: str.ExtractionRunning})

	snap, err := s.deps.Fetcher.Fetch(ctx, &engine.FetchRequest{
		URL:     t.URL,
		Headers: t.Headers,
		Cookies: t.Cookies,
	})
	if err != nil {
		return nil, s.fail(log, str, "page snapshot failed", snapshotError(err))
	}

	records, err := extractor.ExtractHTML(snap.HTML, extractor.ModeFor(t.Kind))
	if err != nil {
		return nil, s.fail(log, str, "extraction failed", err)
	}
	if len(records) == 0 {
		return nil, s.nothingFound(log, str)
	}

	sourceURL := snap.FinalURL
	if sourceURL == "" {
		sourceURL = t.URL
	}
	job := &models.ExportJob{
		Kind:      t.Kind,
		Records:   records,
		SourceURL: sourceURL,
		Timestamp: s.deps.Now(),
	}
	artifact, err := s.deps.Builder.Build(ctx, job, str)
	if errors.Is(err, exporter.ErrNothingFound) {
		return nil, s.nothingFound(log, str)
	}
	if err != nil {
		return nil, s.fail(log, str, "building export failed", err)
	}

	location, err := saver.Save(ctx, artifact)
	if err != nil {
		return nil, s.fail(log, str, "saving export failed", err)
	}

	s.relay.Show(Notice{Outcome: OutcomeDone, Level: LevelNormal, Message: str.Done(artifact.Count)})
	log.Info("export completed",
		"engine", snap.EngineName,
		"records", artifact.Count,
		"filename", artifact.Filename,
		"location", location,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return &Result{
		Filename: artifact.Filename,
		Location: location,
		Count:    artifact.Count,
		Engine:   snap.EngineName,
	}, nil
}

func (s *Session) nothingFound(log *slog.Logger, str *i18n.Strings) error {
	s.relay.Show(Notice{Outcome: OutcomeNothingFound, Level: LevelError, Message: str.NothingFound})
	log.Info("no additional plugins found")
	return exporter.ErrNothingFound
}

func (s *Session) fail(log *slog.Logger, str *i18n.Strings, msg string, err error) error {
	s.relay.Show(Notice{Outcome: OutcomeError, Level: LevelError, Message: str.ExtractionError})
	log.Error(msg, "error", err)
	return err
}

// snapshotError gives fetch failures an error code: timeouts stay timeouts,
// coded errors keep their code, everything else means the page could not be
// reached.
func snapshotError(err error) error {
	var se *models.ScrapeError
	switch {
	case errors.As(err, &se):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "page snapshot timed out", err)
	default:
		return models.NewScrapeError(models.ErrCodePageUnavailable, "page could not be read", err)
	}
}
