package scraper

import (
	"context"
	"io"

	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/use-agent/plugscrape/exporter"
	"github.com/use-agent/plugscrape/models"
)

// RenderPDF prints an HTML document with the given page setup. It implements
// exporter.DocumentRenderer.
func (s *Scraper) RenderPDF(ctx context.Context, html string, pg exporter.PageConfig) ([]byte, error) {
	if s.scraperCfg.DefaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.scraperCfg.DefaultTimeout)
		defer cancel()
	}

	page, release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	p := page.Context(ctx)
	if err := p.SetDocumentContent(html); err != nil {
		return nil, categorizeError(err, "failed to load document layout")
	}
	if err := p.WaitLoad(); err != nil {
		return nil, categorizeError(err, "document layout did not load")
	}

	width, height := pg.PaperInches()
	margin := pg.MarginInches()
	stream, err := p.PDF(&proto.PagePrintToPDF{
		PrintBackground:   pg.PrintBackground,
		PaperWidth:        gson.Num(width),
		PaperHeight:       gson.Num(height),
		MarginTop:         gson.Num(margin),
		MarginBottom:      gson.Num(margin),
		MarginLeft:        gson.Num(margin),
		MarginRight:       gson.Num(margin),
		PreferCSSPageSize: true,
	})
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeRenderFailed, "printing to PDF failed", err)
	}
	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeRenderFailed, "reading PDF stream failed", err)
	}
	return data, nil
}
