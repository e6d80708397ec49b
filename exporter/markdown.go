package exporter

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/use-agent/plugscrape/i18n"
	"github.com/use-agent/plugscrape/models"
)

// newMarkdownConverter is goroutine-safe and reused across exports.
func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(
				table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
			),
		),
	)
}

var markdownTmpl = template.Must(template.New("markdown").Parse(`<h1>{{.Title}}</h1>
<p>{{.GeneratedOn}} {{.Timestamp}} {{.From}} {{.SourceURL}}</p>
<p>{{.Count}}</p>
<table>
<thead><tr>{{range .Headers}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>{{end}}</tbody>
</table>
`))

func (e *Exporter) buildMarkdown(job *models.ExportJob, s *i18n.Strings) ([]byte, error) {
	rows := make([][]string, 0, len(job.Records))
	for _, r := range job.Records {
		rows = append(rows, r.Cells())
	}
	var buf bytes.Buffer
	err := markdownTmpl.Execute(&buf, layoutData{
		Title:       s.AdditionalPlugins,
		GeneratedOn: s.GeneratedOn,
		Timestamp:   job.Timestamp.Format(s.DateTimeLayout),
		From:        s.From,
		SourceURL:   job.SourceURL,
		Count:       s.Count(len(job.Records)),
		Headers:     headerCells(s),
		Rows:        rows,
	})
	if err != nil {
		return nil, fmt.Errorf("exporter: markdown layout: %w", err)
	}
	md, err := e.md.ConvertString(buf.String())
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeRenderFailed, "markdown conversion failed", err)
	}
	return []byte(md + "\n"), nil
}
