package exporter

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/use-agent/plugscrape/i18n"
	"github.com/use-agent/plugscrape/models"
)

// layoutTmpl draws the printable document: a title, a "generated on" line, a
// count line and the plugin table. Geometry is in points so the printed page
// matches the PageConfig it is rendered with.
var layoutTmpl = template.Must(template.New("document").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
@page { size: {{.PageWidth}}pt {{.PageHeight}}pt; margin: {{.Margin}}pt; }
html, body { margin: 0; padding: 0; font-family: Helvetica, Arial, sans-serif; color: #000; }
header { height: 50pt; }
h1 { font-size: 14pt; line-height: 14pt; margin: 0 0 4pt 0; font-weight: normal; }
header p { font-size: 10pt; line-height: 14pt; margin: 0; }
table { width: 100%; border-collapse: collapse; font-size: 9pt; }
thead { display: table-header-group; }
tr { page-break-inside: avoid; break-inside: avoid; }
th, td { padding: 6pt; text-align: left; vertical-align: top; overflow-wrap: anywhere; }
th { font-weight: bold; background: #000; color: #fff; }
tbody tr:nth-child(even) td { background: #f5f5f5; }
</style>
</head>
<body>
<header>
<h1>{{.Title}}</h1>
<p class="generated">{{.GeneratedOn}} {{.Timestamp}} {{.From}} {{.SourceURL}}</p>
<p class="count">{{.Count}}</p>
</header>
<table>
<thead><tr>{{range .Headers}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{- range .Rows}}
<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{- end}}
</tbody>
</table>
</body>
</html>
`))

type layoutData struct {
	Title       string
	GeneratedOn string
	Timestamp   string
	From        string
	SourceURL   string
	Count       string
	Headers     []string
	Rows        [][]string
	PageWidth   string
	PageHeight  string
	Margin      string
}

func headerCells(s *i18n.Strings) []string {
	return []string{s.Headers.Name, s.Headers.Component, s.Headers.Release, s.Headers.VersionNumber}
}

// RenderLayout returns the HTML of the printable document for job.
func RenderLayout(job *models.ExportJob, s *i18n.Strings, page PageConfig) (string, error) {
	w, h := page.Size.Width, page.Size.Height
	if page.Landscape {
		w, h = h, w
	}
	rows := make([][]string, 0, len(job.Records))
	for _, r := range job.Records {
		rows = append(rows, r.Cells())
	}

	data := layoutData{
		Title:       s.AdditionalPlugins,
		GeneratedOn: s.GeneratedOn,
		Timestamp:   job.Timestamp.Format(s.DateTimeLayout),
		From:        s.From,
		SourceURL:   job.SourceURL,
		Count:       s.Count(len(job.Records)),
		Headers:     headerCells(s),
		Rows:        rows,
		PageWidth:   fmt.Sprintf("%.2f", w),
		PageHeight:  fmt.Sprintf("%.2f", h),
		Margin:      fmt.Sprintf("%.2f", page.Margin),
	}

	var buf bytes.Buffer
	if err := layoutTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("exporter: render layout: %w", err)
	}
	return buf.String(), nil
}
