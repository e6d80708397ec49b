package exporter

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/xuri/excelize/v2"

	"github.com/use-agent/plugscrape/i18n"
	"github.com/use-agent/plugscrape/models"
)

type fakeRenderer struct {
	html string
	page PageConfig
	err  error
}

func (f *fakeRenderer) RenderPDF(_ context.Context, html string, page PageConfig) ([]byte, error) {
	f.html = html
	f.page = page
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.4 fake"), nil
}

var fixedTime = time.Date(2024, 5, 1, 9, 15, 0, 0, time.UTC)

func sampleRecords() []models.PluginRecord {
	return []models.PluginRecord{
		{Name: "Foo", Component: "mod_foo", Release: "1.0", VersionNumber: "2024010100"},
		{Name: "Bar", Component: "", Release: "2.0", VersionNumber: "2024020200"},
	}
}

func newJob(kind models.ExportKind, records []models.PluginRecord) *models.ExportJob {
	return &models.ExportJob{
		Kind:      kind,
		Records:   records,
		SourceURL: "https://moodle.example.com/admin/plugins.php",
		Timestamp: fixedTime,
	}
}

func TestBuild_Text(t *testing.T) {
	e := New(nil, nil)
	records := []models.PluginRecord{
		{Component: "mod_foo"},
		{Component: "  "},
		{Component: "block_bar"},
	}
	a, err := e.Build(context.Background(), newJob(models.KindText, records), i18n.English())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got, want := string(a.Content), "mod_foo\nblock_bar"; got != want {
		t.Errorf("content = %q, want %q", got, want)
	}
	if a.Count != 2 {
		t.Errorf("Count = %d, want 2", a.Count)
	}
	if a.Filename != "plugins_moodleexamplecom_2024-05-01.txt" {
		t.Errorf("Filename = %q", a.Filename)
	}
	if a.MIMEType != "text/plain; charset=utf-8" {
		t.Errorf("MIMEType = %q", a.MIMEType)
	}
}

func TestBuild_NothingFound(t *testing.T) {
	e := New(&fakeRenderer{}, nil)
	for _, kind := range models.Kinds {
		_, err := e.Build(context.Background(), newJob(kind, nil), i18n.English())
		if !errors.Is(err, ErrNothingFound) {
			t.Errorf("%s: err = %v, want ErrNothingFound", kind, err)
		}
	}

	// Text export of rows that all lack a component is also empty.
	_, err := e.Build(context.Background(), newJob(models.KindText, []models.PluginRecord{{Name: "x"}}), i18n.English())
	if models.CodeOf(err) != models.ErrCodeNothingFound {
		t.Errorf("keyless text export: err = %v", err)
	}
}

func TestBuild_DocumentKeepsEveryRow(t *testing.T) {
	r := &fakeRenderer{}
	e := New(r, nil)

	a, err := e.Build(context.Background(), newJob(models.KindDocument, sampleRecords()), i18n.English())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !bytes.HasPrefix(a.Content, []byte("%PDF")) || a.MIMEType != "application/pdf" {
		t.Errorf("unexpected artifact: %q %q", a.Content, a.MIMEType)
	}
	if a.Count != 2 {
		t.Errorf("Count = %d, want 2", a.Count)
	}
	if r.page != DefaultPageConfig() {
		t.Errorf("renderer page = %+v, want default A4", r.page)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(r.html))
	if err != nil {
		t.Fatal(err)
	}
	if got := doc.Find("h1").Text(); got != "Additional Plugins" {
		t.Errorf("title = %q", got)
	}
	if got := doc.Find("p.generated").Text(); got != "Generated on 5/1/2024, 9:15:00 AM from https://moodle.example.com/admin/plugins.php" {
		t.Errorf("generated line = %q", got)
	}
	if got := doc.Find("p.count").Text(); got != "2 plugin(s)" {
		t.Errorf("count line = %q", got)
	}
	if got := doc.Find("thead th").Length(); got != 4 {
		t.Errorf("header cells = %d, want 4", got)
	}
	rows := doc.Find("tbody tr")
	if rows.Length() != 2 {
		t.Fatalf("table rows = %d, want 2", rows.Length())
	}
	cells := rows.Eq(1).Find("td")
	if cells.Eq(0).Text() != "Bar" || cells.Eq(1).Text() != "" || cells.Eq(2).Text() != "2.0" || cells.Eq(3).Text() != "2024020200" {
		t.Errorf("second row = %q", cells.Text())
	}
}

func TestBuild_DocumentLocalized(t *testing.T) {
	r := &fakeRenderer{}
	e := New(r, nil)
	if _, err := e.Build(context.Background(), newJob(models.KindDocument, sampleRecords()), i18n.French()); err != nil {
		t.Fatal(err)
	}
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(r.html))
	if got := doc.Find("h1").Text(); got != "Plugins additionnels" {
		t.Errorf("title = %q", got)
	}
	if got := doc.Find("thead th").First().Text(); got != "Nom du plugin" {
		t.Errorf("first header = %q", got)
	}
	if got := doc.Find("p.generated").Text(); !strings.HasPrefix(got, "Généré le 01/05/2024 09:15:00 depuis ") {
		t.Errorf("generated line = %q", got)
	}
}

func TestBuild_DocumentEscapesMarkup(t *testing.T) {
	r := &fakeRenderer{}
	e := New(r, nil)
	records := []models.PluginRecord{{Name: "<script>alert(1)</script>", Component: "mod_x"}}
	if _, err := e.Build(context.Background(), newJob(models.KindDocument, records), i18n.English()); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(r.html, "<script>") {
		t.Error("record text was not escaped in the layout")
	}
}

func TestBuild_RenderFailure(t *testing.T) {
	e := New(&fakeRenderer{err: errors.New("browser gone")}, nil)
	_, err := e.Build(context.Background(), newJob(models.KindDocument, sampleRecords()), i18n.English())
	if models.CodeOf(err) != models.ErrCodeRenderFailed {
		t.Errorf("err = %v, want %s", err, models.ErrCodeRenderFailed)
	}

	_, err = New(nil, nil).Build(context.Background(), newJob(models.KindDocument, sampleRecords()), i18n.English())
	if models.CodeOf(err) != models.ErrCodeRenderFailed {
		t.Errorf("nil renderer: err = %v", err)
	}
}

func TestBuild_Markdown(t *testing.T) {
	e := New(nil, nil)
	a, err := e.Build(context.Background(), newJob(models.KindMarkdown, sampleRecords()), i18n.English())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	md := string(a.Content)
	for _, want := range []string{"# Additional Plugins", "Generated on", "Plugin Name", "Version Number", "2024020200", "|"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
	if !strings.HasSuffix(a.Filename, ".md") {
		t.Errorf("Filename = %q", a.Filename)
	}
}

func TestBuild_Spreadsheet(t *testing.T) {
	e := New(nil, nil)
	a, err := e.Build(context.Background(), newJob(models.KindSpreadsheet, sampleRecords()), i18n.French())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(a.Content))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Plugins additionnels")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3 (header + 2)", len(rows))
	}
	if rows[0][0] != "Nom du plugin" || rows[1][1] != "mod_foo" || rows[2][0] != "Bar" {
		t.Errorf("unexpected rows: %v", rows)
	}
}

func TestSheetName(t *testing.T) {
	if got := sheetName("a/b:c"); got != "abc" {
		t.Errorf("sheetName = %q", got)
	}
	if got := sheetName(strings.Repeat("x", 40)); len(got) != 31 {
		t.Errorf("sheetName length = %d", len(got))
	}
	if got := sheetName(" "); got != "Plugins" {
		t.Errorf("sheetName(blank) = %q", got)
	}
}

func TestBuild_DefaultsTimestamp(t *testing.T) {
	e := New(nil, nil, WithClock(func() time.Time { return fixedTime }))
	job := newJob(models.KindText, sampleRecords())
	job.Timestamp = time.Time{}
	a, err := e.Build(context.Background(), job, i18n.English())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(a.Filename, "_2024-05-01.txt") {
		t.Errorf("Filename = %q", a.Filename)
	}
}
