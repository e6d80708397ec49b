package models

import (
	"fmt"
	"strings"
	"time"
)

// PluginRecord is one row of the plugin overview table.
// Fields missing from the source markup are empty strings, never omitted.
type PluginRecord struct {
	Name          string `json:"name"`
	Component     string `json:"component"`
	Release       string `json:"release"`
	VersionNumber string `json:"version_number"`
}

// Cells returns the record as table cells in column order.
func (r PluginRecord) Cells() []string {
	return []string{r.Name, r.Component, r.Release, r.VersionNumber}
}

// ExportKind selects the output format of an export.
type ExportKind string

const (
	KindText        ExportKind = "text"
	KindDocument    ExportKind = "document"
	KindMarkdown    ExportKind = "markdown"
	KindSpreadsheet ExportKind = "spreadsheet"
)

// Kinds lists every supported export kind.
var Kinds = []ExportKind{KindText, KindDocument, KindMarkdown, KindSpreadsheet}

// ParseKind accepts the kind names plus the file extensions users tend to type
// ("txt", "pdf", "md", "xlsx").
func ParseKind(s string) (ExportKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "txt":
		return KindText, nil
	case "document", "pdf":
		return KindDocument, nil
	case "markdown", "md":
		return KindMarkdown, nil
	case "spreadsheet", "xlsx":
		return KindSpreadsheet, nil
	}
	return "", fmt.Errorf("unknown export kind %q", s)
}

// Extension returns the file extension (without dot) for the kind.
func (k ExportKind) Extension() string {
	switch k {
	case KindDocument:
		return "pdf"
	case KindMarkdown:
		return "md"
	case KindSpreadsheet:
		return "xlsx"
	default:
		return "txt"
	}
}

// MIMEType returns the content type of files of this kind.
func (k ExportKind) MIMEType() string {
	switch k {
	case KindDocument:
		return "application/pdf"
	case KindMarkdown:
		return "text/markdown; charset=utf-8"
	case KindSpreadsheet:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/plain; charset=utf-8"
	}
}

// KeysOnly reports whether the kind only needs the component identifier of
// each row. Such exports drop rows whose identifier is empty.
func (k ExportKind) KeysOnly() bool {
	return k == KindText
}

// ExportJob is built per export action and consumed immediately.
type ExportJob struct {
	Kind      ExportKind
	Records   []PluginRecord
	SourceURL string
	Timestamp time.Time
}
