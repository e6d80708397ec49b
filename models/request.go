package models

// ExportRequest is the payload for POST /api/v1/sessions/:id/export.
type ExportRequest struct {
	// URL is the plugin overview page, usually <site>/admin/plugins.php. Required.
	URL string `json:"url" binding:"required,url"`

	// Kind selects the output: "text" (default), "document", "markdown"
	// or "spreadsheet". File extensions are accepted too.
	Kind string `json:"kind,omitempty"`

	// Headers are forwarded with the page request (e.g. a Cookie header
	// carrying an existing admin session).
	Headers map[string]string `json:"headers,omitempty"`
}

// Defaults applies default values to unset fields.
func (r *ExportRequest) Defaults() {
	if r.Kind == "" {
		r.Kind = string(KindText)
	}
}

// LanguageRequest is the payload for PUT /api/v1/sessions/:id/language.
type LanguageRequest struct {
	Language string `json:"language" binding:"required"`
}
