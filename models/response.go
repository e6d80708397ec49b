package models

// StatusInfo is the status line of a session as seen by clients.
type StatusInfo struct {
	// Outcome is one of "idle", "running", "done", "error", "nothing-found".
	Outcome string `json:"outcome"`

	// Level is "normal" or "error"; clients colour the message with it.
	Level string `json:"level"`

	Message string `json:"message"`
}

// SessionResponse describes one popup session.
type SessionResponse struct {
	ID       string            `json:"id"`
	Language string            `json:"language"`
	Status   StatusInfo        `json:"status"`
	Strings  map[string]string `json:"strings,omitempty"`
}

// ExportErrorResponse is returned by the export endpoint when no file is produced.
type ExportErrorResponse struct {
	Success bool         `json:"success"`
	Status  StatusInfo   `json:"status"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// LocalesResponse is the response for GET /api/v1/locales.
type LocalesResponse struct {
	Locales []string `json:"locales"`
	Default string   `json:"default"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"` // "healthy" or "degraded"
	Uptime    string    `json:"uptime"`
	Sessions  int       `json:"sessions"`
	PoolStats PoolStats `json:"pool_stats"`
	Version   string    `json:"version"`
}

// PoolStats reports the state of the browser page pool.
type PoolStats struct {
	Launched    bool `json:"launched"`
	MaxPages    int  `json:"max_pages"`
	ActivePages int  `json:"active_pages"`
}

// ErrorResponse is the body of a failed request outside the export endpoint.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}

// NewErrorResponse builds an ErrorResponse.
func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{Error: &ErrorDetail{Code: code, Message: message}}
}
