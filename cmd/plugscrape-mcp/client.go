package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/use-agent/plugscrape/models"
)

// apiClient talks to a running plugscrape API.
type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// exportFile is a file returned by the export endpoint.
type exportFile struct {
	Filename string
	MIMEType string
	Count    int
	Content  []byte
}

// apiError is a failed API call with the server's error detail.
type apiError struct {
	StatusCode int
	Code       string
	Message    string
	// Status is the session's status line, set for export failures.
	Status string
}

func (e *apiError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Status != "" {
		msg += " (" + e.Status + ")"
	}
	return msg
}

func (c *apiClient) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	return resp, nil
}

// decode reads a JSON body into out, or an apiError for non-2xx statuses.
func decode(resp *http.Response, out any) error {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return errorFrom(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func errorFrom(status int, data []byte) error {
	var body models.ExportErrorResponse
	if err := json.Unmarshal(data, &body); err != nil || body.Error == nil {
		return &apiError{StatusCode: status, Code: "HTTP_" + strconv.Itoa(status), Message: http.StatusText(status)}
	}
	return &apiError{
		StatusCode: status,
		Code:       body.Error.Code,
		Message:    body.Error.Message,
		Status:     body.Status.Message,
	}
}

func (c *apiClient) locales(ctx context.Context) (*models.LocalesResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/locales", nil)
	if err != nil {
		return nil, err
	}
	var out models.LocalesResponse
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// export opens a session, optionally switches its language, runs one export
// and closes the session again.
func (c *apiClient) export(ctx context.Context, req models.ExportRequest, language string) (*exportFile, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/v1/sessions", nil)
	if err != nil {
		return nil, err
	}
	var session models.SessionResponse
	if err := decode(resp, &session); err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	defer func() {
		// The export is over either way; a failed close only leaks an
		// idle session on the server.
		if resp, err := c.do(context.WithoutCancel(ctx), http.MethodDelete, "/api/v1/sessions/"+session.ID, nil); err == nil {
			resp.Body.Close()
		}
	}()

	if language != "" && language != session.Language {
		resp, err := c.do(ctx, http.MethodPut, "/api/v1/sessions/"+session.ID+"/language", models.LanguageRequest{Language: language})
		if err != nil {
			return nil, err
		}
		if err := decode(resp, nil); err != nil {
			return nil, fmt.Errorf("set language: %w", err)
		}
	}

	resp, err = c.do(ctx, http.MethodPost, "/api/v1/sessions/"+session.ID+"/export", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errorFrom(resp.StatusCode, data)
	}

	file := &exportFile{MIMEType: resp.Header.Get("Content-Type"), Content: data}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		file.Filename = params["filename"]
	}
	if file.Filename == "" {
		return nil, errors.New("export response has no file name")
	}
	file.Count, _ = strconv.Atoi(resp.Header.Get("X-Plugin-Count"))
	return file, nil
}
