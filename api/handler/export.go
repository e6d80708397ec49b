package handler

import (
	"context"
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/plugscrape/exporter"
	"github.com/use-agent/plugscrape/models"
	"github.com/use-agent/plugscrape/popup"
)

// attachmentSaver delivers an artifact as the HTTP response body.
type attachmentSaver struct {
	c *gin.Context
}

func (a attachmentSaver) Save(_ context.Context, art *exporter.Artifact) (string, error) {
	a.c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": art.Filename}))
	a.c.Header("X-Plugin-Count", strconv.Itoa(art.Count))
	a.c.Data(http.StatusOK, art.MIMEType, art.Content)
	return "attachment:" + art.Filename, nil
}

// Export returns a handler for POST /api/v1/sessions/:id/export.
//
// On success the file is the response body. Otherwise the body is JSON with
// the session's status line and the error code: 404 when no plugins were
// found, 409 while another export of the session runs, 502 when the page
// could not be read, 504 on timeout.
func Export(reg *popup.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := lookup(c, reg)
		if !ok {
			return
		}

		var req models.ExportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), err))
			return
		}
		req.Defaults()
		kind, err := models.ParseKind(req.Kind)
		if err != nil {
			respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), err))
			return
		}

		_, err = s.Export(c.Request.Context(), popup.Target{
			URL:     req.URL,
			Kind:    kind,
			Headers: req.Headers,
		}, attachmentSaver{c: c})
		if err != nil {
			se := asScrapeError(err)
			c.JSON(mapErrorToStatus(se), models.ExportErrorResponse{
				Status: statusInfo(s.Status()),
				Error:  se.ToDetail(),
			})
		}
	}
}
