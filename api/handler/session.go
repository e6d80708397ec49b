package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/plugscrape/api/middleware"
	"github.com/use-agent/plugscrape/models"
	"github.com/use-agent/plugscrape/popup"
)

func statusInfo(n popup.Notice) models.StatusInfo {
	return models.StatusInfo{Outcome: string(n.Outcome), Level: string(n.Level), Message: n.Message}
}

func sessionResponse(s *popup.Session, withStrings bool) models.SessionResponse {
	resp := models.SessionResponse{
		ID:       s.ID(),
		Language: s.Language(),
		Status:   statusInfo(s.Status()),
	}
	if withStrings {
		resp.Strings = s.Strings().Map()
	}
	return resp
}

// lookup resolves the :id parameter among the caller's sessions, writing a
// 404 when the session is gone or belongs to another API key.
func lookup(c *gin.Context, reg *popup.Registry) (*popup.Session, bool) {
	s, ok := reg.Get(c.Param("id"), middleware.APIKey(c))
	if !ok {
		respondError(c, models.NewScrapeError(models.ErrCodeSessionNotFound, "session not found", nil))
		return nil, false
	}
	return s, true
}

// CreateSession returns a handler for POST /api/v1/sessions.
func CreateSession(reg *popup.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := reg.Open(c.Request.Context(), middleware.APIKey(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, sessionResponse(s, true))
	}
}

// GetSession returns a handler for GET /api/v1/sessions/:id.
func GetSession(reg *popup.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := lookup(c, reg)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, sessionResponse(s, true))
	}
}

// DeleteSession returns a handler for DELETE /api/v1/sessions/:id.
func DeleteSession(reg *popup.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !reg.Close(c.Param("id"), middleware.APIKey(c)) {
			respondError(c, models.NewScrapeError(models.ErrCodeSessionNotFound, "session not found", nil))
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// SetLanguage returns a handler for PUT /api/v1/sessions/:id/language.
func SetLanguage(reg *popup.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := lookup(c, reg)
		if !ok {
			return
		}
		var req models.LanguageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), err))
			return
		}
		if err := s.SetLanguage(c.Request.Context(), req.Language); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, sessionResponse(s, true))
	}
}
