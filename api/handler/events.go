package handler

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/plugscrape/popup"
)

const keepAliveEvery = 25 * time.Second

// Events returns a handler for GET /api/v1/sessions/:id/events, a
// server-sent event stream of "language" and "status" events. The current
// language and status are sent first.
func Events(reg *popup.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := lookup(c, reg)
		if !ok {
			return
		}
		events, cancel := s.Watch()
		defer cancel()

		c.Header("Cache-Control", "no-cache")
		c.Header("X-Accel-Buffering", "no")

		current := s.Status()
		c.SSEvent(string(popup.EventLanguage), popup.Event{Type: popup.EventLanguage, Language: s.Language()})
		c.SSEvent(string(popup.EventStatus), popup.Event{Type: popup.EventStatus, Notice: &current})
		c.Writer.Flush()

		ticker := time.NewTicker(keepAliveEvery)
		defer ticker.Stop()

		c.Stream(func(w io.Writer) bool {
			select {
			case <-c.Request.Context().Done():
				return false
			case e, ok := <-events:
				if !ok {
					return false
				}
				c.SSEvent(string(e.Type), e)
				return true
			case <-ticker.C:
				_, _ = io.WriteString(w, ": keep-alive\n\n")
				return true
			}
		})
	}
}
