package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/plugscrape/i18n"
	"github.com/use-agent/plugscrape/models"
)

// Locales returns a handler for GET /api/v1/locales.
func Locales(catalog *i18n.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.LocalesResponse{
			Locales: catalog.Locales(),
			Default: i18n.DefaultLocale,
		})
	}
}
