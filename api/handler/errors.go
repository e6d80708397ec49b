package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/plugscrape/models"
)

// asScrapeError returns the coded error in err's chain, wrapping uncoded
// errors as internal ones.
func asScrapeError(err error) *models.ScrapeError {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return se
	}
	return models.NewScrapeError(models.ErrCodeInternal, "internal error", err)
}

// respondError writes err as a JSON error with the matching status code.
func respondError(c *gin.Context, err error) {
	se := asScrapeError(err)
	c.JSON(mapErrorToStatus(se), models.ErrorResponse{Error: se.ToDetail()})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.ScrapeError) int {
	switch e.Code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeNothingFound, models.ErrCodeSessionNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeBusy:
		return http.StatusConflict // 409
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeSessionLimit:
		return http.StatusServiceUnavailable // 503
	case models.ErrCodePageUnavailable, models.ErrCodeNavigation:
		return http.StatusBadGateway // 502
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	default:
		return http.StatusInternalServerError // 500
	}
}
