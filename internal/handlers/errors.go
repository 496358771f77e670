package handlers

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/ytakahashi/todo-api/internal/models"
)

const internalErrorMessage = "internal server error"

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// StatusFor maps an error to the HTTP status and the message that is safe to
// send back. Anything unrecognised is treated as internal.
func StatusFor(err error) (int, string) {
	var (
		verr *models.ValidationError
		herr *echo.HTTPError
	)
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, models.ErrNotFound.Error()
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Message
	case errors.As(err, &herr):
		if herr.Code >= http.StatusInternalServerError {
			return herr.Code, internalErrorMessage
		}
		if msg, ok := herr.Message.(string); ok && msg != "" {
			return herr.Code, msg
		}
		return herr.Code, http.StatusText(herr.Code)
	default:
		return http.StatusInternalServerError, internalErrorMessage
	}
}

// NewHTTPErrorHandler renders errors as {"error": "..."} and logs server
// side failures with their cause.
func NewHTTPErrorHandler(logger *log.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, msg := StatusFor(err)
		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"err", err,
			)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, ErrorBody{Error: msg})
		}
		if werr != nil {
			logger.Error("failed to write error response", "err", werr)
		}
	}
}
