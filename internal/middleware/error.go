package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ErrorResponse is the envelope rendered for errors attached via c.Error.
type ErrorResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorHandler renders any errors handlers attached to the context. The
// status comes from the error itself when it can name one (pkg/errors
// AppError does), otherwise 500.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		rid := c.GetString(ContextRequestID)
		for _, e := range c.Errors {
			log.Error().
				Err(e.Err).
				Str("request_id", rid).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Msg("request error")
		}

		last := c.Errors.Last()
		status := http.StatusInternalServerError
		if coded, ok := last.Err.(interface{ StatusCode() int }); ok {
			status = coded.StatusCode()
		}

		c.JSON(status, ErrorResponse{
			Code:      status,
			Message:   last.Error(),
			RequestID: rid,
		})
	}
}
