// Package respond writes the {success, data, message, error} envelope.
package respond

import (
	"net/http"

	"solestore-backend/internal/apperr"

	"github.com/gin-gonic/gin"
)

type Envelope struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Message string         `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func OK(c *gin.Context, status int, data any, message string) {
	c.JSON(status, Envelope{Success: true, Data: data, Message: message})
}

// Fail aborts the request with an error envelope.
func Fail(c *gin.Context, status int, kind, message string) {
	c.AbortWithStatusJSON(status, Envelope{Success: false, Message: message, Error: kind})
}

// Error maps err through the taxonomy. Unclassified errors never leak their
// text to the client.
func Error(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	msg := err.Error()
	if kind == apperr.KindInternal {
		msg = http.StatusText(http.StatusInternalServerError)
	}
	c.AbortWithStatusJSON(kind.HTTPStatus(), Envelope{
		Success: false,
		Message: msg,
		Error:   kind.String(),
		Details: apperr.DetailsOf(err),
	})
}
