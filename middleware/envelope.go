package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// ErrorBody is the JSON envelope for every error response:
// {"error": {"message": ..., "timestamp": ...}}. Message is either a string
// or a list of validation issues.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Message   interface{} `json:"message"`
	Timestamp string      `json:"timestamp"`
}

// NewErrorBody stamps message with the current UTC time.
func NewErrorBody(message interface{}) ErrorBody {
	return ErrorBody{Error: ErrorDetail{
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}}
}

// AbortWithError writes the error envelope and stops the handler chain.
func AbortWithError(c *gin.Context, status int, message interface{}) {
	c.AbortWithStatusJSON(status, NewErrorBody(message))
}
