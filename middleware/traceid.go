package middleware

import (
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const TraceIDKey = "trace_id"
const TraceIDHeader = "X-Trace-ID"

// A client-supplied id is kept only if it fits the audit_logs.trace_id column.
var traceIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,36}$`)

// TraceID tags every request with a trace id, taken from the X-Trace-ID
// header when it is well formed and generated otherwise. The id is echoed in
// the response header and carried into audit entries and error logs.
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if !traceIDPattern.MatchString(traceID) {
			traceID = uuid.NewString()
		}
		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)
		c.Next()
	}
}

// GetTraceID returns the request's trace id, or "" outside TraceID.
func GetTraceID(c *gin.Context) string {
	return c.GetString(TraceIDKey)
}
