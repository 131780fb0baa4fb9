package middleware

import (
	"time"

	"solestore-backend/pkg/ctxmanage"
	"solestore-backend/pkg/logkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const TraceHeader = "X-Trace-ID"

// Logger assigns every request a trace id, stores a request-scoped log
// entry on the context and logs the outcome once the handler returns.
func Logger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceId := c.GetHeader(TraceHeader)
		if traceId == "" {
			traceId = uuid.NewString()
		}
		ctxmanage.SetTraceId(c, traceId)
		c.Header(TraceHeader, traceId)

		entry := log.WithField(logkey.TraceID, traceId)
		ctxmanage.SetLogger(c, entry)

		start := time.Now()
		c.Next()

		fields := logrus.Fields{
			logkey.Method:   c.Request.Method,
			logkey.Path:     c.Request.URL.Path,
			logkey.Status:   c.Writer.Status(),
			logkey.Latency:  time.Since(start).String(),
			logkey.ClientIP: c.ClientIP(),
		}
		if ac := ctxmanage.GetAuth(c); ac != nil {
			fields[logkey.UserID] = ac.UserID.Hex()
		}
		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.WithFields(fields).Error("request failed")
		case status >= 400:
			entry.WithFields(fields).Warn("request rejected")
		default:
			entry.WithFields(fields).Info("request served")
		}
	}
}
