// Package ctxmanage stores per-request values (trace id, logger, caller
// identity) on the gin context.
package ctxmanage

import (
	"solestore-backend/internal/auth"
	"solestore-backend/pkg/logkey"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	TraceIdKey = "traceId"
	loggerKey  = "logger"
	authKey    = "authContext"
)

func SetTraceId(c *gin.Context, traceId string) { c.Set(TraceIdKey, traceId) }

// GetTraceIdOfRequest returns the trace id assigned by the logging middleware.
func GetTraceIdOfRequest(c *gin.Context) string {
	return c.GetString(TraceIdKey)
}

func SetLogger(c *gin.Context, entry *logrus.Entry) { c.Set(loggerKey, entry) }

// Logger returns the request-scoped log entry, falling back to the standard
// logger tagged with whatever trace id is present.
func Logger(c *gin.Context) *logrus.Entry {
	if v, ok := c.Get(loggerKey); ok {
		if entry, ok := v.(*logrus.Entry); ok {
			return entry
		}
	}
	return logrus.WithField(logkey.TraceID, GetTraceIdOfRequest(c))
}

func SetAuth(c *gin.Context, ac *auth.AuthContext) { c.Set(authKey, ac) }

// GetAuth returns the caller identity, or nil for anonymous requests.
func GetAuth(c *gin.Context) *auth.AuthContext {
	v, ok := c.Get(authKey)
	if !ok {
		return nil
	}
	ac, _ := v.(*auth.AuthContext)
	return ac
}
