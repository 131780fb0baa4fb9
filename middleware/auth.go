package middleware

import (
	"errors"
	"net/http"

	"solestore-backend/internal/apperr"
	"solestore-backend/internal/auth"
	"solestore-backend/internal/models"
	"solestore-backend/pkg/ctxmanage"
	"solestore-backend/pkg/logkey"
	"solestore-backend/pkg/respond"

	"github.com/gin-gonic/gin"
)

type TokenVerifier interface {
	ValidateToken(token string) (*auth.AuthContext, error)
}

type Mid struct {
	keys TokenVerifier
}

func NewMid(k TokenVerifier) (*Mid, error) {
	if k == nil {
		return nil, errors.New("token verifier cannot be nil")
	}
	return &Mid{keys: k}, nil
}

// Authentication rejects requests without a valid bearer token.
func (m *Mid) Authentication() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			respond.Fail(c, http.StatusUnauthorized, apperr.KindUnauthenticated.String(), "missing bearer token")
			return
		}
		ac, err := m.keys.ValidateToken(tokenStr)
		if err != nil {
			ctxmanage.Logger(c).WithField(logkey.ERROR, err).Warn("token rejected")
			respond.Fail(c, http.StatusUnauthorized, apperr.KindUnauthenticated.String(), "invalid or expired token")
			return
		}
		ctxmanage.SetAuth(c, ac)
		c.Next()
	}
}

// OptionalAuthentication attaches the caller identity when a valid token is
// sent and lets the request through anonymously otherwise.
func (m *Mid) OptionalAuthentication() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if ok {
			ac, err := m.keys.ValidateToken(tokenStr)
			if err != nil {
				ctxmanage.Logger(c).WithField(logkey.ERROR, err).Warn("ignoring invalid token on optional-auth route")
			} else {
				ctxmanage.SetAuth(c, ac)
			}
		}
		c.Next()
	}
}

// Authorize wraps next so it only runs for callers holding role.
func (m *Mid) Authorize(next gin.HandlerFunc, role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		ac := ctxmanage.GetAuth(c)
		if ac == nil {
			respond.Fail(c, http.StatusUnauthorized, apperr.KindUnauthenticated.String(), "authentication required")
			return
		}
		if !ac.HasRole(role) {
			ctxmanage.Logger(c).WithField(logkey.UserID, ac.UserID.Hex()).Warn("role check failed")
			respond.Fail(c, http.StatusForbidden, apperr.KindUnauthorized.String(), "insufficient permissions")
			return
		}
		next(c)
	}
}
