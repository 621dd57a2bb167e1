package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/solquestio/solquestio-sub002/core"
)

const identityKey = "identity"

type identityCtxKey struct{}

// TokenValidator resolves a bearer token to the caller's identity
type TokenValidator interface {
	ValidateAccessToken(token string) (core.Identity, error)
}

// AuthMiddleware creates middleware that validates access tokens. Every
// failure gets the same 401 body, whatever the cause.
func AuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, unauthorized)
			return
		}

		identity, err := validator.ValidateAccessToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, unauthorized)
			return
		}

		c.Set(identityKey, identity)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), identityCtxKey{}, identity))

		c.Next()
	}
}

// IdentityFromContext returns the identity AuthMiddleware attached to a request context
func IdentityFromContext(ctx context.Context) (core.Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(core.Identity)
	return id, ok
}

func identityFrom(c *gin.Context) (core.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return core.Identity{}, false
	}
	id, ok := v.(core.Identity)
	return id, ok
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		entry := log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
			"ip":       c.ClientIP(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request")
			return
		}
		entry.Debug("request")
	}
}
