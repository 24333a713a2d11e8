package devserver

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// slowRequestThreshold is the duration above which requests are logged at WARN level.
const slowRequestThreshold = 100 * time.Millisecond

const userKey = "user"

// requestLogger logs every request with timing. Slow requests are logged at
// WARN level and failed ones at ERROR.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", duration.Milliseconds(),
		}
		if id := c.GetHeader("X-Request-ID"); id != "" {
			attrs = append(attrs, "request_id", id)
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("request failed", attrs...)
		case duration > slowRequestThreshold:
			logger.Warn("slow request", attrs...)
		default:
			logger.Debug("request completed", attrs...)
		}
	}
}

// requireAuth resolves the bearer token to a username.
func (s *Server) requireAuth(c *gin.Context) {
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || token == "" {
		fail(c, http.StatusUnauthorized, "Not authenticated")
		return
	}
	s.mu.Lock()
	username, ok := s.tokens[token]
	s.mu.Unlock()
	if !ok {
		fail(c, http.StatusUnauthorized, "Could not validate credentials")
		return
	}
	c.Set(userKey, username)
	c.Next()
}

func currentUser(c *gin.Context) string {
	return c.GetString(userKey)
}
