package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/agchavez/interlace/internal/apiclient"
	"github.com/agchavez/interlace/internal/models"
	"github.com/agchavez/interlace/internal/repositories"
	"github.com/agchavez/interlace/internal/services"
)

// SessionHeader carries the session ID issued by the login endpoint
const SessionHeader = "X-Session-ID"

// Context keys
const (
	sessionKey     = "session"
	tokenSourceKey = "token_source"
)

// SessionLookup resolves session IDs to credentials for the claims API
type SessionLookup interface {
	Session(ctx context.Context, id uuid.UUID) (*models.Session, error)
	Source(id uuid.UUID) apiclient.TokenSource
}

// SessionAuth requires a known session. Browsers cannot set headers on
// websocket upgrades, so the session query parameter is accepted as well.
func SessionAuth(sessions SessionLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(SessionHeader)
		if raw == "" {
			raw = c.Query("session")
		}
		if raw == "" {
			abortUnauthorized(c, "Session header required")
			return
		}

		id, err := uuid.Parse(raw)
		if err != nil {
			abortUnauthorized(c, "Invalid session ID")
			return
		}

		session, err := sessions.Session(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, repositories.ErrSessionNotFound) {
				abortUnauthorized(c, "Session expired")
				return
			}
			log.Error().Err(err).Str("session_id", raw).Msg("Failed to load session")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
			return
		}

		c.Set(sessionKey, session)
		c.Set(tokenSourceKey, sessions.Source(id))
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":         msg,
		"notifications": []string{services.MessageSession},
	})
}

// CurrentSession returns the session attached by SessionAuth
func CurrentSession(c *gin.Context) *models.Session {
	if v, ok := c.Get(sessionKey); ok {
		if s, ok := v.(*models.Session); ok {
			return s
		}
	}
	return nil
}

// TokenSource returns the claims API credentials attached by SessionAuth
func TokenSource(c *gin.Context) apiclient.TokenSource {
	if v, ok := c.Get(tokenSourceKey); ok {
		if ts, ok := v.(apiclient.TokenSource); ok {
			return ts
		}
	}
	return nil
}
