package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/agchavez/interlace/internal/api/middleware"
	"github.com/agchavez/interlace/internal/apiclient"
	"github.com/agchavez/interlace/internal/models"
)

// MessageBadCredentials is shown when the claims API refuses a login
const MessageBadCredentials = "Invalid username or password."

// SessionManager signs operators in and out
type SessionManager interface {
	Login(ctx context.Context, creds models.Credentials) (*models.Session, *models.User, error)
	Logout(ctx context.Context, id uuid.UUID) error
}

// ProfileAPI returns the signed in operator
type ProfileAPI interface {
	Me(ctx context.Context, ts apiclient.TokenSource) (*models.User, error)
}

// AuthHandler handles login, logout and the operator profile
type AuthHandler struct {
	sessions SessionManager
	profile  ProfileAPI
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(sessions SessionManager, profile ProfileAPI) *AuthHandler {
	return &AuthHandler{sessions: sessions, profile: profile}
}

// LoginResponse carries the session ID to send in the X-Session-ID header
type LoginResponse struct {
	SessionID uuid.UUID    `json:"session_id"`
	User      *models.User `json:"user"`
}

// HandleLogin exchanges credentials for a session
func (h *AuthHandler) HandleLogin(c *gin.Context) {
	var creds models.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		badRequest(c, "Username and password are required")
		return
	}

	session, user, err := h.sessions.Login(c.Request.Context(), creds)
	if err != nil {
		if apiclient.IsStatus(err, http.StatusUnauthorized) || apiclient.IsStatus(err, http.StatusBadRequest) {
			log.Info().Str("username", creds.Username).Msg("Login refused")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Error:         err.Error(),
				Notifications: []string{MessageBadCredentials},
			})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, LoginResponse{SessionID: session.ID, User: user})
}

// HandleLogout ends the current session
func (h *AuthHandler) HandleLogout(c *gin.Context) {
	session := middleware.CurrentSession(c)
	if session == nil {
		c.Status(http.StatusNoContent)
		return
	}

	if err := h.sessions.Logout(c.Request.Context(), session.ID); err != nil {
		respondError(c, err)
		return
	}
	log.Info().Str("session_id", session.ID.String()).Msg("Operator signed out")
	c.Status(http.StatusNoContent)
}

// HandleMe returns the signed in operator
func (h *AuthHandler) HandleMe(c *gin.Context) {
	user, err := h.profile.Me(c.Request.Context(), middleware.TokenSource(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// RegisterRoutes registers login on the public group and the rest behind
// the session check.
func (h *AuthHandler) RegisterRoutes(public, protected *gin.RouterGroup) {
	public.POST("/auth/login", h.HandleLogin)
	protected.POST("/auth/logout", h.HandleLogout)
	protected.GET("/auth/me", h.HandleMe)
}
