package auth

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/agchavez/interlace/internal/apiclient"
	"github.com/agchavez/interlace/internal/models"
	"github.com/agchavez/interlace/internal/repositories"
)

// refreshSkew renews access tokens this long before they expire
const refreshSkew = 30 * time.Second

// SessionStore persists sessions
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	Latest(ctx context.Context) (*models.Session, error)
	UpdateRefreshToken(ctx context.Context, id uuid.UUID, refreshToken string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Authenticator is the part of the claims API that issues tokens
type Authenticator interface {
	Login(ctx context.Context, creds models.Credentials) (*models.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
}

type cachedToken struct {
	access string
	claims AccessClaims
}

// Manager signs operators in and keeps their access tokens fresh
type Manager struct {
	store SessionStore
	api   Authenticator
	now   func() time.Time

	mu        sync.Mutex
	tokens    map[uuid.UUID]cachedToken
	refreshes singleflight.Group
}

// NewManager creates a session manager
func NewManager(store SessionStore, api Authenticator) *Manager {
	return &Manager{
		store:  store,
		api:    api,
		now:    time.Now,
		tokens: make(map[uuid.UUID]cachedToken),
	}
}

// Login exchanges credentials for a new session
func (m *Manager) Login(ctx context.Context, creds models.Credentials) (*models.Session, *models.User, error) {
	pair, err := m.api.Login(ctx, creds)
	if err != nil {
		return nil, nil, err
	}

	claims, err := ParseAccess(pair.Access)
	if err != nil {
		return nil, nil, err
	}

	session := &models.Session{
		UserID:       claims.UserID,
		Username:     creds.Username,
		RefreshToken: pair.Refresh,
	}
	if err := m.store.Create(ctx, session); err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	m.tokens[session.ID] = cachedToken{access: pair.Access, claims: claims}
	m.mu.Unlock()

	user := pair.User
	if user == nil {
		user = &models.User{ID: claims.UserID, Username: creds.Username}
	}

	log.Info().Str("session_id", session.ID.String()).Int("user_id", claims.UserID).Msg("Operator signed in")
	return session, user, nil
}

// Logout forgets a session
func (m *Manager) Logout(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	delete(m.tokens, id)
	m.mu.Unlock()
	return m.store.Delete(ctx, id)
}

// Session returns the stored session
func (m *Manager) Session(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return m.store.GetByID(ctx, id)
}

// Source returns a TokenSource bound to a session
func (m *Manager) Source(id uuid.UUID) apiclient.TokenSource {
	return sessionSource{manager: m, id: id}
}

// Current returns the TokenSource of the most recent session, the one
// command line invocations act as.
func (m *Manager) Current(ctx context.Context) (apiclient.TokenSource, *models.Session, error) {
	session, err := m.store.Latest(ctx)
	if err != nil {
		if errors.Is(err, repositories.ErrSessionNotFound) {
			return nil, nil, errors.Wrap(apiclient.ErrUnauthorized, "no stored session, run login first")
		}
		return nil, nil, err
	}
	return m.Source(session.ID), session, nil
}

// Token returns a valid access token for the session, refreshing it when
// it is missing or about to expire. The lock only guards the token map;
// concurrent refreshes of one session share a single upstream call.
func (m *Manager) Token(ctx context.Context, id uuid.UUID) (apiclient.Token, error) {
	if tok, ok := m.cached(id); ok {
		return tok, nil
	}

	shared := context.WithoutCancel(ctx)
	ch := m.refreshes.DoChan(id.String(), func() (interface{}, error) {
		return m.refresh(shared, id)
	})

	select {
	case <-ctx.Done():
		return apiclient.Token{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return apiclient.Token{}, res.Err
		}
		return res.Val.(apiclient.Token), nil
	}
}

func (m *Manager) cached(id uuid.UUID) (apiclient.Token, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cached, ok := m.tokens[id]
	if !ok || cached.claims.Expired(m.now(), refreshSkew) {
		return apiclient.Token{}, false
	}
	return apiclient.Token{Access: cached.access, UserID: cached.claims.UserID}, true
}

// refresh exchanges the stored refresh token for a new access token
func (m *Manager) refresh(ctx context.Context, id uuid.UUID) (apiclient.Token, error) {
	session, err := m.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrSessionNotFound) {
			return apiclient.Token{}, errors.Wrap(apiclient.ErrUnauthorized, "session expired")
		}
		return apiclient.Token{}, err
	}

	pair, err := m.api.Refresh(ctx, session.RefreshToken)
	if err != nil {
		if apiclient.IsStatus(err, http.StatusUnauthorized) {
			m.mu.Lock()
			delete(m.tokens, id)
			m.mu.Unlock()
			return apiclient.Token{}, errors.Wrap(apiclient.ErrUnauthorized, "refresh token rejected")
		}
		return apiclient.Token{}, err
	}

	claims, err := ParseAccess(pair.Access)
	if err != nil {
		return apiclient.Token{}, err
	}

	if pair.Refresh != "" && pair.Refresh != session.RefreshToken {
		if err := m.store.UpdateRefreshToken(ctx, id, pair.Refresh); err != nil {
			log.Warn().Err(err).Str("session_id", id.String()).Msg("Failed to store rotated refresh token")
		}
	}

	m.mu.Lock()
	m.tokens[id] = cachedToken{access: pair.Access, claims: claims}
	m.mu.Unlock()

	log.Debug().Str("session_id", id.String()).Msg("Access token refreshed")
	return apiclient.Token{Access: pair.Access, UserID: claims.UserID}, nil
}

type sessionSource struct {
	manager *Manager
	id      uuid.UUID
}

func (s sessionSource) Token(ctx context.Context) (apiclient.Token, error) {
	return s.manager.Token(ctx, s.id)
}
