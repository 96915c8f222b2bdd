package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/agchavez/interlace/internal/apiclient"
	"github.com/agchavez/interlace/internal/models"
	"github.com/agchavez/interlace/internal/repositories"
)

type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Login(ctx context.Context, creds models.Credentials) (*models.TokenPair, error) {
	args := m.Called(ctx, creds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TokenPair), args.Error(1)
}

func (m *MockAuthenticator) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TokenPair), args.Error(1)
}

func signAccess(t *testing.T, userID int, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     exp.Unix(),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func newStore(t *testing.T) *repositories.SessionRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, models.SetupModels(db))
	return repositories.NewSessionRepository(db)
}

func TestParseAccess(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	claims, err := ParseAccess(signAccess(t, 5, exp))
	require.NoError(t, err)
	require.Equal(t, 5, claims.UserID)
	require.True(t, claims.ExpiresAt.Equal(exp))
	require.False(t, claims.Expired(time.Now(), refreshSkew))
	require.True(t, claims.Expired(exp.Add(-10*time.Second), refreshSkew))

	_, err = ParseAccess("not-a-jwt")
	require.ErrorIs(t, err, ErrMalformedToken)
}

func TestLoginStoresSessionAndCachesToken(t *testing.T) {
	api := new(MockAuthenticator)
	store := newStore(t)
	m := NewManager(store, api)
	ctx := context.Background()

	access := signAccess(t, 5, time.Now().Add(time.Hour))
	creds := models.Credentials{Username: "ana", Password: "secret"}
	api.On("Login", mock.Anything, creds).Return(&models.TokenPair{Access: access, Refresh: "r1"}, nil)

	session, user, err := m.Login(ctx, creds)
	require.NoError(t, err)
	require.Equal(t, 5, session.UserID)
	require.Equal(t, "ana", user.Username)

	tok, err := m.Source(session.ID).Token(ctx)
	require.NoError(t, err)
	require.Equal(t, access, tok.Access)
	require.Equal(t, 5, tok.UserID)

	// No refresh call while the cached token is valid
	api.AssertNotCalled(t, "Refresh", mock.Anything, mock.Anything)
	api.AssertExpectations(t)
}

func TestTokenRefreshesAndStoresRotatedRefreshToken(t *testing.T) {
	api := new(MockAuthenticator)
	store := newStore(t)
	m := NewManager(store, api)
	ctx := context.Background()

	session := &models.Session{UserID: 5, Username: "ana", RefreshToken: "r1"}
	require.NoError(t, store.Create(ctx, session))

	access := signAccess(t, 5, time.Now().Add(time.Hour))
	api.On("Refresh", mock.Anything, "r1").Return(&models.TokenPair{Access: access, Refresh: "r2"}, nil).Once()

	src, current, err := m.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, session.ID, current.ID)

	tok, err := src.Token(ctx)
	require.NoError(t, err)
	require.Equal(t, access, tok.Access)

	stored, err := store.GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, "r2", stored.RefreshToken)
	api.AssertExpectations(t)
}

func TestRejectedRefreshIsUnauthorized(t *testing.T) {
	api := new(MockAuthenticator)
	store := newStore(t)
	m := NewManager(store, api)
	ctx := context.Background()

	session := &models.Session{UserID: 5, Username: "ana", RefreshToken: "stale"}
	require.NoError(t, store.Create(ctx, session))

	api.On("Refresh", mock.Anything, "stale").Return(nil, &apiclient.APIError{StatusCode: http.StatusUnauthorized})

	_, err := m.Token(ctx, session.ID)
	require.True(t, errors.Is(err, apiclient.ErrUnauthorized))
}

func TestCurrentWithoutSession(t *testing.T) {
	m := NewManager(newStore(t), new(MockAuthenticator))
	_, _, err := m.Current(context.Background())
	require.True(t, errors.Is(err, apiclient.ErrUnauthorized))
}

func TestLogoutDropsSession(t *testing.T) {
	api := new(MockAuthenticator)
	store := newStore(t)
	m := NewManager(store, api)
	ctx := context.Background()

	session := &models.Session{UserID: 5, Username: "ana", RefreshToken: "r"}
	require.NoError(t, store.Create(ctx, session))
	require.NoError(t, m.Logout(ctx, session.ID))

	_, err := m.Token(ctx, session.ID)
	require.True(t, errors.Is(err, apiclient.ErrUnauthorized))
}

func TestSlowRefreshDoesNotBlockOtherSessions(t *testing.T) {
	api := new(MockAuthenticator)
	store := newStore(t)
	m := NewManager(store, api)
	ctx := context.Background()

	creds := models.Credentials{Username: "ana", Password: "secret"}
	cachedAccess := signAccess(t, 5, time.Now().Add(time.Hour))
	api.On("Login", mock.Anything, creds).Return(&models.TokenPair{Access: cachedAccess, Refresh: "ra"}, nil)
	sessionA, _, err := m.Login(ctx, creds)
	require.NoError(t, err)

	sessionB := &models.Session{UserID: 6, Username: "luis", RefreshToken: "rb"}
	require.NoError(t, store.Create(ctx, sessionB))

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	refreshed := signAccess(t, 6, time.Now().Add(time.Hour))
	api.On("Refresh", mock.Anything, "rb").
		Run(func(mock.Arguments) {
			once.Do(func() { close(started) })
			<-release
		}).
		Return(&models.TokenPair{Access: refreshed}, nil)

	var wg sync.WaitGroup
	tokens := make([]apiclient.Token, 2)
	errs := make([]error, 2)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = m.Token(ctx, sessionB.ID)
		}(i)
	}
	<-started

	begin := time.Now()
	tok, err := m.Token(ctx, sessionA.ID)
	require.NoError(t, err)
	require.Equal(t, cachedAccess, tok.Access)
	require.Less(t, time.Since(begin), 500*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := range tokens {
		require.NoError(t, errs[i])
		require.Equal(t, refreshed, tokens[i].Access)
		require.Equal(t, 6, tokens[i].UserID)
	}
	api.AssertNumberOfCalls(t, "Refresh", 1)
}
