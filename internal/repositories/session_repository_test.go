package repositories

import (
	"context"
	"fmt"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/agchavez/interlace/internal/models"
)

func setupSessionRepository(t *testing.T) *SessionRepository {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, models.SetupModels(db))

	return NewSessionRepository(db)
}

func TestSessionLifecycle(t *testing.T) {
	repo := setupSessionRepository(t)
	ctx := context.Background()

	session := &models.Session{UserID: 5, Username: "ana", RefreshToken: "r1"}
	require.NoError(t, repo.Create(ctx, session))
	require.NotEqual(t, uuid.Nil, session.ID)

	got, err := repo.GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, "ana", got.Username)
	require.Equal(t, "r1", got.RefreshToken)

	require.NoError(t, repo.UpdateRefreshToken(ctx, session.ID, "r2"))
	got, err = repo.GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, "r2", got.RefreshToken)

	require.NoError(t, repo.Delete(ctx, session.ID))
	_, err = repo.GetByID(ctx, session.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestUpdateUnknownSession(t *testing.T) {
	repo := setupSessionRepository(t)
	err := repo.UpdateRefreshToken(context.Background(), uuid.New(), "r")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestLatestSession(t *testing.T) {
	repo := setupSessionRepository(t)
	ctx := context.Background()

	_, err := repo.Latest(ctx)
	require.ErrorIs(t, err, ErrSessionNotFound)

	older := &models.Session{UserID: 1, Username: "old", RefreshToken: "a"}
	require.NoError(t, repo.Create(ctx, older))
	time.Sleep(10 * time.Millisecond)
	newer := &models.Session{UserID: 2, Username: "new", RefreshToken: "b"}
	require.NoError(t, repo.Create(ctx, newer))

	latest, err := repo.Latest(ctx)
	require.NoError(t, err)
	require.Equal(t, newer.ID, latest.ID)

	n, err := repo.DeleteAll(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}
