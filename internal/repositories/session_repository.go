package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/agchavez/interlace/internal/models"
)

// ErrSessionNotFound is returned when no session matches
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository persists operator sessions
type SessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create stores a new session
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return errors.Wrap(err, "failed to create session")
	}
	return nil
}

// GetByID gets a session by ID
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	var session models.Session
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, errors.Wrap(err, "failed to get session by ID")
	}
	return &session, nil
}

// Latest returns the most recently used session, the one CLI commands act as
func (r *SessionRepository) Latest(ctx context.Context) (*models.Session, error) {
	var session models.Session
	err := r.db.WithContext(ctx).Order("updated_at DESC").First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, errors.Wrap(err, "failed to get latest session")
	}
	return &session, nil
}

// UpdateRefreshToken stores a rotated refresh token
func (r *SessionRepository) UpdateRefreshToken(ctx context.Context, id uuid.UUID, refreshToken string) error {
	res := r.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ?", id).
		Update("refresh_token", refreshToken)
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to update refresh token")
	}
	if res.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Delete removes a session
func (r *SessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Session{}).Error; err != nil {
		return errors.Wrap(err, "failed to delete session")
	}
	return nil
}

// DeleteAll removes every stored session
func (r *SessionRepository) DeleteAll(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Where("1 = 1").Delete(&models.Session{})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "failed to delete sessions")
	}
	return res.RowsAffected, nil
}
