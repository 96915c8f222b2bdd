package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session keeps the refresh token of a signed in operator. It is the only
// state the console persists.
type Session struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       int       `gorm:"not null;index" json:"user_id"`
	Username     string    `gorm:"not null" json:"username"`
	RefreshToken string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName pins the table name
func (Session) TableName() string {
	return "sessions"
}

// BeforeCreate assigns an ID when none was set
func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// SetupModels runs the schema migration for persisted models
func SetupModels(db *gorm.DB) error {
	return db.AutoMigrate(&Session{})
}
