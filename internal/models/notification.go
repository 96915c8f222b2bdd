package models

import (
	"encoding/json"
	"time"
)

// Notification is a server pushed message for the signed in user
type Notification struct {
	ID          int             `json:"id"`
	Module      string          `json:"module"`
	Type        string          `json:"type"`
	Title       string          `json:"title"`
	Subtitle    string          `json:"subtitle"`
	Description string          `json:"description"`
	Payload     json.RawMessage `json:"json,omitempty"`
	Read        bool            `json:"read"`
	URL         string          `json:"url,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
