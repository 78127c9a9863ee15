package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification is an in-app message addressed to a single user. Metadata
// carries event-specific context (team id, invite id) for client deep links.
type Notification struct {
	BaseModel

	UserID string `gorm:"type:uuid;index" json:"user_id"`

	Type      string         `gorm:"type:varchar(64);not null" json:"type"`
	Title     string         `gorm:"type:varchar(255);not null" json:"title"`
	Message   string         `gorm:"type:text" json:"message"`
	Severity  string         `gorm:"type:varchar(32);default:'info'" json:"severity"`
	ActionURL string         `gorm:"type:text" json:"action_url"`
	Metadata  datatypes.JSON `json:"metadata"`

	IsRead bool       `gorm:"default:false;index" json:"is_read"`
	ReadAt *time.Time `json:"read_at"`
}
