package models

import (
	"time"
)

// ProfileMirror is a local snapshot of user data from the profile
// service, populated by the profile sync worker. The battle service
// reads it for display names (lobby preview, result resolution) and
// never writes it back upstream.
type ProfileMirror struct {
	ID             string    `gorm:"primaryKey;type:uuid;not null" json:"id"`
	ExternalUserID string    `gorm:"type:uuid;uniqueIndex;not null" json:"external_user_id"`
	Username       string    `gorm:"index;not null" json:"username"`
	DisplayName    string    `gorm:"not null" json:"display_name"`
	AvatarURL      *string   `json:"avatar_url,omitempty"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null;index" json:"updated_at"`
}

func (ProfileMirror) TableName() string { return "profile_mirror" }
