package models

import (
	"time"

	"gorm.io/gorm"
)

// DiggerUser is a local snapshot of user data needed by the dig engine.
// Owned and managed solely by this service; populated via sync worker from
// the profile service. ResolveUser runs against this mirror.
type DiggerUser struct {
	ID             string    `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string    `gorm:"uniqueIndex;not null" json:"external_user_id"`
	Username       string    `gorm:"uniqueIndex;not null" json:"username"`
	Email          string    `json:"email,omitempty"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	IsBanned bool `json:"is_banned" gorm:"default:false"` // local dig ban

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
