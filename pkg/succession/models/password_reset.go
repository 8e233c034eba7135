package models

import "time"

// PasswordReset is a single-use token for resetting a forgotten password
type PasswordReset struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Token     string    `gorm:"size:255;uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	Used      bool      `gorm:"not null;default:false" json:"used"`

	// Relationships
	User User `gorm:"foreignKey:UserID" json:"-"`
}
