package models

import "time"

// AuditLog is an append-only record of a state change. UserID is nulled
// when the acting user is deleted; UserName and UserEmail keep the actor
// legible afterwards.
type AuditLog struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	UserID         *uint     `gorm:"index" json:"user_id"`
	UserName       string    `gorm:"size:100;not null" json:"user_name"`
	UserEmail      string    `gorm:"size:120;not null" json:"user_email"`
	Action         string    `gorm:"size:50;not null;index" json:"action"`
	Table          string    `gorm:"column:table_name;size:50;not null;index" json:"table_name"`
	RecordID       *uint     `json:"record_id"`
	OldValues      *string   `gorm:"type:text" json:"-"`
	NewValues      *string   `gorm:"type:text" json:"-"`
	IPAddress      string    `gorm:"size:45" json:"ip_address"`
	UserAgent      string    `gorm:"type:text" json:"user_agent"`
	RequestID      string    `gorm:"size:64" json:"request_id"`
	Timestamp      time.Time `gorm:"not null;index" json:"timestamp"`
	AdditionalInfo string    `gorm:"type:text" json:"additional_info"`
}
