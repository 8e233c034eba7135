package models

import (
	"time"

	"gorm.io/gorm"
)

// Criticality levels for organizational roles
const (
	CriticalityHigh   = "High"
	CriticalityMedium = "Medium"
	CriticalityLow    = "Low"
)

// ValidCriticality reports whether c is a known criticality level
func ValidCriticality(c string) bool {
	return c == CriticalityHigh || c == CriticalityMedium || c == CriticalityLow
}

// Role represents an organizational position that can be succession-planned.
// Not to be confused with User.Role, which is the account's permission role.
type Role struct {
	ID           uint           `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	Title        string         `gorm:"size:100;not null;index" json:"title"`
	Name         string         `gorm:"size:100;not null" json:"name"`
	Level        string         `gorm:"size:20" json:"level"` // N-1, N-2, ...
	Department   string         `gorm:"size:50;not null;index" json:"department"`
	BusinessLine string         `gorm:"size:50;not null" json:"business_line"`
	Criticality  string         `gorm:"size:20;not null" json:"criticality"`

	// Relationships
	SuccessionPlans []SuccessionPlan `gorm:"foreignKey:RoleID" json:"-"`
}
