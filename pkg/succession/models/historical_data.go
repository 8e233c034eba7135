package models

import "time"

// Historical action types
const (
	ActionTypeSuccession = "Succession"
	ActionTypePromotion  = "Promotion"
	ActionTypeTransfer   = "Transfer"
)

// ValidActionType reports whether t is a known historical action type
func ValidActionType(t string) bool {
	return t == ActionTypeSuccession || t == ActionTypePromotion || t == ActionTypeTransfer
}

// HistoricalData is an append-only record of a past movement in a role
type HistoricalData struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	RoleID       uint      `gorm:"not null;index" json:"role_id"`
	ActionType   string    `gorm:"size:50;not null" json:"action_type"`
	FromEmployee string    `gorm:"size:100" json:"from_employee"`
	ToEmployee   string    `gorm:"size:100" json:"to_employee"`
	ActionDate   time.Time `gorm:"not null;index" json:"action_date"`
	Notes        string    `gorm:"type:text" json:"notes"`
}

// TableName keeps the plural-less name used by the rest of the schema
func (HistoricalData) TableName() string {
	return "historical_data"
}
