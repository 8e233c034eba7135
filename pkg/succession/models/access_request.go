package models

import "time"

// AccessRequestStatus is the state of an access request.
// pending is the only non-terminal state.
type AccessRequestStatus string

const (
	AccessRequestPending  AccessRequestStatus = "pending"
	AccessRequestApproved AccessRequestStatus = "approved"
	AccessRequestRejected AccessRequestStatus = "rejected"
)

// DefaultRequestReason is recorded when a registrant gives no reason
const DefaultRequestReason = "New user registration"

// AccessRequest pairs a self-registered user with the approval decision
// of an HR approver from the same department
type AccessRequest struct {
	ID              uint                `gorm:"primarykey" json:"id"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	UserID          uint                `gorm:"not null;index" json:"user_id"`
	Department      string              `gorm:"size:50;not null;index" json:"department"`
	RequestedRole   string              `gorm:"size:50;not null;default:'user'" json:"requested_role"`
	RequestReason   string              `gorm:"type:text" json:"request_reason"`
	Status          AccessRequestStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	HRApproverID    *uint               `json:"hr_approver_id"`
	ApprovedAt      *time.Time          `json:"approved_at"`
	RejectedAt      *time.Time          `json:"rejected_at"`
	RejectionReason string              `gorm:"type:text" json:"rejection_reason"`

	// Relationships
	User       User  `gorm:"foreignKey:UserID" json:"-"`
	HRApprover *User `gorm:"foreignKey:HRApproverID" json:"-"`
}
