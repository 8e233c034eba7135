package models

import "time"

// UserStatus is the lifecycle state of a user account
type UserStatus string

const (
	UserStatusPending  UserStatus = "pending"
	UserStatusApproved UserStatus = "approved"
	UserStatusRejected UserStatus = "rejected"
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
)

// Valid reports whether s is one of the known statuses
func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusPending, UserStatusApproved, UserStatusRejected, UserStatusActive, UserStatusInactive:
		return true
	}
	return false
}

// DefaultUserRole is assigned when registration or import gives no role
const DefaultUserRole = "user"

// User represents an account. Users are hard-deleted; their audit history
// survives through the denormalized actor fields on AuditLog.
type User struct {
	ID           uint       `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Name         string     `gorm:"size:100;not null" json:"name"`
	Email        string     `gorm:"size:120;uniqueIndex;not null" json:"email"`
	PasswordHash string     `gorm:"not null" json:"-"`
	Role         string     `gorm:"size:50;not null;default:'user'" json:"role"`
	Department   string     `gorm:"size:50;not null;index" json:"department"`
	Status       UserStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	GlobalScope  bool       `gorm:"not null;default:false" json:"global_scope"` // Sees every department
	ApprovedAt   *time.Time `json:"approved_at"`
	ApprovedByID *uint      `gorm:"column:approved_by" json:"approved_by"`

	// Relationships
	ApprovedBy     *User           `gorm:"foreignKey:ApprovedByID" json:"-"`
	AccessRequests []AccessRequest `gorm:"foreignKey:UserID" json:"-"`
}
