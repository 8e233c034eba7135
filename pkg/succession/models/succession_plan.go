package models

import (
	"time"

	"gorm.io/gorm"
)

// Readiness levels commonly used for incumbents. The column is an open string.
const (
	ReadinessReadyNow     = "Ready Now"
	ReadinessOneToTwo     = "1-2 years"
	ReadinessThreeToFive  = "3-5 years"
	DefaultReadinessLevel = ReadinessOneToTwo
)

// SuccessionPlan records the incumbent of a role and how ready the
// organization is to replace them
type SuccessionPlan struct {
	ID                  uint           `gorm:"primarykey" json:"id"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`
	RoleID              uint           `gorm:"not null;index" json:"role_id"`
	IncumbentName       string         `gorm:"size:100;not null" json:"incumbent_name"`
	IncumbentEmployeeID string         `gorm:"size:50;not null" json:"incumbent_employee_id"`
	IncumbentTenure     int            `gorm:"not null" json:"incumbent_tenure"` // months
	RetirementDate      *time.Time     `json:"retirement_date"`
	ReadinessLevel      string         `gorm:"size:20;not null" json:"readiness_level"`

	// Relationships
	Role       Role        `gorm:"foreignKey:RoleID" json:"-"`
	Candidates []Candidate `gorm:"foreignKey:SuccessionPlanID" json:"-"`
}

// Candidate is a potential successor attached to a plan
type Candidate struct {
	ID               uint           `gorm:"primarykey" json:"id"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
	SuccessionPlanID uint           `gorm:"not null;index" json:"succession_plan_id"`
	Name             string         `gorm:"size:100;not null" json:"name"`
	EmployeeID       string         `gorm:"size:50;not null" json:"employee_id"`
	CurrentRole      string         `gorm:"size:100;not null" json:"current_role"`
	ExperienceYears  float64        `gorm:"not null" json:"experience_years"`
	ReadinessScore   int            `gorm:"not null" json:"readiness_score"` // 1-10
	DevelopmentPlan  string         `gorm:"type:text" json:"development_plan"`
}

// Readiness score bounds for candidates
const (
	MinReadinessScore = 1
	MaxReadinessScore = 10
)
