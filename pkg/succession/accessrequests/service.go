package accessrequests

import (
	"context"
	"errors"
	"time"

	"github.com/mikepea/succession/pkg/succession/models"
	"github.com/mikepea/succession/pkg/succession/permissions"
	"gorm.io/gorm"
)

var (
	ErrNotFound         = errors.New("access request not found")
	ErrForbidden        = errors.New("approver is not in the request's department")
	ErrAlreadyProcessed = errors.New("access request already processed")
)

// DefaultRejectionReason is recorded when the approver gives none
const DefaultRejectionReason = "No reason provided"

// Service moves access requests from pending to approved or rejected. Each
// transition updates the request and its user in one transaction.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService creates an access request service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// Decision is the outcome of a transition
type Decision struct {
	Request models.AccessRequest
	User    models.User
}

// Approve activates the request's user. Approval authority is limited to
// the approver's own department, whatever their other privileges.
func (s *Service) Approve(ctx context.Context, requestID uint, approver *permissions.Actor) (*Decision, error) {
	now := s.now().UTC()
	return s.decide(ctx, requestID, approver,
		map[string]any{
			"status":         models.AccessRequestApproved,
			"hr_approver_id": approverID(approver),
			"approved_at":    now,
			"updated_at":     now,
		},
		map[string]any{
			"status":      models.UserStatusActive,
			"approved_at": now,
			"approved_by": approverID(approver),
			"updated_at":  now,
		},
	)
}

// Reject marks the request and its user rejected
func (s *Service) Reject(ctx context.Context, requestID uint, approver *permissions.Actor, reason string) (*Decision, error) {
	if reason == "" {
		reason = DefaultRejectionReason
	}
	now := s.now().UTC()
	return s.decide(ctx, requestID, approver,
		map[string]any{
			"status":           models.AccessRequestRejected,
			"hr_approver_id":   approverID(approver),
			"rejected_at":      now,
			"rejection_reason": reason,
			"updated_at":       now,
		},
		map[string]any{
			"status":     models.UserStatusRejected,
			"updated_at": now,
		},
	)
}

func approverID(a *permissions.Actor) uint {
	if a == nil {
		return 0
	}
	return a.ID
}

func (s *Service) decide(ctx context.Context, requestID uint, approver *permissions.Actor, requestUpdates, userUpdates map[string]any) (*Decision, error) {
	var d Decision
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&d.Request, requestID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if approver == nil || approver.Department != d.Request.Department {
			return ErrForbidden
		}
		if d.Request.Status != models.AccessRequestPending {
			return ErrAlreadyProcessed
		}

		// Only a pending request may move; a concurrent decision loses here
		result := tx.Model(&models.AccessRequest{}).
			Where("id = ? AND status = ?", d.Request.ID, models.AccessRequestPending).
			Updates(requestUpdates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return ErrAlreadyProcessed
		}

		result = tx.Model(&models.User{}).Where("id = ?", d.Request.UserID).Updates(userUpdates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return ErrNotFound
		}

		if err := tx.First(&d.Request, d.Request.ID).Error; err != nil {
			return err
		}
		return tx.First(&d.User, d.Request.UserID).Error
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}
