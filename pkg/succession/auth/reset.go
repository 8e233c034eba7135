package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/mikepea/succession/pkg/succession/models"
	"gorm.io/gorm"
)

var (
	ErrInvalidResetToken = errors.New("invalid or expired reset token")
	ErrExpiredResetToken = errors.New("reset token has expired")
)

const resetTokenBytes = 32

// ResetService issues and consumes single-use password reset tokens
type ResetService struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// NewResetService creates a reset service whose tokens live for ttl
func NewResetService(db *gorm.DB, ttl time.Duration) *ResetService {
	return &ResetService{db: db, ttl: ttl, now: time.Now}
}

func generateResetToken() (string, error) {
	b := make([]byte, resetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Issue creates a new token for user, invalidating any unused ones
func (s *ResetService) Issue(user *models.User) (*models.PasswordReset, error) {
	token, err := generateResetToken()
	if err != nil {
		return nil, err
	}
	reset := &models.PasswordReset{
		UserID:    user.ID,
		Token:     token,
		ExpiresAt: s.now().UTC().Add(s.ttl),
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND used = ?", user.ID, false).Delete(&models.PasswordReset{}).Error; err != nil {
			return err
		}
		return tx.Create(reset).Error
	})
	if err != nil {
		return nil, err
	}
	return reset, nil
}

func (s *ResetService) find(tx *gorm.DB, token string) (*models.PasswordReset, error) {
	if token == "" {
		return nil, ErrInvalidResetToken
	}
	var reset models.PasswordReset
	if err := tx.Where("token = ? AND used = ?", token, false).First(&reset).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidResetToken
		}
		return nil, err
	}
	if s.now().After(reset.ExpiresAt) {
		return nil, ErrExpiredResetToken
	}
	return &reset, nil
}

// Validate reports whether token is unused and unexpired
func (s *ResetService) Validate(token string) (*models.PasswordReset, error) {
	return s.find(s.db, token)
}

// Consume sets a new password using token. The token check, password update,
// marking the token used and removing sibling tokens commit together.
func (s *ResetService) Consume(token, newPassword string) (*models.User, error) {
	var user models.User
	err := s.db.Transaction(func(tx *gorm.DB) error {
		reset, err := s.find(tx, token)
		if err != nil {
			return err
		}
		if err := ValidatePasswordStrength(newPassword); err != nil {
			return err
		}
		if err := tx.First(&user, reset.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidResetToken
			}
			return err
		}

		hash, err := HashPassword(newPassword)
		if err != nil {
			return err
		}
		if err := tx.Model(&user).Update("password_hash", hash).Error; err != nil {
			return err
		}

		// Guard against a concurrent consume of the same token
		result := tx.Model(&models.PasswordReset{}).
			Where("id = ? AND used = ?", reset.ID, false).
			Update("used", true)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return ErrInvalidResetToken
		}

		return tx.Where("user_id = ? AND used = ?", user.ID, false).Delete(&models.PasswordReset{}).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}
