package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mikepea/succession/pkg/succession/models"
	"gorm.io/gorm"
)

// Sink persists audit rows
type Sink interface {
	Write(ctx context.Context, log *models.AuditLog) error
}

// Store writes audit rows through gorm on a session detached from any
// caller transaction
type Store struct {
	db *gorm.DB
}

// NewStore creates a gorm-backed sink
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Write appends one row
func (s *Store) Write(ctx context.Context, log *models.AuditLog) error {
	return s.db.Session(&gorm.Session{NewDB: true, Context: ctx}).Create(log).Error
}

// ToLog converts an entry into its persisted form
func ToLog(e Entry) (*models.AuditLog, error) {
	log := &models.AuditLog{
		UserID:         e.ActorID,
		UserName:       e.ActorName,
		UserEmail:      e.ActorEmail,
		Action:         e.Action,
		Table:          e.Table,
		RecordID:       e.RecordID,
		IPAddress:      e.IPAddress,
		UserAgent:      e.UserAgent,
		RequestID:      e.RequestID,
		Timestamp:      e.Timestamp,
		AdditionalInfo: e.Info,
	}
	if log.Timestamp.IsZero() {
		log.Timestamp = time.Now().UTC()
	}
	if log.UserName == "" {
		log.UserName = "system"
	}

	var err error
	if log.OldValues, err = marshalSnapshot(e.OldValues); err != nil {
		return nil, err
	}
	if log.NewValues, err = marshalSnapshot(e.NewValues); err != nil {
		return nil, err
	}
	return log, nil
}

func marshalSnapshot(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}
