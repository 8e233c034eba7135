package audit

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/succession/pkg/succession/logging"
	"github.com/mikepea/succession/pkg/succession/models"
	"github.com/mikepea/succession/pkg/succession/permissions"
)

// Action verbs recorded in the audit trail
const (
	ActionCreate                = "CREATE"
	ActionUpdate                = "UPDATE"
	ActionDelete                = "DELETE"
	ActionApproveAccessRequest  = "APPROVE_ACCESS_REQUEST"
	ActionRejectAccessRequest   = "REJECT_ACCESS_REQUEST"
	ActionPasswordResetRequest  = "PASSWORD_RESET_REQUEST"
	ActionPasswordResetComplete = "PASSWORD_RESET_COMPLETE"
	ActionImport                = "IMPORT"
)

// Table names recorded in the audit trail
const (
	TableUsers           = "users"
	TableAccessRequests  = "access_requests"
	TableRoles           = "roles"
	TableSuccessionPlans = "succession_plans"
	TableCandidates      = "candidates"
	TableHistoricalData  = "historical_data"
	TablePasswordResets  = "password_resets"
	TableImports         = "imports"
)

// Entry describes one state change. Actor name and email are copied so the
// entry stays legible after the actor is deleted.
type Entry struct {
	ActorID    *uint
	ActorName  string
	ActorEmail string
	Action     string
	Table      string
	RecordID   *uint
	OldValues  any
	NewValues  any
	Info       string
	IPAddress  string
	UserAgent  string
	RequestID  string
	Timestamp  time.Time
}

// NewEntry starts an entry for the authenticated actor of c
func NewEntry(c *gin.Context, action, table string, recordID uint) Entry {
	e := Entry{
		Action:    action,
		Table:     table,
		Timestamp: time.Now().UTC(),
	}
	if recordID != 0 {
		e.RecordID = &recordID
	}
	if c == nil {
		return e
	}
	if a := permissions.GetActor(c); a != nil {
		id := a.ID
		e.ActorID = &id
		e.ActorName = a.Name
		e.ActorEmail = a.Email
	}
	if c.Request != nil {
		e.IPAddress = c.ClientIP()
		e.UserAgent = c.Request.UserAgent()
		e.RequestID = logging.GetRequestID(c)
	}
	return e
}

// By sets the actor from a user record, for flows without a bearer token
func (e Entry) By(u *models.User) Entry {
	id := u.ID
	e.ActorID = &id
	e.ActorName = u.Name
	e.ActorEmail = u.Email
	return e
}

// Before sets the snapshot prior to the change
func (e Entry) Before(v any) Entry {
	e.OldValues = v
	return e
}

// After sets the snapshot following the change
func (e Entry) After(v any) Entry {
	e.NewValues = v
	return e
}

// Note sets the free-text additional info
func (e Entry) Note(info string) Entry {
	e.Info = info
	return e
}
