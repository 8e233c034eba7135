package accessrequests

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/succession/pkg/succession/apierror"
	"github.com/mikepea/succession/pkg/succession/audit"
	"github.com/mikepea/succession/pkg/succession/models"
	"github.com/mikepea/succession/pkg/succession/permissions"
	"gorm.io/gorm"
)

// Handler handles access request endpoints
type Handler struct {
	db       *gorm.DB
	service  *Service
	recorder audit.Recorder
}

// NewHandler creates a new access request handler
func NewHandler(db *gorm.DB, service *Service, recorder audit.Recorder) *Handler {
	return &Handler{db: db, service: service, recorder: recorder}
}

// RejectRequest carries an optional rejection reason
type RejectRequest struct {
	RejectionReason string `json:"rejection_reason"`
}

// AccessRequestResponse represents an access request in API responses
type AccessRequestResponse struct {
	ID              uint    `json:"id"`
	UserID          uint    `json:"user_id"`
	UserName        string  `json:"user_name"`
	UserEmail       string  `json:"user_email"`
	Department      string  `json:"department"`
	RequestedRole   string  `json:"requested_role"`
	RequestReason   string  `json:"request_reason"`
	Status          string  `json:"status"`
	HRApproverID    *uint   `json:"hr_approver_id"`
	HRApproverName  *string `json:"hr_approver_name"`
	ApprovedAt      *string `json:"approved_at"`
	RejectedAt      *string `json:"rejected_at"`
	RejectionReason string  `json:"rejection_reason"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

// DecisionResponse is returned after approve or reject
type DecisionResponse struct {
	Message   string `json:"message"`
	RequestID uint   `json:"request_id"`
	UserEmail string `json:"user_email"`
}

// DepartmentStats counts requests by status for one department
type DepartmentStats struct {
	Department string `json:"department"`
	Total      int64  `json:"total"`
	Pending    int64  `json:"pending"`
	Approved   int64  `json:"approved"`
	Rejected   int64  `json:"rejected"`
}

// StatsResponse summarizes access requests visible to the caller
type StatsResponse struct {
	TotalRequests    int64             `json:"total_requests"`
	PendingRequests  int64             `json:"pending_requests"`
	ApprovedRequests int64             `json:"approved_requests"`
	RejectedRequests int64             `json:"rejected_requests"`
	DepartmentStats  []DepartmentStats `json:"department_stats"`
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format("2006-01-02T15:04:05Z")
	return &s
}

func requestToResponse(r models.AccessRequest) AccessRequestResponse {
	resp := AccessRequestResponse{
		ID:              r.ID,
		UserID:          r.UserID,
		UserName:        "Unknown User",
		UserEmail:       "Unknown Email",
		Department:      r.Department,
		RequestedRole:   r.RequestedRole,
		RequestReason:   r.RequestReason,
		Status:          string(r.Status),
		HRApproverID:    r.HRApproverID,
		ApprovedAt:      formatTime(r.ApprovedAt),
		RejectedAt:      formatTime(r.RejectedAt),
		RejectionReason: r.RejectionReason,
		CreatedAt:       r.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:       r.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
	if r.User.ID != 0 {
		resp.UserName = r.User.Name
		resp.UserEmail = r.User.Email
	}
	if r.HRApprover != nil {
		resp.HRApproverName = &r.HRApprover.Name
	}
	return resp
}

// List returns access requests visible to the caller
// @Summary List access requests
// @Description HR users see requests of their own department; other users see their own requests
// @Tags access-requests
// @Produce json
// @Success 200 {array} AccessRequestResponse
// @Security BearerAuth
// @Router /access-requests [get]
func (h *Handler) List(c *gin.Context) {
	actor := permissions.GetActor(c)

	query := h.db.Preload("User").Preload("HRApprover").Order("created_at DESC")
	if actor.Can(permissions.HRAccess) {
		if !actor.HasGlobalScope() {
			query = query.Where("department = ?", actor.Department)
		}
	} else {
		query = query.Where("user_id = ?", actor.ID)
	}

	var requests []models.AccessRequest
	if err := query.Find(&requests).Error; err != nil {
		apierror.Internal(c, err, "Failed to fetch access requests")
		return
	}

	response := make([]AccessRequestResponse, len(requests))
	for i, r := range requests {
		response[i] = requestToResponse(r)
	}
	c.JSON(http.StatusOK, response)
}

func (h *Handler) decisionError(c *gin.Context, err error, verb string) {
	switch {
	case errors.Is(err, ErrNotFound):
		apierror.NotFound(c, "Access request not found")
	case errors.Is(err, ErrForbidden):
		apierror.Forbidden(c, fmt.Sprintf("Access denied. You can only %s requests from your department.", verb))
	case errors.Is(err, ErrAlreadyProcessed):
		apierror.Conflict(c, "Access request already processed")
	default:
		apierror.Internal(c, err, "Failed to "+verb+" access request")
	}
}

// Approve approves a pending access request
// @Summary Approve access request
// @Description Activate the requesting user. The approver must belong to the request's department.
// @Tags access-requests
// @Produce json
// @Param id path int true "Access request ID"
// @Success 200 {object} DecisionResponse
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string "Already processed"
// @Security BearerAuth
// @Router /access-requests/{id}/approve [post]
func (h *Handler) Approve(c *gin.Context) {
	id, ok := apierror.ParamID(c, "id", "Invalid access request ID")
	if !ok {
		return
	}

	d, err := h.service.Approve(c.Request.Context(), id, permissions.GetActor(c))
	if err != nil {
		h.decisionError(c, err, "approve")
		return
	}

	h.recorder.Record(c.Request.Context(), audit.NewEntry(c, audit.ActionApproveAccessRequest, audit.TableAccessRequests, d.Request.ID).
		Before(gin.H{"status": models.AccessRequestPending}).
		After(gin.H{"status": d.Request.Status, "hr_approver_id": d.Request.HRApproverID}).
		Note("Approved access request for user " + d.User.Email))

	c.JSON(http.StatusOK, DecisionResponse{
		Message:   "Access request approved successfully",
		RequestID: d.Request.ID,
		UserEmail: d.User.Email,
	})
}

// Reject rejects a pending access request
// @Summary Reject access request
// @Description Reject the requesting user. The approver must belong to the request's department.
// @Tags access-requests
// @Accept json
// @Produce json
// @Param id path int true "Access request ID"
// @Param request body RejectRequest false "Rejection reason"
// @Success 200 {object} DecisionResponse
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string "Already processed"
// @Security BearerAuth
// @Router /access-requests/{id}/reject [post]
func (h *Handler) Reject(c *gin.Context) {
	id, ok := apierror.ParamID(c, "id", "Invalid access request ID")
	if !ok {
		return
	}

	var req RejectRequest
	if !apierror.BindOptionalJSON(c, &req) {
		return
	}

	d, err := h.service.Reject(c.Request.Context(), id, permissions.GetActor(c), strings.TrimSpace(req.RejectionReason))
	if err != nil {
		h.decisionError(c, err, "reject")
		return
	}

	h.recorder.Record(c.Request.Context(), audit.NewEntry(c, audit.ActionRejectAccessRequest, audit.TableAccessRequests, d.Request.ID).
		Before(gin.H{"status": models.AccessRequestPending}).
		After(gin.H{"status": d.Request.Status, "rejection_reason": d.Request.RejectionReason}).
		Note("Rejected access request for user " + d.User.Email))

	c.JSON(http.StatusOK, DecisionResponse{
		Message:   "Access request rejected successfully",
		RequestID: d.Request.ID,
		UserEmail: d.User.Email,
	})
}

// Stats counts access requests in the caller's department
// @Summary Access request statistics
// @Tags access-requests
// @Produce json
// @Success 200 {object} StatsResponse
// @Failure 403 {object} map[string]string
// @Security BearerAuth
// @Router /access-requests/stats [get]
func (h *Handler) Stats(c *gin.Context) {
	actor := permissions.GetActor(c)

	var rows []struct {
		Status string
		Total  int64
	}
	if err := h.db.Model(&models.AccessRequest{}).
		Select("status, COUNT(*) AS total").
		Where("department = ?", actor.Department).
		Group("status").
		Scan(&rows).Error; err != nil {
		apierror.Internal(c, err, "Failed to fetch access request statistics")
		return
	}

	dept := DepartmentStats{Department: actor.Department}
	for _, r := range rows {
		dept.Total += r.Total
		switch models.AccessRequestStatus(r.Status) {
		case models.AccessRequestPending:
			dept.Pending = r.Total
		case models.AccessRequestApproved:
			dept.Approved = r.Total
		case models.AccessRequestRejected:
			dept.Rejected = r.Total
		}
	}

	c.JSON(http.StatusOK, StatsResponse{
		TotalRequests:    dept.Total,
		PendingRequests:  dept.Pending,
		ApprovedRequests: dept.Approved,
		RejectedRequests: dept.Rejected,
		DepartmentStats:  []DepartmentStats{dept},
	})
}

// RegisterRoutes registers access request routes. Callers must already be
// authenticated.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	requests := rg.Group("/access-requests")
	requests.GET("", h.List)
	requests.GET("/stats", permissions.RequireCapability(permissions.HRAccess, "Access denied. HR access required to view statistics."), h.Stats)
	requests.POST("/:id/approve", permissions.RequireCapability(permissions.HRAccess, "Access denied. HR access required to approve requests."), h.Approve)
	requests.POST("/:id/reject", permissions.RequireCapability(permissions.HRAccess, "Access denied. HR access required to reject requests."), h.Reject)
}
