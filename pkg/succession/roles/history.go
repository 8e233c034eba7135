package roles

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/succession/pkg/succession/apierror"
	"github.com/mikepea/succession/pkg/succession/audit"
	"github.com/mikepea/succession/pkg/succession/models"
)

// HistoryRequest records a past movement in a role
type HistoryRequest struct {
	ActionType   string `json:"action_type"`
	FromEmployee string `json:"from_employee"`
	ToEmployee   string `json:"to_employee"`
	ActionDate   string `json:"action_date"` // YYYY-MM-DD
	Notes        string `json:"notes"`
}

// HistoryResponse represents a historical record in API responses
type HistoryResponse struct {
	ID           uint   `json:"id"`
	RoleID       uint   `json:"role_id"`
	ActionType   string `json:"action_type"`
	FromEmployee string `json:"from_employee"`
	ToEmployee   string `json:"to_employee"`
	ActionDate   string `json:"action_date"`
	Notes        string `json:"notes"`
	CreatedAt    string `json:"created_at"`
}

func historyToResponse(h models.HistoricalData) HistoryResponse {
	return HistoryResponse{
		ID:           h.ID,
		RoleID:       h.RoleID,
		ActionType:   h.ActionType,
		FromEmployee: h.FromEmployee,
		ToEmployee:   h.ToEmployee,
		ActionDate:   h.ActionDate.Format("2006-01-02"),
		Notes:        h.Notes,
		CreatedAt:    h.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// ListHistory returns the movements recorded for a role, newest first
// @Summary List role history
// @Tags roles
// @Produce json
// @Param id path int true "Role ID"
// @Success 200 {array} HistoryResponse
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /roles/{id}/history [get]
func (h *Handler) ListHistory(c *gin.Context) {
	role, ok := h.find(c)
	if !ok {
		return
	}

	var records []models.HistoricalData
	if err := h.db.Where("role_id = ?", role.ID).Order("action_date DESC, id DESC").Find(&records).Error; err != nil {
		apierror.Internal(c, err, "Failed to fetch role history")
		return
	}

	response := make([]HistoryResponse, len(records))
	for i, r := range records {
		response[i] = historyToResponse(r)
	}
	c.JSON(http.StatusOK, response)
}

// AddHistory appends a movement to a role's history. Records are never
// updated or deleted.
// @Summary Record role history
// @Tags roles
// @Accept json
// @Produce json
// @Param id path int true "Role ID"
// @Param request body HistoryRequest true "Movement"
// @Success 201 {object} HistoryResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /roles/{id}/history [post]
func (h *Handler) AddHistory(c *gin.Context) {
	role, ok := h.find(c)
	if !ok {
		return
	}

	var req HistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.BadRequest(c, "Invalid request body")
		return
	}

	if !models.ValidActionType(req.ActionType) {
		apierror.BadRequest(c, "action_type must be one of Succession, Promotion, Transfer")
		return
	}
	if strings.TrimSpace(req.ActionDate) == "" {
		apierror.BadRequest(c, "action_date is required")
		return
	}
	actionDate, err := time.Parse("2006-01-02", strings.TrimSpace(req.ActionDate))
	if err != nil {
		apierror.BadRequest(c, "action_date must be formatted YYYY-MM-DD")
		return
	}

	record := models.HistoricalData{
		RoleID:       role.ID,
		ActionType:   req.ActionType,
		FromEmployee: strings.TrimSpace(req.FromEmployee),
		ToEmployee:   strings.TrimSpace(req.ToEmployee),
		ActionDate:   actionDate,
		Notes:        req.Notes,
	}
	if err := h.db.Create(&record).Error; err != nil {
		apierror.Internal(c, err, "Failed to record role history")
		return
	}

	h.recorder.Record(c.Request.Context(), audit.NewEntry(c, audit.ActionCreate, audit.TableHistoricalData, record.ID).
		After(historyToResponse(record)).
		Note("History recorded for role " + role.Title))

	c.JSON(http.StatusCreated, historyToResponse(record))
}
