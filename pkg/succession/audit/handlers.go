package audit

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/succession/pkg/succession/apierror"
	"github.com/mikepea/succession/pkg/succession/models"
	"github.com/mikepea/succession/pkg/succession/permissions"
	"gorm.io/gorm"
)

const (
	defaultPerPage = 50
	maxPerPage     = 100
	dateLayout     = "2006-01-02"
)

// Handler serves the read side of the audit trail
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new audit trail handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// LogResponse is one audit trail row
type LogResponse struct {
	ID             uint            `json:"id"`
	UserID         *uint           `json:"user_id"`
	UserName       string          `json:"user_name"`
	UserEmail      string          `json:"user_email"`
	Action         string          `json:"action"`
	TableName      string          `json:"table_name"`
	RecordID       *uint           `json:"record_id"`
	OldValues      json.RawMessage `json:"old_values" swaggertype:"object"`
	NewValues      json.RawMessage `json:"new_values" swaggertype:"object"`
	IPAddress      string          `json:"ip_address"`
	UserAgent      string          `json:"user_agent"`
	RequestID      string          `json:"request_id"`
	Timestamp      string          `json:"timestamp"`
	AdditionalInfo string          `json:"additional_info"`
}

// Pagination describes the page returned by List
type Pagination struct {
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
	Total   int64 `json:"total"`
	Pages   int   `json:"pages"`
	HasNext bool  `json:"has_next"`
	HasPrev bool  `json:"has_prev"`
}

// ListResponse is the audit trail page
type ListResponse struct {
	AuditLogs  []LogResponse `json:"audit_logs"`
	Pagination Pagination    `json:"pagination"`
}

func rawSnapshot(s *string) json.RawMessage {
	if s == nil || *s == "" {
		return json.RawMessage("null")
	}
	return json.RawMessage(*s)
}

func logToResponse(l models.AuditLog) LogResponse {
	return LogResponse{
		ID:             l.ID,
		UserID:         l.UserID,
		UserName:       l.UserName,
		UserEmail:      l.UserEmail,
		Action:         l.Action,
		TableName:      l.Table,
		RecordID:       l.RecordID,
		OldValues:      rawSnapshot(l.OldValues),
		NewValues:      rawSnapshot(l.NewValues),
		IPAddress:      l.IPAddress,
		UserAgent:      l.UserAgent,
		RequestID:      l.RequestID,
		Timestamp:      l.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
		AdditionalInfo: l.AdditionalInfo,
	}
}

// positiveQueryInt reads a positive integer query parameter, falling back to def
func positiveQueryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 1 {
		return def
	}
	return v
}

// List returns the filtered audit trail, newest first
// @Summary List audit trail
// @Description Paginated audit entries filtered by action, table, actor and date range
// @Tags audit
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Page size, capped at 100" default(50)
// @Param action query string false "Exact action"
// @Param table query string false "Exact table name"
// @Param user query string false "Actor name or email substring"
// @Param date_from query string false "Inclusive start date (YYYY-MM-DD)"
// @Param date_to query string false "Inclusive end date (YYYY-MM-DD)"
// @Success 200 {object} ListResponse
// @Failure 403 {object} map[string]string
// @Security BearerAuth
// @Router /audit-trail [get]
func (h *Handler) List(c *gin.Context) {
	page := positiveQueryInt(c, "page", 1)
	perPage := positiveQueryInt(c, "per_page", defaultPerPage)
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	query := h.db.Model(&models.AuditLog{})
	if action := c.Query("action"); action != "" {
		query = query.Where("action = ?", action)
	}
	if table := c.Query("table"); table != "" {
		query = query.Where("table_name = ?", table)
	}
	if user := strings.TrimSpace(c.Query("user")); user != "" {
		pattern := "%" + strings.ToLower(user) + "%"
		query = query.Where("LOWER(user_name) LIKE ? OR LOWER(user_email) LIKE ?", pattern, pattern)
	}
	// Malformed dates are ignored
	if from, err := time.Parse(dateLayout, c.Query("date_from")); err == nil {
		query = query.Where("timestamp >= ?", from)
	}
	if to, err := time.Parse(dateLayout, c.Query("date_to")); err == nil {
		query = query.Where("timestamp < ?", to.AddDate(0, 0, 1))
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		apierror.Internal(c, err, "Failed to fetch audit trail")
		return
	}

	var logs []models.AuditLog
	if err := query.Order("timestamp DESC").Order("id DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&logs).Error; err != nil {
		apierror.Internal(c, err, "Failed to fetch audit trail")
		return
	}

	response := ListResponse{
		AuditLogs: make([]LogResponse, len(logs)),
		Pagination: Pagination{
			Page:    page,
			PerPage: perPage,
			Total:   total,
			Pages:   int((total + int64(perPage) - 1) / int64(perPage)),
		},
	}
	for i, l := range logs {
		response.AuditLogs[i] = logToResponse(l)
	}
	response.Pagination.HasNext = page < response.Pagination.Pages
	response.Pagination.HasPrev = page > 1

	c.JSON(http.StatusOK, response)
}

// SummaryResponse holds audit trail statistics
type SummaryResponse struct {
	TotalActions   int64            `json:"total_actions"`
	ActionsByType  []map[string]any `json:"actions_by_type"`
	ActionsByTable []map[string]any `json:"actions_by_table"`
	ActionsByUser  []map[string]any `json:"actions_by_user"`
	RecentActivity []map[string]any `json:"recent_activity"`
}

type groupCount struct {
	Bucket string
	Total  int64
}

func (h *Handler) groupBy(column string, limit int) ([]groupCount, error) {
	var rows []groupCount
	q := h.db.Model(&models.AuditLog{}).
		Select(column + " AS bucket, COUNT(*) AS total").
		Group(column).
		Order("total DESC").Order(column)
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Scan(&rows).Error
	return rows, err
}

func buckets(rows []groupCount, label string) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = map[string]any{label: r.Bucket, "count": r.Total}
	}
	return out
}

// Summary returns aggregate statistics over the audit trail
// @Summary Audit trail summary
// @Description Totals by action, table and actor, plus the last seven days of activity
// @Tags audit
// @Produce json
// @Success 200 {object} SummaryResponse
// @Failure 403 {object} map[string]string
// @Security BearerAuth
// @Router /audit-trail/summary [get]
func (h *Handler) Summary(c *gin.Context) {
	var response SummaryResponse
	if err := h.db.Model(&models.AuditLog{}).Count(&response.TotalActions).Error; err != nil {
		apierror.Internal(c, err, "Failed to fetch audit summary")
		return
	}

	byAction, err := h.groupBy("action", 0)
	if err != nil {
		apierror.Internal(c, err, "Failed to fetch audit summary")
		return
	}
	byTable, err := h.groupBy("table_name", 0)
	if err != nil {
		apierror.Internal(c, err, "Failed to fetch audit summary")
		return
	}
	byUser, err := h.groupBy("user_name", 10)
	if err != nil {
		apierror.Internal(c, err, "Failed to fetch audit summary")
		return
	}
	response.ActionsByType = buckets(byAction, "action")
	response.ActionsByTable = buckets(byTable, "table")
	response.ActionsByUser = buckets(byUser, "user")

	// Days are bucketed here rather than with a SQL date function so the
	// query is the same on sqlite and postgres
	var stamps []time.Time
	weekAgo := time.Now().UTC().AddDate(0, 0, -7)
	if err := h.db.Model(&models.AuditLog{}).Where("timestamp >= ?", weekAgo).
		Pluck("timestamp", &stamps).Error; err != nil {
		apierror.Internal(c, err, "Failed to fetch audit summary")
		return
	}
	perDay := make(map[string]int64)
	for _, ts := range stamps {
		perDay[ts.UTC().Format(dateLayout)]++
	}
	days := make([]string, 0, len(perDay))
	for d := range perDay {
		days = append(days, d)
	}
	sort.Strings(days)
	response.RecentActivity = make([]map[string]any, len(days))
	for i, d := range days {
		response.RecentActivity[i] = map[string]any{"date": d, "count": perDay[d]}
	}

	c.JSON(http.StatusOK, response)
}

// RegisterRoutes registers audit trail routes. Callers must already be
// authenticated.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	trail := rg.Group("/audit-trail", permissions.RequireCapability(permissions.HRAccess, "Access denied. HR access required to view audit trail."))
	trail.GET("", h.List)
	trail.GET("/summary", h.Summary)
}
