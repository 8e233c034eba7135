package analytics

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/succession/pkg/succession/apierror"
	"github.com/mikepea/succession/pkg/succession/models"
	"gorm.io/gorm"
)

// TrendMonths is the width of the trends window
const TrendMonths = 12

// Handler serves aggregate views over roles, plans and history
type Handler struct {
	db  *gorm.DB
	now func() time.Time
}

// NewHandler creates a new analytics handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db, now: time.Now}
}

// DepartmentCount is the number of roles in a department
type DepartmentCount struct {
	Department string `json:"department"`
	Count      int64  `json:"count"`
}

// CriticalityCount is the number of roles at a criticality level
type CriticalityCount struct {
	Criticality string `json:"criticality"`
	Count       int64  `json:"count"`
}

// ReadinessCount is the number of plans at a readiness level
type ReadinessCount struct {
	Readiness string `json:"readiness"`
	Count     int64  `json:"count"`
}

// DemographicsResponse groups roles and plans by their main attributes
type DemographicsResponse struct {
	DepartmentDistribution  []DepartmentCount  `json:"department_distribution"`
	CriticalityDistribution []CriticalityCount `json:"criticality_distribution"`
	ReadinessDistribution   []ReadinessCount   `json:"readiness_distribution"`
}

// TrendPoint is the number of historical actions in one month
type TrendPoint struct {
	Month string `json:"month"` // YYYY-MM
	Count int64  `json:"count"`
}

// SummaryResponse carries the dashboard totals
type SummaryResponse struct {
	TotalRoles          int64 `json:"total_roles"`
	CriticalRoles       int64 `json:"critical_roles"`
	RolesWithoutPlan    int64 `json:"roles_without_plan"`
	TotalPlans          int64 `json:"total_plans"`
	ReadyNowPlans       int64 `json:"ready_now_plans"`
	TotalCandidates     int64 `json:"total_candidates"`
	UpcomingRetirements int64 `json:"upcoming_retirements"`
	PendingRequests     int64 `json:"pending_requests"`
}

type bucket struct {
	Bucket string
	Total  int64
}

func (h *Handler) groupBy(model interface{}, column string) ([]bucket, error) {
	var rows []bucket
	err := h.db.Model(model).
		Select(column + " AS bucket, COUNT(*) AS total").
		Group(column).
		Order(column).
		Scan(&rows).Error
	return rows, err
}

// Demographics returns role and plan distributions
// @Summary Demographics
// @Description Roles by department and criticality, plans by readiness level
// @Tags analytics
// @Produce json
// @Success 200 {object} DemographicsResponse
// @Security BearerAuth
// @Router /analytics/demographics [get]
func (h *Handler) Demographics(c *gin.Context) {
	departments, err := h.groupBy(&models.Role{}, "department")
	if err != nil {
		apierror.Internal(c, err, "Failed to compute demographics")
		return
	}
	criticality, err := h.groupBy(&models.Role{}, "criticality")
	if err != nil {
		apierror.Internal(c, err, "Failed to compute demographics")
		return
	}
	readiness, err := h.groupBy(&models.SuccessionPlan{}, "readiness_level")
	if err != nil {
		apierror.Internal(c, err, "Failed to compute demographics")
		return
	}

	resp := DemographicsResponse{
		DepartmentDistribution:  make([]DepartmentCount, len(departments)),
		CriticalityDistribution: make([]CriticalityCount, len(criticality)),
		ReadinessDistribution:   make([]ReadinessCount, len(readiness)),
	}
	for i, b := range departments {
		resp.DepartmentDistribution[i] = DepartmentCount{Department: b.Bucket, Count: b.Total}
	}
	for i, b := range criticality {
		resp.CriticalityDistribution[i] = CriticalityCount{Criticality: b.Bucket, Count: b.Total}
	}
	for i, b := range readiness {
		resp.ReadinessDistribution[i] = ReadinessCount{Readiness: b.Bucket, Count: b.Total}
	}
	c.JSON(http.StatusOK, resp)
}

// Trends counts historical actions per month over the last twelve months.
// Months are bucketed in Go; date_trunc is postgres-only.
// @Summary Trends
// @Tags analytics
// @Produce json
// @Success 200 {array} TrendPoint
// @Security BearerAuth
// @Router /analytics/trends [get]
func (h *Handler) Trends(c *gin.Context) {
	now := h.now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(TrendMonths - 1), 0)

	var dates []time.Time
	if err := h.db.Model(&models.HistoricalData{}).
		Where("action_date >= ?", start).
		Pluck("action_date", &dates).Error; err != nil {
		apierror.Internal(c, err, "Failed to compute trends")
		return
	}

	counts := make(map[string]int64)
	for _, d := range dates {
		counts[d.UTC().Format("2006-01")]++
	}

	months := make([]string, 0, len(counts))
	for m := range counts {
		months = append(months, m)
	}
	sort.Strings(months)

	trends := make([]TrendPoint, len(months))
	for i, m := range months {
		trends[i] = TrendPoint{Month: m, Count: counts[m]}
	}
	c.JSON(http.StatusOK, trends)
}

// Summary returns the dashboard totals
// @Summary Dashboard summary
// @Tags analytics
// @Produce json
// @Success 200 {object} SummaryResponse
// @Security BearerAuth
// @Router /analytics/summary [get]
func (h *Handler) Summary(c *gin.Context) {
	var resp SummaryResponse
	now := h.now().UTC()

	counts := []struct {
		dest  *int64
		query *gorm.DB
	}{
		{&resp.TotalRoles, h.db.Model(&models.Role{})},
		{&resp.CriticalRoles, h.db.Model(&models.Role{}).Where("criticality = ?", models.CriticalityHigh)},
		{&resp.RolesWithoutPlan, h.db.Model(&models.Role{}).
			Where("NOT EXISTS (SELECT 1 FROM succession_plans WHERE succession_plans.role_id = roles.id AND succession_plans.deleted_at IS NULL)")},
		{&resp.TotalPlans, h.db.Model(&models.SuccessionPlan{})},
		{&resp.ReadyNowPlans, h.db.Model(&models.SuccessionPlan{}).Where("readiness_level = ?", models.ReadinessReadyNow)},
		{&resp.TotalCandidates, h.db.Model(&models.Candidate{})},
		{&resp.UpcomingRetirements, h.db.Model(&models.SuccessionPlan{}).
			Where("retirement_date IS NOT NULL AND retirement_date >= ? AND retirement_date < ?", now, now.AddDate(1, 0, 0))},
		{&resp.PendingRequests, h.db.Model(&models.AccessRequest{}).Where("status = ?", models.AccessRequestPending)},
	}
	for _, q := range counts {
		if err := q.query.Count(q.dest).Error; err != nil {
			apierror.Internal(c, err, "Failed to compute summary")
			return
		}
	}

	c.JSON(http.StatusOK, resp)
}

// RegisterRoutes registers analytics routes. Callers must already be
// authenticated.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	analytics := rg.Group("/analytics")
	analytics.GET("/demographics", h.Demographics)
	analytics.GET("/trends", h.Trends)
	analytics.GET("/summary", h.Summary)
}
