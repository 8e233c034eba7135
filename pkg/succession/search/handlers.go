package search

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/succession/pkg/succession/apierror"
	"github.com/mikepea/succession/pkg/succession/models"
	"github.com/mikepea/succession/pkg/succession/permissions"
	"gorm.io/gorm"
)

// Limit caps the results per entity type
const Limit = 10

// Result types
const (
	TypeRole           = "role"
	TypeSuccessionPlan = "succession_plan"
)

// Handler handles search requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new search handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// Result is a single search hit. Department is set for roles and
// Incumbent for succession plans.
type Result struct {
	Type       string `json:"type"`
	ID         uint   `json:"id"`
	Title      string `json:"title"`
	Department string `json:"department,omitempty"`
	Incumbent  string `json:"incumbent,omitempty"`
}

// likePattern builds a case-insensitive substring pattern, escaping the
// LIKE wildcards in q
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + strings.ToLower(r.Replace(q)) + "%"
}

// Search matches roles and, for HR users, succession plans
// @Summary Search
// @Description Substring match over role title, department and business line; succession plans are included for HR users
// @Tags search
// @Produce json
// @Param q query string true "Search text"
// @Success 200 {array} Result
// @Security BearerAuth
// @Router /search [get]
func (h *Handler) Search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusOK, []Result{})
		return
	}
	pattern := likePattern(q)

	var roles []models.Role
	if err := h.db.
		Where(`LOWER(title) LIKE ? ESCAPE '\' OR LOWER(department) LIKE ? ESCAPE '\' OR LOWER(business_line) LIKE ? ESCAPE '\'`, pattern, pattern, pattern).
		Order("id").
		Limit(Limit).
		Find(&roles).Error; err != nil {
		apierror.Internal(c, err, "Search failed")
		return
	}

	results := make([]Result, 0, len(roles))
	for _, r := range roles {
		results = append(results, Result{Type: TypeRole, ID: r.ID, Title: r.Title, Department: r.Department})
	}

	if actor := permissions.GetActor(c); actor.Can(permissions.HRAccess) {
		query := h.db.Preload("Role").
			Where(`LOWER(incumbent_name) LIKE ? ESCAPE '\' OR LOWER(incumbent_employee_id) LIKE ? ESCAPE '\'`, pattern, pattern)
		if !actor.HasGlobalScope() {
			query = query.
				Joins("JOIN roles ON roles.id = succession_plans.role_id AND roles.deleted_at IS NULL").
				Where("roles.department = ?", actor.Department)
		}
		var plans []models.SuccessionPlan
		if err := query.
			Order("succession_plans.id").
			Limit(Limit).
			Find(&plans).Error; err != nil {
			apierror.Internal(c, err, "Search failed")
			return
		}
		for _, p := range plans {
			title := "Unknown Role"
			if p.Role.ID != 0 {
				title = p.Role.Title
			}
			results = append(results, Result{
				Type:      TypeSuccessionPlan,
				ID:        p.ID,
				Title:     fmt.Sprintf("Succession Plan for %s", title),
				Incumbent: p.IncumbentName,
			})
		}
	}

	c.JSON(http.StatusOK, results)
}

// RegisterRoutes registers the search route. Callers must already be
// authenticated.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/search", h.Search)
}
