package plans

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/succession/pkg/succession/apierror"
	"github.com/mikepea/succession/pkg/succession/audit"
	"github.com/mikepea/succession/pkg/succession/models"
	"github.com/mikepea/succession/pkg/succession/permissions"
	"gorm.io/gorm"
)

const (
	msgViewDenied       = "Access denied. HR access required to view succession plans."
	msgManageDenied     = "Access denied. HR access required to manage succession plans."
	msgDepartmentDenied = "Access denied. You can only manage succession plans for your department."
	unknownRole         = "Unknown Role"
)

var requiredPlanFields = []string{"role_id", "incumbent_name", "incumbent_employee_id", "incumbent_tenure", "readiness_level"}

// Handler handles succession plan and candidate requests
type Handler struct {
	db       *gorm.DB
	recorder audit.Recorder
}

// NewHandler creates a new succession plan handler
func NewHandler(db *gorm.DB, recorder audit.Recorder) *Handler {
	return &Handler{db: db, recorder: recorder}
}

// PlanResponse represents a succession plan in API responses
type PlanResponse struct {
	ID                  uint    `json:"id"`
	RoleID              uint    `json:"role_id"`
	RoleTitle           string  `json:"role_title"`
	IncumbentName       string  `json:"incumbent_name"`
	IncumbentEmployeeID string  `json:"incumbent_employee_id"`
	IncumbentTenure     int     `json:"incumbent_tenure"`
	RetirementDate      *string `json:"retirement_date"`
	ReadinessLevel      string  `json:"readiness_level"`
	CandidateCount      int64   `json:"candidate_count"`
	CreatedAt           string  `json:"created_at"`
	UpdatedAt           string  `json:"updated_at"`
}

func planToResponse(p models.SuccessionPlan, candidates int64) PlanResponse {
	title := unknownRole
	if p.Role.ID != 0 {
		title = p.Role.Title
	}
	return PlanResponse{
		ID:                  p.ID,
		RoleID:              p.RoleID,
		RoleTitle:           title,
		IncumbentName:       p.IncumbentName,
		IncumbentEmployeeID: p.IncumbentEmployeeID,
		IncumbentTenure:     p.IncumbentTenure,
		RetirementDate:      formatDate(p.RetirementDate),
		ReadinessLevel:      p.ReadinessLevel,
		CandidateCount:      candidates,
		CreatedAt:           p.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:           p.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func planSnapshot(p models.SuccessionPlan) gin.H {
	return gin.H{
		"role_id":               p.RoleID,
		"incumbent_name":        p.IncumbentName,
		"incumbent_employee_id": p.IncumbentEmployeeID,
		"incumbent_tenure":      p.IncumbentTenure,
		"retirement_date":       formatDate(p.RetirementDate),
		"readiness_level":       p.ReadinessLevel,
	}
}

// candidateCounts returns the live candidate count per plan
func (h *Handler) candidateCounts(planIDs []uint) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(planIDs))
	if len(planIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		PlanID uint
		Total  int64
	}
	err := h.db.Model(&models.Candidate{}).
		Select("succession_plan_id AS plan_id, COUNT(*) AS total").
		Where("succession_plan_id IN ?", planIDs).
		Group("succession_plan_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		counts[r.PlanID] = r.Total
	}
	return counts, nil
}

// writableRole loads the role a plan is attached to and checks that the
// actor may manage plans for it. It writes the error response itself.
func (h *Handler) writableRole(c *gin.Context, roleID uint) (*models.Role, bool) {
	var role models.Role
	if err := h.db.First(&role, roleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			apierror.NotFound(c, "Role not found")
		} else {
			apierror.Internal(c, err, "Failed to fetch role")
		}
		return nil, false
	}
	if !permissions.GetActor(c).CanSeeDepartment(role.Department) {
		apierror.Forbidden(c, msgDepartmentDenied)
		return nil, false
	}
	return &role, true
}

// loadPlan fetches the plan named by the id parameter. Plans whose role is
// outside the actor's department are reported as missing.
func (h *Handler) loadPlan(c *gin.Context) (*models.SuccessionPlan, bool) {
	id, ok := apierror.ParamID(c, "id", "Invalid succession plan ID")
	if !ok {
		return nil, false
	}
	var plan models.SuccessionPlan
	if err := h.db.Preload("Role").First(&plan, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			apierror.NotFound(c, "Succession plan not found")
		} else {
			apierror.Internal(c, err, "Failed to fetch succession plan")
		}
		return nil, false
	}
	actor := permissions.GetActor(c)
	if !actor.HasGlobalScope() && (plan.Role.ID == 0 || plan.Role.Department != actor.Department) {
		apierror.NotFound(c, "Succession plan not found")
		return nil, false
	}
	return &plan, true
}

// List returns the succession plans visible to the caller
// @Summary List succession plans
// @Description Plans for roles in the caller's department, or all plans with global scope
// @Tags succession-plans
// @Produce json
// @Success 200 {array} PlanResponse
// @Failure 403 {object} map[string]string
// @Security BearerAuth
// @Router /succession-plans [get]
func (h *Handler) List(c *gin.Context) {
	actor := permissions.GetActor(c)

	query := h.db.Preload("Role").Order("succession_plans.id")
	if !actor.HasGlobalScope() {
		query = query.
			Joins("JOIN roles ON roles.id = succession_plans.role_id AND roles.deleted_at IS NULL").
			Where("roles.department = ?", actor.Department)
	}

	var plans []models.SuccessionPlan
	if err := query.Find(&plans).Error; err != nil {
		apierror.Internal(c, err, "Failed to fetch succession plans")
		return
	}

	ids := make([]uint, len(plans))
	for i, p := range plans {
		ids[i] = p.ID
	}
	counts, err := h.candidateCounts(ids)
	if err != nil {
		apierror.Internal(c, err, "Failed to fetch succession plans")
		return
	}

	response := make([]PlanResponse, len(plans))
	for i, p := range plans {
		response[i] = planToResponse(p, counts[p.ID])
	}
	c.JSON(http.StatusOK, response)
}

// Get returns a single succession plan
// @Summary Get succession plan
// @Tags succession-plans
// @Produce json
// @Param id path int true "Plan ID"
// @Success 200 {object} PlanResponse
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /succession-plans/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	plan, ok := h.loadPlan(c)
	if !ok {
		return
	}
	counts, err := h.candidateCounts([]uint{plan.ID})
	if err != nil {
		apierror.Internal(c, err, "Failed to fetch succession plan")
		return
	}
	c.JSON(http.StatusOK, planToResponse(*plan, counts[plan.ID]))
}

// Create adds a succession plan to a role
// @Summary Create succession plan
// @Tags succession-plans
// @Accept json
// @Produce json
// @Param request body object true "role_id, incumbent_name, incumbent_employee_id, incumbent_tenure, readiness_level, retirement_date"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /succession-plans [post]
func (h *Handler) Create(c *gin.Context) {
	var f fields
	if err := c.ShouldBindJSON(&f); err != nil {
		apierror.BadRequest(c, "Invalid request body")
		return
	}

	if missing := f.missing(requiredPlanFields...); len(missing) > 0 {
		apierror.BadRequest(c, "Missing fields: "+strings.Join(missing, ", "))
		return
	}
	roleID, err := f.integer("role_id")
	if err != nil || roleID <= 0 {
		apierror.BadRequest(c, "role_id must be a positive integer")
		return
	}
	tenure, err := f.integer("incumbent_tenure")
	if err != nil {
		apierror.BadRequest(c, err.Error())
		return
	}
	if tenure < 0 {
		apierror.BadRequest(c, "incumbent_tenure must not be negative")
		return
	}

	role, ok := h.writableRole(c, uint(roleID))
	if !ok {
		return
	}

	plan := models.SuccessionPlan{
		RoleID:              role.ID,
		IncumbentName:       f.text("incumbent_name"),
		IncumbentEmployeeID: f.text("incumbent_employee_id"),
		IncumbentTenure:     tenure,
		RetirementDate:      ParseOptionalDate(f.text("retirement_date")),
		ReadinessLevel:      f.text("readiness_level"),
	}
	if err := h.db.Create(&plan).Error; err != nil {
		apierror.Internal(c, err, "Failed to create succession plan")
		return
	}

	h.recorder.Record(c.Request.Context(), audit.NewEntry(c, audit.ActionCreate, audit.TableSuccessionPlans, plan.ID).
		After(planSnapshot(plan)).
		Note("Succession plan creation"))

	c.JSON(http.StatusCreated, gin.H{"message": "Succession plan created successfully", "id": plan.ID})
}

// Update changes the fields present in the request body
// @Summary Update succession plan
// @Tags succession-plans
// @Accept json
// @Produce json
// @Param id path int true "Plan ID"
// @Param request body object true "Fields to change"
// @Success 200 {object} PlanResponse
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /succession-plans/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	plan, ok := h.loadPlan(c)
	if !ok {
		return
	}

	var f fields
	if err := c.ShouldBindJSON(&f); err != nil {
		apierror.BadRequest(c, "Invalid request body")
		return
	}

	before := planSnapshot(*plan)
	updates := make(map[string]interface{})

	if f.has("role_id") {
		roleID, err := f.integer("role_id")
		if err != nil || roleID <= 0 {
			apierror.BadRequest(c, "role_id must be a positive integer")
			return
		}
		if _, ok := h.writableRole(c, uint(roleID)); !ok {
			return
		}
		updates["role_id"] = uint(roleID)
	}
	for _, key := range []string{"incumbent_name", "incumbent_employee_id", "readiness_level"} {
		if !f.has(key) {
			continue
		}
		v := f.text(key)
		if v == "" {
			apierror.BadRequest(c, key+" cannot be empty")
			return
		}
		updates[key] = v
	}
	if f.has("incumbent_tenure") {
		tenure, err := f.integer("incumbent_tenure")
		if err != nil {
			apierror.BadRequest(c, err.Error())
			return
		}
		if tenure < 0 {
			apierror.BadRequest(c, "incumbent_tenure must not be negative")
			return
		}
		updates["incumbent_tenure"] = tenure
	}
	if f.has("retirement_date") {
		updates["retirement_date"] = ParseOptionalDate(f.text("retirement_date"))
	}

	if len(updates) > 0 {
		if err := h.db.Model(&models.SuccessionPlan{}).Where("id = ?", plan.ID).Updates(updates).Error; err != nil {
			apierror.Internal(c, err, "Failed to update succession plan")
			return
		}
	}

	var updated models.SuccessionPlan
	if err := h.db.Preload("Role").First(&updated, plan.ID).Error; err != nil {
		apierror.Internal(c, err, "Failed to fetch succession plan")
		return
	}
	counts, err := h.candidateCounts([]uint{updated.ID})
	if err != nil {
		apierror.Internal(c, err, "Failed to fetch succession plan")
		return
	}

	if len(updates) > 0 {
		h.recorder.Record(c.Request.Context(), audit.NewEntry(c, audit.ActionUpdate, audit.TableSuccessionPlans, plan.ID).
			Before(before).
			After(planSnapshot(updated)).
			Note("Succession plan update"))
	}

	c.JSON(http.StatusOK, planToResponse(updated, counts[updated.ID]))
}

// Delete soft-deletes a plan and its candidates
// @Summary Delete succession plan
// @Tags succession-plans
// @Produce json
// @Param id path int true "Plan ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /succession-plans/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	plan, ok := h.loadPlan(c)
	if !ok {
		return
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("succession_plan_id = ?", plan.ID).Delete(&models.Candidate{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.SuccessionPlan{}, plan.ID).Error
	})
	if err != nil {
		apierror.Internal(c, err, "Failed to delete succession plan")
		return
	}

	h.recorder.Record(c.Request.Context(), audit.NewEntry(c, audit.ActionDelete, audit.TableSuccessionPlans, plan.ID).
		Before(planSnapshot(*plan)).
		Note("Succession plan deletion"))

	c.JSON(http.StatusOK, gin.H{"message": "Succession plan deleted successfully"})
}

// RegisterRoutes registers succession plan routes. Callers must already be
// authenticated.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	view := permissions.RequireCapability(permissions.HRAccess, msgViewDenied)
	manage := permissions.RequireCapability(permissions.HRAccess, msgManageDenied)

	plans := rg.Group("/succession-plans")
	plans.GET("", view, h.List)
	plans.GET("/:id", view, h.Get)
	plans.POST("", manage, h.Create)
	plans.PUT("/:id", manage, h.Update)
	plans.DELETE("/:id", manage, h.Delete)

	plans.GET("/:id/candidates", view, h.ListCandidates)
	plans.POST("/:id/candidates", manage, h.AddCandidate)
	plans.PUT("/:id/candidates/:candidateId", manage, h.UpdateCandidate)
	plans.DELETE("/:id/candidates/:candidateId", manage, h.RemoveCandidate)
}
