package roles

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

// ErrRoleInUse is returned when deleting a role that plans or history still reference
var ErrRoleInUse = errors.New("role is referenced by succession plans or history")

// Handler handles organizational role requests
type Handler struct {
	db       *gorm.DB
	recorder audit.Recorder
}

// NewHandler creates a new roles handler
func NewHandler(db *gorm.DB, recorder audit.Recorder) *Handler {
	return &Handler{db: db, recorder: recorder}
}

// CreateRoleRequest represents the request to create a role
type CreateRoleRequest struct {
	Title        string `json:"title"`
	Name         string `json:"name"`
	Level        string `json:"level"`
	Department   string `json:"department"`
	BusinessLine string `json:"business_line"`
	Criticality  string `json:"criticality"`
}

// UpdateRoleRequest represents the request to update a role. Absent fields
// are left unchanged.
type UpdateRoleRequest struct {
	Title        *string `json:"title"`
	Name         *string `json:"name"`
	Level        *string `json:"level"`
	Department   *string `json:"department"`
	BusinessLine *string `json:"business_line"`
	Criticality  *string `json:"criticality"`
}

// RoleResponse represents a role in API responses
type RoleResponse struct {
	ID           uint   `json:"id"`
	Title        string `json:"title"`
	Name         string `json:"name"`
	Level        string `json:"level"`
	Department   string `json:"department"`
	BusinessLine string `json:"business_line"`
	Criticality  string `json:"criticality"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

func roleToResponse(r models.Role) RoleResponse {
	return RoleResponse{
		ID:           r.ID,
		Title:        r.Title,
		Name:         r.Name,
		Level:        r.Level,
		Department:   r.Department,
		BusinessLine: r.BusinessLine,
		Criticality:  r.Criticality,
		CreatedAt:    r.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:    r.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func snapshot(r models.Role) gin.H {
	return gin.H{
		"title":         r.Title,
		"name":          r.Name,
		"level":         r.Level,
		"department":    r.Department,
		"business_line": r.BusinessLine,
		"criticality":   r.Criticality,
	}
}

// validate checks the fields every stored role must carry
func validate(r models.Role) string {
	switch {
	case r.Title == "":
		return "Title is required"
	case r.Department == "":
		return "Department is required"
	case r.BusinessLine == "":
		return "Business line is required"
	case !models.ValidCriticality(r.Criticality):
		return "Criticality must be one of High, Medium, Low"
	}
	return ""
}

func (h *Handler) find(c *gin.Context) (*models.Role, bool) {
	id, ok := apierror.ParamID(c, "id", "Invalid role ID")
	if !ok {
		return nil, false
	}
	var role models.Role
	if err := h.db.First(&role, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			apierror.NotFound(c, "Role not found")
		} else {
			apierror.Internal(c, err, "Failed to fetch role")
		}
		return nil, false
	}
	return &role, true
}

// List returns all roles
// @Summary List roles
// @Tags roles
// @Produce json
// @Param department query string false "Filter by department"
// @Param criticality query string false "Filter by criticality"
// @Success 200 {array} RoleResponse
// @Security BearerAuth
// @Router /roles [get]
func (h *Handler) List(c *gin.Context) {
	query := h.db.Order("id")
	if department := c.Query("department"); department != "" {
		query = query.Where("department = ?", department)
	}
	if criticality := c.Query("criticality"); criticality != "" {
		query = query.Where("criticality = ?", criticality)
	}

	var roles []models.Role
	if err := query.Find(&roles).Error; err != nil {
		apierror.Internal(c, err, "Failed to fetch roles")
		return
	}

	response := make([]RoleResponse, len(roles))
	for i, r := range roles {
		response[i] = roleToResponse(r)
	}
	c.JSON(http.StatusOK, response)
}

// Get returns a single role
// @Summary Get role
// @Tags roles
// @Produce json
// @Param id path int true "Role ID"
// @Success 200 {object} RoleResponse
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /roles/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	role, ok := h.find(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, roleToResponse(*role))
}

// Create adds a role
// @Summary Create role
// @Tags roles
// @Accept json
// @Produce json
// @Param request body CreateRoleRequest true "Role"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /roles [post]
func (h *Handler) Create(c *gin.Context) {
	var req CreateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.BadRequest(c, "Invalid request body")
		return
	}

	role := models.Role{
		Title:        strings.TrimSpace(req.Title),
		Name:         strings.TrimSpace(req.Name),
		Level:        strings.TrimSpace(req.Level),
		Department:   strings.TrimSpace(req.Department),
		BusinessLine: strings.TrimSpace(req.BusinessLine),
		Criticality:  strings.TrimSpace(req.Criticality),
	}
	if role.Name == "" {
		role.Name = role.Title
	}
	if msg := validate(role); msg != "" {
		apierror.BadRequest(c, msg)
		return
	}

	if err := h.db.Create(&role).Error; err != nil {
		apierror.Internal(c, err, "Failed to create role")
		return
	}

	h.recorder.Record(c.Request.Context(), audit.NewEntry(c, audit.ActionCreate, audit.TableRoles, role.ID).
		After(snapshot(role)).
		Note("Role creation"))

	c.JSON(http.StatusCreated, gin.H{"message": "Role created successfully", "id": role.ID})
}

// Update changes a role
// @Summary Update role
// @Tags roles
// @Accept json
// @Produce json
// @Param id path int true "Role ID"
// @Param request body UpdateRoleRequest true "Fields to change"
// @Success 200 {object} RoleResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /roles/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	role, ok := h.find(c)
	if !ok {
		return
	}

	var req UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.BadRequest(c, "Invalid request body")
		return
	}

	before := snapshot(*role)
	merged := *role
	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	apply(&merged.Title, req.Title)
	apply(&merged.Name, req.Name)
	apply(&merged.Level, req.Level)
	apply(&merged.Department, req.Department)
	apply(&merged.BusinessLine, req.BusinessLine)
	apply(&merged.Criticality, req.Criticality)
	if merged.Name == "" {
		merged.Name = merged.Title
	}
	if msg := validate(merged); msg != "" {
		apierror.BadRequest(c, msg)
		return
	}

	if err := h.db.Model(role).Updates(map[string]interface{}{
		"title":         merged.Title,
		"name":          merged.Name,
		"level":         merged.Level,
		"department":    merged.Department,
		"business_line": merged.BusinessLine,
		"criticality":   merged.Criticality,
	}).Error; err != nil {
		apierror.Internal(c, err, "Failed to update role")
		return
	}
	if err := h.db.First(role, role.ID).Error; err != nil {
		apierror.Internal(c, err, "Failed to fetch role")
		return
	}

	h.recorder.Record(c.Request.Context(), audit.NewEntry(c, audit.ActionUpdate, audit.TableRoles, role.ID).
		Before(before).
		After(snapshot(*role)).
		Note("Role update"))

	c.JSON(http.StatusOK, roleToResponse(*role))
}

// Delete soft-deletes a role nothing references
// @Summary Delete role
// @Tags roles
// @Produce json
// @Param id path int true "Role ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string "Role still referenced"
// @Security BearerAuth
// @Router /roles/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	role, ok := h.find(c)
	if !ok {
		return
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		var plans, history int64
		if err := tx.Model(&models.SuccessionPlan{}).Where("role_id = ?", role.ID).Count(&plans).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.HistoricalData{}).Where("role_id = ?", role.ID).Count(&history).Error; err != nil {
			return err
		}
		if plans > 0 || history > 0 {
			return ErrRoleInUse
		}
		return tx.Delete(role).Error
	})
	if errors.Is(err, ErrRoleInUse) {
		apierror.Conflict(c, "Role is referenced by succession plans or history")
		return
	}
	if err != nil {
		apierror.Internal(c, err, "Failed to delete role")
		return
	}

	h.recorder.Record(c.Request.Context(), audit.NewEntry(c, audit.ActionDelete, audit.TableRoles, role.ID).
		Before(snapshot(*role)).
		Note("Role deletion"))

	c.JSON(http.StatusOK, gin.H{"message": "Role deleted successfully"})
}

// RegisterRoutes registers role routes. Callers must already be authenticated.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	manage := permissions.RequireCapability(permissions.ManageRoles, permissions.MsgInsufficient)

	roles := rg.Group("/roles")
	roles.GET("", h.List)
	roles.GET("/:id", h.Get)
	roles.POST("", manage, h.Create)
	roles.PUT("/:id", manage, h.Update)
	roles.DELETE("/:id", manage, h.Delete)

	roles.GET("/:id/history", h.ListHistory)
	roles.POST("/:id/history", permissions.RequireCapability(permissions.HRAccess, "Access denied. HR access required to record history."), h.AddHistory)
}
