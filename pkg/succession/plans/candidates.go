package plans

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/succession/pkg/succession/apierror"
	"github.com/mikepea/succession/pkg/succession/audit"
	"github.com/mikepea/succession/pkg/succession/models"
	"gorm.io/gorm"
)

var requiredCandidateFields = []string{"name", "employee_id", "current_role", "readiness_score"}

// CandidateResponse represents a candidate in API responses
type CandidateResponse struct {
	ID               uint    `json:"id"`
	SuccessionPlanID uint    `json:"succession_plan_id"`
	Name             string  `json:"name"`
	EmployeeID       string  `json:"employee_id"`
	CurrentRole      string  `json:"current_role"`
	ExperienceYears  float64 `json:"experience_years"`
	ReadinessScore   int     `json:"readiness_score"`
	DevelopmentPlan  string  `json:"development_plan"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
}

func candidateToResponse(c models.Candidate) CandidateResponse {
	return CandidateResponse{
		ID:               c.ID,
		SuccessionPlanID: c.SuccessionPlanID,
		Name:             c.Name,
		EmployeeID:       c.EmployeeID,
		CurrentRole:      c.CurrentRole,
		ExperienceYears:  c.ExperienceYears,
		ReadinessScore:   c.ReadinessScore,
		DevelopmentPlan:  c.DevelopmentPlan,
		CreatedAt:        c.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:        c.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func candidateSnapshot(c models.Candidate) gin.H {
	return gin.H{
		"succession_plan_id": c.SuccessionPlanID,
		"name":               c.Name,
		"employee_id":        c.EmployeeID,
		"current_role":       c.CurrentRole,
		"experience_years":   c.ExperienceYears,
		"readiness_score":    c.ReadinessScore,
		"development_plan":   c.DevelopmentPlan,
	}
}

var errScoreRange = fmt.Errorf("readiness_score must be between %d and %d", models.MinReadinessScore, models.MaxReadinessScore)

func readinessScore(f fields) (int, error) {
	score, err := f.integer("readiness_score")
	if err != nil {
		return 0, err
	}
	if score < models.MinReadinessScore || score > models.MaxReadinessScore {
		return 0, errScoreRange
	}
	return score, nil
}

func experienceYears(f fields) (float64, error) {
	if f.text("experience_years") == "" {
		return 0, nil
	}
	years, err := f.number("experience_years")
	if err != nil {
		return 0, err
	}
	if years < 0 {
		return 0, errors.New("experience_years must not be negative")
	}
	return years, nil
}

// loadCandidate fetches the candidate named by candidateId within plan
func (h *Handler) loadCandidate(c *gin.Context, plan *models.SuccessionPlan) (*models.Candidate, bool) {
	id, ok := apierror.ParamID(c, "candidateId", "Invalid candidate ID")
	if !ok {
		return nil, false
	}
	var candidate models.Candidate
	if err := h.db.Where("succession_plan_id = ?", plan.ID).First(&candidate, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			apierror.NotFound(c, "Candidate not found")
		} else {
			apierror.Internal(c, err, "Failed to fetch candidate")
		}
		return nil, false
	}
	return &candidate, true
}

// ListCandidates returns a plan's candidates, most ready first
// @Summary List candidates
// @Tags succession-plans
// @Produce json
// @Param id path int true "Plan ID"
// @Success 200 {array} CandidateResponse
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /succession-plans/{id}/candidates [get]
func (h *Handler) ListCandidates(c *gin.Context) {
	plan, ok := h.loadPlan(c)
	if !ok {
		return
	}

	var candidates []models.Candidate
	if err := h.db.Where("succession_plan_id = ?", plan.ID).
		Order("readiness_score DESC, id").
		Find(&candidates).Error; err != nil {
		apierror.Internal(c, err, "Failed to fetch candidates")
		return
	}

	response := make([]CandidateResponse, len(candidates))
	for i, cand := range candidates {
		response[i] = candidateToResponse(cand)
	}
	c.JSON(http.StatusOK, response)
}

// AddCandidate attaches a potential successor to a plan
// @Summary Add candidate
// @Tags succession-plans
// @Accept json
// @Produce json
// @Param id path int true "Plan ID"
// @Param request body object true "name, employee_id, current_role, readiness_score, experience_years, development_plan"
// @Success 201 {object} CandidateResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /succession-plans/{id}/candidates [post]
func (h *Handler) AddCandidate(c *gin.Context) {
	plan, ok := h.loadPlan(c)
	if !ok {
		return
	}

	var f fields
	if err := c.ShouldBindJSON(&f); err != nil {
		apierror.BadRequest(c, "Invalid request body")
		return
	}
	if missing := f.missing(requiredCandidateFields...); len(missing) > 0 {
		apierror.BadRequest(c, "Missing fields: "+strings.Join(missing, ", "))
		return
	}
	score, err := readinessScore(f)
	if err != nil {
		apierror.BadRequest(c, err.Error())
		return
	}
	years, err := experienceYears(f)
	if err != nil {
		apierror.BadRequest(c, err.Error())
		return
	}

	candidate := models.Candidate{
		SuccessionPlanID: plan.ID,
		Name:             f.text("name"),
		EmployeeID:       f.text("employee_id"),
		CurrentRole:      f.text("current_role"),
		ExperienceYears:  years,
		ReadinessScore:   score,
		DevelopmentPlan:  f.text("development_plan"),
	}
	if err := h.db.Create(&candidate).Error; err != nil {
		apierror.Internal(c, err, "Failed to add candidate")
		return
	}

	h.recorder.Record(c.Request.Context(), audit.NewEntry(c, audit.ActionCreate, audit.TableCandidates, candidate.ID).
		After(candidateSnapshot(candidate)).
		Note(fmt.Sprintf("Candidate added to succession plan %d", plan.ID)))

	c.JSON(http.StatusCreated, candidateToResponse(candidate))
}

// UpdateCandidate changes the candidate fields present in the request body
// @Summary Update candidate
// @Tags succession-plans
// @Accept json
// @Produce json
// @Param id path int true "Plan ID"
// @Param candidateId path int true "Candidate ID"
// @Param request body object true "Fields to change"
// @Success 200 {object} CandidateResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /succession-plans/{id}/candidates/{candidateId} [put]
func (h *Handler) UpdateCandidate(c *gin.Context) {
	plan, ok := h.loadPlan(c)
	if !ok {
		return
	}
	candidate, ok := h.loadCandidate(c, plan)
	if !ok {
		return
	}

	var f fields
	if err := c.ShouldBindJSON(&f); err != nil {
		apierror.BadRequest(c, "Invalid request body")
		return
	}

	before := candidateSnapshot(*candidate)
	updates := make(map[string]interface{})
	for _, key := range []string{"name", "employee_id", "current_role"} {
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
	if f.has("readiness_score") {
		score, err := readinessScore(f)
		if err != nil {
			apierror.BadRequest(c, err.Error())
			return
		}
		updates["readiness_score"] = score
	}
	if f.has("experience_years") {
		years, err := experienceYears(f)
		if err != nil {
			apierror.BadRequest(c, err.Error())
			return
		}
		updates["experience_years"] = years
	}
	if f.has("development_plan") {
		updates["development_plan"] = f.text("development_plan")
	}

	if len(updates) > 0 {
		if err := h.db.Model(&models.Candidate{}).Where("id = ?", candidate.ID).Updates(updates).Error; err != nil {
			apierror.Internal(c, err, "Failed to update candidate")
			return
		}
	}

	var updated models.Candidate
	if err := h.db.First(&updated, candidate.ID).Error; err != nil {
		apierror.Internal(c, err, "Failed to fetch candidate")
		return
	}

	if len(updates) > 0 {
		h.recorder.Record(c.Request.Context(), audit.NewEntry(c, audit.ActionUpdate, audit.TableCandidates, updated.ID).
			Before(before).
			After(candidateSnapshot(updated)).
			Note(fmt.Sprintf("Candidate update in succession plan %d", plan.ID)))
	}

	c.JSON(http.StatusOK, candidateToResponse(updated))
}

// RemoveCandidate soft-deletes a candidate
// @Summary Remove candidate
// @Tags succession-plans
// @Produce json
// @Param id path int true "Plan ID"
// @Param candidateId path int true "Candidate ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /succession-plans/{id}/candidates/{candidateId} [delete]
func (h *Handler) RemoveCandidate(c *gin.Context) {
	plan, ok := h.loadPlan(c)
	if !ok {
		return
	}
	candidate, ok := h.loadCandidate(c, plan)
	if !ok {
		return
	}

	if err := h.db.Delete(&models.Candidate{}, candidate.ID).Error; err != nil {
		apierror.Internal(c, err, "Failed to remove candidate")
		return
	}

	h.recorder.Record(c.Request.Context(), audit.NewEntry(c, audit.ActionDelete, audit.TableCandidates, candidate.ID).
		Before(candidateSnapshot(*candidate)).
		Note(fmt.Sprintf("Candidate removed from succession plan %d", plan.ID)))

	c.JSON(http.StatusOK, gin.H{"message": "Candidate removed successfully"})
}
