package plans

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/mikepea/succession/pkg/succession/audit"
	"github.com/mikepea/succession/pkg/succession/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateLifecycle(t *testing.T) {
	db := setupTestDB(t)
	cfo := createRole(t, db, "CFO", "Finance")
	createPlan(t, db, cfo.ID, "Jane")
	r := setupTestRouter(db, "hr_manager", "Finance")

	w := request(r, "POST", "/api/succession-plans/1/candidates", map[string]any{
		"name": "Alex", "employee_id": "C1", "current_role": "Controller", "experience_years": "6.5", "readiness_score": 7,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created CandidateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, 6.5, created.ExperienceYears)
	assert.Equal(t, uint(1), created.SuccessionPlanID)

	request(r, "POST", "/api/succession-plans/1/candidates", map[string]any{
		"name": "Sam", "employee_id": "C2", "current_role": "Analyst", "readiness_score": 9,
	})

	w = request(r, "GET", "/api/succession-plans/1/candidates", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []CandidateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "Sam", list[0].Name, "most ready candidate first")

	w = request(r, "PUT", "/api/succession-plans/1/candidates/1", map[string]any{"readiness_score": 10, "development_plan": "Rotation"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated CandidateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, 10, updated.ReadinessScore)
	assert.Equal(t, "Rotation", updated.DevelopmentPlan)
	assert.Equal(t, "Controller", updated.CurrentRole)

	w = request(r, "DELETE", "/api/succession-plans/1/candidates/2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = request(r, "GET", "/api/succession-plans/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var plan PlanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &plan))
	assert.Equal(t, int64(1), plan.CandidateCount)

	var actions []string
	db.Model(&models.AuditLog{}).Where("table_name = ?", audit.TableCandidates).Order("id").Pluck("action", &actions)
	assert.Equal(t, []string{audit.ActionCreate, audit.ActionCreate, audit.ActionUpdate, audit.ActionDelete}, actions)
}

func TestCandidateReadinessScoreBounds(t *testing.T) {
	db := setupTestDB(t)
	cfo := createRole(t, db, "CFO", "Finance")
	createPlan(t, db, cfo.ID, "Jane")
	r := setupTestRouter(db, "hr_manager", "Finance")

	for _, score := range []any{0, 11, "ten"} {
		w := request(r, "POST", "/api/succession-plans/1/candidates", map[string]any{
			"name": "Alex", "employee_id": "C1", "current_role": "Controller", "readiness_score": score,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code, "score %v", score)
	}

	w := request(r, "POST", "/api/succession-plans/1/candidates", map[string]any{"name": "Alex"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing fields: employee_id, current_role, readiness_score", errorOf(t, w))

	var count int64
	db.Model(&models.Candidate{}).Count(&count)
	assert.Zero(t, count)
}

func TestCandidateOfOtherPlan(t *testing.T) {
	db := setupTestDB(t)
	cfo := createRole(t, db, "CFO", "Finance")
	first := createPlan(t, db, cfo.ID, "Jane")
	createPlan(t, db, cfo.ID, "John")
	require.NoError(t, db.Create(&models.Candidate{SuccessionPlanID: first.ID, Name: "A", EmployeeID: "C1", CurrentRole: "Controller", ReadinessScore: 5}).Error)
	r := setupTestRouter(db, "hr_manager", "Finance")

	w := request(r, "PUT", "/api/succession-plans/2/candidates/1", map[string]any{"readiness_score": 6})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = request(r, "DELETE", "/api/succession-plans/2/candidates/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
