package plans

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/succession/pkg/succession/audit"
	"github.com/mikepea/succession/pkg/succession/config"
	"github.com/mikepea/succession/pkg/succession/metrics"
	"github.com/mikepea/succession/pkg/succession/models"
	"github.com/mikepea/succession/pkg/succession/permissions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, models.AutoMigrate(db))
	return db
}

func setupTestRouter(db *gorm.DB, role, department string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	policy := permissions.NewPolicy(config.Default().Access)
	recorder := audit.NewSyncRecorder(audit.NewStore(db), audit.NewReporter(zap.NewNop(), metrics.New()))

	r := gin.New()
	r.Use(func(c *gin.Context) {
		permissions.SetActor(c, policy.ActorFor(&models.User{ID: 1, Name: "Tester", Role: role, Department: department}))
		c.Next()
	})
	NewHandler(db, recorder).RegisterRoutes(r.Group("/api"))
	return r
}

func request(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	msg, _ := resp["error"].(string)
	return msg
}

func createRole(t *testing.T, db *gorm.DB, title, department string) *models.Role {
	role := &models.Role{Title: title, Name: title, Department: department, BusinessLine: "Core", Criticality: models.CriticalityHigh}
	require.NoError(t, db.Create(role).Error)
	return role
}

func createPlan(t *testing.T, db *gorm.DB, roleID uint, incumbent string) *models.SuccessionPlan {
	plan := &models.SuccessionPlan{RoleID: roleID, IncumbentName: incumbent, IncumbentEmployeeID: "E-" + incumbent, IncumbentTenure: 12, ReadinessLevel: models.ReadinessReadyNow}
	require.NoError(t, db.Create(plan).Error)
	return plan
}

func TestCreatePlan(t *testing.T) {
	db := setupTestDB(t)
	createRole(t, db, "CFO", "Finance")
	r := setupTestRouter(db, "hr_manager", "Finance")

	w := request(r, "POST", "/api/succession-plans", `{
		"role_id": "1",
		"incumbent_name": " Jane Doe ",
		"incumbent_employee_id": "E100",
		"incumbent_tenure": 12,
		"retirement_date": "2030-06-30",
		"readiness_level": "Ready Now"
	}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var plan models.SuccessionPlan
	require.NoError(t, db.First(&plan).Error)
	assert.Equal(t, uint(1), plan.RoleID)
	assert.Equal(t, "Jane Doe", plan.IncumbentName)
	assert.Equal(t, 12, plan.IncumbentTenure)
	require.NotNil(t, plan.RetirementDate)
	assert.Equal(t, "2030-06-30", plan.RetirementDate.Format("2006-01-02"))

	var log models.AuditLog
	require.NoError(t, db.Where("table_name = ?", audit.TableSuccessionPlans).First(&log).Error)
	assert.Equal(t, audit.ActionCreate, log.Action)
}

func TestCreatePlanValidation(t *testing.T) {
	db := setupTestDB(t)
	createRole(t, db, "CFO", "Finance")
	r := setupTestRouter(db, "hr_manager", "Finance")

	w := request(r, "POST", "/api/succession-plans", map[string]any{"role_id": 1, "incumbent_name": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing fields: incumbent_name, incumbent_employee_id, incumbent_tenure, readiness_level", errorOf(t, w))

	w = request(r, "POST", "/api/succession-plans", map[string]any{
		"role_id": 1, "incumbent_name": "Jane", "incumbent_employee_id": "E1", "incumbent_tenure": "a year", "readiness_level": "Ready Now",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "incumbent_tenure must be an integer", errorOf(t, w))

	w = request(r, "POST", "/api/succession-plans", map[string]any{
		"role_id": 7, "incumbent_name": "Jane", "incumbent_employee_id": "E1", "incumbent_tenure": 3, "readiness_level": "Ready Now",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreatePlanInvalidRetirementDateIsNull(t *testing.T) {
	db := setupTestDB(t)
	createRole(t, db, "CFO", "Finance")
	r := setupTestRouter(db, "hr_manager", "Finance")

	w := request(r, "POST", "/api/succession-plans", map[string]any{
		"role_id": 1, "incumbent_name": "Jane", "incumbent_employee_id": "E1", "incumbent_tenure": 3,
		"readiness_level": "Ready Now", "retirement_date": "30/06/2030",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var plan models.SuccessionPlan
	require.NoError(t, db.First(&plan).Error)
	assert.Nil(t, plan.RetirementDate)
}

func TestPlanWritesAreDepartmentScoped(t *testing.T) {
	db := setupTestDB(t)
	sales := createRole(t, db, "Sales Director", "Sales")
	createPlan(t, db, sales.ID, "Bob")
	r := setupTestRouter(db, "hr_manager", "Finance")

	w := request(r, "POST", "/api/succession-plans", map[string]any{
		"role_id": sales.ID, "incumbent_name": "Jane", "incumbent_employee_id": "E1", "incumbent_tenure": 3, "readiness_level": "Ready Now",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Access denied. You can only manage succession plans for your department.", errorOf(t, w))

	w = request(r, "PUT", "/api/succession-plans/1", map[string]any{"incumbent_name": "Mallory"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = request(r, "DELETE", "/api/succession-plans/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Global scope lifts the restriction
	w = request(setupTestRouter(db, "hr_manager", "CCR"), "PUT", "/api/succession-plans/1", map[string]any{"incumbent_name": "Alice"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListPlans(t *testing.T) {
	db := setupTestDB(t)
	cfo := createRole(t, db, "CFO", "Finance")
	sales := createRole(t, db, "Sales Director", "Sales")
	p := createPlan(t, db, cfo.ID, "Jane")
	createPlan(t, db, sales.ID, "Bob")
	require.NoError(t, db.Create(&models.Candidate{SuccessionPlanID: p.ID, Name: "A", EmployeeID: "C1", CurrentRole: "Controller", ReadinessScore: 8}).Error)
	require.NoError(t, db.Create(&models.Candidate{SuccessionPlanID: p.ID, Name: "B", EmployeeID: "C2", CurrentRole: "Analyst", ReadinessScore: 4}).Error)

	w := request(setupTestRouter(db, "hr_manager", "Finance"), "GET", "/api/succession-plans", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var plans []PlanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &plans))
	require.Len(t, plans, 1)
	assert.Equal(t, "CFO", plans[0].RoleTitle)
	assert.Equal(t, int64(2), plans[0].CandidateCount)
	assert.Equal(t, 12, plans[0].IncumbentTenure)

	w = request(setupTestRouter(db, "admin", "HR"), "GET", "/api/succession-plans", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &plans))
	assert.Len(t, plans, 2)

	w = request(setupTestRouter(db, "user", "Finance"), "GET", "/api/succession-plans", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, msgViewDenied, errorOf(t, w))
}

func TestListPlansUnknownRole(t *testing.T) {
	db := setupTestDB(t)
	createPlan(t, db, 42, "Orphan")

	w := request(setupTestRouter(db, "admin", "HR"), "GET", "/api/succession-plans", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var plans []PlanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &plans))
	require.Len(t, plans, 1)
	assert.Equal(t, "Unknown Role", plans[0].RoleTitle)
}

func TestUpdatePlanMergesPresentFields(t *testing.T) {
	db := setupTestDB(t)
	cfo := createRole(t, db, "CFO", "Finance")
	createPlan(t, db, cfo.ID, "Jane")
	r := setupTestRouter(db, "hr_manager", "Finance")

	w := request(r, "PUT", "/api/succession-plans/1", map[string]any{"readiness_level": "3-5 years", "retirement_date": "2031-01-01"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp PlanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "3-5 years", resp.ReadinessLevel)
	assert.Equal(t, "Jane", resp.IncumbentName)
	require.NotNil(t, resp.RetirementDate)
	assert.Equal(t, "2031-01-01", *resp.RetirementDate)

	w = request(r, "PUT", "/api/succession-plans/1", map[string]any{"retirement_date": nil})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Nil(t, resp.RetirementDate)

	w = request(r, "PUT", "/api/succession-plans/1", map[string]any{"incumbent_tenure": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var logs int64
	db.Model(&models.AuditLog{}).Where("action = ?", audit.ActionUpdate).Count(&logs)
	assert.Equal(t, int64(2), logs)
}

func TestDeletePlanRemovesCandidates(t *testing.T) {
	db := setupTestDB(t)
	cfo := createRole(t, db, "CFO", "Finance")
	p := createPlan(t, db, cfo.ID, "Jane")
	require.NoError(t, db.Create(&models.Candidate{SuccessionPlanID: p.ID, Name: "A", EmployeeID: "C1", CurrentRole: "Controller", ReadinessScore: 8}).Error)

	w := request(setupTestRouter(db, "hr_manager", "Finance"), "DELETE", "/api/succession-plans/1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var count int64
	db.Model(&models.SuccessionPlan{}).Count(&count)
	assert.Zero(t, count)
	db.Model(&models.Candidate{}).Count(&count)
	assert.Zero(t, count)
	db.Unscoped().Model(&models.Candidate{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestFields(t *testing.T) {
	var f fields
	require.NoError(t, json.Unmarshal([]byte(`{"a":" x ","n":12,"s":"7","f":2.0,"bad":"2.5","nil":null}`), &f))

	assert.Equal(t, "x", f.text("a"))
	assert.Equal(t, "", f.text("nil"))
	assert.Equal(t, "", f.text("absent"))
	assert.True(t, f.has("nil"))
	assert.False(t, f.has("absent"))
	assert.Equal(t, []string{"nil", "absent"}, f.missing("a", "nil", "absent"))

	n, err := f.integer("n")
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	n, err = f.integer("s")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	n, err = f.integer("f")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = f.integer("bad")
	assert.EqualError(t, err, "bad must be an integer")
}

func TestParseOptionalDate(t *testing.T) {
	assert.Nil(t, ParseOptionalDate(""))
	assert.Nil(t, ParseOptionalDate("null"))
	assert.Nil(t, ParseOptionalDate("2030-13-01"))
	d := ParseOptionalDate(" 2030-06-30 ")
	require.NotNil(t, d)
	assert.Equal(t, "2030-06-30", d.Format("2006-01-02"))
}
