package audit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/succession/pkg/succession/config"
	"github.com/mikepea/succession/pkg/succession/models"
	"github.com/mikepea/succession/pkg/succession/permissions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestRouter(db *gorm.DB, role string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	policy := permissions.NewPolicy(config.Default().Access)
	r.Use(func(c *gin.Context) {
		permissions.SetActor(c, policy.ActorFor(&models.User{ID: 1, Name: "Tester", Role: role, Department: "HR"}))
		c.Next()
	})
	NewHandler(db).RegisterRoutes(r.Group("/api"))
	return r
}

func seedLog(t *testing.T, db *gorm.DB, name, action, table string, ts time.Time) {
	err := db.Create(&models.AuditLog{
		UserName:  name,
		UserEmail: name + "@company.com",
		Action:    action,
		Table:     table,
		Timestamp: ts,
	}).Error
	require.NoError(t, err)
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestListRequiresHRAccess(t *testing.T) {
	db := setupTestDB(t)
	r := setupTestRouter(db, "user")

	w := get(r, "/api/audit-trail")
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = get(r, "/api/audit-trail/summary")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListFiltersAndOrder(t *testing.T) {
	db := setupTestDB(t)
	r := setupTestRouter(db, "HR Business Partner")

	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	seedLog(t, db, "alice", ActionCreate, TableRoles, base)
	seedLog(t, db, "bob", ActionUpdate, TableRoles, base.Add(24*time.Hour))
	seedLog(t, db, "Alice", ActionDelete, TableSuccessionPlans, base.Add(48*time.Hour))

	var resp ListResponse
	w := get(r, "/api/audit-trail")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.AuditLogs, 3)
	assert.Equal(t, ActionDelete, resp.AuditLogs[0].Action, "newest first")
	assert.Equal(t, "2025-03-12T12:00:00Z", resp.AuditLogs[0].Timestamp)

	tests := []struct {
		query string
		want  int
	}{
		{"?action=UPDATE", 1},
		{"?table=roles", 2},
		{"?user=ALICE", 2},
		{"?user=company.com", 3},
		{"?date_from=2025-03-11", 2},
		{"?date_to=2025-03-11", 2},
		{"?date_from=2025-03-11&date_to=2025-03-11", 1},
		{"?date_from=not-a-date", 3},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			var resp ListResponse
			w := get(r, "/api/audit-trail"+tt.query)
			require.Equal(t, http.StatusOK, w.Code)
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Len(t, resp.AuditLogs, tt.want)
			assert.Equal(t, int64(tt.want), resp.Pagination.Total)
		})
	}
}

func TestListPagination(t *testing.T) {
	db := setupTestDB(t)
	r := setupTestRouter(db, "hr_manager")

	start := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 120; i++ {
		seedLog(t, db, "bulk", ActionCreate, TableCandidates, start.Add(time.Duration(i)*time.Second))
	}

	var resp ListResponse
	w := get(r, "/api/audit-trail?per_page=500")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.AuditLogs, 100)
	assert.Equal(t, Pagination{Page: 1, PerPage: 100, Total: 120, Pages: 2, HasNext: true, HasPrev: false}, resp.Pagination)

	w = get(r, "/api/audit-trail?page=3")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.AuditLogs, 20)
	assert.Equal(t, 50, resp.Pagination.PerPage)
	assert.Equal(t, 3, resp.Pagination.Pages)
	assert.False(t, resp.Pagination.HasNext)
	assert.True(t, resp.Pagination.HasPrev)
}

func TestListSnapshotsAreJSON(t *testing.T) {
	db := setupTestDB(t)
	r := setupTestRouter(db, "admin")
	log, err := ToLog(sampleEntry())
	require.NoError(t, err)
	require.NoError(t, db.Create(log).Error)

	w := get(r, "/api/audit-trail")
	var raw map[string][]map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	entry := raw["audit_logs"][0]
	assert.Equal(t, map[string]any{"criticality": "High"}, entry["new_values"])
	assert.Equal(t, float64(7), entry["user_id"])
}

func TestSummary(t *testing.T) {
	db := setupTestDB(t)
	r := setupTestRouter(db, "admin")

	now := time.Now().UTC()
	seedLog(t, db, "alice", ActionCreate, TableRoles, now.Add(-time.Hour))
	seedLog(t, db, "alice", ActionUpdate, TableRoles, now.Add(-25*time.Hour))
	seedLog(t, db, "bob", ActionCreate, TableSuccessionPlans, now.Add(-30*24*time.Hour))

	w := get(r, "/api/audit-trail/summary")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		TotalActions   int64            `json:"total_actions"`
		ActionsByType  []map[string]any `json:"actions_by_type"`
		ActionsByTable []map[string]any `json:"actions_by_table"`
		ActionsByUser  []map[string]any `json:"actions_by_user"`
		RecentActivity []map[string]any `json:"recent_activity"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(3), resp.TotalActions)
	assert.Equal(t, []map[string]any{{"action": "CREATE", "count": float64(2)}, {"action": "UPDATE", "count": float64(1)}}, resp.ActionsByType)
	assert.Equal(t, map[string]any{"table": "roles", "count": float64(2)}, resp.ActionsByTable[0])
	assert.Equal(t, map[string]any{"user": "alice", "count": float64(2)}, resp.ActionsByUser[0])
	assert.Len(t, resp.RecentActivity, 2)
}
