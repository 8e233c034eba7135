package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/succession/pkg/succession/audit"
	"github.com/mikepea/succession/pkg/succession/config"
	"github.com/mikepea/succession/pkg/succession/metrics"
	"github.com/mikepea/succession/pkg/succession/models"
	"github.com/mikepea/succession/pkg/succession/notify"
	"github.com/mikepea/succession/pkg/succession/permissions"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testPassword = "Str0ng!Pass"

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	models.AutoMigrate(db)
	return db
}

type testEnv struct {
	db      *gorm.DB
	router  *gin.Engine
	opts    Options
	metrics *metrics.Metrics
}

func setupTestEnv(t *testing.T) *testEnv {
	gin.SetMode(gin.TestMode)
	db := setupTestDB(t)
	m := metrics.New()
	opts := Options{
		Tokens:           NewTokenManager("test-secret", 24*time.Hour),
		Resets:           NewResetService(db, time.Hour),
		Policy:           permissions.NewPolicy(config.Default().Access),
		Recorder:         audit.NewSyncRecorder(audit.NewStore(db), audit.NewReporter(zap.NewNop(), m)),
		Mailer:           notify.NewLogMailer(zap.NewNop()),
		Metrics:          m,
		FrontendURL:      "http://localhost:3000",
		ExposeResetToken: true,
	}
	r := gin.New()
	NewHandler(db, opts).RegisterRoutes(r.Group("/auth"))
	return &testEnv{db: db, router: r, opts: opts, metrics: m}
}

func (e *testEnv) post(path string, body any) *httptest.ResponseRecorder {
	jsonBody, _ := json.Marshal(body)
	req, _ := http.NewRequest("POST", path, bytes.NewBuffer(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	return resp
}

func createUser(t *testing.T, db *gorm.DB, email string, status models.UserStatus) *models.User {
	hash, err := HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	user := &models.User{
		Name:         "Test User",
		Email:        email,
		PasswordHash: hash,
		Role:         "hr_manager",
		Department:   "Finance",
		Status:       status,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	return user
}

func decode(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode response %q: %v", resp.Body.String(), err)
	}
	return out
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if hash == testPassword {
		t.Error("Hash should not equal plain password")
	}

	if !CheckPassword(testPassword, hash) {
		t.Error("CheckPassword should return true for correct password")
	}

	if CheckPassword("wrongpassword", hash) {
		t.Error("CheckPassword should return false for incorrect password")
	}
}

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		password string
		reason   string
	}{
		{"Ab1!", "Password must be at least 8 characters long"},
		{"abcdefg1!", "Password must contain at least one uppercase letter"},
		{"ABCDEFG1!", "Password must contain at least one lowercase letter"},
		{"Abcdefgh!", "Password must contain at least one digit"},
		{"Abcdefgh1", "Password must contain at least one special character (!@#$%^&*()_+-=[]{}|;:,.<>?)"},
		{"Abcdefg1~", "Password must contain at least one special character (!@#$%^&*()_+-=[]{}|;:,.<>?)"},
		{"Abcdefg1!", ""},
		{"Zz9<>zzzz", ""},
		{"Ärger9!ab", ""},
	}
	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			err := ValidatePasswordStrength(tt.password)
			if tt.reason == "" {
				if err != nil {
					t.Errorf("Expected %q to pass, got %v", tt.password, err)
				}
				return
			}
			if err == nil || err.Error() != tt.reason {
				t.Errorf("Expected %q, got %v", tt.reason, err)
			}
		})
	}
}

func TestJWTToken(t *testing.T) {
	tm := NewTokenManager("secret", 24*time.Hour)
	token, err := tm.GenerateToken(42)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	userID, err := tm.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if userID != 42 {
		t.Errorf("Expected user 42, got %d", userID)
	}
}

func TestInvalidToken(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	if _, err := tm.ValidateToken("invalid-token"); err != ErrInvalidToken {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}

	other := NewTokenManager("other-secret", time.Hour)
	token, _ := other.GenerateToken(1)
	if _, err := tm.ValidateToken(token); err != ErrInvalidToken {
		t.Errorf("Expected ErrInvalidToken for foreign signature, got %v", err)
	}
}

func TestExpiredToken(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	tm.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _ := tm.GenerateToken(1)
	tm.now = time.Now

	if _, err := tm.ValidateToken(token); err != ErrExpiredToken {
		t.Errorf("Expected ErrExpiredToken, got %v", err)
	}
}

func TestRegisterCreatesPendingUserAndRequest(t *testing.T) {
	env := setupTestEnv(t)

	resp := env.post("/auth/register", RegisterRequest{
		Name:       "New Hire",
		Email:      "New.Hire@Company.com",
		Password:   testPassword,
		Department: "Finance",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	body := decode(t, resp)
	if body["status"] != "pending" || body["department"] != "Finance" {
		t.Errorf("Unexpected response: %v", body)
	}

	var user models.User
	if err := env.db.Where("email = ?", "new.hire@company.com").First(&user).Error; err != nil {
		t.Fatalf("User not stored with normalized email: %v", err)
	}
	if user.Status != models.UserStatusPending || user.Role != models.DefaultUserRole {
		t.Errorf("Unexpected user state: status=%s role=%s", user.Status, user.Role)
	}

	var req models.AccessRequest
	if err := env.db.Where("user_id = ?", user.ID).First(&req).Error; err != nil {
		t.Fatalf("Access request not created: %v", err)
	}
	if req.Status != models.AccessRequestPending || req.RequestReason != models.DefaultRequestReason {
		t.Errorf("Unexpected access request: %+v", req)
	}

	var log models.AuditLog
	if err := env.db.Where("action = ? AND table_name = ?", audit.ActionCreate, audit.TableUsers).First(&log).Error; err != nil {
		t.Fatalf("Audit entry not written: %v", err)
	}
	if log.UserEmail != user.Email || log.AdditionalInfo != "User registration - pending HR approval" {
		t.Errorf("Unexpected audit entry: %+v", log)
	}
}

func TestRegisterConcurrentDuplicateEmail(t *testing.T) {
	env := setupTestEnv(t)

	// Another registration commits the same email between the duplicate
	// check and the insert
	inserted := false
	err := env.db.Callback().Create().Before("gorm:create").Register("test:concurrent_register", func(tx *gorm.DB) {
		if inserted || tx.Statement.Table != "users" {
			return
		}
		inserted = true
		tx.Session(&gorm.Session{NewDB: true}).Exec(
			"INSERT INTO users (name, email, password_hash, role, department, status, global_scope, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
			"Other", "race@company.com", "x", "user", "Finance", "pending", false, time.Now(), time.Now())
	})
	if err != nil {
		t.Fatalf("Failed to register callback: %v", err)
	}

	resp := env.post("/auth/register", RegisterRequest{
		Name:       "Racer",
		Email:      "race@company.com",
		Password:   testPassword,
		Department: "Finance",
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d: %s", resp.Code, resp.Body.String())
	}
	if body := decode(t, resp); body["error"] != "Email already exists" {
		t.Errorf("Unexpected error %v", body["error"])
	}

	var requests int64
	env.db.Model(&models.AccessRequest{}).Count(&requests)
	if requests != 0 {
		t.Errorf("Expected the failed registration to roll back, found %d access requests", requests)
	}
}

func TestRegisterValidation(t *testing.T) {
	env := setupTestEnv(t)
	createUser(t, env.db, "taken@company.com", models.UserStatusActive)

	tests := []struct {
		name string
		body RegisterRequest
		want string
	}{
		{"missing department", RegisterRequest{Name: "A", Email: "a@company.com", Password: testPassword}, "Missing required fields: name, email, password, department"},
		{"blank name", RegisterRequest{Name: "  ", Email: "a@company.com", Password: testPassword, Department: "HR"}, "Missing required fields: name, email, password, department"},
		{"duplicate", RegisterRequest{Name: "A", Email: "taken@company.com", Password: testPassword, Department: "HR"}, "Email already exists"},
		{"weak", RegisterRequest{Name: "A", Email: "a@company.com", Password: "weakpass", Department: "HR"}, "Password must contain at least one uppercase letter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.post("/auth/register", tt.body)
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d", resp.Code)
			}
			if got := decode(t, resp)["error"]; got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestLoginStatusGate(t *testing.T) {
	env := setupTestEnv(t)
	createUser(t, env.db, "pending@company.com", models.UserStatusPending)
	createUser(t, env.db, "rejected@company.com", models.UserStatusRejected)
	createUser(t, env.db, "active@company.com", models.UserStatusActive)
	createUser(t, env.db, "inactive@company.com", models.UserStatusInactive)

	tests := []struct {
		email  string
		status int
		error  string
	}{
		{"pending@company.com", http.StatusForbidden, "Account pending approval"},
		{"rejected@company.com", http.StatusForbidden, "Account rejected"},
		{"inactive@company.com", http.StatusInternalServerError, "Account status unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			resp := env.post("/auth/login", LoginRequest{Email: tt.email, Password: testPassword})
			if resp.Code != tt.status {
				t.Fatalf("Expected %d, got %d: %s", tt.status, resp.Code, resp.Body.String())
			}
			if got := decode(t, resp)["error"]; got != tt.error {
				t.Errorf("Expected error %q, got %q", tt.error, got)
			}
		})
	}

	resp := env.post("/auth/login", LoginRequest{Email: "active@company.com", Password: testPassword})
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var login LoginResponse
	json.Unmarshal(resp.Body.Bytes(), &login)
	if login.AccessToken == "" {
		t.Error("Expected access token")
	}
	if login.User.Status != "active" || login.User.Department != "Finance" {
		t.Errorf("Unexpected user summary: %+v", login.User)
	}

	if got := testutil.ToFloat64(env.metrics.Logins.WithLabelValues("pending")); got != 1 {
		t.Errorf("Expected 1 pending login, got %v", got)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := setupTestEnv(t)
	createUser(t, env.db, "active@company.com", models.UserStatusActive)

	for _, body := range []LoginRequest{
		{Email: "active@company.com", Password: "Wrong!Pass1"},
		{Email: "nobody@company.com", Password: testPassword},
	} {
		resp := env.post("/auth/login", body)
		if resp.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", resp.Code)
		}
		if got := decode(t, resp)["error"]; got != "Invalid credentials" {
			t.Errorf("Expected Invalid credentials, got %q", got)
		}
	}
}

func TestMeAndMiddlewareCodes(t *testing.T) {
	env := setupTestEnv(t)
	active := createUser(t, env.db, "active@company.com", models.UserStatusActive)
	pending := createUser(t, env.db, "pending@company.com", models.UserStatusPending)

	goodToken, _ := env.opts.Tokens.GenerateToken(active.ID)
	pendingToken, _ := env.opts.Tokens.GenerateToken(pending.ID)
	ghostToken, _ := env.opts.Tokens.GenerateToken(9999)
	expired := NewTokenManager("test-secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-3 * time.Hour) }
	expiredToken, _ := expired.GenerateToken(active.ID)

	tests := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"missing", "", http.StatusUnauthorized, CodeAuthorizationRequired},
		{"malformed", "Token abc", http.StatusUnauthorized, CodeAuthorizationRequired},
		{"garbage", "Bearer abc", http.StatusUnauthorized, CodeInvalidToken},
		{"expired", "Bearer " + expiredToken, http.StatusUnauthorized, CodeTokenExpired},
		{"deleted user", "Bearer " + ghostToken, http.StatusUnauthorized, CodeInvalidToken},
		{"pending user", "Bearer " + pendingToken, http.StatusForbidden, "Account is not active"},
		{"ok", "Bearer " + goodToken, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", "/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp := httptest.NewRecorder()
			env.router.ServeHTTP(resp, req)

			if resp.Code != tt.status {
				t.Fatalf("Expected %d, got %d: %s", tt.status, resp.Code, resp.Body.String())
			}
			body := decode(t, resp)
			if tt.code != "" && body["error"] != tt.code {
				t.Errorf("Expected error %q, got %q", tt.code, body["error"])
			}
			if tt.status == http.StatusOK {
				if body["email"] != "active@company.com" {
					t.Errorf("Unexpected profile: %v", body)
				}
				caps, _ := body["capabilities"].([]any)
				if len(caps) != 2 {
					t.Errorf("Expected hr_manager to hold 2 capabilities, got %v", caps)
				}
			}
		})
	}
}

func TestLogout(t *testing.T) {
	env := setupTestEnv(t)
	resp := env.post("/auth/logout", nil)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.Code)
	}
}

func TestRateLimitedLogin(t *testing.T) {
	env := setupTestEnv(t)
	env.opts.Limiter = NewRateLimiter(0.001, 2)
	r := gin.New()
	NewHandler(env.db, env.opts).RegisterRoutes(r.Group("/auth"))
	env.router = r

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp := env.post("/auth/login", LoginRequest{Email: "x@company.com", Password: "x"})
		codes = append(codes, resp.Code)
	}
	if codes[0] != http.StatusUnauthorized || codes[1] != http.StatusUnauthorized || codes[2] != http.StatusTooManyRequests {
		t.Errorf("Unexpected status sequence %v", codes)
	}

	// register is not limited
	resp := env.post("/auth/register", RegisterRequest{})
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected register to bypass limiter, got %d", resp.Code)
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	l := NewRateLimiter(0, 1)
	for i := 0; i < 100; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatal("Disabled limiter rejected a request")
		}
	}
	var nilLimiter *RateLimiter
	if !nilLimiter.Allow("10.0.0.1") {
		t.Error("Nil limiter should allow")
	}
}

func TestRateLimiterPerIP(t *testing.T) {
	l := NewRateLimiter(0.001, 1)
	if !l.Allow("10.0.0.1") || l.Allow("10.0.0.1") {
		t.Error("Expected one request then rejection")
	}
	if !l.Allow("10.0.0.2") {
		t.Error("Other clients must have their own bucket")
	}
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	env := setupTestEnv(t)

	resp := env.post("/auth/forgot-password", ForgotPasswordRequest{Email: "nobody@company.com"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", resp.Code)
	}
	body := decode(t, resp)
	if body["error"] != "Email not registered" || body["email_exists"] != false {
		t.Errorf("Unexpected response: %v", body)
	}
}

func TestForgotPasswordHidesTokenUnlessExposed(t *testing.T) {
	env := setupTestEnv(t)
	createUser(t, env.db, "active@company.com", models.UserStatusActive)
	env.opts.ExposeResetToken = false
	r := gin.New()
	NewHandler(env.db, env.opts).RegisterRoutes(r.Group("/auth"))
	env.router = r

	resp := env.post("/auth/forgot-password", ForgotPasswordRequest{Email: "active@company.com"})
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	body := decode(t, resp)
	if _, ok := body["reset_token"]; ok {
		t.Error("reset_token must not be returned when not exposed")
	}
	if body["email_sent"] != true {
		t.Errorf("Expected email_sent, got %v", body)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	env := setupTestEnv(t)
	user := createUser(t, env.db, "active@company.com", models.UserStatusActive)

	resp := env.post("/auth/forgot-password", ForgotPasswordRequest{Email: "active@company.com"})
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	body := decode(t, resp)
	token, _ := body["reset_token"].(string)
	if token == "" {
		t.Fatal("Expected reset_token in response")
	}
	if link, _ := body["reset_link"].(string); !strings.HasPrefix(link, "http://localhost:3000/reset-password?token=") {
		t.Errorf("Unexpected reset link %q", link)
	}

	resp = env.post("/auth/validate-reset-token", ValidateResetTokenRequest{Token: token})
	if resp.Code != http.StatusOK || decode(t, resp)["valid"] != true {
		t.Fatalf("Expected token to validate: %s", resp.Body.String())
	}

	// weak password leaves the token usable
	resp = env.post("/auth/reset-password", ResetPasswordRequest{Token: token, NewPassword: "short"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for weak password, got %d", resp.Code)
	}

	resp = env.post("/auth/reset-password", ResetPasswordRequest{Token: token, NewPassword: "N3w!Password"})
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var reloaded models.User
	env.db.First(&reloaded, user.ID)
	if !CheckPassword("N3w!Password", reloaded.PasswordHash) {
		t.Error("Password was not updated")
	}

	// single use
	resp = env.post("/auth/reset-password", ResetPasswordRequest{Token: token, NewPassword: "An0ther!Pass"})
	if resp.Code != http.StatusBadRequest || decode(t, resp)["error"] != "Invalid or expired reset token" {
		t.Errorf("Expected consumed token to be rejected, got %d %s", resp.Code, resp.Body.String())
	}
	resp = env.post("/auth/validate-reset-token", ValidateResetTokenRequest{Token: token})
	if decode(t, resp)["valid"] != false {
		t.Error("Consumed token must not validate")
	}

	var actions []string
	env.db.Model(&models.AuditLog{}).Order("id").Pluck("action", &actions)
	if len(actions) != 2 || actions[0] != audit.ActionPasswordResetRequest || actions[1] != audit.ActionPasswordResetComplete {
		t.Errorf("Unexpected audit actions %v", actions)
	}
}

func TestResetServiceSingleUnusedToken(t *testing.T) {
	db := setupTestDB(t)
	svc := NewResetService(db, time.Hour)
	user := createUser(t, db, "active@company.com", models.UserStatusActive)

	first, err := svc.Issue(user)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	second, err := svc.Issue(user)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if first.Token == second.Token {
		t.Fatal("Tokens must be unique")
	}

	var unused int64
	db.Model(&models.PasswordReset{}).Where("user_id = ? AND used = ?", user.ID, false).Count(&unused)
	if unused != 1 {
		t.Errorf("Expected exactly one unused token, got %d", unused)
	}
	if _, err := svc.Validate(first.Token); err != ErrInvalidResetToken {
		t.Errorf("Expected superseded token to be invalid, got %v", err)
	}
}

func TestResetServiceExpiry(t *testing.T) {
	db := setupTestDB(t)
	svc := NewResetService(db, time.Hour)
	user := createUser(t, db, "active@company.com", models.UserStatusActive)

	reset, err := svc.Issue(user)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if _, err := svc.Validate(reset.Token); err != ErrExpiredResetToken {
		t.Errorf("Expected ErrExpiredResetToken, got %v", err)
	}
	if _, err := svc.Consume(reset.Token, "N3w!Password"); err != ErrExpiredResetToken {
		t.Errorf("Expected ErrExpiredResetToken, got %v", err)
	}

	var reloaded models.User
	db.First(&reloaded, user.ID)
	if !CheckPassword(testPassword, reloaded.PasswordHash) {
		t.Error("Expired token must not change the password")
	}
}
