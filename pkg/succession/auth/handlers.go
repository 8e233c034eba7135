package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/succession/pkg/succession/apierror"
	"github.com/mikepea/succession/pkg/succession/audit"
	"github.com/mikepea/succession/pkg/succession/metrics"
	"github.com/mikepea/succession/pkg/succession/models"
	"github.com/mikepea/succession/pkg/succession/notify"
	"github.com/mikepea/succession/pkg/succession/permissions"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Options carries the collaborators of the auth handler
type Options struct {
	Tokens           *TokenManager
	Resets           *ResetService
	Policy           *permissions.Policy
	Recorder         audit.Recorder
	Mailer           notify.Mailer
	Limiter          *RateLimiter
	Metrics          *metrics.Metrics
	FrontendURL      string
	ExposeResetToken bool
}

// Handler handles authentication requests
type Handler struct {
	db   *gorm.DB
	opts Options
}

// NewHandler creates a new auth handler
func NewHandler(db *gorm.DB, opts Options) *Handler {
	return &Handler{db: db, opts: opts}
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email" binding:"omitempty,email"`
	Password      string `json:"password"`
	Department    string `json:"department"`
	Role          string `json:"role"`
	RequestReason string `json:"request_reason"`
}

// RegisterResponse is returned once a registration is queued for approval
type RegisterResponse struct {
	Message    string `json:"message"`
	Status     string `json:"status"`
	Department string `json:"department"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents the authentication response
type LoginResponse struct {
	AccessToken string       `json:"access_token"`
	User        UserResponse `json:"user"`
}

// UserResponse represents user data in responses
type UserResponse struct {
	ID           uint     `json:"id"`
	Name         string   `json:"name"`
	Email        string   `json:"email"`
	Role         string   `json:"role"`
	Department   string   `json:"department"`
	Status       string   `json:"status"`
	GlobalScope  bool     `json:"global_scope"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// ForgotPasswordRequest asks for a reset link
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest sets a new password with a reset token
type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// ValidateResetTokenRequest checks a reset token
type ValidateResetTokenRequest struct {
	Token string `json:"token"`
}

// NormalizeEmail is the canonical stored and looked-up form of an address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (h *Handler) countLogin(outcome string) {
	if h.opts.Metrics != nil {
		h.opts.Metrics.Logins.WithLabelValues(outcome).Inc()
	}
}

// Register handles user registration
// @Summary Register a new user
// @Description Create a pending user account and access request for HR approval
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration details"
// @Success 201 {object} RegisterResponse
// @Failure 400 {object} map[string]string "Validation error or email already exists"
// @Router /auth/register [post]
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = NormalizeEmail(req.Email)
	req.Department = strings.TrimSpace(req.Department)
	if req.Name == "" || req.Email == "" || req.Password == "" || req.Department == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields: name, email, password, department"})
		return
	}

	// Check if email already exists
	var count int64
	if err := h.db.Model(&models.User{}).Where("email = ?", req.Email).Count(&count).Error; err != nil {
		apierror.Internal(c, err, "Registration failed")
		return
	}
	if count > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email already exists"})
		return
	}

	if err := ValidatePasswordStrength(req.Password); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hashedPassword, err := HashPassword(req.Password)
	if err != nil {
		apierror.Internal(c, err, "Failed to process password")
		return
	}

	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = models.DefaultUserRole
	}
	reason := strings.TrimSpace(req.RequestReason)
	if reason == "" {
		reason = models.DefaultRequestReason
	}

	user := models.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hashedPassword,
		Role:         role,
		Department:   req.Department,
		Status:       models.UserStatusPending,
	}

	// Create user and access request in a transaction
	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		accessRequest := models.AccessRequest{
			UserID:        user.ID,
			Department:    user.Department,
			RequestedRole: role,
			RequestReason: reason,
			Status:        models.AccessRequestPending,
		}
		return tx.Create(&accessRequest).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Lost a race with a concurrent registration for the same email
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email already exists"})
		return
	}
	if err != nil {
		apierror.Internal(c, err, "Registration failed")
		return
	}

	h.opts.Recorder.Record(c.Request.Context(), audit.NewEntry(c, audit.ActionCreate, audit.TableUsers, user.ID).
		By(&user).
		After(gin.H{
			"name":       user.Name,
			"email":      user.Email,
			"role":       user.Role,
			"department": user.Department,
			"status":     user.Status,
		}).
		Note("User registration - pending HR approval"))

	c.JSON(http.StatusCreated, RegisterResponse{
		Message:    "User registration submitted successfully. Your account is pending HR approval.",
		Status:     string(models.UserStatusPending),
		Department: user.Department,
	})
}

// Login handles user login
// @Summary Login
// @Description Authenticate with email and password. Only active accounts receive a token.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 401 {object} map[string]string "Invalid credentials"
// @Failure 403 {object} map[string]string "Account pending approval or rejected"
// @Router /auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
		return
	}

	var user models.User
	if err := h.db.Where("email = ?", NormalizeEmail(req.Email)).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			apierror.Internal(c, err, "Login failed")
			return
		}
		h.countLogin("invalid")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if !CheckPassword(req.Password, user.PasswordHash) {
		h.countLogin("invalid")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	switch user.Status {
	case models.UserStatusPending:
		h.countLogin("pending")
		c.JSON(http.StatusForbidden, gin.H{
			"error":      "Account pending approval",
			"message":    "Your account is pending HR approval. Please contact your department HR.",
			"status":     user.Status,
			"department": user.Department,
		})
	case models.UserStatusRejected:
		h.countLogin("rejected")
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "Account rejected",
			"message": "Your account access has been rejected. Please contact your department HR for more information.",
			"status":  user.Status,
		})
	case models.UserStatusActive:
		token, err := h.opts.Tokens.GenerateToken(user.ID)
		if err != nil {
			apierror.Internal(c, err, "Failed to generate token")
			return
		}
		h.countLogin("success")
		c.JSON(http.StatusOK, LoginResponse{
			AccessToken: token,
			User:        h.userToResponse(&user),
		})
	default:
		h.countLogin("unknown")
		zap.L().Error("user has unexpected status at login",
			zap.Uint("user_id", user.ID),
			zap.String("status", string(user.Status)),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Account status unknown"})
	}
}

func (h *Handler) userToResponse(user *models.User) UserResponse {
	actor := h.opts.Policy.ActorFor(user)
	resp := UserResponse{
		ID:          user.ID,
		Name:        user.Name,
		Email:       user.Email,
		Role:        user.Role,
		Department:  user.Department,
		Status:      string(user.Status),
		GlobalScope: actor.HasGlobalScope(),
	}
	for _, c := range actor.Capabilities() {
		resp.Capabilities = append(resp.Capabilities, string(c))
	}
	return resp
}

// Me returns the current authenticated user
// @Summary Get current user
// @Description Get the authenticated user's profile and capabilities
// @Tags auth
// @Produce json
// @Success 200 {object} UserResponse
// @Failure 401 {object} map[string]string "Authentication required"
// @Security BearerAuth
// @Router /auth/me [get]
func (h *Handler) Me(c *gin.Context) {
	actor := permissions.GetActor(c)
	if actor == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": CodeAuthorizationRequired})
		return
	}

	var user models.User
	if err := h.db.First(&user, actor.ID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.JSON(http.StatusOK, h.userToResponse(&user))
}

// Logout handles user logout (client-side token invalidation)
// @Summary Logout
// @Description Logout the current user (client-side token invalidation)
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string "Logged out successfully"
// @Router /auth/logout [post]
func (h *Handler) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// ForgotPassword issues a reset token and delivers the reset link
// @Summary Request password reset
// @Description Issue a one-hour reset token for a registered email
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ForgotPasswordRequest true "Account email"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{} "Email missing or not registered"
// @Failure 429 {object} map[string]string "Rate limited"
// @Router /auth/forgot-password [post]
func (h *Handler) ForgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if !apierror.BindOptionalJSON(c, &req) {
		return
	}
	email := NormalizeEmail(req.Email)
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email is required"})
		return
	}

	var user models.User
	if err := h.db.Where("email = ?", email).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			apierror.Internal(c, err, "Password reset request failed")
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":        "Email not registered",
			"message":      "This email address is not registered in our system. Please enter a valid registered email address.",
			"email_exists": false,
		})
		return
	}

	reset, err := h.opts.Resets.Issue(&user)
	if err != nil {
		apierror.Internal(c, err, "Password reset request failed")
		return
	}

	link := notify.ResetLink(h.opts.FrontendURL, reset.Token)
	emailSent := true
	if err := h.opts.Mailer.SendPasswordReset(c.Request.Context(), notify.PasswordResetMessage{
		To:        user.Email,
		Name:      user.Name,
		ResetLink: link,
	}); err != nil {
		emailSent = false
		zap.L().Warn("failed to send password reset email", zap.Uint("user_id", user.ID), zap.Error(err))
	}

	h.opts.Recorder.Record(c.Request.Context(), audit.NewEntry(c, audit.ActionPasswordResetRequest, audit.TableUsers, user.ID).
		By(&user).
		Note("Password reset requested"))

	resp := gin.H{
		"message":      "Password reset link generated successfully!",
		"email_sent":   emailSent,
		"email_exists": true,
	}
	if h.opts.ExposeResetToken {
		resp["reset_link"] = link
		resp["reset_token"] = reset.Token
	}
	c.JSON(http.StatusOK, resp)
}

// ResetPassword sets a new password using a reset token
// @Summary Reset password
// @Description Consume a reset token and set a new password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ResetPasswordRequest true "Token and new password"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string "Invalid, expired or weak"
// @Router /auth/reset-password [post]
func (h *Handler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if !apierror.BindOptionalJSON(c, &req) {
		return
	}
	if req.Token == "" || req.NewPassword == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Token and new password are required"})
		return
	}

	user, err := h.opts.Resets.Consume(req.Token, req.NewPassword)
	if err != nil {
		var weak *WeakPasswordError
		switch {
		case errors.Is(err, ErrInvalidResetToken):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired reset token"})
		case errors.Is(err, ErrExpiredResetToken):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Reset token has expired"})
		case errors.As(err, &weak):
			c.JSON(http.StatusBadRequest, gin.H{"error": weak.Reason})
		default:
			apierror.Internal(c, err, "Password reset failed")
		}
		return
	}

	h.opts.Recorder.Record(c.Request.Context(), audit.NewEntry(c, audit.ActionPasswordResetComplete, audit.TableUsers, user.ID).
		By(user).
		Note("Password reset completed successfully"))

	c.JSON(http.StatusOK, gin.H{"message": "Password reset successfully. You can now login with your new password."})
}

// ValidateResetToken reports whether a reset token can still be used
// @Summary Validate reset token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ValidateResetTokenRequest true "Reset token"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /auth/validate-reset-token [post]
func (h *Handler) ValidateResetToken(c *gin.Context) {
	var req ValidateResetTokenRequest
	if !apierror.BindOptionalJSON(c, &req) {
		return
	}
	if req.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Token is required"})
		return
	}

	if _, err := h.opts.Resets.Validate(req.Token); err != nil {
		switch {
		case errors.Is(err, ErrInvalidResetToken):
			c.JSON(http.StatusBadRequest, gin.H{"valid": false, "error": "Invalid reset token"})
		case errors.Is(err, ErrExpiredResetToken):
			c.JSON(http.StatusBadRequest, gin.H{"valid": false, "error": "Reset token has expired"})
		default:
			apierror.Internal(c, err, "Token validation failed")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": true, "message": "Token is valid"})
}

// RegisterRoutes registers auth routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	limited := h.opts.Limiter.Middleware()

	rg.POST("/register", h.Register)
	rg.POST("/login", limited, h.Login)
	rg.POST("/logout", h.Logout)
	rg.GET("/me", Middleware(h.opts.Tokens, h.db, h.opts.Policy), h.Me)
	rg.POST("/forgot-password", limited, h.ForgotPassword)
	rg.POST("/reset-password", limited, h.ResetPassword)
	rg.POST("/validate-reset-token", h.ValidateResetToken)
}
