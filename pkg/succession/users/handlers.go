package users

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

// Handler handles user administration requests
type Handler struct {
	db       *gorm.DB
	recorder audit.Recorder
}

// NewHandler creates a new user administration handler
func NewHandler(db *gorm.DB, recorder audit.Recorder) *Handler {
	return &Handler{db: db, recorder: recorder}
}

// UserResponse represents user data in admin responses
type UserResponse struct {
	ID          uint    `json:"id"`
	Name        string  `json:"name"`
	Email       string  `json:"email"`
	Role        string  `json:"role"`
	Department  string  `json:"department"`
	Status      string  `json:"status"`
	GlobalScope bool    `json:"global_scope"`
	CreatedAt   string  `json:"created_at"`
	ApprovedAt  *string `json:"approved_at"`
	ApprovedBy  *uint   `json:"approved_by"`
}

// UpdateUserRequest represents the request to update a user. Absent fields
// are left unchanged.
type UpdateUserRequest struct {
	Role        *string `json:"role"`
	Department  *string `json:"department"`
	Status      *string `json:"status"`
	GlobalScope *bool   `json:"global_scope"`
}

func userToResponse(u models.User) UserResponse {
	resp := UserResponse{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Role:        u.Role,
		Department:  u.Department,
		Status:      string(u.Status),
		GlobalScope: u.GlobalScope,
		CreatedAt:   u.CreatedAt.Format("2006-01-02T15:04:05Z"),
		ApprovedBy:  u.ApprovedByID,
	}
	if u.ApprovedAt != nil {
		s := u.ApprovedAt.Format("2006-01-02T15:04:05Z")
		resp.ApprovedAt = &s
	}
	return resp
}

func snapshot(u models.User) gin.H {
	return gin.H{
		"name":         u.Name,
		"email":        u.Email,
		"role":         u.Role,
		"department":   u.Department,
		"status":       u.Status,
		"global_scope": u.GlobalScope,
	}
}

// findVisible loads a user the actor is allowed to see. Users outside the
// actor's department are reported as missing.
func (h *Handler) findVisible(c *gin.Context, id uint) (*models.User, bool) {
	var user models.User
	if err := h.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			apierror.NotFound(c, "User not found")
		} else {
			apierror.Internal(c, err, "Failed to fetch user")
		}
		return nil, false
	}
	if !permissions.GetActor(c).CanSeeDepartment(user.Department) {
		apierror.NotFound(c, "User not found")
		return nil, false
	}
	return &user, true
}

// ListUsers returns users visible to the caller
// @Summary List users
// @Description Users of the caller's department, or every user with global scope
// @Tags users
// @Produce json
// @Success 200 {array} UserResponse
// @Security BearerAuth
// @Router /users [get]
func (h *Handler) ListUsers(c *gin.Context) {
	actor := permissions.GetActor(c)

	query := h.db.Order("created_at DESC")
	if !actor.HasGlobalScope() {
		query = query.Where("department = ?", actor.Department)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		apierror.Internal(c, err, "Failed to fetch users")
		return
	}

	responses := make([]UserResponse, len(users))
	for i, user := range users {
		responses[i] = userToResponse(user)
	}
	c.JSON(http.StatusOK, responses)
}

// GetUser returns a single user by ID
// @Summary Get user
// @Tags users
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} UserResponse
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /users/{id} [get]
func (h *Handler) GetUser(c *gin.Context) {
	id, ok := apierror.ParamID(c, "id", "Invalid user ID")
	if !ok {
		return
	}
	user, ok := h.findVisible(c, id)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, userToResponse(*user))
}

// UpdateUser changes a user's role, department, status or scope
// @Summary Update user
// @Tags users
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param request body UpdateUserRequest true "Fields to change"
// @Success 200 {object} UserResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /users/{id} [put]
func (h *Handler) UpdateUser(c *gin.Context) {
	id, ok := apierror.ParamID(c, "id", "Invalid user ID")
	if !ok {
		return
	}
	user, ok := h.findVisible(c, id)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.BadRequest(c, "Invalid request body")
		return
	}

	updates := make(map[string]interface{})
	if req.Role != nil {
		role := strings.TrimSpace(*req.Role)
		if role == "" {
			apierror.BadRequest(c, "Role cannot be empty")
			return
		}
		updates["role"] = role
	}
	if req.Department != nil {
		department := strings.TrimSpace(*req.Department)
		if department == "" {
			apierror.BadRequest(c, "Department cannot be empty")
			return
		}
		updates["department"] = department
	}
	if req.Status != nil {
		status := models.UserStatus(*req.Status)
		if !status.Valid() {
			apierror.BadRequest(c, "Invalid status")
			return
		}
		updates["status"] = status
	}
	if req.GlobalScope != nil {
		updates["global_scope"] = *req.GlobalScope
	}

	before := snapshot(*user)
	if len(updates) > 0 {
		if err := h.db.Model(user).Updates(updates).Error; err != nil {
			apierror.Internal(c, err, "Failed to update user")
			return
		}
	}

	// Reload user
	if err := h.db.First(user, id).Error; err != nil {
		apierror.Internal(c, err, "Failed to fetch user")
		return
	}

	if len(updates) > 0 {
		h.recorder.Record(c.Request.Context(), audit.NewEntry(c, audit.ActionUpdate, audit.TableUsers, user.ID).
			Before(before).
			After(updates).
			Note("User update by admin"))
	}

	c.JSON(http.StatusOK, userToResponse(*user))
}

// DeleteUser removes a user together with their access requests and reset
// tokens. Audit rows keep the denormalized actor name and email.
// @Summary Delete user
// @Tags users
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /users/{id} [delete]
func (h *Handler) DeleteUser(c *gin.Context) {
	id, ok := apierror.ParamID(c, "id", "Invalid user ID")
	if !ok {
		return
	}

	// Prevent admin from deleting themselves
	if id == permissions.GetActor(c).ID {
		apierror.BadRequest(c, "Admins cannot delete themselves")
		return
	}

	user, ok := h.findVisible(c, id)
	if !ok {
		return
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.AccessRequest{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.PasswordReset{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.AuditLog{}).Where("user_id = ?", user.ID).Update("user_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.AccessRequest{}).Where("hr_approver_id = ?", user.ID).Update("hr_approver_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).Where("approved_by = ?", user.ID).Update("approved_by", nil).Error; err != nil {
			return err
		}
		return tx.Delete(user).Error
	})
	if err != nil {
		apierror.Internal(c, err, "Failed to delete user")
		return
	}

	h.recorder.Record(c.Request.Context(), audit.NewEntry(c, audit.ActionDelete, audit.TableUsers, id).
		Before(snapshot(*user)).
		Note("User deletion by admin"))

	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

// RegisterRoutes registers user administration routes. Callers must already
// be authenticated.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	users := rg.Group("/users")
	users.GET("", permissions.RequireCapability(permissions.HRAccess, permissions.MsgInsufficient), h.ListUsers)
	users.GET("/:id", permissions.RequireCapability(permissions.HRAccess, permissions.MsgInsufficient), h.GetUser)
	users.PUT("/:id", permissions.RequireCapability(permissions.ManageUsers, permissions.MsgAdminRequired), h.UpdateUser)
	users.DELETE("/:id", permissions.RequireCapability(permissions.ManageUsers, permissions.MsgInsufficient), h.DeleteUser)
}
