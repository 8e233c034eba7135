package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/succession/pkg/succession/apierror"
	"github.com/mikepea/succession/pkg/succession/models"
	"github.com/mikepea/succession/pkg/succession/permissions"
	"gorm.io/gorm"
)

// Machine-readable authentication failure codes
const (
	CodeTokenExpired          = "token_expired"
	CodeInvalidToken          = "invalid_token"
	CodeAuthorizationRequired = "authorization_required"
)

func unauthorized(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   code,
		"message": message,
	})
}

// Middleware validates the bearer token, loads the user and stores the
// resulting actor on the request
func Middleware(tokens *TokenManager, db *gorm.DB, policy *permissions.Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			unauthorized(c, CodeAuthorizationRequired, "Request does not contain an access token")
			return
		}

		// Expect "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || strings.TrimSpace(parts[1]) == "" {
			unauthorized(c, CodeAuthorizationRequired, "Invalid authorization header format")
			return
		}

		userID, err := tokens.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			if errors.Is(err, ErrExpiredToken) {
				unauthorized(c, CodeTokenExpired, "The token has expired")
			} else {
				unauthorized(c, CodeInvalidToken, "Signature verification failed")
			}
			return
		}

		var user models.User
		if err := db.First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				unauthorized(c, CodeInvalidToken, "User no longer exists")
				return
			}
			apierror.Internal(c, err, "Failed to load user")
			c.Abort()
			return
		}
		if user.Status != models.UserStatusActive {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":  "Account is not active",
				"status": user.Status,
			})
			return
		}

		permissions.SetActor(c, policy.ActorFor(&user))
		c.Next()
	}
}
