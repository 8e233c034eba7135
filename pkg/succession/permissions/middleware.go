package permissions

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const actorKey = "actor"

// SetActor stores the authenticated actor on the request
func SetActor(c *gin.Context, a *Actor) {
	c.Set(actorKey, a)
}

// GetActor returns the authenticated actor, or nil
func GetActor(c *gin.Context) *Actor {
	v, exists := c.Get(actorKey)
	if !exists {
		return nil
	}
	a, _ := v.(*Actor)
	return a
}

// RequireCapability aborts with 403 and message unless the actor holds cap
func RequireCapability(cap Capability, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !GetActor(c).Can(cap) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": message})
			return
		}
		c.Next()
	}
}

// Fixed denial messages
const (
	MsgHRAccessRequired = "Access denied. HR role required."
	MsgInsufficient     = "Insufficient permissions"
	MsgAdminRequired    = "Only admins can manage users"
)
