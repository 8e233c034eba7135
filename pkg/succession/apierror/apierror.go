package apierror

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/succession/pkg/succession/logging"
	"go.uber.org/zap"
)

// Internal logs err with the request context and responds 500 with a fixed
// message. Storage errors are never echoed to the client.
func Internal(c *gin.Context, err error, message string) {
	zap.L().Error(message,
		zap.Error(err),
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.String("request_id", logging.GetRequestID(c)),
	)
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": message})
}

// BadRequest responds 400 with message
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}

// Forbidden responds 403 with message
func Forbidden(c *gin.Context, message string) {
	c.JSON(http.StatusForbidden, gin.H{"error": message})
}

// NotFound responds 404 with message
func NotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, gin.H{"error": message})
}

// Conflict responds 409 with message
func Conflict(c *gin.Context, message string) {
	c.JSON(http.StatusConflict, gin.H{"error": message})
}

// ParamID parses the named path parameter as a record id. On failure it
// writes a 400 with message and returns false.
func ParamID(c *gin.Context, name, message string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		BadRequest(c, message)
		return 0, false
	}
	return uint(id), true
}

// BindOptionalJSON decodes the request body into obj. An empty body leaves
// obj untouched; a malformed one writes a 400 and returns false.
func BindOptionalJSON(c *gin.Context, obj any) bool {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return true
	}
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(c, "Invalid request body")
		return false
	}
	return true
}
