package importer

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/succession/pkg/succession/apierror"
	"github.com/mikepea/succession/pkg/succession/audit"
	"github.com/mikepea/succession/pkg/succession/permissions"
	"github.com/xuri/excelize/v2"
)

// Handler handles workbook uploads
type Handler struct {
	importer *Importer
	recorder audit.Recorder
	maxBytes int64
}

// NewHandler creates an upload handler accepting files up to maxBytes
func NewHandler(importer *Importer, recorder audit.Recorder, maxBytes int64) *Handler {
	return &Handler{importer: importer, recorder: recorder, maxBytes: maxBytes}
}

// UploadResponse is returned after a workbook is processed
type UploadResponse struct {
	Message  string `json:"message"`
	Inserted Counts `json:"inserted"`
	Skipped  []Skip `json:"skipped"`
}

// Upload imports an xlsx workbook
// @Summary Bulk upload
// @Description Import users, roles and succession plans from sheets named users, roles and successionplans
// @Tags import
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "xlsx workbook"
// @Success 200 {object} UploadResponse
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 413 {object} map[string]string
// @Security BearerAuth
// @Router /upload/excel [post]
func (h *Handler) Upload(c *gin.Context) {
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	}

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("File exceeds %d bytes", h.maxBytes)})
			return
		}
		apierror.BadRequest(c, "No file uploaded")
		return
	}
	if header.Filename == "" {
		apierror.BadRequest(c, "Empty filename")
		return
	}

	file, err := header.Open()
	if err != nil {
		apierror.BadRequest(c, "Unable to read uploaded file")
		return
	}
	defer file.Close()

	wb, err := excelize.OpenReader(file)
	if err != nil {
		apierror.BadRequest(c, "Uploaded file is not a valid xlsx workbook")
		return
	}
	defer wb.Close()

	report, err := h.importer.Import(c.Request.Context(), permissions.GetActor(c), wb)
	if err != nil {
		apierror.Internal(c, err, "Failed to import workbook")
		return
	}

	h.recorder.Record(c.Request.Context(), audit.NewEntry(c, audit.ActionImport, audit.TableImports, 0).
		After(report).
		Note(fmt.Sprintf("Bulk upload of %s: %d users, %d roles, %d plans, %d rows skipped",
			header.Filename, report.Inserted.Users, report.Inserted.Roles, report.Inserted.Plans, len(report.Skipped))))

	c.JSON(http.StatusOK, UploadResponse{
		Message:  "Upload processed",
		Inserted: report.Inserted,
		Skipped:  report.Skipped,
	})
}

// RegisterRoutes registers the upload route. Callers must already be
// authenticated.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/upload/excel", permissions.RequireCapability(permissions.HRAccess, "Access denied. HR access required to upload data."), h.Upload)
}
