package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tuition-center-api/internal/models"
	"github.com/noah-isme/tuition-center-api/internal/service"
	appErrors "github.com/noah-isme/tuition-center-api/pkg/errors"
	"github.com/noah-isme/tuition-center-api/pkg/response"
)

type reportService interface {
	TeacherOverview(ctx context.Context, teacher models.Actor, filter models.AttendanceOverviewFilter) (*models.AttendanceOverview, error)
	StudentSummary(ctx context.Context, actor models.Actor, studentID string) (*models.StudentAttendanceSummary, error)
	CreateExport(ctx context.Context, teacher models.Actor, req models.CreateExportRequest) (*models.ReportJob, error)
	ExportStatus(ctx context.Context, teacher models.Actor, id string) (*models.ReportJob, error)
	ResolveDownload(ctx context.Context, token string) (*service.ReportDownload, error)
}

// ReportHandler serves attendance overviews and exports.
type ReportHandler struct {
	service reportService
}

// NewReportHandler constructs the handler.
func NewReportHandler(svc reportService) *ReportHandler {
	return &ReportHandler{service: svc}
}

// Overview godoc
// @Summary Attendance overview for the caller's subject
// @Tags Reports
// @Produce json
// @Param date_from query string false "YYYY-MM-DD"
// @Param date_to query string false "YYYY-MM-DD"
// @Param grade query int false "Grade"
// @Success 200 {object} response.Envelope
// @Router /attendance/overview [get]
func (h *ReportHandler) Overview(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var filter models.AttendanceOverviewFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	res, err := h.service.TeacherOverview(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// StudentAttendance godoc
// @Summary Attendance summary of one student
// @Tags Reports
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /students/{id}/attendance [get]
func (h *ReportHandler) StudentAttendance(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	res, err := h.service.StudentSummary(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// CreateExport godoc
// @Summary Queue an attendance export
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body models.CreateExportRequest true "Export request"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /reports/attendance [post]
func (h *ReportHandler) CreateExport(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.CreateExportRequest
	if !bindJSON(c, &req, "invalid export payload") {
		return
	}
	job, err := h.service.CreateExport(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}

// ExportStatus godoc
// @Summary Export job status
// @Tags Reports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /reports/{id} [get]
func (h *ReportHandler) ExportStatus(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	job, err := h.service.ExportStatus(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, job)
}

// Download godoc
// @Summary Download a finished export
// @Tags Reports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /export/{token} [get]
func (h *ReportHandler) Download(c *gin.Context) {
	dl, err := h.service.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer dl.File.Close() //nolint:errcheck

	size, err := dl.File.Seek(0, io.SeekEnd)
	if err != nil {
		response.Error(c, err)
		return
	}
	if _, err := dl.File.Seek(0, io.SeekStart); err != nil {
		response.Error(c, err)
		return
	}
	c.DataFromReader(http.StatusOK, size, dl.ContentType, dl.File, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", dl.Filename),
		"Expires":             dl.ExpiresAt.UTC().Format(time.RFC1123),
	})
}
