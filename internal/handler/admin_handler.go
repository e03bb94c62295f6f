package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tuition-center-api/internal/models"
	appErrors "github.com/noah-isme/tuition-center-api/pkg/errors"
	"github.com/noah-isme/tuition-center-api/pkg/response"
)

type adminService interface {
	ListTeachers(ctx context.Context) ([]models.Teacher, error)
	CreateTeacher(ctx context.Context, req models.TeacherRequest) (*models.Teacher, error)
	UpdateTeacher(ctx context.Context, id string, req models.TeacherRequest) (*models.Teacher, error)
	DeleteTeacher(ctx context.Context, id string) error
	ListStudents(ctx context.Context, filter models.StudentFilter) ([]models.Student, error)
	DeleteStudent(ctx context.Context, id string) error
}

// AdminHandler manages teachers and students.
type AdminHandler struct {
	service adminService
}

func NewAdminHandler(svc adminService) *AdminHandler {
	return &AdminHandler{service: svc}
}

// ListTeachers godoc
// @Summary List teachers
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/teachers [get]
func (h *AdminHandler) ListTeachers(c *gin.Context) {
	items, err := h.service.ListTeachers(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items, map[string]interface{}{"count": len(items)})
}

// CreateTeacher godoc
// @Summary Create a teacher
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body models.TeacherRequest true "Teacher"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/teachers [post]
func (h *AdminHandler) CreateTeacher(c *gin.Context) {
	var req models.TeacherRequest
	if !bindJSON(c, &req, "invalid teacher payload") {
		return
	}
	t, err := h.service.CreateTeacher(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, t)
}

// UpdateTeacher godoc
// @Summary Update a teacher
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Teacher ID"
// @Param payload body models.TeacherRequest true "Teacher"
// @Success 200 {object} response.Envelope
// @Router /admin/teachers/{id} [put]
func (h *AdminHandler) UpdateTeacher(c *gin.Context) {
	var req models.TeacherRequest
	if !bindJSON(c, &req, "invalid teacher payload") {
		return
	}
	t, err := h.service.UpdateTeacher(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, t)
}

// DeleteTeacher godoc
// @Summary Delete a teacher
// @Tags Admin
// @Param id path string true "Teacher ID"
// @Success 204
// @Router /admin/teachers/{id} [delete]
func (h *AdminHandler) DeleteTeacher(c *gin.Context) {
	if err := h.service.DeleteTeacher(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListStudents godoc
// @Summary List students
// @Tags Admin
// @Produce json
// @Param grade query int false "Grade"
// @Param subject query string false "Subject"
// @Success 200 {object} response.Envelope
// @Router /admin/students [get]
func (h *AdminHandler) ListStudents(c *gin.Context) {
	var filter models.StudentFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	items, err := h.service.ListStudents(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items, map[string]interface{}{"count": len(items)})
}

// DeleteStudent godoc
// @Summary Delete a student
// @Tags Admin
// @Param id path string true "Student ID"
// @Success 204
// @Router /admin/students/{id} [delete]
func (h *AdminHandler) DeleteStudent(c *gin.Context) {
	if err := h.service.DeleteStudent(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
