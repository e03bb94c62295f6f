package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tuition-center-api/internal/models"
	"github.com/noah-isme/tuition-center-api/pkg/response"
)

type enrollmentService interface {
	Enroll(ctx context.Context, parent models.Actor, req models.EnrollRequest) (*models.EnrollResult, error)
	AddSubjects(ctx context.Context, parent models.Actor, studentID string, req models.AddSubjectsRequest) (*models.Student, error)
	Children(ctx context.Context, parent models.Actor) ([]models.Student, error)
	QRCode(ctx context.Context, actor models.Actor, studentID string) ([]byte, error)
	SubmitMonthly(ctx context.Context, parent models.Actor, req models.MonthlyPaymentRequest) (*models.Payment, error)
	Payments(ctx context.Context, parent models.Actor) ([]models.Payment, error)
}

// EnrollmentHandler serves parent enrollment flows.
type EnrollmentHandler struct {
	service enrollmentService
}

func NewEnrollmentHandler(svc enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{service: svc}
}

// Enroll godoc
// @Summary Enroll a student
// @Description Registers a child with a payment receipt and issues the student QR code
// @Tags Enrollment
// @Accept json
// @Produce json
// @Param payload body models.EnrollRequest true "Enrollment"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.EnrollRequest
	if !bindJSON(c, &req, "invalid enrollment payload") {
		return
	}
	res, err := h.service.Enroll(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// AddSubjects godoc
// @Summary Add subjects to a student
// @Tags Enrollment
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body models.AddSubjectsRequest true "Subjects"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/subjects [post]
func (h *EnrollmentHandler) AddSubjects(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.AddSubjectsRequest
	if !bindJSON(c, &req, "invalid subjects payload") {
		return
	}
	st, err := h.service.AddSubjects(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, st)
}

// Children godoc
// @Summary List the caller's children
// @Tags Enrollment
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *EnrollmentHandler) Children(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	items, err := h.service.Children(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// QRCode godoc
// @Summary Student QR code image
// @Tags Enrollment
// @Produce png
// @Param id path string true "Student ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/qr [get]
func (h *EnrollmentHandler) QRCode(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	png, err := h.service.QRCode(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, "image/png", png)
}

// SubmitMonthly godoc
// @Summary Submit a monthly fee payment
// @Description One payment per student and month; the admin is notified for review
// @Tags Enrollment
// @Accept json
// @Produce json
// @Param payload body models.MonthlyPaymentRequest true "Monthly payment"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /payments/monthly [post]
func (h *EnrollmentHandler) SubmitMonthly(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.MonthlyPaymentRequest
	if !bindJSON(c, &req, "invalid payment payload") {
		return
	}
	p, err := h.service.SubmitMonthly(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, p)
}

// Payments godoc
// @Summary List the parent's payments
// @Tags Enrollment
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /payments/mine [get]
func (h *EnrollmentHandler) Payments(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	items, err := h.service.Payments(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items, map[string]interface{}{"count": len(items)})
}
