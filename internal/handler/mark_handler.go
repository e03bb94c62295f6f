package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tuition-center-api/internal/models"
	"github.com/noah-isme/tuition-center-api/internal/service"
	appErrors "github.com/noah-isme/tuition-center-api/pkg/errors"
	"github.com/noah-isme/tuition-center-api/pkg/response"
)

type markService interface {
	Upload(ctx context.Context, teacher models.Actor, req models.UploadMarksRequest) (*service.MarksUploadResult, error)
	List(ctx context.Context, teacher models.Actor, filter models.MarkFilter) ([]models.Mark, error)
	ReportCard(ctx context.Context, actor models.Actor, studentID string, term models.Term) (*models.ReportCard, error)
}

// MarkHandler serves term marks and report cards.
type MarkHandler struct {
	service markService
}

func NewMarkHandler(svc markService) *MarkHandler {
	return &MarkHandler{service: svc}
}

// Upload godoc
// @Summary Upload term marks
// @Description Stores marks for the teacher's subject and notifies each student
// @Tags Marks
// @Accept json
// @Produce json
// @Param payload body models.UploadMarksRequest true "Marks"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /marks [post]
func (h *MarkHandler) Upload(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.UploadMarksRequest
	if !bindJSON(c, &req, "invalid marks payload") {
		return
	}
	res, err := h.service.Upload(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// List godoc
// @Summary List marks for the teacher's subject
// @Tags Marks
// @Produce json
// @Param grade query int false "Grade"
// @Param term query string false "Term"
// @Success 200 {object} response.Envelope
// @Router /marks [get]
func (h *MarkHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var filter models.MarkFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	items, err := h.service.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items, map[string]interface{}{"count": len(items)})
}

// ReportCard godoc
// @Summary Student report card
// @Tags Marks
// @Produce json
// @Param id path string true "Student ID"
// @Param term query string true "Term"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /students/{id}/report-card [get]
func (h *MarkHandler) ReportCard(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	card, err := h.service.ReportCard(c.Request.Context(), actor, c.Param("id"), models.Term(c.Query("term")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, card)
}
