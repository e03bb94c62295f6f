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

type materialService interface {
	Upload(ctx context.Context, teacher models.Actor, req models.UploadMaterialRequest) (*service.MaterialUploadResult, error)
	List(ctx context.Context, filter models.MaterialFilter) ([]models.Material, error)
}

// MaterialHandler serves study materials.
type MaterialHandler struct {
	service materialService
}

func NewMaterialHandler(svc materialService) *MaterialHandler {
	return &MaterialHandler{service: svc}
}

// Upload godoc
// @Summary Upload study material
// @Description Stores the material for the teacher's subject and notifies students of the grade
// @Tags Materials
// @Accept json
// @Produce json
// @Param payload body models.UploadMaterialRequest true "Material"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /materials [post]
func (h *MaterialHandler) Upload(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.UploadMaterialRequest
	if !bindJSON(c, &req, "invalid material payload") {
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
// @Summary List study materials
// @Tags Materials
// @Produce json
// @Param grade query int false "Grade"
// @Param subject query string false "Subject"
// @Success 200 {object} response.Envelope
// @Router /materials [get]
func (h *MaterialHandler) List(c *gin.Context) {
	var filter models.MaterialFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	items, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items, map[string]interface{}{"count": len(items)})
}
