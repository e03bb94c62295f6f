package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tuition-center-api/internal/models"
	"github.com/noah-isme/tuition-center-api/pkg/response"
)

type paymentService interface {
	List(ctx context.Context, status models.PaymentStatus) ([]models.Payment, error)
	Review(ctx context.Context, reviewer models.Actor, paymentID string, approve bool) (*models.Payment, error)
}

// PaymentHandler exposes admin payment review.
type PaymentHandler struct {
	service paymentService
}

func NewPaymentHandler(svc paymentService) *PaymentHandler {
	return &PaymentHandler{service: svc}
}

// List godoc
// @Summary List payments
// @Tags Payments
// @Produce json
// @Param status query string false "Pending Approval, Approved or Rejected"
// @Success 200 {object} response.Envelope
// @Router /payments [get]
func (h *PaymentHandler) List(c *gin.Context) {
	items, err := h.service.List(c.Request.Context(), models.PaymentStatus(c.Query("status")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items, map[string]interface{}{"count": len(items)})
}

// Approve godoc
// @Summary Approve a payment
// @Tags Payments
// @Produce json
// @Param id path string true "Payment ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /payments/{id}/approve [post]
func (h *PaymentHandler) Approve(c *gin.Context) {
	h.review(c, true)
}

// Reject godoc
// @Summary Reject a payment
// @Tags Payments
// @Produce json
// @Param id path string true "Payment ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /payments/{id}/reject [post]
func (h *PaymentHandler) Reject(c *gin.Context) {
	h.review(c, false)
}

func (h *PaymentHandler) review(c *gin.Context, approve bool) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	p, err := h.service.Review(c.Request.Context(), actor, c.Param("id"), approve)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, p)
}
