package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tuition-center-api/internal/models"
	appErrors "github.com/noah-isme/tuition-center-api/pkg/errors"
	"github.com/noah-isme/tuition-center-api/pkg/response"
)

type notificationService interface {
	Broadcast(ctx context.Context, author models.Actor, req models.BroadcastRequest) (*models.BroadcastResult, error)
	Sent(ctx context.Context, author models.Actor) ([]models.Announcement, error)
	ListFor(ctx context.Context, actor models.Actor, filter models.NotificationFilter) ([]models.Notification, error)
}

// NotificationHandler serves announcements and notification feeds.
type NotificationHandler struct {
	service notificationService
}

func NewNotificationHandler(svc notificationService) *NotificationHandler {
	return &NotificationHandler{service: svc}
}

// Broadcast godoc
// @Summary Broadcast announcement
// @Description Admins target teachers or students; teachers reach students of their own subject
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body models.BroadcastRequest true "Announcement"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /announcements [post]
func (h *NotificationHandler) Broadcast(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.BroadcastRequest
	if !bindJSON(c, &req, "invalid announcement payload") {
		return
	}
	res, err := h.service.Broadcast(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Sent godoc
// @Summary Announcements sent by the caller
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /announcements/sent [get]
func (h *NotificationHandler) Sent(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	items, err := h.service.Sent(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items, map[string]interface{}{"count": len(items)})
}

// List godoc
// @Summary List notifications for the caller
// @Tags Notifications
// @Produce json
// @Param type query string false "announcement, material, payment or enrollment"
// @Param limit query int false "Maximum items"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var filter models.NotificationFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	items, err := h.service.ListFor(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items, map[string]interface{}{"count": len(items)})
}
