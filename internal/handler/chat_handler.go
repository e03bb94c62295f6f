package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tuition-center-api/internal/models"
	"github.com/noah-isme/tuition-center-api/pkg/response"
)

type chatService interface {
	Send(ctx context.Context, sender models.Actor, req models.SendChatRequest) (*models.ChatMessage, error)
	Conversation(ctx context.Context, actor models.Actor, counterpartID string) ([]models.ChatMessage, error)
	Threads(ctx context.Context, actor models.Actor) ([]models.ChatThread, error)
}

// ChatHandler serves teacher and parent messaging.
type ChatHandler struct {
	service chatService
}

func NewChatHandler(svc chatService) *ChatHandler {
	return &ChatHandler{service: svc}
}

// Send godoc
// @Summary Send a chat message
// @Description Teachers address a student's parent; parents address a teacher
// @Tags Chat
// @Accept json
// @Produce json
// @Param payload body models.SendChatRequest true "Message"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /chats [post]
func (h *ChatHandler) Send(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.SendChatRequest
	if !bindJSON(c, &req, "invalid message payload") {
		return
	}
	msg, err := h.service.Send(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, msg)
}

// Threads godoc
// @Summary List chat threads
// @Tags Chat
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /chats [get]
func (h *ChatHandler) Threads(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	items, err := h.service.Threads(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items, map[string]interface{}{"count": len(items)})
}

// Conversation godoc
// @Summary Messages with one teacher or parent
// @Tags Chat
// @Produce json
// @Param id path string true "Teacher ID for parents, parent ID for teachers"
// @Success 200 {object} response.Envelope
// @Router /chats/{id} [get]
func (h *ChatHandler) Conversation(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	items, err := h.service.Conversation(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items, map[string]interface{}{"count": len(items)})
}
