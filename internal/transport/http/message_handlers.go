package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/wirechat-server/internal/core"
	"github.com/vovakirdan/wirechat-server/internal/proto"
)

// MessageHandlers serves message history and read receipts over REST.
type MessageHandlers struct {
	hub *core.Hub
	log *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(hub *core.Hub, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{hub: hub, log: logger}
}

// DirectHistory handles GET /api/messages/:receiver.
func (h *MessageHandlers) DirectHistory(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	history, err := h.hub.ChatHistory(c.Request.Context(), userID, c.Param("receiver"))
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("failed to load chat history")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, lo.Map(history, func(m core.DirectMessage, _ int) proto.DirectMessage {
		return directMessage(m)
	}))
}

// GroupHistory handles GET /api/messages/group/:groupId.
func (h *MessageHandlers) GroupHistory(c *gin.Context) {
	groupID := c.Param("groupId")
	history, err := h.hub.GroupChatHistory(c.Request.Context(), groupID)
	if err != nil {
		h.log.Error().Err(err).Str("group_id", groupID).Msg("failed to load group history")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, lo.Map(history, func(m core.GroupMessage, _ int) proto.GroupMessage {
		return groupMessage(m)
	}))
}

// MarkRead handles PATCH /api/messages/:messageId/read.
func (h *MessageHandlers) MarkRead(c *gin.Context) {
	messageID := c.Param("messageId")
	msg, err := h.hub.MarkDirectMessageRead(c.Request.Context(), messageID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "message not found"})
			return
		}
		h.log.Error().Err(err).Str("message_id", messageID).Msg("failed to mark message read")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, directMessage(*msg))
}
