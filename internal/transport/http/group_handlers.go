package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/wirechat-server/internal/core"
	"github.com/vovakirdan/wirechat-server/internal/proto"
)

// GroupHandlers serves group listings over REST.
type GroupHandlers struct {
	hub *core.Hub
	log *zerolog.Logger
}

// NewGroupHandlers creates a new group handlers instance.
func NewGroupHandlers(hub *core.Hub, logger *zerolog.Logger) *GroupHandlers {
	return &GroupHandlers{hub: hub, log: logger}
}

// ListGroups handles GET /api/groups.
func (h *GroupHandlers) ListGroups(c *gin.Context) {
	groups, err := h.hub.Groups(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list groups")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, lo.Map(groups, func(g core.GroupSummary, _ int) proto.Group {
		return proto.Group{ID: g.ID, Name: g.Name}
	}))
}
