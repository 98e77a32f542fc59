package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"employee_directory/internal/domain"
	"employee_directory/internal/service"
	"employee_directory/pkg/logger"
)

type GroupHandler struct {
	groupService service.GroupService
	log          logger.Logger
}

func NewGroupHandler(groupService service.GroupService, log logger.Logger) *GroupHandler {
	return &GroupHandler{
		groupService: groupService,
		log:          log,
	}
}

func (h *GroupHandler) List(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}

	groups, err := h.groupService.List(c.Request.Context(), who.UserID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if groups == nil {
		groups = []*domain.Group{}
	}
	c.JSON(http.StatusOK, groups)
}

func (h *GroupHandler) Create(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}

	var req domain.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	group, err := h.groupService.Create(c.Request.Context(), who.UserID, req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, group)
}

func (h *GroupHandler) MarkRead(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, err)
		return
	}

	if err := h.groupService.MarkRead(c.Request.Context(), groupID, who.UserID); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
