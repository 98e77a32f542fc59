package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"employee_directory/internal/domain"
	"employee_directory/internal/service"
	"employee_directory/pkg/logger"
)

type MessageHandler struct {
	messageService service.MessageService
	log            logger.Logger
}

func NewMessageHandler(messageService service.MessageService, log logger.Logger) *MessageHandler {
	return &MessageHandler{
		messageService: messageService,
		log:            log,
	}
}

func (h *MessageHandler) List(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, err)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	messages, err := h.messageService.List(c.Request.Context(), groupID, who.UserID, limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if messages == nil {
		messages = []*domain.Message{}
	}
	c.JSON(http.StatusOK, messages)
}

func (h *MessageHandler) Create(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, err)
		return
	}

	var req domain.CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	message, err := h.messageService.Create(c.Request.Context(), groupID, who, req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, message)
}

func (h *MessageHandler) Update(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	messageID, err := strconv.ParseInt(c.Param("messageId"), 10, 64)
	if err != nil {
		badRequest(c, err)
		return
	}

	var req domain.UpdateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	message, err := h.messageService.Edit(c.Request.Context(), messageID, who.UserID, req.Content)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, message)
}

func (h *MessageHandler) Delete(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	messageID, err := strconv.ParseInt(c.Param("messageId"), 10, 64)
	if err != nil {
		badRequest(c, err)
		return
	}

	message, err := h.messageService.Delete(c.Request.Context(), messageID, who.UserID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, message)
}
