package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/clinchat/backend/internal/audit"
	"github.com/clinchat/backend/internal/service"
	"github.com/clinchat/backend/pkg/model"
)

// ConversationHandler implements conversation and messaging endpoints
type ConversationHandler struct {
	service *service.ChatService
	audit   *audit.Logger
	logger  *zap.Logger
}

// NewConversationHandler creates a new ConversationHandler
func NewConversationHandler(service *service.ChatService, auditLogger *audit.Logger, logger *zap.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: service,
		audit:   auditLogger,
		logger:  logger,
	}
}

// CreateConversationRequest is the request body for starting a free conversation
type CreateConversationRequest struct {
	ModelID      string `json:"model_id" binding:"required"`
	Title        string `json:"title"`
	SystemPrompt string `json:"system_prompt"`
}

// SendMessageRequest is the request body for sending a chat message
type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// SaveSelectionRequest is the request body for saving a text excerpt
type SaveSelectionRequest struct {
	SelectionText string   `json:"selection_text" binding:"required"`
	MessageIDs    []string `json:"message_ids"`
	Note          string   `json:"note"`
}

// CreateConversation starts a conversation outside any window
func (h *ConversationHandler) CreateConversation(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}

	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, h.logger, err)
		return
	}

	conv, err := h.service.CreateConversation(c.Request.Context(), actor, req.ModelID, req.Title, req.SystemPrompt)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	recordAudit(c, h.audit, actor, audit.OperationCreate, audit.ResourceConversation, conv.ID)
	c.JSON(http.StatusCreated, conv)
}

// ListConversations lists the acting user's conversations
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}

	conversations, err := h.service.ListConversations(c.Request.Context(), actor)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations, "total_count": len(conversations)})
}

// GetConversation retrieves a single conversation
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}

	conv, err := h.service.GetConversation(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// GetHistory retrieves a conversation's full message history
func (h *ConversationHandler) GetHistory(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}

	messages, err := h.service.GetHistory(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages, "total_count": len(messages)})
}

// DeleteConversation hides a conversation from the owner's list. Messages are
// kept for window reports.
func (h *ConversationHandler) DeleteConversation(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}

	if err := h.service.HideConversation(c.Request.Context(), actor, c.Param("id")); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	recordAudit(c, h.audit, actor, audit.OperationDelete, audit.ResourceConversation, c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// SendMessage appends a user message and returns the stored exchange
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, h.logger, err)
		return
	}

	result, err := h.service.SendMessage(c.Request.Context(), actor, c.Param("id"), req.Content)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	h.logger.Info("message sent",
		zap.String("conversation_id", c.Param("id")),
		zap.String("user_id", actor.ID),
	)
	recordAudit(c, h.audit, actor, audit.OperationCreate, audit.ResourceMessage, result.UserMessage.ID)
	c.JSON(http.StatusOK, result)
}

// SaveSelection stores a text excerpt from a conversation
func (h *ConversationHandler) SaveSelection(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}

	var req SaveSelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, h.logger, err)
		return
	}

	sel := &model.SavedSelection{
		ConversationID: c.Param("id"),
		SelectionText:  req.SelectionText,
		MessageIDs:     req.MessageIDs,
		Note:           req.Note,
	}
	if err := h.service.SaveSelection(c.Request.Context(), actor, sel); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	recordAudit(c, h.audit, actor, audit.OperationCreate, audit.ResourceSavedSelection, sel.ID)
	c.JSON(http.StatusCreated, sel)
}

// ListSelections lists a conversation's saved selections
func (h *ConversationHandler) ListSelections(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}

	selections, err := h.service.ListSelections(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"selections": selections, "total_count": len(selections)})
}

// DeleteSelection removes a saved selection
func (h *ConversationHandler) DeleteSelection(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}

	if err := h.service.DeleteSelection(c.Request.Context(), actor, c.Param("selectionId")); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	recordAudit(c, h.audit, actor, audit.OperationDelete, audit.ResourceSavedSelection, c.Param("selectionId"))
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// ListModels lists models that are currently available to chat with
func (h *ConversationHandler) ListModels(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}

	models, err := h.service.ListAvailableModels(c.Request.Context(), actor)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": models, "total_count": len(models)})
}
