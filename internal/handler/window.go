package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/clinchat/backend/internal/audit"
	"github.com/clinchat/backend/internal/service"
	"github.com/clinchat/backend/pkg/model"
)

// WindowHandler implements chat window and template endpoints
type WindowHandler struct {
	service *service.WindowService
	audit   *audit.Logger
	logger  *zap.Logger
}

// NewWindowHandler creates a new WindowHandler
func NewWindowHandler(service *service.WindowService, auditLogger *audit.Logger, logger *zap.Logger) *WindowHandler {
	return &WindowHandler{
		service: service,
		audit:   auditLogger,
		logger:  logger,
	}
}

// CreateWindowRequest is the request body for creating a chat window
type CreateWindowRequest struct {
	PatientID    string             `json:"patient_id" binding:"required"`
	Title        string             `json:"title" binding:"required"`
	Description  string             `json:"description"`
	StartTime    time.Time          `json:"start_time" binding:"required"`
	EndTime      time.Time          `json:"end_time" binding:"required"`
	ReportConfig model.ReportConfig `json:"report_config"`
}

// UpdateWindowRequest is the request body for editing a chat window
type UpdateWindowRequest struct {
	Title        string             `json:"title" binding:"required"`
	Description  string             `json:"description"`
	StartTime    time.Time          `json:"start_time" binding:"required"`
	EndTime      time.Time          `json:"end_time" binding:"required"`
	Visible      *bool              `json:"visible"`
	ReportConfig model.ReportConfig `json:"report_config"`
}

// CreateTemplateRequest is the request body for adding a chat template
type CreateTemplateRequest struct {
	Title              string  `json:"title" binding:"required"`
	ModelID            string  `json:"model_id" binding:"required"`
	SystemPromptID     *string `json:"system_prompt_id"`
	CustomSystemPrompt string  `json:"custom_system_prompt"`
	MaxMessages        *int    `json:"max_messages"`
	OrderIndex         int     `json:"order_index"`
}

// CreateWindow creates a chat window for a patient
func (h *WindowHandler) CreateWindow(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}

	var req CreateWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, h.logger, err)
		return
	}

	window := &model.ChatWindow{
		PatientID:    req.PatientID,
		Title:        req.Title,
		Description:  req.Description,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		ReportConfig: req.ReportConfig,
	}
	if err := h.service.CreateWindow(c.Request.Context(), actor, window); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	h.logger.Info("window created",
		zap.String("window_id", window.ID),
		zap.String("user_id", actor.ID),
	)
	recordAudit(c, h.audit, actor, audit.OperationCreate, audit.ResourceChatWindow, window.ID)
	c.JSON(http.StatusCreated, window)
}

// GetWindow retrieves a single chat window
func (h *WindowHandler) GetWindow(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}

	window, err := h.service.GetWindow(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, window)
}

// ListPatientWindows lists a patient's chat windows
func (h *WindowHandler) ListPatientWindows(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}

	windows, err := h.service.ListWindowsForPatient(c.Request.Context(), actor, c.Param("patientId"))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"windows": windows, "total_count": len(windows)})
}

// ListProviderWindows lists windows created by the acting provider
func (h *WindowHandler) ListProviderWindows(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}

	windows, err := h.service.ListWindowsForProvider(c.Request.Context(), actor)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"windows": windows, "total_count": len(windows)})
}

// UpdateWindow applies edits to a chat window
func (h *WindowHandler) UpdateWindow(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}

	var req UpdateWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, h.logger, err)
		return
	}

	ctx := c.Request.Context()
	existing, err := h.service.GetWindow(ctx, actor, c.Param("id"))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	existing.Title = req.Title
	existing.Description = req.Description
	existing.StartTime = req.StartTime
	existing.EndTime = req.EndTime
	if req.Visible != nil {
		existing.Visible = *req.Visible
	}
	if req.ReportConfig != nil {
		existing.ReportConfig = req.ReportConfig
	}

	if err := h.service.UpdateWindow(ctx, actor, existing); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	recordAudit(c, h.audit, actor, audit.OperationUpdate, audit.ResourceChatWindow, existing.ID)
	c.JSON(http.StatusOK, existing)
}

// DeleteWindow removes a window, or hides it when chat activity exists
func (h *WindowHandler) DeleteWindow(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}

	deleted, err := h.service.RemoveWindow(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	if deleted {
		recordAudit(c, h.audit, actor, audit.OperationDelete, audit.ResourceChatWindow, c.Param("id"))
		c.JSON(http.StatusOK, gin.H{"deleted": true})
		return
	}
	recordAudit(c, h.audit, actor, audit.OperationUpdate, audit.ResourceChatWindow, c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"deleted": false, "message": "Window has conversations and was hidden instead"})
}

// CreateTemplate adds a chat template to a window
func (h *WindowHandler) CreateTemplate(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}

	var req CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, h.logger, err)
		return
	}

	tmpl := &model.ChatTemplate{
		WindowID:           c.Param("id"),
		Title:              req.Title,
		ModelID:            req.ModelID,
		SystemPromptID:     req.SystemPromptID,
		CustomSystemPrompt: req.CustomSystemPrompt,
		MaxMessages:        req.MaxMessages,
		OrderIndex:         req.OrderIndex,
	}
	if err := h.service.CreateTemplate(c.Request.Context(), actor, tmpl); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	recordAudit(c, h.audit, actor, audit.OperationCreate, audit.ResourceChatTemplate, tmpl.ID)
	c.JSON(http.StatusCreated, tmpl)
}

// ListTemplates lists a window's chat templates
func (h *WindowHandler) ListTemplates(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}

	templates, err := h.service.ListTemplates(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates, "total_count": len(templates)})
}

// StartTemplateConversation opens the patient's conversation for a template
func (h *WindowHandler) StartTemplateConversation(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}

	conv, err := h.service.StartConversationFromTemplate(c.Request.Context(), actor, c.Param("id"), c.Param("templateId"))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	h.logger.Info("template conversation opened",
		zap.String("conversation_id", conv.ID),
		zap.String("user_id", actor.ID),
	)
	recordAudit(c, h.audit, actor, audit.OperationCreate, audit.ResourceConversation, conv.ID)
	c.JSON(http.StatusOK, conv)
}
