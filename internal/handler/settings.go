package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/clinchat/backend/internal/audit"
	"github.com/clinchat/backend/internal/service"
	"github.com/clinchat/backend/pkg/model"
)

// SettingsHandler implements provider settings endpoints
type SettingsHandler struct {
	service *service.SettingsService
	audit   *audit.Logger
	logger  *zap.Logger
}

// NewSettingsHandler creates a new SettingsHandler
func NewSettingsHandler(service *service.SettingsService, auditLogger *audit.Logger, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{
		service: service,
		audit:   auditLogger,
		logger:  logger,
	}
}

// UpsertSettingsRequest is the request body for writing provider settings
type UpsertSettingsRequest struct {
	PatientID          *string  `json:"patient_id"`
	AllowedModelIDs    []string `json:"allowed_model_ids"`
	TimeWindowStart    string   `json:"time_window_start"`
	TimeWindowEnd      string   `json:"time_window_end"`
	MaxMessagesPerDay  *int     `json:"max_messages_per_day"`
	CustomInstructions string   `json:"custom_instructions"`
}

// UpsertSettings stores the acting provider's settings for a patient scope
func (h *SettingsHandler) UpsertSettings(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}

	var req UpsertSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, h.logger, err)
		return
	}

	settings := &model.ProviderSettings{
		ProviderID:         actor.ID,
		PatientID:          req.PatientID,
		AllowedModelIDs:    req.AllowedModelIDs,
		TimeWindowStart:    req.TimeWindowStart,
		TimeWindowEnd:      req.TimeWindowEnd,
		MaxMessagesPerDay:  req.MaxMessagesPerDay,
		CustomInstructions: req.CustomInstructions,
	}
	if err := h.service.UpsertSettings(c.Request.Context(), actor, settings); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	h.logger.Info("settings updated",
		zap.String("provider_id", settings.ProviderID),
		zap.String("user_id", actor.ID),
	)
	recordAudit(c, h.audit, actor, audit.OperationUpdate, audit.ResourceProviderSettings, settings.ID)
	c.JSON(http.StatusOK, settings)
}

// GetSettings resolves the settings governing a patient under a provider
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}

	settings, err := h.service.GetSettings(c.Request.Context(), actor, c.Param("providerId"), c.Param("patientId"))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}
