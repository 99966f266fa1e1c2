package handler

import (
	"github.com/gin-gonic/gin"
)

// Handlers bundles every endpoint handler for route registration
type Handlers struct {
	Window       *WindowHandler
	Conversation *ConversationHandler
	Report       *ReportHandler
	Settings     *SettingsHandler
	Health       *HealthHandler
}

// RegisterRoutes wires all API routes onto the router. The identity middleware
// must run on everything except the health check.
func RegisterRoutes(r *gin.Engine, h Handlers, identity gin.HandlerFunc) {
	r.GET("/health", h.Health.GetHealth)

	v1 := r.Group("/api/v1", identity)

	v1.POST("/windows", h.Window.CreateWindow)
	v1.GET("/windows", h.Window.ListProviderWindows)
	v1.GET("/windows/:id", h.Window.GetWindow)
	v1.PUT("/windows/:id", h.Window.UpdateWindow)
	v1.DELETE("/windows/:id", h.Window.DeleteWindow)
	v1.POST("/windows/:id/templates", h.Window.CreateTemplate)
	v1.GET("/windows/:id/templates", h.Window.ListTemplates)
	v1.POST("/windows/:id/templates/:templateId/conversation", h.Window.StartTemplateConversation)
	v1.GET("/patients/:patientId/windows", h.Window.ListPatientWindows)

	v1.POST("/conversations", h.Conversation.CreateConversation)
	v1.GET("/conversations", h.Conversation.ListConversations)
	v1.GET("/conversations/:id", h.Conversation.GetConversation)
	v1.DELETE("/conversations/:id", h.Conversation.DeleteConversation)
	v1.GET("/conversations/:id/messages", h.Conversation.GetHistory)
	v1.POST("/conversations/:id/messages", h.Conversation.SendMessage)
	v1.POST("/conversations/:id/selections", h.Conversation.SaveSelection)
	v1.GET("/conversations/:id/selections", h.Conversation.ListSelections)
	v1.DELETE("/selections/:selectionId", h.Conversation.DeleteSelection)
	v1.GET("/models", h.Conversation.ListModels)

	v1.POST("/windows/:id/report", h.Report.GenerateReport)
	v1.GET("/windows/:id/report", h.Report.GetWindowReport)
	v1.GET("/reports", h.Report.ListReports)
	v1.GET("/reports/:id", h.Report.GetReport)

	v1.PUT("/settings", h.Settings.UpsertSettings)
	v1.GET("/providers/:providerId/patients/:patientId/settings", h.Settings.GetSettings)
}
