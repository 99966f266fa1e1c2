package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/clinchat/backend/internal/audit"
	"github.com/clinchat/backend/internal/service"
	"github.com/clinchat/backend/pkg/model"
)

// ReportHandler implements report API endpoints
type ReportHandler struct {
	service *service.ReportService
	audit   *audit.Logger
	logger  *zap.Logger
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(service *service.ReportService, auditLogger *audit.Logger, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{
		service: service,
		audit:   auditLogger,
		logger:  logger,
	}
}

// reportView renders the stored payload as embedded JSON instead of a byte blob
type reportView struct {
	*model.Report
	Payload json.RawMessage `json:"report_data"`
}

func newReportView(rpt *model.Report) reportView {
	return reportView{Report: rpt, Payload: json.RawMessage(rpt.Payload)}
}

// GenerateReport triggers report generation for an ended window
func (h *ReportHandler) GenerateReport(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}

	windowID := c.Param("id")
	rpt, err := h.service.GenerateReport(c.Request.Context(), actor, windowID)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	h.logger.Info("report generated",
		zap.String("report_id", rpt.ID),
		zap.String("window_id", windowID),
		zap.String("user_id", actor.ID),
	)
	recordAudit(c, h.audit, actor, audit.OperationCreate, audit.ResourceReport, rpt.ID)
	c.JSON(http.StatusCreated, newReportView(rpt))
}

// GetWindowReport retrieves the report for a window
func (h *ReportHandler) GetWindowReport(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}

	rpt, err := h.service.GetReportForWindow(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newReportView(rpt))
}

// GetReport retrieves a report by ID
func (h *ReportHandler) GetReport(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}

	rpt, err := h.service.GetReport(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newReportView(rpt))
}

// ListReports lists reports visible to the acting user
func (h *ReportHandler) ListReports(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}

	reports, err := h.service.ListReports(c.Request.Context(), actor)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	views := make([]reportView, 0, len(reports))
	for i := range reports {
		views = append(views, newReportView(&reports[i]))
	}
	c.JSON(http.StatusOK, gin.H{"reports": views, "total_count": len(views)})
}
