package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/clinchat/backend/internal/repository"
	"github.com/clinchat/backend/pkg/model"
)

// ReportRepositoryInterface defines the interface for report data access
type ReportRepositoryInterface interface {
	GetReport(ctx context.Context, reportID string) (*model.Report, error)
	GetReportByWindow(ctx context.Context, windowID string) (*model.Report, error)
	ListReportsByPatient(ctx context.Context, patientID string) ([]model.Report, error)
	ListReportsByProvider(ctx context.Context, providerID string) ([]model.Report, error)
	ListAllReports(ctx context.Context) ([]model.Report, error)
}

// ReportWindowLookup is the slice of window storage the report service needs
type ReportWindowLookup interface {
	GetWindow(ctx context.Context, windowID string) (*model.ChatWindow, error)
	UpdateWindowStatus(ctx context.Context, windowID string, status model.WindowStatus) error
}

// ReportService exposes generated reports with access control and supports
// manually triggering generation for an ended window
type ReportService struct {
	reports ReportRepositoryInterface
	windows ReportWindowLookup
	saver   ReportSaver
	access  *AccessService
	logger  *zap.Logger
	now     func() time.Time
}

// NewReportService creates a new ReportService
func NewReportService(reports ReportRepositoryInterface, windows ReportWindowLookup, saver ReportSaver, access *AccessService, logger *zap.Logger) *ReportService {
	return &ReportService{
		reports: reports,
		windows: windows,
		saver:   saver,
		access:  access,
		logger:  logger,
		now:     time.Now,
	}
}

// GetReport retrieves a report the actor may read
func (s *ReportService) GetReport(ctx context.Context, actor *model.User, reportID string) (*model.Report, error) {
	report, err := s.reports.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	return s.authorize(ctx, actor, report)
}

// GetReportForWindow retrieves the report generated for a window
func (s *ReportService) GetReportForWindow(ctx context.Context, actor *model.User, windowID string) (*model.Report, error) {
	report, err := s.reports.GetReportByWindow(ctx, windowID)
	if err != nil {
		return nil, err
	}
	return s.authorize(ctx, actor, report)
}

// ListReports lists reports scoped to the actor's role: admins see all,
// providers their windows' reports, patients their own
func (s *ReportService) ListReports(ctx context.Context, actor *model.User) ([]model.Report, error) {
	if actor == nil {
		return nil, ErrForbidden
	}

	switch {
	case actor.IsAdmin():
		return s.reports.ListAllReports(ctx)
	case actor.IsProvider():
		return s.reports.ListReportsByProvider(ctx, actor.ID)
	default:
		return s.reports.ListReportsByPatient(ctx, actor.ID)
	}
}

// GenerateReport manually triggers generation for an ended window. Rejected
// if the window is still open or a report already exists; a second generate
// call never overwrites or versions the first report.
func (s *ReportService) GenerateReport(ctx context.Context, actor *model.User, windowID string) (*model.Report, error) {
	window, err := s.windows.GetWindow(ctx, windowID)
	if err != nil {
		return nil, err
	}
	if actor == nil || (!actor.IsAdmin() && !(actor.IsProvider() && actor.ID == window.ProviderID)) {
		return nil, ErrForbidden
	}

	status := ComputeStatus(window, s.now())
	if status == model.WindowStatusScheduled || status == model.WindowStatusActive {
		return nil, ErrWindowNotEnded
	}

	if _, err := s.reports.GetReportByWindow(ctx, windowID); err == nil {
		return nil, ErrReportExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	report, err := s.saver.SaveReport(ctx, windowID)
	if err != nil {
		return nil, err
	}

	if err := s.windows.UpdateWindowStatus(ctx, windowID, model.WindowStatusReportReady); err != nil {
		s.logger.Warn("failed to mark window report_ready after manual generation",
			zap.Error(err),
			zap.String("window_id", windowID),
		)
	}

	s.logger.Info("report generated manually",
		zap.String("report_id", report.ID),
		zap.String("window_id", windowID),
		zap.String("actor_id", actor.ID),
	)
	return report, nil
}

func (s *ReportService) authorize(ctx context.Context, actor *model.User, report *model.Report) (*model.Report, error) {
	ok, err := s.access.CanAccessPatientData(ctx, actor, report.PatientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForbidden
	}
	return report, nil
}
