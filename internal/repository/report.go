package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/clinchat/backend/pkg/model"
)

// ReportRepository manages generated window reports
type ReportRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewReportRepository creates a new ReportRepository
func NewReportRepository(db *pgxpool.Pool, logger *zap.Logger) *ReportRepository {
	return &ReportRepository{
		db:     db,
		logger: logger,
	}
}

// CreateReport stores a generated report. Contention errors pass through
// unwrapped checks so callers can classify them with IsTransient.
func (r *ReportRepository) CreateReport(ctx context.Context, report *model.Report) error {
	query := `
		INSERT INTO reports (id, window_id, patient_id, provider_id, report_type, report_data, file_path, generated_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`

	_, err := r.db.Exec(ctx, query,
		report.ID,
		report.WindowID,
		report.PatientID,
		report.ProviderID,
		report.ReportType,
		report.Payload,
		report.FilePath,
		report.GeneratedAt,
	)

	if err != nil {
		r.logger.Error("failed to create report",
			zap.Error(err),
			zap.String("report_id", report.ID),
			zap.String("window_id", report.WindowID),
		)
		return fmt.Errorf("failed to create report: %w", err)
	}

	return nil
}

// GetReport retrieves a report by ID
func (r *ReportRepository) GetReport(ctx context.Context, reportID string) (*model.Report, error) {
	query := `
		SELECT id, window_id, patient_id, provider_id, report_type, report_data, file_path, generated_at, created_at
		FROM reports
		WHERE id = $1
	`

	report, err := scanReport(r.db.QueryRow(ctx, query, reportID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("report %s: %w", reportID, ErrNotFound)
		}
		r.logger.Error("failed to get report", zap.Error(err), zap.String("report_id", reportID))
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	return report, nil
}

// GetReportByWindow retrieves the report generated for a window, if any
func (r *ReportRepository) GetReportByWindow(ctx context.Context, windowID string) (*model.Report, error) {
	query := `
		SELECT id, window_id, patient_id, provider_id, report_type, report_data, file_path, generated_at, created_at
		FROM reports
		WHERE window_id = $1
		ORDER BY generated_at DESC
		LIMIT 1
	`

	report, err := scanReport(r.db.QueryRow(ctx, query, windowID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("report for window %s: %w", windowID, ErrNotFound)
		}
		r.logger.Error("failed to get window report", zap.Error(err), zap.String("window_id", windowID))
		return nil, fmt.Errorf("failed to get window report: %w", err)
	}

	return report, nil
}

// ListReportsByPatient retrieves a patient's reports, newest first
func (r *ReportRepository) ListReportsByPatient(ctx context.Context, patientID string) ([]model.Report, error) {
	query := `
		SELECT id, window_id, patient_id, provider_id, report_type, report_data, file_path, generated_at, created_at
		FROM reports
		WHERE patient_id = $1
		ORDER BY generated_at DESC
	`

	rows, err := r.db.Query(ctx, query, patientID)
	if err != nil {
		r.logger.Error("failed to list patient reports", zap.Error(err), zap.String("patient_id", patientID))
		return nil, fmt.Errorf("failed to list patient reports: %w", err)
	}
	defer rows.Close()

	return r.collectReports(rows)
}

// ListReportsByProvider retrieves reports for windows a provider created,
// newest first
func (r *ReportRepository) ListReportsByProvider(ctx context.Context, providerID string) ([]model.Report, error) {
	query := `
		SELECT id, window_id, patient_id, provider_id, report_type, report_data, file_path, generated_at, created_at
		FROM reports
		WHERE provider_id = $1
		ORDER BY generated_at DESC
	`

	rows, err := r.db.Query(ctx, query, providerID)
	if err != nil {
		r.logger.Error("failed to list provider reports", zap.Error(err), zap.String("provider_id", providerID))
		return nil, fmt.Errorf("failed to list provider reports: %w", err)
	}
	defer rows.Close()

	return r.collectReports(rows)
}

// ListAllReports retrieves every report, newest first. Admin only.
func (r *ReportRepository) ListAllReports(ctx context.Context) ([]model.Report, error) {
	query := `
		SELECT id, window_id, patient_id, provider_id, report_type, report_data, file_path, generated_at, created_at
		FROM reports
		ORDER BY generated_at DESC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.logger.Error("failed to list reports", zap.Error(err))
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	return r.collectReports(rows)
}

// UpdateReportFilePath records the blob archive location after upload
func (r *ReportRepository) UpdateReportFilePath(ctx context.Context, reportID, filePath string) error {
	result, err := r.db.Exec(ctx, `UPDATE reports SET file_path = $1 WHERE id = $2`, filePath, reportID)
	if err != nil {
		r.logger.Error("failed to update report file path", zap.Error(err), zap.String("report_id", reportID))
		return fmt.Errorf("failed to update report file path: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("report %s: %w", reportID, ErrNotFound)
	}

	return nil
}

func scanReport(row rowScanner) (*model.Report, error) {
	var report model.Report
	err := row.Scan(
		&report.ID,
		&report.WindowID,
		&report.PatientID,
		&report.ProviderID,
		&report.ReportType,
		&report.Payload,
		&report.FilePath,
		&report.GeneratedAt,
		&report.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *ReportRepository) collectReports(rows pgx.Rows) ([]model.Report, error) {
	var reports []model.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			r.logger.Error("failed to scan report", zap.Error(err))
			continue
		}
		reports = append(reports, *report)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("error iterating reports", zap.Error(err))
		return nil, fmt.Errorf("error iterating reports: %w", err)
	}

	return reports, nil
}
