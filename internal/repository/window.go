package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/clinchat/backend/pkg/model"
)

// WindowRepository manages chat window and template data
type WindowRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewWindowRepository creates a new WindowRepository
func NewWindowRepository(db *pgxpool.Pool, logger *zap.Logger) *WindowRepository {
	return &WindowRepository{
		db:     db,
		logger: logger,
	}
}

// CreateWindow creates a new chat window
func (r *WindowRepository) CreateWindow(ctx context.Context, window *model.ChatWindow) error {
	configJSON, err := json.Marshal(window.ReportConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal report config: %w", err)
	}

	query := `
		INSERT INTO chat_windows (id, patient_id, provider_id, title, description, start_time, end_time, visible, status, report_config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
	`

	_, err = r.db.Exec(ctx, query,
		window.ID,
		window.PatientID,
		window.ProviderID,
		window.Title,
		window.Description,
		window.StartTime,
		window.EndTime,
		window.Visible,
		window.Status,
		configJSON,
	)

	if err != nil {
		r.logger.Error("failed to create window", zap.Error(err), zap.String("window_id", window.ID))
		return fmt.Errorf("failed to create window: %w", err)
	}

	return nil
}

// GetWindow retrieves a window by ID
func (r *WindowRepository) GetWindow(ctx context.Context, windowID string) (*model.ChatWindow, error) {
	query := `
		SELECT id, patient_id, provider_id, title, description, start_time, end_time, visible, status, report_config, created_at, updated_at
		FROM chat_windows
		WHERE id = $1
	`

	window, err := scanWindow(r.db.QueryRow(ctx, query, windowID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("window %s: %w", windowID, ErrNotFound)
		}
		r.logger.Error("failed to get window", zap.Error(err), zap.String("window_id", windowID))
		return nil, fmt.Errorf("failed to get window: %w", err)
	}

	return window, nil
}

// ListWindowsByPatient retrieves a patient's windows, newest first
func (r *WindowRepository) ListWindowsByPatient(ctx context.Context, patientID string, visibleOnly bool) ([]model.ChatWindow, error) {
	query := `
		SELECT id, patient_id, provider_id, title, description, start_time, end_time, visible, status, report_config, created_at, updated_at
		FROM chat_windows
		WHERE patient_id = $1 AND ($2 = false OR visible = true)
		ORDER BY start_time DESC
	`

	rows, err := r.db.Query(ctx, query, patientID, visibleOnly)
	if err != nil {
		r.logger.Error("failed to list windows", zap.Error(err), zap.String("patient_id", patientID))
		return nil, fmt.Errorf("failed to list windows: %w", err)
	}
	defer rows.Close()

	return collectWindows(rows, r.logger)
}

// ListWindowsByProvider retrieves windows a provider created, newest first
func (r *WindowRepository) ListWindowsByProvider(ctx context.Context, providerID string) ([]model.ChatWindow, error) {
	query := `
		SELECT id, patient_id, provider_id, title, description, start_time, end_time, visible, status, report_config, created_at, updated_at
		FROM chat_windows
		WHERE provider_id = $1
		ORDER BY start_time DESC
	`

	rows, err := r.db.Query(ctx, query, providerID)
	if err != nil {
		r.logger.Error("failed to list windows", zap.Error(err), zap.String("provider_id", providerID))
		return nil, fmt.Errorf("failed to list windows: %w", err)
	}
	defer rows.Close()

	return collectWindows(rows, r.logger)
}

// ListAllWindows retrieves every window. Used by the scheduler sweep.
func (r *WindowRepository) ListAllWindows(ctx context.Context) ([]model.ChatWindow, error) {
	query := `
		SELECT id, patient_id, provider_id, title, description, start_time, end_time, visible, status, report_config, created_at, updated_at
		FROM chat_windows
		ORDER BY end_time ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.logger.Error("failed to list windows", zap.Error(err))
		return nil, fmt.Errorf("failed to list windows: %w", err)
	}
	defer rows.Close()

	return collectWindows(rows, r.logger)
}

// UpdateWindow updates a window's editable fields
func (r *WindowRepository) UpdateWindow(ctx context.Context, window *model.ChatWindow) error {
	configJSON, err := json.Marshal(window.ReportConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal report config: %w", err)
	}

	query := `
		UPDATE chat_windows
		SET title = $1, description = $2, start_time = $3, end_time = $4, visible = $5, report_config = $6, updated_at = NOW()
		WHERE id = $7
	`

	result, err := r.db.Exec(ctx, query,
		window.Title,
		window.Description,
		window.StartTime,
		window.EndTime,
		window.Visible,
		configJSON,
		window.ID,
	)

	if err != nil {
		r.logger.Error("failed to update window", zap.Error(err), zap.String("window_id", window.ID))
		return fmt.Errorf("failed to update window: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("window %s: %w", window.ID, ErrNotFound)
	}

	return nil
}

// UpdateWindowStatus persists a new lifecycle status
func (r *WindowRepository) UpdateWindowStatus(ctx context.Context, windowID string, status model.WindowStatus) error {
	query := `
		UPDATE chat_windows
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.db.Exec(ctx, query, status, windowID)
	if err != nil {
		r.logger.Error("failed to update window status",
			zap.Error(err),
			zap.String("window_id", windowID),
			zap.String("status", string(status)),
		)
		return fmt.Errorf("failed to update window status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("window %s: %w", windowID, ErrNotFound)
	}

	return nil
}

// SetWindowVisibility hides or shows a window without deleting its data
func (r *WindowRepository) SetWindowVisibility(ctx context.Context, windowID string, visible bool) error {
	query := `
		UPDATE chat_windows
		SET visible = $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.db.Exec(ctx, query, visible, windowID)
	if err != nil {
		r.logger.Error("failed to set window visibility", zap.Error(err), zap.String("window_id", windowID))
		return fmt.Errorf("failed to set window visibility: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("window %s: %w", windowID, ErrNotFound)
	}

	return nil
}

// DeleteWindow removes a window permanently
func (r *WindowRepository) DeleteWindow(ctx context.Context, windowID string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM chat_windows WHERE id = $1`, windowID)
	if err != nil {
		r.logger.Error("failed to delete window", zap.Error(err), zap.String("window_id", windowID))
		return fmt.Errorf("failed to delete window: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("window %s: %w", windowID, ErrNotFound)
	}

	return nil
}

// CreateTemplate creates a chat template inside a window
func (r *WindowRepository) CreateTemplate(ctx context.Context, tmpl *model.ChatTemplate) error {
	query := `
		INSERT INTO chat_templates (id, window_id, title, purpose, model_id, system_prompt_id, custom_system_prompt, max_messages, order_index, visible, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
	`

	_, err := r.db.Exec(ctx, query,
		tmpl.ID,
		tmpl.WindowID,
		tmpl.Title,
		tmpl.Purpose,
		tmpl.ModelID,
		tmpl.SystemPromptID,
		tmpl.CustomSystemPrompt,
		tmpl.MaxMessages,
		tmpl.OrderIndex,
		tmpl.Visible,
	)

	if err != nil {
		r.logger.Error("failed to create template", zap.Error(err), zap.String("template_id", tmpl.ID))
		return fmt.Errorf("failed to create template: %w", err)
	}

	return nil
}

// GetTemplate retrieves a template by ID
func (r *WindowRepository) GetTemplate(ctx context.Context, templateID string) (*model.ChatTemplate, error) {
	query := `
		SELECT id, window_id, title, purpose, model_id, system_prompt_id, custom_system_prompt, max_messages, order_index, visible, created_at
		FROM chat_templates
		WHERE id = $1
	`

	var tmpl model.ChatTemplate
	err := r.db.QueryRow(ctx, query, templateID).Scan(
		&tmpl.ID,
		&tmpl.WindowID,
		&tmpl.Title,
		&tmpl.Purpose,
		&tmpl.ModelID,
		&tmpl.SystemPromptID,
		&tmpl.CustomSystemPrompt,
		&tmpl.MaxMessages,
		&tmpl.OrderIndex,
		&tmpl.Visible,
		&tmpl.CreatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("template %s: %w", templateID, ErrNotFound)
		}
		r.logger.Error("failed to get template", zap.Error(err), zap.String("template_id", templateID))
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	return &tmpl, nil
}

// ListTemplatesByWindow retrieves a window's templates in display order
func (r *WindowRepository) ListTemplatesByWindow(ctx context.Context, windowID string) ([]model.ChatTemplate, error) {
	query := `
		SELECT id, window_id, title, purpose, model_id, system_prompt_id, custom_system_prompt, max_messages, order_index, visible, created_at
		FROM chat_templates
		WHERE window_id = $1
		ORDER BY order_index ASC, created_at ASC
	`

	rows, err := r.db.Query(ctx, query, windowID)
	if err != nil {
		r.logger.Error("failed to list templates", zap.Error(err), zap.String("window_id", windowID))
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []model.ChatTemplate
	for rows.Next() {
		var tmpl model.ChatTemplate
		err := rows.Scan(
			&tmpl.ID,
			&tmpl.WindowID,
			&tmpl.Title,
			&tmpl.Purpose,
			&tmpl.ModelID,
			&tmpl.SystemPromptID,
			&tmpl.CustomSystemPrompt,
			&tmpl.MaxMessages,
			&tmpl.OrderIndex,
			&tmpl.Visible,
			&tmpl.CreatedAt,
		)
		if err != nil {
			r.logger.Error("failed to scan template", zap.Error(err))
			continue
		}
		templates = append(templates, tmpl)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("error iterating templates", zap.Error(err))
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}

	return templates, nil
}

// GetSystemPrompt retrieves a reusable system prompt by ID
func (r *WindowRepository) GetSystemPrompt(ctx context.Context, promptID string) (*model.SystemPrompt, error) {
	query := `
		SELECT id, name, content, active, created_at
		FROM system_prompts
		WHERE id = $1
	`

	var prompt model.SystemPrompt
	err := r.db.QueryRow(ctx, query, promptID).Scan(
		&prompt.ID,
		&prompt.Name,
		&prompt.Content,
		&prompt.Active,
		&prompt.CreatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("system prompt %s: %w", promptID, ErrNotFound)
		}
		r.logger.Error("failed to get system prompt", zap.Error(err), zap.String("prompt_id", promptID))
		return nil, fmt.Errorf("failed to get system prompt: %w", err)
	}

	return &prompt, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWindow(row rowScanner) (*model.ChatWindow, error) {
	var window model.ChatWindow
	var configJSON []byte
	err := row.Scan(
		&window.ID,
		&window.PatientID,
		&window.ProviderID,
		&window.Title,
		&window.Description,
		&window.StartTime,
		&window.EndTime,
		&window.Visible,
		&window.Status,
		&configJSON,
		&window.CreatedAt,
		&window.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &window.ReportConfig); err != nil {
			return nil, fmt.Errorf("failed to unmarshal report config: %w", err)
		}
	}
	if window.ReportConfig == nil {
		window.ReportConfig = model.DefaultReportConfig()
	}

	return &window, nil
}

func collectWindows(rows pgx.Rows, logger *zap.Logger) ([]model.ChatWindow, error) {
	var windows []model.ChatWindow
	for rows.Next() {
		window, err := scanWindow(rows)
		if err != nil {
			logger.Error("failed to scan window", zap.Error(err))
			continue
		}
		windows = append(windows, *window)
	}

	if err := rows.Err(); err != nil {
		logger.Error("error iterating windows", zap.Error(err))
		return nil, fmt.Errorf("error iterating windows: %w", err)
	}

	return windows, nil
}
