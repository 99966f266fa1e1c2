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

// UserRepository manages users, provider assignments, and provider settings
type UserRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *pgxpool.Pool, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// GetUser retrieves a user by ID
func (r *UserRepository) GetUser(ctx context.Context, userID string) (*model.User, error) {
	query := `
		SELECT id, username, email, role, active, created_at, deleted_at
		FROM users
		WHERE id = $1 AND deleted_at IS NULL
	`

	var user model.User
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Role,
		&user.Active,
		&user.CreatedAt,
		&user.DeletedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}
		r.logger.Error("failed to get user", zap.Error(err), zap.String("user_id", userID))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// IsProviderAssigned reports whether a provider is assigned to a patient
func (r *UserRepository) IsProviderAssigned(ctx context.Context, providerID, patientID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM provider_assignments
			WHERE provider_id = $1 AND patient_id = $2
		)
	`

	var assigned bool
	err := r.db.QueryRow(ctx, query, providerID, patientID).Scan(&assigned)
	if err != nil {
		r.logger.Error("failed to check provider assignment",
			zap.Error(err),
			zap.String("provider_id", providerID),
			zap.String("patient_id", patientID),
		)
		return false, fmt.Errorf("failed to check provider assignment: %w", err)
	}

	return assigned, nil
}

// CreateAssignment links a provider to a patient
func (r *UserRepository) CreateAssignment(ctx context.Context, a *model.ProviderAssignment) error {
	query := `
		INSERT INTO provider_assignments (id, provider_id, patient_id, assigned_at, assigned_by)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider_id, patient_id) DO NOTHING
	`

	_, err := r.db.Exec(ctx, query, a.ID, a.ProviderID, a.PatientID, a.AssignedAt, a.AssignedBy)
	if err != nil {
		r.logger.Error("failed to create assignment", zap.Error(err), zap.String("assignment_id", a.ID))
		return fmt.Errorf("failed to create assignment: %w", err)
	}

	return nil
}

// ListPatientsForProvider retrieves the patients assigned to a provider
func (r *UserRepository) ListPatientsForProvider(ctx context.Context, providerID string) ([]model.User, error) {
	query := `
		SELECT u.id, u.username, u.email, u.role, u.active, u.created_at, u.deleted_at
		FROM users u
		JOIN provider_assignments a ON a.patient_id = u.id
		WHERE a.provider_id = $1 AND u.deleted_at IS NULL
		ORDER BY u.username ASC
	`

	rows, err := r.db.Query(ctx, query, providerID)
	if err != nil {
		r.logger.Error("failed to list patients", zap.Error(err), zap.String("provider_id", providerID))
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	defer rows.Close()

	var patients []model.User
	for rows.Next() {
		var user model.User
		err := rows.Scan(
			&user.ID,
			&user.Username,
			&user.Email,
			&user.Role,
			&user.Active,
			&user.CreatedAt,
			&user.DeletedAt,
		)
		if err != nil {
			r.logger.Error("failed to scan patient", zap.Error(err))
			continue
		}
		patients = append(patients, user)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("error iterating patients", zap.Error(err))
		return nil, fmt.Errorf("error iterating patients: %w", err)
	}

	return patients, nil
}

// UpsertSettings creates or replaces a provider's settings for a patient
// scope. A nil PatientID stores the provider-wide defaults.
func (r *UserRepository) UpsertSettings(ctx context.Context, settings *model.ProviderSettings) error {
	allowedModels, err := json.Marshal(settings.AllowedModelIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal allowed models: %w", err)
	}

	query := `
		INSERT INTO provider_settings (id, provider_id, patient_id, allowed_model_ids, time_window_start, time_window_end, max_messages_per_day, custom_instructions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (provider_id, patient_id) DO UPDATE SET
			allowed_model_ids = EXCLUDED.allowed_model_ids,
			time_window_start = EXCLUDED.time_window_start,
			time_window_end = EXCLUDED.time_window_end,
			max_messages_per_day = EXCLUDED.max_messages_per_day,
			custom_instructions = EXCLUDED.custom_instructions
	`

	_, err = r.db.Exec(ctx, query,
		settings.ID,
		settings.ProviderID,
		settings.PatientID,
		allowedModels,
		settings.TimeWindowStart,
		settings.TimeWindowEnd,
		settings.MaxMessagesPerDay,
		settings.CustomInstructions,
	)

	if err != nil {
		r.logger.Error("failed to upsert settings", zap.Error(err), zap.String("provider_id", settings.ProviderID))
		return fmt.Errorf("failed to upsert settings: %w", err)
	}

	return nil
}

// ListSettingsForPatient resolves the settings row governing the patient for
// each of their assigned providers. Per provider the patient-specific row wins
// over the provider-wide row. Providers with no settings contribute nothing.
func (r *UserRepository) ListSettingsForPatient(ctx context.Context, patientID string) ([]model.ProviderSettings, error) {
	query := `
		SELECT DISTINCT ON (s.provider_id) s.id, s.provider_id, s.patient_id, s.allowed_model_ids, s.time_window_start, s.time_window_end, s.max_messages_per_day, s.custom_instructions
		FROM provider_settings s
		JOIN provider_assignments a ON a.provider_id = s.provider_id AND a.patient_id = $1
		WHERE s.patient_id = $1 OR s.patient_id IS NULL
		ORDER BY s.provider_id, s.patient_id NULLS LAST
	`

	rows, err := r.db.Query(ctx, query, patientID)
	if err != nil {
		r.logger.Error("failed to list settings for patient", zap.Error(err), zap.String("patient_id", patientID))
		return nil, fmt.Errorf("failed to list settings for patient: %w", err)
	}
	defer rows.Close()

	var out []model.ProviderSettings
	for rows.Next() {
		var settings model.ProviderSettings
		var allowedModels []byte
		err := rows.Scan(
			&settings.ID,
			&settings.ProviderID,
			&settings.PatientID,
			&allowedModels,
			&settings.TimeWindowStart,
			&settings.TimeWindowEnd,
			&settings.MaxMessagesPerDay,
			&settings.CustomInstructions,
		)
		if err != nil {
			r.logger.Error("failed to scan settings", zap.Error(err))
			continue
		}
		if len(allowedModels) > 0 {
			if err := json.Unmarshal(allowedModels, &settings.AllowedModelIDs); err != nil {
				return nil, fmt.Errorf("failed to unmarshal allowed models: %w", err)
			}
		}
		out = append(out, settings)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("error iterating settings", zap.Error(err))
		return nil, fmt.Errorf("error iterating settings: %w", err)
	}

	return out, nil
}

// GetSettingsForPatient resolves the settings that apply to a patient under a
// provider: a patient-specific row wins over the provider-wide row. Returns
// ErrNotFound when neither exists.
func (r *UserRepository) GetSettingsForPatient(ctx context.Context, providerID, patientID string) (*model.ProviderSettings, error) {
	query := `
		SELECT id, provider_id, patient_id, allowed_model_ids, time_window_start, time_window_end, max_messages_per_day, custom_instructions
		FROM provider_settings
		WHERE provider_id = $1 AND (patient_id = $2 OR patient_id IS NULL)
		ORDER BY patient_id NULLS LAST
		LIMIT 1
	`

	var settings model.ProviderSettings
	var allowedModels []byte
	err := r.db.QueryRow(ctx, query, providerID, patientID).Scan(
		&settings.ID,
		&settings.ProviderID,
		&settings.PatientID,
		&allowedModels,
		&settings.TimeWindowStart,
		&settings.TimeWindowEnd,
		&settings.MaxMessagesPerDay,
		&settings.CustomInstructions,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("settings for patient %s: %w", patientID, ErrNotFound)
		}
		r.logger.Error("failed to get settings", zap.Error(err), zap.String("provider_id", providerID))
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	if len(allowedModels) > 0 {
		if err := json.Unmarshal(allowedModels, &settings.AllowedModelIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal allowed models: %w", err)
		}
	}

	return &settings, nil
}
