package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinchat/backend/pkg/model"
)

// SettingsRepositoryInterface defines the interface for provider settings access
type SettingsRepositoryInterface interface {
	UpsertSettings(ctx context.Context, settings *model.ProviderSettings) error
	GetSettingsForPatient(ctx context.Context, providerID, patientID string) (*model.ProviderSettings, error)
}

// SettingsService manages the controls a provider configures for patients
type SettingsService struct {
	settings SettingsRepositoryInterface
	access   *AccessService
	logger   *zap.Logger
}

// NewSettingsService creates a new SettingsService
func NewSettingsService(settings SettingsRepositoryInterface, access *AccessService, logger *zap.Logger) *SettingsService {
	return &SettingsService{
		settings: settings,
		access:   access,
		logger:   logger,
	}
}

// UpsertSettings stores a provider's settings for a patient scope. Providers
// only write their own settings; admins may write anyone's.
func (s *SettingsService) UpsertSettings(ctx context.Context, actor *model.User, settings *model.ProviderSettings) error {
	if actor == nil {
		return ErrForbidden
	}
	if !actor.IsAdmin() {
		if !actor.IsProvider() || actor.ID != settings.ProviderID {
			return ErrForbidden
		}
	}

	if settings.PatientID != nil {
		ok, err := s.access.CanAccessPatientData(ctx, actor, *settings.PatientID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrForbidden
		}
	}

	if err := validateTimeOfDay(settings.TimeWindowStart); err != nil {
		return err
	}
	if err := validateTimeOfDay(settings.TimeWindowEnd); err != nil {
		return err
	}
	if settings.MaxMessagesPerDay != nil && *settings.MaxMessagesPerDay < 0 {
		return fmt.Errorf("max messages per day must not be negative")
	}

	if settings.ID == "" {
		settings.ID = uuid.New().String()
	}

	if err := s.settings.UpsertSettings(ctx, settings); err != nil {
		return err
	}

	s.logger.Info("provider settings updated",
		zap.String("provider_id", settings.ProviderID),
		zap.Bool("patient_scoped", settings.PatientID != nil),
	)
	return nil
}

// GetSettings resolves the settings governing a patient under a provider
func (s *SettingsService) GetSettings(ctx context.Context, actor *model.User, providerID, patientID string) (*model.ProviderSettings, error) {
	ok, err := s.access.CanAccessPatientData(ctx, actor, patientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForbidden
	}
	return s.settings.GetSettingsForPatient(ctx, providerID, patientID)
}

func validateTimeOfDay(value string) error {
	if value == "" {
		return nil
	}
	if _, err := time.Parse("15:04", value); err != nil {
		return fmt.Errorf("invalid time of day %q, expected HH:MM", value)
	}
	return nil
}
