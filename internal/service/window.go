package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinchat/backend/internal/repository"
	"github.com/clinchat/backend/pkg/model"
)

// WindowRepositoryInterface defines the interface for window data access
type WindowRepositoryInterface interface {
	CreateWindow(ctx context.Context, window *model.ChatWindow) error
	GetWindow(ctx context.Context, windowID string) (*model.ChatWindow, error)
	ListWindowsByPatient(ctx context.Context, patientID string, visibleOnly bool) ([]model.ChatWindow, error)
	ListWindowsByProvider(ctx context.Context, providerID string) ([]model.ChatWindow, error)
	UpdateWindow(ctx context.Context, window *model.ChatWindow) error
	SetWindowVisibility(ctx context.Context, windowID string, visible bool) error
	DeleteWindow(ctx context.Context, windowID string) error
	CreateTemplate(ctx context.Context, tmpl *model.ChatTemplate) error
	GetTemplate(ctx context.Context, templateID string) (*model.ChatTemplate, error)
	ListTemplatesByWindow(ctx context.Context, windowID string) ([]model.ChatTemplate, error)
	GetSystemPrompt(ctx context.Context, promptID string) (*model.SystemPrompt, error)
}

// WindowConversationLookup is the slice of conversation storage the window
// service needs
type WindowConversationLookup interface {
	ListConversationsByWindow(ctx context.Context, windowID string) ([]model.Conversation, error)
	FindConversationByTemplate(ctx context.Context, ownerID, windowID, templateID string) (*model.Conversation, error)
	CreateConversation(ctx context.Context, conv *model.Conversation) error
}

// WindowService manages chat window and template lifecycle
type WindowService struct {
	windows       WindowRepositoryInterface
	conversations WindowConversationLookup
	access        *AccessService
	status        *StatusEngine
	logger        *zap.Logger
	now           func() time.Time
}

// NewWindowService creates a new WindowService
func NewWindowService(windows WindowRepositoryInterface, conversations WindowConversationLookup, access *AccessService, status *StatusEngine, logger *zap.Logger) *WindowService {
	return &WindowService{
		windows:       windows,
		conversations: conversations,
		access:        access,
		status:        status,
		logger:        logger,
		now:           time.Now,
	}
}

// CreateWindow creates a chat window for a patient. Only providers with
// access to the patient (or admins) may create windows.
func (s *WindowService) CreateWindow(ctx context.Context, actor *model.User, window *model.ChatWindow) error {
	if actor == nil || (!actor.IsProvider() && !actor.IsAdmin()) {
		return ErrForbidden
	}
	ok, err := s.access.CanAccessPatientData(ctx, actor, window.PatientID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}

	if window.Title == "" {
		return fmt.Errorf("window title is required")
	}
	if window.PatientID == "" {
		return fmt.Errorf("patient ID is required")
	}
	if !window.StartTime.Before(window.EndTime) {
		return fmt.Errorf("window start time must be before end time")
	}

	if window.ID == "" {
		window.ID = uuid.New().String()
	}
	window.ProviderID = actor.ID
	window.Visible = true
	window.Status = ComputeStatus(window, s.now())
	window.ReportConfig = mergeReportConfig(window.ReportConfig)

	if err := s.windows.CreateWindow(ctx, window); err != nil {
		s.logger.Error("failed to create window",
			zap.Error(err),
			zap.String("patient_id", window.PatientID),
			zap.String("provider_id", window.ProviderID),
		)
		return fmt.Errorf("failed to create window: %w", err)
	}

	s.logger.Info("window created",
		zap.String("window_id", window.ID),
		zap.String("patient_id", window.PatientID),
		zap.String("status", string(window.Status)),
	)
	return nil
}

// GetWindow retrieves a window with its status freshly synced
func (s *WindowService) GetWindow(ctx context.Context, actor *model.User, windowID string) (*model.ChatWindow, error) {
	window, err := s.windows.GetWindow(ctx, windowID)
	if err != nil {
		return nil, err
	}

	ok, err := s.access.CanAccessPatientData(ctx, actor, window.PatientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForbidden
	}
	if actor.IsPatient() && !window.Visible {
		return nil, fmt.Errorf("window %s: %w", windowID, repository.ErrNotFound)
	}

	if err := s.status.Sync(ctx, window); err != nil {
		s.logger.Warn("failed to sync window status", zap.Error(err), zap.String("window_id", windowID))
	}
	return window, nil
}

// ListWindowsForPatient lists a patient's windows. Patients only see visible
// ones; providers and admins see everything.
func (s *WindowService) ListWindowsForPatient(ctx context.Context, actor *model.User, patientID string) ([]model.ChatWindow, error) {
	ok, err := s.access.CanAccessPatientData(ctx, actor, patientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForbidden
	}

	visibleOnly := actor.IsPatient()
	windows, err := s.windows.ListWindowsByPatient(ctx, patientID, visibleOnly)
	if err != nil {
		return nil, err
	}

	s.status.SyncAll(ctx, windows)
	return windows, nil
}

// ListWindowsForProvider lists windows the acting provider created
func (s *WindowService) ListWindowsForProvider(ctx context.Context, actor *model.User) ([]model.ChatWindow, error) {
	if actor == nil || (!actor.IsProvider() && !actor.IsAdmin()) {
		return nil, ErrForbidden
	}

	windows, err := s.windows.ListWindowsByProvider(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	s.status.SyncAll(ctx, windows)
	return windows, nil
}

// UpdateWindow applies edits to a window the actor manages
func (s *WindowService) UpdateWindow(ctx context.Context, actor *model.User, window *model.ChatWindow) error {
	existing, err := s.windows.GetWindow(ctx, window.ID)
	if err != nil {
		return err
	}
	if !s.canManage(actor, existing) {
		return ErrForbidden
	}
	if !window.StartTime.Before(window.EndTime) {
		return fmt.Errorf("window start time must be before end time")
	}

	window.ReportConfig = mergeReportConfig(window.ReportConfig)
	if err := s.windows.UpdateWindow(ctx, window); err != nil {
		return err
	}

	s.logger.Info("window updated", zap.String("window_id", window.ID))
	return nil
}

// RemoveWindow deletes a window without chat activity; a window that already
// has conversations is deactivated instead so its data survives. Returns true
// when the window was actually deleted.
func (s *WindowService) RemoveWindow(ctx context.Context, actor *model.User, windowID string) (bool, error) {
	window, err := s.windows.GetWindow(ctx, windowID)
	if err != nil {
		return false, err
	}
	if !s.canManage(actor, window) {
		return false, ErrForbidden
	}

	conversations, err := s.conversations.ListConversationsByWindow(ctx, windowID)
	if err != nil {
		return false, err
	}

	if len(conversations) > 0 {
		if err := s.windows.SetWindowVisibility(ctx, windowID, false); err != nil {
			return false, err
		}
		s.logger.Info("window deactivated",
			zap.String("window_id", windowID),
			zap.Int("conversations", len(conversations)),
		)
		return false, nil
	}

	if err := s.windows.DeleteWindow(ctx, windowID); err != nil {
		return false, err
	}
	s.logger.Info("window deleted", zap.String("window_id", windowID))
	return true, nil
}

// CreateTemplate adds a chat template to a window
func (s *WindowService) CreateTemplate(ctx context.Context, actor *model.User, tmpl *model.ChatTemplate) error {
	window, err := s.windows.GetWindow(ctx, tmpl.WindowID)
	if err != nil {
		return err
	}
	if !s.canManage(actor, window) {
		return ErrForbidden
	}
	if tmpl.Title == "" {
		return fmt.Errorf("template title is required")
	}
	if tmpl.ModelID == "" {
		return fmt.Errorf("template model is required")
	}

	if tmpl.ID == "" {
		tmpl.ID = uuid.New().String()
	}
	tmpl.Visible = true

	if err := s.windows.CreateTemplate(ctx, tmpl); err != nil {
		return err
	}

	s.logger.Info("template created",
		zap.String("template_id", tmpl.ID),
		zap.String("window_id", tmpl.WindowID),
	)
	return nil
}

// ListTemplates lists a window's templates. Patients only see visible ones.
func (s *WindowService) ListTemplates(ctx context.Context, actor *model.User, windowID string) ([]model.ChatTemplate, error) {
	window, err := s.windows.GetWindow(ctx, windowID)
	if err != nil {
		return nil, err
	}
	ok, err := s.access.CanAccessPatientData(ctx, actor, window.PatientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForbidden
	}

	templates, err := s.windows.ListTemplatesByWindow(ctx, windowID)
	if err != nil {
		return nil, err
	}

	if actor.IsPatient() {
		visible := templates[:0]
		for _, tmpl := range templates {
			if tmpl.Visible {
				visible = append(visible, tmpl)
			}
		}
		templates = visible
	}
	return templates, nil
}

// StartConversationFromTemplate opens the patient's conversation for a
// template, creating it on first use. Repeat calls return the existing
// conversation, so each patient gets at most one conversation per template
// in a window.
func (s *WindowService) StartConversationFromTemplate(ctx context.Context, actor *model.User, windowID, templateID string) (*model.Conversation, error) {
	window, err := s.windows.GetWindow(ctx, windowID)
	if err != nil {
		return nil, err
	}
	if actor == nil || actor.ID != window.PatientID {
		return nil, ErrForbidden
	}
	if !window.Visible || ComputeStatus(window, s.now()) != model.WindowStatusActive {
		return nil, ErrWindowClosed
	}

	tmpl, err := s.windows.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if tmpl.WindowID != windowID {
		return nil, fmt.Errorf("template %s: %w", templateID, repository.ErrNotFound)
	}

	existing, err := s.conversations.FindConversationByTemplate(ctx, actor.ID, windowID, templateID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	promptContent, err := s.resolveTemplatePrompt(ctx, tmpl)
	if err != nil {
		return nil, err
	}

	conv := &model.Conversation{
		ID:                  uuid.New().String(),
		OwnerID:             actor.ID,
		Title:               tmpl.Title,
		ModelID:             tmpl.ModelID,
		SystemPromptContent: promptContent,
		WindowID:            &windowID,
		TemplateID:          &templateID,
		Visible:             true,
	}
	if err := s.conversations.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}

	s.logger.Info("conversation started from template",
		zap.String("conversation_id", conv.ID),
		zap.String("template_id", templateID),
		zap.String("window_id", windowID),
	)
	return conv, nil
}

// resolveTemplatePrompt snapshots the template's effective system prompt.
// Later edits to the base prompt never affect existing conversations.
func (s *WindowService) resolveTemplatePrompt(ctx context.Context, tmpl *model.ChatTemplate) (string, error) {
	base := ""
	if tmpl.SystemPromptID != nil {
		prompt, err := s.windows.GetSystemPrompt(ctx, *tmpl.SystemPromptID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				s.logger.Warn("template references missing system prompt",
					zap.String("template_id", tmpl.ID),
					zap.String("prompt_id", *tmpl.SystemPromptID),
				)
			} else {
				return "", err
			}
		} else {
			base = prompt.Content
		}
	}
	return model.ResolveSystemPrompt(base, tmpl.CustomSystemPrompt), nil
}

func (s *WindowService) canManage(actor *model.User, window *model.ChatWindow) bool {
	if actor == nil {
		return false
	}
	if actor.IsAdmin() {
		return true
	}
	return actor.IsProvider() && actor.ID == window.ProviderID
}

// mergeReportConfig overlays the provided flags on the defaults, dropping
// unrecognized keys
func mergeReportConfig(provided model.ReportConfig) model.ReportConfig {
	merged := model.DefaultReportConfig()
	for name, enabled := range provided.Sanitize() {
		merged[name] = enabled
	}
	return merged
}
