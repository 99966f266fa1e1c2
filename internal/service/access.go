package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clinchat/backend/pkg/model"
)

// AssignmentStore answers provider-to-patient assignment lookups
type AssignmentStore interface {
	IsProviderAssigned(ctx context.Context, providerID, patientID string) (bool, error)
}

// AccessService enforces who may read patient data and who may write into a
// conversation. Read access follows the care relationship; write access is
// strictly owner-only regardless of role.
type AccessService struct {
	assignments AssignmentStore
	logger      *zap.Logger
	now         func() time.Time
}

// NewAccessService creates a new AccessService
func NewAccessService(assignments AssignmentStore, logger *zap.Logger) *AccessService {
	return &AccessService{
		assignments: assignments,
		logger:      logger,
		now:         time.Now,
	}
}

// CanAccessPatientData reports whether the actor may read the patient's data:
// admins always, the patient themselves, and providers assigned to them.
func (s *AccessService) CanAccessPatientData(ctx context.Context, actor *model.User, patientID string) (bool, error) {
	if actor == nil {
		return false, nil
	}
	if actor.IsAdmin() {
		return true, nil
	}
	if actor.ID == patientID {
		return true, nil
	}
	if actor.IsProvider() {
		assigned, err := s.assignments.IsProviderAssigned(ctx, actor.ID, patientID)
		if err != nil {
			return false, fmt.Errorf("failed to resolve assignment: %w", err)
		}
		return assigned, nil
	}
	return false, nil
}

// CanViewConversation reports whether the actor may read a conversation
func (s *AccessService) CanViewConversation(ctx context.Context, actor *model.User, conv *model.Conversation) (bool, error) {
	return s.CanAccessPatientData(ctx, actor, conv.OwnerID)
}

// CanSendMessage checks whether the actor may write into the conversation.
// Only the owner sends, ever; a provider or admin who can read a patient's
// chats still cannot speak as them. Windowed conversations additionally
// require the window to be visible and currently active.
func (s *AccessService) CanSendMessage(actor *model.User, conv *model.Conversation, window *model.ChatWindow) error {
	if actor == nil || actor.ID != conv.OwnerID {
		return ErrForbidden
	}
	if window == nil {
		return nil
	}
	if !window.Visible {
		return ErrWindowClosed
	}
	if ComputeStatus(window, s.now()) != model.WindowStatusActive {
		return ErrWindowClosed
	}
	return nil
}
