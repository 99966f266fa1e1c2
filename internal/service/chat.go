package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinchat/backend/internal/llm"
	"github.com/clinchat/backend/internal/repository"
	"github.com/clinchat/backend/pkg/model"
)

const (
	// historyContextSize caps how many prior messages are sent to the model
	historyContextSize = 20
	// autoTitleLength caps the auto-generated conversation title
	autoTitleLength = 50
)

// ConversationRepositoryInterface defines the interface for conversation data access
type ConversationRepositoryInterface interface {
	CreateConversation(ctx context.Context, conv *model.Conversation) error
	GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error)
	ListConversationsByOwner(ctx context.Context, ownerID string, visibleOnly bool) ([]model.Conversation, error)
	UpdateConversationTitle(ctx context.Context, conversationID, title string) error
	SetConversationVisibility(ctx context.Context, conversationID string, visible bool) error
	AppendMessage(ctx context.Context, msg *model.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	ListRecentMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
	CountMessagesByRole(ctx context.Context, conversationID string, role model.MessageRole) (int, error)
	CountUserMessagesSince(ctx context.Context, ownerID string, since time.Time) (int, error)
	CreateSelection(ctx context.Context, sel *model.SavedSelection) error
	GetSelection(ctx context.Context, selectionID string) (*model.SavedSelection, error)
	ListSelectionsByConversation(ctx context.Context, conversationID string) ([]model.SavedSelection, error)
	DeleteSelection(ctx context.Context, selectionID string) error
}

// ModelCatalogRepositoryInterface defines the interface for model catalog access
type ModelCatalogRepositoryInterface interface {
	GetEndpoint(ctx context.Context, endpointID string) (*model.ModelEndpoint, error)
	ListActiveEndpoints(ctx context.Context) ([]model.ModelEndpoint, error)
	UpdateAvailability(ctx context.Context, endpointID string, available bool, checkedAt time.Time) error
}

// ChatWindowLookup is the slice of window storage the chat service needs
type ChatWindowLookup interface {
	GetWindow(ctx context.Context, windowID string) (*model.ChatWindow, error)
	GetTemplate(ctx context.Context, templateID string) (*model.ChatTemplate, error)
}

// SettingsLookup resolves provider settings for a patient
type SettingsLookup interface {
	GetSettingsForPatient(ctx context.Context, providerID, patientID string) (*model.ProviderSettings, error)
	ListSettingsForPatient(ctx context.Context, patientID string) ([]model.ProviderSettings, error)
}

// ModelRouter dispatches chat calls to model providers
type ModelRouter interface {
	Call(ctx context.Context, endpoint *model.ModelEndpoint, messages []llm.ChatMessage) (string, float64, error)
	Provider(p model.ModelProvider) (llm.Provider, bool)
}

// SendResult holds the stored message pair produced by a send
type SendResult struct {
	UserMessage      *model.Message `json:"user_message"`
	AssistantMessage *model.Message `json:"assistant_message"`
}

// ChatService handles conversations, messages, and saved selections
type ChatService struct {
	conversations ConversationRepositoryInterface
	windows       ChatWindowLookup
	catalog       ModelCatalogRepositoryInterface
	settings      SettingsLookup
	access        *AccessService
	router        ModelRouter
	logger        *zap.Logger
	now           func() time.Time
}

// NewChatService creates a new ChatService
func NewChatService(
	conversations ConversationRepositoryInterface,
	windows ChatWindowLookup,
	catalog ModelCatalogRepositoryInterface,
	settings SettingsLookup,
	access *AccessService,
	router ModelRouter,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		conversations: conversations,
		windows:       windows,
		catalog:       catalog,
		settings:      settings,
		access:        access,
		router:        router,
		logger:        logger,
		now:           time.Now,
	}
}

// CreateConversation starts a free conversation outside any window. For
// patients the model must pass every assigned provider's allowed-model
// restriction.
func (s *ChatService) CreateConversation(ctx context.Context, actor *model.User, modelID, title, systemPrompt string) (*model.Conversation, error) {
	if actor == nil {
		return nil, ErrForbidden
	}
	if modelID == "" {
		return nil, fmt.Errorf("model ID is required")
	}

	endpoint, err := s.catalog.GetEndpoint(ctx, modelID)
	if err != nil {
		return nil, err
	}
	if !endpoint.Active {
		return nil, fmt.Errorf("model %s is not active", modelID)
	}

	if actor.IsPatient() {
		if err := s.checkModelAllowed(ctx, actor.ID, modelID); err != nil {
			return nil, err
		}
	}

	conv := &model.Conversation{
		ID:                  uuid.New().String(),
		OwnerID:             actor.ID,
		Title:               title,
		ModelID:             modelID,
		SystemPromptContent: systemPrompt,
		Visible:             true,
	}
	if err := s.conversations.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}

	s.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("owner_id", actor.ID),
		zap.String("model_id", modelID),
	)
	return conv, nil
}

// GetConversation retrieves a conversation the actor may view
func (s *ChatService) GetConversation(ctx context.Context, actor *model.User, conversationID string) (*model.Conversation, error) {
	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	ok, err := s.access.CanViewConversation(ctx, actor, conv)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForbidden
	}
	return conv, nil
}

// ListConversations lists the actor's own conversations
func (s *ChatService) ListConversations(ctx context.Context, actor *model.User) ([]model.Conversation, error) {
	if actor == nil {
		return nil, ErrForbidden
	}
	return s.conversations.ListConversationsByOwner(ctx, actor.ID, true)
}

// GetHistory retrieves a conversation's full message history
func (s *ChatService) GetHistory(ctx context.Context, actor *model.User, conversationID string) ([]model.Message, error) {
	if _, err := s.GetConversation(ctx, actor, conversationID); err != nil {
		return nil, err
	}
	return s.conversations.ListMessages(ctx, conversationID)
}

// HideConversation removes a conversation from its owner's list without
// deleting the messages, which window reports may still need. Only the owner
// or an admin may hide it.
func (s *ChatService) HideConversation(ctx context.Context, actor *model.User, conversationID string) error {
	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if actor == nil || (!actor.IsAdmin() && actor.ID != conv.OwnerID) {
		return ErrForbidden
	}
	return s.conversations.SetConversationVisibility(ctx, conversationID, false)
}

// SendMessage appends the user's message, calls the conversation's model, and
// stores the response. Gates run in order: ownership, window state, allowed
// hours, daily limit, template message cap. A failed model call is still
// recorded as the assistant's message so the patient sees what happened.
func (s *ChatService) SendMessage(ctx context.Context, actor *model.User, conversationID, content string) (*SendResult, error) {
	if content == "" {
		return nil, fmt.Errorf("message content is required")
	}

	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	var window *model.ChatWindow
	if conv.WindowID != nil {
		window, err = s.windows.GetWindow(ctx, *conv.WindowID)
		if err != nil {
			return nil, err
		}
	}

	if err := s.access.CanSendMessage(actor, conv, window); err != nil {
		return nil, err
	}

	settings := s.resolveSettings(ctx, conv, window)
	if err := s.checkTimeWindow(settings); err != nil {
		return nil, err
	}
	if err := s.checkDailyLimit(ctx, conv.OwnerID, settings); err != nil {
		return nil, err
	}

	if err := s.checkTemplateLimit(ctx, conv); err != nil {
		return nil, err
	}

	history, err := s.conversations.ListRecentMessages(ctx, conversationID, historyContextSize)
	if err != nil {
		return nil, err
	}

	userMsg := &model.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           model.MessageRoleUser,
		Content:        content,
		Timestamp:      s.now(),
	}
	if err := s.conversations.AppendMessage(ctx, userMsg); err != nil {
		return nil, err
	}

	responseText, elapsed := s.generateResponse(ctx, conv, history, userMsg, settings)

	assistantMsg := &model.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           model.MessageRoleAssistant,
		Content:        responseText,
		Timestamp:      s.now(),
		ResponseTime:   &elapsed,
	}
	if err := s.conversations.AppendMessage(ctx, assistantMsg); err != nil {
		return nil, err
	}

	s.maybeAutoTitle(ctx, conv, history, content)

	return &SendResult{UserMessage: userMsg, AssistantMessage: assistantMsg}, nil
}

// generateResponse calls the conversation's model. Failures come back as
// error text instead of an error so the exchange is still persisted.
func (s *ChatService) generateResponse(ctx context.Context, conv *model.Conversation, history []model.Message, userMsg *model.Message, settings *model.ProviderSettings) (string, float64) {
	endpoint, err := s.catalog.GetEndpoint(ctx, conv.ModelID)
	if err != nil {
		s.logger.Error("conversation references unknown model",
			zap.Error(err),
			zap.String("conversation_id", conv.ID),
			zap.String("model_id", conv.ModelID),
		)
		return llm.ErrorText("model catalog", err), 0
	}

	messages := make([]llm.ChatMessage, 0, len(history)+2)
	systemPrompt := conv.SystemPromptContent
	if settings != nil && settings.CustomInstructions != "" {
		systemPrompt = model.ResolveSystemPrompt(systemPrompt, settings.CustomInstructions)
	}
	if systemPrompt != "" {
		messages = append(messages, llm.ChatMessage{Role: llm.RoleSystem, Content: systemPrompt})
	}

	for _, msg := range history {
		messages = append(messages, llm.ChatMessage{Role: string(msg.Role), Content: msg.Content})
	}
	messages = append(messages, llm.ChatMessage{Role: llm.RoleUser, Content: userMsg.Content})

	text, elapsed, err := s.router.Call(ctx, endpoint, messages)
	if err != nil {
		return llm.ErrorText(string(endpoint.Provider), err), elapsed
	}
	return text, elapsed
}

// resolveSettings finds the provider settings governing this conversation.
// Only windowed conversations carry a provider to resolve against.
func (s *ChatService) resolveSettings(ctx context.Context, conv *model.Conversation, window *model.ChatWindow) *model.ProviderSettings {
	if window == nil {
		return nil
	}
	settings, err := s.settings.GetSettingsForPatient(ctx, window.ProviderID, conv.OwnerID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("failed to resolve provider settings",
				zap.Error(err),
				zap.String("provider_id", window.ProviderID),
			)
		}
		return nil
	}
	return settings
}

// checkModelAllowed enforces the allowed-model restriction of every provider
// settings row governing the patient. An empty list means no restriction.
func (s *ChatService) checkModelAllowed(ctx context.Context, patientID, modelID string) error {
	settingsList, err := s.settings.ListSettingsForPatient(ctx, patientID)
	if err != nil {
		return err
	}
	for i := range settingsList {
		allowed := settingsList[i].AllowedModelIDs
		if len(allowed) == 0 {
			continue
		}
		permitted := false
		for _, id := range allowed {
			if id == modelID {
				permitted = true
				break
			}
		}
		if !permitted {
			return ErrModelNotAllowed
		}
	}
	return nil
}

// checkTimeWindow enforces the provider's allowed messaging hours. Malformed
// settings fail open.
func (s *ChatService) checkTimeWindow(settings *model.ProviderSettings) error {
	if settings == nil || settings.TimeWindowStart == "" || settings.TimeWindowEnd == "" {
		return nil
	}

	start, err1 := time.Parse("15:04", settings.TimeWindowStart)
	end, err2 := time.Parse("15:04", settings.TimeWindowEnd)
	if err1 != nil || err2 != nil {
		s.logger.Warn("malformed time window in provider settings",
			zap.String("start", settings.TimeWindowStart),
			zap.String("end", settings.TimeWindowEnd),
		)
		return nil
	}

	now := s.now()
	minutes := now.Hour()*60 + now.Minute()
	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()

	if startMin <= endMin {
		if minutes < startMin || minutes >= endMin {
			return ErrOutsideTimeWindow
		}
		return nil
	}
	// Overnight window, e.g. 20:00 to 06:00
	if minutes < startMin && minutes >= endMin {
		return ErrOutsideTimeWindow
	}
	return nil
}

// checkDailyLimit enforces the provider's per-day message cap
func (s *ChatService) checkDailyLimit(ctx context.Context, ownerID string, settings *model.ProviderSettings) error {
	if settings == nil || settings.MaxMessagesPerDay == nil {
		return nil
	}

	now := s.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	count, err := s.conversations.CountUserMessagesSince(ctx, ownerID, dayStart)
	if err != nil {
		return err
	}
	if count >= *settings.MaxMessagesPerDay {
		return ErrDailyLimitReached
	}
	return nil
}

// checkTemplateLimit enforces the template's cap on user messages
func (s *ChatService) checkTemplateLimit(ctx context.Context, conv *model.Conversation) error {
	if conv.TemplateID == nil {
		return nil
	}

	tmpl, err := s.windows.GetTemplate(ctx, *conv.TemplateID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	if tmpl.MaxMessages == nil {
		return nil
	}

	userCount, err := s.conversations.CountMessagesByRole(ctx, conv.ID, model.MessageRoleUser)
	if err != nil {
		return err
	}
	if userCount >= *tmpl.MaxMessages {
		return ErrMessageLimitReached
	}
	return nil
}

// maybeAutoTitle sets an untitled conversation's title from its first message
func (s *ChatService) maybeAutoTitle(ctx context.Context, conv *model.Conversation, priorHistory []model.Message, content string) {
	if conv.Title != "" || len(priorHistory) > 0 {
		return
	}

	title := content
	if runes := []rune(title); len(runes) > autoTitleLength {
		title = string(runes[:autoTitleLength]) + "..."
	}
	if err := s.conversations.UpdateConversationTitle(ctx, conv.ID, title); err != nil {
		s.logger.Warn("failed to auto-title conversation",
			zap.Error(err),
			zap.String("conversation_id", conv.ID),
		)
	}
}

// ListAvailableModels probes every active endpoint and returns those whose
// backend can currently serve them. Probe results are persisted for the
// catalog view.
func (s *ChatService) ListAvailableModels(ctx context.Context, actor *model.User) ([]model.ModelEndpoint, error) {
	if actor == nil {
		return nil, ErrForbidden
	}

	endpoints, err := s.catalog.ListActiveEndpoints(ctx)
	if err != nil {
		return nil, err
	}

	localModels := s.probeLocalModels(ctx)

	var available []model.ModelEndpoint
	checkedAt := s.now()
	for i := range endpoints {
		endpoint := &endpoints[i]
		ok := s.endpointAvailable(ctx, endpoint, localModels)
		if err := s.catalog.UpdateAvailability(ctx, endpoint.ID, ok, checkedAt); err != nil {
			s.logger.Warn("failed to record availability",
				zap.Error(err),
				zap.String("endpoint_id", endpoint.ID),
			)
		}
		if ok {
			endpoint.Available = true
			endpoint.LastAvailability = &checkedAt
			available = append(available, *endpoint)
		}
	}
	return available, nil
}

// probeLocalModels lists what the local model server has pulled. A nil map
// means the server is unreachable.
func (s *ChatService) probeLocalModels(ctx context.Context) map[string]bool {
	provider, ok := s.router.Provider(model.ModelProviderLocal)
	if !ok {
		return nil
	}
	names, err := provider.ListModels(ctx)
	if err != nil {
		s.logger.Debug("local model server unreachable", zap.Error(err))
		return nil
	}
	pulled := make(map[string]bool, len(names))
	for _, name := range names {
		pulled[name] = true
	}
	return pulled
}

func (s *ChatService) endpointAvailable(ctx context.Context, endpoint *model.ModelEndpoint, localModels map[string]bool) bool {
	switch endpoint.Provider {
	case model.ModelProviderLocal:
		return localModels[endpoint.ModelIdentifier]
	default:
		provider, ok := s.router.Provider(endpoint.Provider)
		if !ok {
			return false
		}
		return provider.Available(ctx)
	}
}

// SaveSelection stores a text excerpt from a conversation the actor owns
func (s *ChatService) SaveSelection(ctx context.Context, actor *model.User, sel *model.SavedSelection) error {
	conv, err := s.conversations.GetConversation(ctx, sel.ConversationID)
	if err != nil {
		return err
	}
	if actor == nil || actor.ID != conv.OwnerID {
		return ErrForbidden
	}
	if sel.SelectionText == "" {
		return fmt.Errorf("selection text is required")
	}

	if sel.ID == "" {
		sel.ID = uuid.New().String()
	}
	sel.UserID = actor.ID

	if err := s.conversations.CreateSelection(ctx, sel); err != nil {
		return err
	}

	s.logger.Info("selection saved",
		zap.String("selection_id", sel.ID),
		zap.String("conversation_id", sel.ConversationID),
	)
	return nil
}

// ListSelections lists a conversation's saved selections for anyone who may
// view the conversation
func (s *ChatService) ListSelections(ctx context.Context, actor *model.User, conversationID string) ([]model.SavedSelection, error) {
	if _, err := s.GetConversation(ctx, actor, conversationID); err != nil {
		return nil, err
	}
	return s.conversations.ListSelectionsByConversation(ctx, conversationID)
}

// DeleteSelection removes a saved selection. Only the selection's creator or
// an admin may delete it.
func (s *ChatService) DeleteSelection(ctx context.Context, actor *model.User, selectionID string) error {
	sel, err := s.conversations.GetSelection(ctx, selectionID)
	if err != nil {
		return err
	}
	if actor == nil || (!actor.IsAdmin() && actor.ID != sel.UserID) {
		return ErrForbidden
	}
	return s.conversations.DeleteSelection(ctx, selectionID)
}
