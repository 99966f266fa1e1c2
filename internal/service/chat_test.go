package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clinchat/backend/internal/llm"
	"github.com/clinchat/backend/internal/repository"
	"github.com/clinchat/backend/pkg/model"
)

// In-memory fakes for the chat service's collaborators

type fakeConversationStore struct {
	conversations map[string]*model.Conversation
	messages      map[string][]model.Message
	selections    map[string]*model.SavedSelection
	titles        map[string]string
	dailyCount    int
}

func newFakeConversationStore() *fakeConversationStore {
	return &fakeConversationStore{
		conversations: make(map[string]*model.Conversation),
		messages:      make(map[string][]model.Message),
		selections:    make(map[string]*model.SavedSelection),
		titles:        make(map[string]string),
	}
}

func (f *fakeConversationStore) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	f.conversations[conv.ID] = conv
	return nil
}

func (f *fakeConversationStore) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	conv, ok := f.conversations[conversationID]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, repository.ErrNotFound)
	}
	return conv, nil
}

func (f *fakeConversationStore) ListConversationsByOwner(ctx context.Context, ownerID string, visibleOnly bool) ([]model.Conversation, error) {
	var out []model.Conversation
	for _, conv := range f.conversations {
		if conv.OwnerID == ownerID && (!visibleOnly || conv.Visible) {
			out = append(out, *conv)
		}
	}
	return out, nil
}

func (f *fakeConversationStore) UpdateConversationTitle(ctx context.Context, conversationID, title string) error {
	f.titles[conversationID] = title
	return nil
}

func (f *fakeConversationStore) SetConversationVisibility(ctx context.Context, conversationID string, visible bool) error {
	f.conversations[conversationID].Visible = visible
	return nil
}

func (f *fakeConversationStore) AppendMessage(ctx context.Context, msg *model.Message) error {
	f.messages[msg.ConversationID] = append(f.messages[msg.ConversationID], *msg)
	return nil
}

func (f *fakeConversationStore) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	return f.messages[conversationID], nil
}

func (f *fakeConversationStore) ListRecentMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	msgs := f.messages[conversationID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (f *fakeConversationStore) CountMessagesByRole(ctx context.Context, conversationID string, role model.MessageRole) (int, error) {
	count := 0
	for _, msg := range f.messages[conversationID] {
		if msg.Role == role {
			count++
		}
	}
	return count, nil
}

func (f *fakeConversationStore) CountUserMessagesSince(ctx context.Context, ownerID string, since time.Time) (int, error) {
	return f.dailyCount, nil
}

func (f *fakeConversationStore) CreateSelection(ctx context.Context, sel *model.SavedSelection) error {
	f.selections[sel.ID] = sel
	return nil
}

func (f *fakeConversationStore) GetSelection(ctx context.Context, selectionID string) (*model.SavedSelection, error) {
	sel, ok := f.selections[selectionID]
	if !ok {
		return nil, fmt.Errorf("selection %s: %w", selectionID, repository.ErrNotFound)
	}
	return sel, nil
}

func (f *fakeConversationStore) ListSelectionsByConversation(ctx context.Context, conversationID string) ([]model.SavedSelection, error) {
	var out []model.SavedSelection
	for _, sel := range f.selections {
		if sel.ConversationID == conversationID {
			out = append(out, *sel)
		}
	}
	return out, nil
}

func (f *fakeConversationStore) DeleteSelection(ctx context.Context, selectionID string) error {
	delete(f.selections, selectionID)
	return nil
}

type fakeWindowLookup struct {
	windows   map[string]*model.ChatWindow
	templates map[string]*model.ChatTemplate
}

func (f *fakeWindowLookup) GetWindow(ctx context.Context, windowID string) (*model.ChatWindow, error) {
	window, ok := f.windows[windowID]
	if !ok {
		return nil, fmt.Errorf("window %s: %w", windowID, repository.ErrNotFound)
	}
	return window, nil
}

func (f *fakeWindowLookup) GetTemplate(ctx context.Context, templateID string) (*model.ChatTemplate, error) {
	tmpl, ok := f.templates[templateID]
	if !ok {
		return nil, fmt.Errorf("template %s: %w", templateID, repository.ErrNotFound)
	}
	return tmpl, nil
}

type fakeModelCatalog struct {
	endpoints    map[string]*model.ModelEndpoint
	availability map[string]bool
}

func newFakeModelCatalog(endpoints ...*model.ModelEndpoint) *fakeModelCatalog {
	catalog := &fakeModelCatalog{
		endpoints:    make(map[string]*model.ModelEndpoint),
		availability: make(map[string]bool),
	}
	for _, e := range endpoints {
		catalog.endpoints[e.ID] = e
	}
	return catalog
}

func (f *fakeModelCatalog) GetEndpoint(ctx context.Context, endpointID string) (*model.ModelEndpoint, error) {
	endpoint, ok := f.endpoints[endpointID]
	if !ok {
		return nil, fmt.Errorf("endpoint %s: %w", endpointID, repository.ErrNotFound)
	}
	return endpoint, nil
}

func (f *fakeModelCatalog) ListActiveEndpoints(ctx context.Context) ([]model.ModelEndpoint, error) {
	var out []model.ModelEndpoint
	for _, e := range f.endpoints {
		if e.Active {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeModelCatalog) UpdateAvailability(ctx context.Context, endpointID string, available bool, checkedAt time.Time) error {
	f.availability[endpointID] = available
	return nil
}

type fakeSettingsLookup struct {
	settings        *model.ProviderSettings
	patientSettings []model.ProviderSettings
}

func (f *fakeSettingsLookup) GetSettingsForPatient(ctx context.Context, providerID, patientID string) (*model.ProviderSettings, error) {
	if f.settings == nil {
		return nil, fmt.Errorf("settings: %w", repository.ErrNotFound)
	}
	return f.settings, nil
}

func (f *fakeSettingsLookup) ListSettingsForPatient(ctx context.Context, patientID string) ([]model.ProviderSettings, error) {
	return f.patientSettings, nil
}

type fakeChatProvider struct {
	name      string
	models    []string
	reachable bool
}

func (f *fakeChatProvider) Name() string                  { return f.name }
func (f *fakeChatProvider) Available(ctx context.Context) bool { return f.reachable }
func (f *fakeChatProvider) ListModels(ctx context.Context) ([]string, error) {
	if !f.reachable {
		return nil, fmt.Errorf("connection refused")
	}
	return f.models, nil
}
func (f *fakeChatProvider) Chat(ctx context.Context, modelIdentifier string, messages []llm.ChatMessage, opts llm.Options) (string, error) {
	return "ok", nil
}

type fakeRouter struct {
	response  string
	err       error
	calls     [][]llm.ChatMessage
	providers map[model.ModelProvider]llm.Provider
}

func (f *fakeRouter) Call(ctx context.Context, endpoint *model.ModelEndpoint, messages []llm.ChatMessage) (string, float64, error) {
	f.calls = append(f.calls, messages)
	if f.err != nil {
		return "", 0.1, f.err
	}
	return f.response, 0.1, nil
}

func (f *fakeRouter) Provider(p model.ModelProvider) (llm.Provider, bool) {
	provider, ok := f.providers[p]
	return provider, ok
}

type chatFixture struct {
	service *ChatService
	store   *fakeConversationStore
	windows *fakeWindowLookup
	catalog *fakeModelCatalog
	lookup  *fakeSettingsLookup
	router  *fakeRouter
	clock   time.Time
}

func newChatFixture() *chatFixture {
	store := newFakeConversationStore()
	windows := &fakeWindowLookup{
		windows:   make(map[string]*model.ChatWindow),
		templates: make(map[string]*model.ChatTemplate),
	}
	catalog := newFakeModelCatalog(&model.ModelEndpoint{
		ID:              "model-1",
		Name:            "llama3.2",
		Provider:        model.ModelProviderLocal,
		ModelIdentifier: "llama3.2",
		Active:          true,
	})
	lookup := &fakeSettingsLookup{}
	router := &fakeRouter{response: "Hello! How can I help?"}
	access := newTestAccessService(nil)

	svc := NewChatService(store, windows, catalog, lookup, access, router, zap.NewNop())
	clock := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }
	access.now = svc.now

	return &chatFixture{
		service: svc,
		store:   store,
		windows: windows,
		catalog: catalog,
		lookup:  lookup,
		router:  router,
		clock:   clock,
	}
}

func (f *chatFixture) addConversation(ownerID string, windowID *string) *model.Conversation {
	conv := &model.Conversation{
		ID:      "conv-1",
		OwnerID: ownerID,
		ModelID: "model-1",
		WindowID: windowID,
		Visible: true,
	}
	f.store.conversations[conv.ID] = conv
	return conv
}

func (f *chatFixture) addActiveWindow() *model.ChatWindow {
	window := &model.ChatWindow{
		ID:         "window-1",
		PatientID:  "patient-1",
		ProviderID: "provider-1",
		StartTime:  f.clock.Add(-24 * time.Hour),
		EndTime:    f.clock.Add(24 * time.Hour),
		Visible:    true,
		Status:     model.WindowStatusActive,
	}
	f.windows.windows[window.ID] = window
	return window
}

func TestCreateConversation_AllowedModelsEnforced(t *testing.T) {
	f := newChatFixture()
	patient := &model.User{ID: "patient-1", Role: model.RolePatient}
	ctx := context.Background()

	f.lookup.patientSettings = []model.ProviderSettings{{
		ProviderID:      "provider-1",
		AllowedModelIDs: []string{"some-other-model"},
	}}
	_, err := f.service.CreateConversation(ctx, patient, "model-1", "", "")
	assert.ErrorIs(t, err, ErrModelNotAllowed)
	assert.Empty(t, f.store.conversations)

	f.lookup.patientSettings = []model.ProviderSettings{{
		ProviderID:      "provider-1",
		AllowedModelIDs: []string{"some-other-model", "model-1"},
	}}
	conv, err := f.service.CreateConversation(ctx, patient, "model-1", "", "")
	require.NoError(t, err)
	assert.Equal(t, "model-1", conv.ModelID)
}

func TestCreateConversation_NoRestrictionAllowsAnyActiveModel(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()

	// An empty allowed list does not restrict
	f.lookup.patientSettings = []model.ProviderSettings{{ProviderID: "provider-1"}}
	patient := &model.User{ID: "patient-1", Role: model.RolePatient}
	_, err := f.service.CreateConversation(ctx, patient, "model-1", "", "")
	require.NoError(t, err)

	// Providers are not bound by patient restrictions
	f.lookup.patientSettings = []model.ProviderSettings{{
		ProviderID:      "provider-1",
		AllowedModelIDs: []string{"some-other-model"},
	}}
	provider := &model.User{ID: "provider-1", Role: model.RoleProvider}
	_, err = f.service.CreateConversation(ctx, provider, "model-1", "", "")
	require.NoError(t, err)
}

func TestHideConversation(t *testing.T) {
	f := newChatFixture()
	f.addConversation("patient-1", nil)
	ctx := context.Background()

	other := &model.User{ID: "patient-2", Role: model.RolePatient}
	assert.ErrorIs(t, f.service.HideConversation(ctx, other, "conv-1"), ErrForbidden)

	owner := &model.User{ID: "patient-1", Role: model.RolePatient}
	require.NoError(t, f.service.HideConversation(ctx, owner, "conv-1"))
	assert.False(t, f.store.conversations["conv-1"].Visible)

	listed, err := f.service.ListConversations(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestSendMessage_StoresExchange(t *testing.T) {
	f := newChatFixture()
	f.addConversation("patient-1", nil)
	owner := &model.User{ID: "patient-1", Role: model.RolePatient}

	result, err := f.service.SendMessage(context.Background(), owner, "conv-1", "I slept badly")
	require.NoError(t, err)

	assert.Equal(t, model.MessageRoleUser, result.UserMessage.Role)
	assert.Equal(t, "I slept badly", result.UserMessage.Content)
	assert.Equal(t, model.MessageRoleAssistant, result.AssistantMessage.Role)
	assert.Equal(t, "Hello! How can I help?", result.AssistantMessage.Content)
	require.NotNil(t, result.AssistantMessage.ResponseTime)

	stored := f.store.messages["conv-1"]
	require.Len(t, stored, 2)
	assert.Equal(t, model.MessageRoleUser, stored[0].Role)
	assert.Equal(t, model.MessageRoleAssistant, stored[1].Role)
}

func TestSendMessage_NonOwnerRejected(t *testing.T) {
	f := newChatFixture()
	f.addConversation("patient-1", nil)

	provider := &model.User{ID: "provider-1", Role: model.RoleProvider}
	_, err := f.service.SendMessage(context.Background(), provider, "conv-1", "hello")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, f.store.messages["conv-1"])
}

func TestSendMessage_EndedWindowRejected(t *testing.T) {
	f := newChatFixture()
	window := f.addActiveWindow()
	window.EndTime = f.clock.Add(-time.Hour)
	f.addConversation("patient-1", &window.ID)

	owner := &model.User{ID: "patient-1", Role: model.RolePatient}
	_, err := f.service.SendMessage(context.Background(), owner, "conv-1", "hello")
	assert.ErrorIs(t, err, ErrWindowClosed)
	assert.Empty(t, f.store.messages["conv-1"])
}

func TestSendMessage_TimeWindowEnforced(t *testing.T) {
	f := newChatFixture()
	window := f.addActiveWindow()
	f.addConversation("patient-1", &window.ID)
	owner := &model.User{ID: "patient-1", Role: model.RolePatient}

	// Clock is 14:00; messaging allowed only 08:00-12:00
	f.lookup.settings = &model.ProviderSettings{
		ProviderID:      "provider-1",
		TimeWindowStart: "08:00",
		TimeWindowEnd:   "12:00",
	}
	_, err := f.service.SendMessage(context.Background(), owner, "conv-1", "hello")
	assert.ErrorIs(t, err, ErrOutsideTimeWindow)

	// 08:00-18:00 allows it
	f.lookup.settings.TimeWindowEnd = "18:00"
	_, err = f.service.SendMessage(context.Background(), owner, "conv-1", "hello")
	assert.NoError(t, err)
}

func TestSendMessage_OvernightTimeWindow(t *testing.T) {
	f := newChatFixture()
	window := f.addActiveWindow()
	f.addConversation("patient-1", &window.ID)
	owner := &model.User{ID: "patient-1", Role: model.RolePatient}

	// Window crosses midnight: 20:00-15:00. Clock 14:00 is inside.
	f.lookup.settings = &model.ProviderSettings{
		ProviderID:      "provider-1",
		TimeWindowStart: "20:00",
		TimeWindowEnd:   "15:00",
	}
	_, err := f.service.SendMessage(context.Background(), owner, "conv-1", "hello")
	assert.NoError(t, err)

	// 20:00-13:00 excludes 14:00
	f.lookup.settings.TimeWindowEnd = "13:00"
	_, err = f.service.SendMessage(context.Background(), owner, "conv-1", "hello")
	assert.ErrorIs(t, err, ErrOutsideTimeWindow)
}

func TestSendMessage_MalformedTimeWindowFailsOpen(t *testing.T) {
	f := newChatFixture()
	window := f.addActiveWindow()
	f.addConversation("patient-1", &window.ID)
	owner := &model.User{ID: "patient-1", Role: model.RolePatient}

	f.lookup.settings = &model.ProviderSettings{
		ProviderID:      "provider-1",
		TimeWindowStart: "not-a-time",
		TimeWindowEnd:   "12:00",
	}
	_, err := f.service.SendMessage(context.Background(), owner, "conv-1", "hello")
	assert.NoError(t, err)
}

func TestSendMessage_DailyLimitEnforced(t *testing.T) {
	f := newChatFixture()
	window := f.addActiveWindow()
	f.addConversation("patient-1", &window.ID)
	owner := &model.User{ID: "patient-1", Role: model.RolePatient}

	f.lookup.settings = &model.ProviderSettings{
		ProviderID:        "provider-1",
		MaxMessagesPerDay: intPointer(10),
	}
	f.store.dailyCount = 10

	_, err := f.service.SendMessage(context.Background(), owner, "conv-1", "hello")
	assert.ErrorIs(t, err, ErrDailyLimitReached)

	f.store.dailyCount = 9
	_, err = f.service.SendMessage(context.Background(), owner, "conv-1", "hello")
	assert.NoError(t, err)
}

func TestSendMessage_TemplateCapEnforced(t *testing.T) {
	f := newChatFixture()
	window := f.addActiveWindow()
	conv := f.addConversation("patient-1", &window.ID)
	templateID := "template-1"
	conv.TemplateID = &templateID
	f.windows.templates[templateID] = &model.ChatTemplate{
		ID:          templateID,
		WindowID:    window.ID,
		ModelID:     "model-1",
		MaxMessages: intPointer(2),
	}
	owner := &model.User{ID: "patient-1", Role: model.RolePatient}

	ctx := context.Background()
	_, err := f.service.SendMessage(ctx, owner, "conv-1", "first")
	require.NoError(t, err)
	_, err = f.service.SendMessage(ctx, owner, "conv-1", "second")
	require.NoError(t, err)

	_, err = f.service.SendMessage(ctx, owner, "conv-1", "third")
	assert.ErrorIs(t, err, ErrMessageLimitReached)
}

func TestSendMessage_ModelFailureRecordedAsResponse(t *testing.T) {
	f := newChatFixture()
	f.addConversation("patient-1", nil)
	f.router.err = fmt.Errorf("connection timed out")
	owner := &model.User{ID: "patient-1", Role: model.RolePatient}

	result, err := f.service.SendMessage(context.Background(), owner, "conv-1", "hello")
	require.NoError(t, err)

	assert.Contains(t, result.AssistantMessage.Content, "Error calling")
	assert.Contains(t, result.AssistantMessage.Content, "connection timed out")

	stored := f.store.messages["conv-1"]
	require.Len(t, stored, 2)
}

func TestSendMessage_AutoTitle(t *testing.T) {
	f := newChatFixture()
	f.addConversation("patient-1", nil)
	owner := &model.User{ID: "patient-1", Role: model.RolePatient}

	long := strings.Repeat("a", 80)
	_, err := f.service.SendMessage(context.Background(), owner, "conv-1", long)
	require.NoError(t, err)

	title := f.store.titles["conv-1"]
	assert.Equal(t, strings.Repeat("a", 50)+"...", title)

	// A second message never retitles
	delete(f.store.titles, "conv-1")
	_, err = f.service.SendMessage(context.Background(), owner, "conv-1", "another")
	require.NoError(t, err)
	assert.Empty(t, f.store.titles["conv-1"])
}

func TestSendMessage_AutoTitleKeepsRuneBoundaries(t *testing.T) {
	f := newChatFixture()
	f.addConversation("patient-1", nil)
	owner := &model.User{ID: "patient-1", Role: model.RolePatient}

	long := strings.Repeat("é", 60)
	_, err := f.service.SendMessage(context.Background(), owner, "conv-1", long)
	require.NoError(t, err)

	title := f.store.titles["conv-1"]
	assert.Equal(t, strings.Repeat("é", 50)+"...", title)
	assert.True(t, utf8.ValidString(title))
}

func TestSendMessage_SystemPromptIncludesCustomInstructions(t *testing.T) {
	f := newChatFixture()
	window := f.addActiveWindow()
	conv := f.addConversation("patient-1", &window.ID)
	conv.SystemPromptContent = "You are a supportive assistant."
	f.lookup.settings = &model.ProviderSettings{
		ProviderID:         "provider-1",
		CustomInstructions: "Encourage journaling.",
	}
	owner := &model.User{ID: "patient-1", Role: model.RolePatient}

	_, err := f.service.SendMessage(context.Background(), owner, "conv-1", "hello")
	require.NoError(t, err)

	require.NotEmpty(t, f.router.calls)
	sent := f.router.calls[0]
	require.NotEmpty(t, sent)
	assert.Equal(t, llm.RoleSystem, sent[0].Role)
	assert.Contains(t, sent[0].Content, "You are a supportive assistant.")
	assert.Contains(t, sent[0].Content, "Additional Instructions: Encourage journaling.")
}

func TestSendMessage_HistoryContextTruncated(t *testing.T) {
	f := newChatFixture()
	f.addConversation("patient-1", nil)
	owner := &model.User{ID: "patient-1", Role: model.RolePatient}

	for i := 0; i < 30; i++ {
		f.store.messages["conv-1"] = append(f.store.messages["conv-1"], model.Message{
			ID:             fmt.Sprintf("msg-%d", i),
			ConversationID: "conv-1",
			Role:           model.MessageRoleUser,
			Content:        fmt.Sprintf("message %d", i),
			Timestamp:      f.clock.Add(time.Duration(i) * time.Minute),
		})
	}

	_, err := f.service.SendMessage(context.Background(), owner, "conv-1", "latest")
	require.NoError(t, err)

	require.NotEmpty(t, f.router.calls)
	sent := f.router.calls[0]
	// 20 history messages plus the new one, no system prompt configured
	require.Len(t, sent, 21)
	assert.Equal(t, "message 10", sent[0].Content)
	assert.Equal(t, "latest", sent[20].Content)
}

func TestListAvailableModels(t *testing.T) {
	f := newChatFixture()
	f.catalog.endpoints["model-2"] = &model.ModelEndpoint{
		ID:              "model-2",
		Name:            "mistral",
		Provider:        model.ModelProviderLocal,
		ModelIdentifier: "mistral",
		Active:          true,
	}
	f.router.providers = map[model.ModelProvider]llm.Provider{
		model.ModelProviderLocal: &fakeChatProvider{
			name:      "ollama",
			models:    []string{"llama3.2"},
			reachable: true,
		},
	}
	actor := &model.User{ID: "patient-1", Role: model.RolePatient}

	models, err := f.service.ListAvailableModels(context.Background(), actor)
	require.NoError(t, err)

	require.Len(t, models, 1)
	assert.Equal(t, "model-1", models[0].ID)
	assert.True(t, models[0].Available)

	// Probe results are persisted for both endpoints
	assert.True(t, f.catalog.availability["model-1"])
	assert.False(t, f.catalog.availability["model-2"])
}

func TestSaveSelection_OwnerOnly(t *testing.T) {
	f := newChatFixture()
	f.addConversation("patient-1", nil)
	ctx := context.Background()

	sel := &model.SavedSelection{
		ConversationID: "conv-1",
		SelectionText:  "I felt better after the walk",
	}
	owner := &model.User{ID: "patient-1", Role: model.RolePatient}
	require.NoError(t, f.service.SaveSelection(ctx, owner, sel))
	assert.NotEmpty(t, sel.ID)
	assert.Equal(t, "patient-1", sel.UserID)

	other := &model.User{ID: "provider-1", Role: model.RoleProvider}
	err := f.service.SaveSelection(ctx, other, &model.SavedSelection{
		ConversationID: "conv-1",
		SelectionText:  "text",
	})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestDeleteSelection_CreatorOrAdmin(t *testing.T) {
	f := newChatFixture()
	f.addConversation("patient-1", nil)
	ctx := context.Background()
	owner := &model.User{ID: "patient-1", Role: model.RolePatient}

	sel := &model.SavedSelection{ConversationID: "conv-1", SelectionText: "keep this"}
	require.NoError(t, f.service.SaveSelection(ctx, owner, sel))

	other := &model.User{ID: "patient-2", Role: model.RolePatient}
	assert.ErrorIs(t, f.service.DeleteSelection(ctx, other, sel.ID), ErrForbidden)

	admin := &model.User{ID: "admin-1", Role: model.RoleAdmin}
	assert.NoError(t, f.service.DeleteSelection(ctx, admin, sel.ID))
}

func intPointer(i int) *int {
	return &i
}
