package model

import "time"

// Role represents a user's role in the system
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleProvider Role = "provider"
	RolePatient  Role = "patient"
)

// User represents a user in the system
type User struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Role      Role       `json:"role"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// IsAdmin reports whether the user has the admin role
func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// IsProvider reports whether the user has the provider role
func (u *User) IsProvider() bool { return u.Role == RoleProvider }

// IsPatient reports whether the user has the patient role
func (u *User) IsPatient() bool { return u.Role == RolePatient }

// ProviderAssignment links a provider to a patient they manage
type ProviderAssignment struct {
	ID         string    `json:"id"`
	ProviderID string    `json:"provider_id"`
	PatientID  string    `json:"patient_id"`
	AssignedAt time.Time `json:"assigned_at"`
	AssignedBy string    `json:"assigned_by,omitempty"`
}

// WindowStatus represents the lifecycle state of a chat window
type WindowStatus string

const (
	WindowStatusScheduled        WindowStatus = "scheduled"
	WindowStatusActive           WindowStatus = "active"
	WindowStatusGeneratingReport WindowStatus = "generating_report"
	WindowStatusReportReady      WindowStatus = "report_ready"
)

// Terminal reports whether the status is sticky: once persisted it is never
// reverted by time-based recomputation.
func (s WindowStatus) Terminal() bool {
	return s == WindowStatusGeneratingReport || s == WindowStatusReportReady
}

// Rank orders statuses along the lifecycle:
// scheduled < active < generating_report < report_ready.
func (s WindowStatus) Rank() int {
	switch s {
	case WindowStatusScheduled:
		return 0
	case WindowStatusActive:
		return 1
	case WindowStatusGeneratingReport:
		return 2
	case WindowStatusReportReady:
		return 3
	}
	return -1
}

// Report component names recognized in a window's report configuration.
// Unknown keys are dropped on write.
const (
	ComponentAISummary        = "ai_summary"
	ComponentSavedMessages    = "saved_messages"
	ComponentDescriptiveStats = "descriptive_stats"
	ComponentNLPAnalysis      = "nlp_analysis"
)

// ReportConfig maps component names to an enabled flag
type ReportConfig map[string]bool

// KnownComponents lists the recognized report component names in display order
func KnownComponents() []string {
	return []string{
		ComponentAISummary,
		ComponentSavedMessages,
		ComponentDescriptiveStats,
		ComponentNLPAnalysis,
	}
}

// DefaultReportConfig returns a configuration with every component enabled
func DefaultReportConfig() ReportConfig {
	cfg := make(ReportConfig, 4)
	for _, name := range KnownComponents() {
		cfg[name] = true
	}
	return cfg
}

// Sanitize returns a copy containing only recognized component keys
func (c ReportConfig) Sanitize() ReportConfig {
	out := make(ReportConfig, 4)
	for _, name := range KnownComponents() {
		if enabled, ok := c[name]; ok {
			out[name] = enabled
		}
	}
	return out
}

// ChatWindow is a time-boxed container a provider creates for a patient.
// Status is a persisted override: terminal states lock in once a report
// process begins and are never reverted from timestamps.
type ChatWindow struct {
	ID           string       `json:"id"`
	PatientID    string       `json:"patient_id"`
	ProviderID   string       `json:"provider_id"`
	Title        string       `json:"title"`
	Description  string       `json:"description,omitempty"`
	StartTime    time.Time    `json:"start_time"`
	EndTime      time.Time    `json:"end_time"`
	Visible      bool         `json:"visible"`
	Status       WindowStatus `json:"status"`
	ReportConfig ReportConfig `json:"report_config"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// ChatTemplate is a predefined conversation configuration owned by one window
type ChatTemplate struct {
	ID                 string    `json:"id"`
	WindowID           string    `json:"window_id"`
	Title              string    `json:"title"`
	Purpose            string    `json:"purpose,omitempty"`
	ModelID            string    `json:"model_id"`
	SystemPromptID     *string   `json:"system_prompt_id,omitempty"`
	CustomSystemPrompt string    `json:"custom_system_prompt,omitempty"`
	MaxMessages        *int      `json:"max_messages,omitempty"`
	OrderIndex         int       `json:"order_index"`
	Visible            bool      `json:"visible"`
	CreatedAt          time.Time `json:"created_at"`
}

// SystemPrompt is a reusable prompt definition
type SystemPrompt struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// ResolveSystemPrompt combines a base prompt with a template's custom
// instructions. The result is snapshotted onto the conversation at creation
// time and never re-resolved afterwards.
func ResolveSystemPrompt(base string, custom string) string {
	switch {
	case base != "" && custom != "":
		return base + "\n\nAdditional Instructions: " + custom
	case custom != "":
		return custom
	default:
		return base
	}
}

// ModelProvider identifies which backend serves a model endpoint
type ModelProvider string

const (
	ModelProviderOpenAI ModelProvider = "openai"
	ModelProviderLocal  ModelProvider = "local"
)

// ModelEndpoint describes an LLM a conversation can be bound to
type ModelEndpoint struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Provider         ModelProvider `json:"provider"`
	ModelIdentifier  string        `json:"model_identifier"`
	APIEndpoint      string        `json:"api_endpoint,omitempty"`
	Config           string        `json:"config,omitempty"`
	Available        bool          `json:"available"`
	LastAvailability *time.Time    `json:"last_availability_check,omitempty"`
	Active           bool          `json:"active"`
	CreatedAt        time.Time     `json:"created_at"`
}

// Conversation is one chat thread owned by a patient, optionally linked to a
// window and a template. SystemPromptContent is an immutable snapshot taken
// when the conversation is created.
type Conversation struct {
	ID                  string    `json:"id"`
	OwnerID             string    `json:"owner_id"`
	Title               string    `json:"title,omitempty"`
	ModelID             string    `json:"model_id"`
	SystemPromptContent string    `json:"system_prompt_content,omitempty"`
	WindowID            *string   `json:"window_id,omitempty"`
	TemplateID          *string   `json:"template_id,omitempty"`
	Visible             bool      `json:"visible"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// MessageRole represents the role of a message sender
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message is an immutable conversation record. Ordering key is Timestamp,
// ties broken by insertion order.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	Role           MessageRole `json:"role"`
	Content        string      `json:"content"`
	Timestamp      time.Time   `json:"timestamp"`
	ResponseTime   *float64    `json:"response_time,omitempty"`
}

// SavedSelection is a text excerpt a patient saved from a conversation
type SavedSelection struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id"`
	SelectionText  string    `json:"selection_text"`
	MessageIDs     []string  `json:"message_ids,omitempty"`
	Note           string    `json:"note,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ProviderSettings are per-patient controls a provider can configure.
// A nil PatientID means the settings apply to all of the provider's patients.
type ProviderSettings struct {
	ID                 string   `json:"id"`
	ProviderID         string   `json:"provider_id"`
	PatientID          *string  `json:"patient_id,omitempty"`
	AllowedModelIDs    []string `json:"allowed_model_ids,omitempty"`
	TimeWindowStart    string   `json:"time_window_start,omitempty"`
	TimeWindowEnd      string   `json:"time_window_end,omitempty"`
	MaxMessagesPerDay  *int     `json:"max_messages_per_day,omitempty"`
	CustomInstructions string   `json:"custom_instructions,omitempty"`
}

// ReportTypeUnified is the single multi-component report produced per window
const ReportTypeUnified = "unified"

// Report is the generated artifact for a completed window. Immutable once
// created. Payload holds the serialized report document; FilePath records the
// blob archive location when the upload succeeded.
type Report struct {
	ID          string    `json:"id"`
	WindowID    string    `json:"window_id"`
	PatientID   string    `json:"patient_id"`
	ProviderID  string    `json:"provider_id"`
	ReportType  string    `json:"report_type"`
	Payload     []byte    `json:"report_data"`
	FilePath    string    `json:"file_path,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
	CreatedAt   time.Time `json:"created_at"`
}
