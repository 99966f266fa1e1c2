package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/clinchat/backend/pkg/model"
)

// ConversationRepository manages conversations, messages, and saved selections
type ConversationRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewConversationRepository creates a new ConversationRepository
func NewConversationRepository(db *pgxpool.Pool, logger *zap.Logger) *ConversationRepository {
	return &ConversationRepository{
		db:     db,
		logger: logger,
	}
}

// CreateConversation creates a new conversation
func (r *ConversationRepository) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	query := `
		INSERT INTO conversations (id, owner_id, title, model_id, system_prompt_content, window_id, template_id, visible, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`

	_, err := r.db.Exec(ctx, query,
		conv.ID,
		conv.OwnerID,
		conv.Title,
		conv.ModelID,
		conv.SystemPromptContent,
		conv.WindowID,
		conv.TemplateID,
		conv.Visible,
	)

	if err != nil {
		r.logger.Error("failed to create conversation", zap.Error(err), zap.String("conversation_id", conv.ID))
		return fmt.Errorf("failed to create conversation: %w", err)
	}

	return nil
}

// GetConversation retrieves a conversation by ID
func (r *ConversationRepository) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	query := `
		SELECT id, owner_id, title, model_id, system_prompt_content, window_id, template_id, visible, created_at, updated_at
		FROM conversations
		WHERE id = $1
	`

	var conv model.Conversation
	err := r.db.QueryRow(ctx, query, conversationID).Scan(
		&conv.ID,
		&conv.OwnerID,
		&conv.Title,
		&conv.ModelID,
		&conv.SystemPromptContent,
		&conv.WindowID,
		&conv.TemplateID,
		&conv.Visible,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
		}
		r.logger.Error("failed to get conversation", zap.Error(err), zap.String("conversation_id", conversationID))
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	return &conv, nil
}

// ListConversationsByOwner retrieves a user's conversations, newest first
func (r *ConversationRepository) ListConversationsByOwner(ctx context.Context, ownerID string, visibleOnly bool) ([]model.Conversation, error) {
	query := `
		SELECT id, owner_id, title, model_id, system_prompt_content, window_id, template_id, visible, created_at, updated_at
		FROM conversations
		WHERE owner_id = $1 AND ($2 = false OR visible = true)
		ORDER BY updated_at DESC
	`

	rows, err := r.db.Query(ctx, query, ownerID, visibleOnly)
	if err != nil {
		r.logger.Error("failed to list conversations", zap.Error(err), zap.String("owner_id", ownerID))
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	return r.collectConversations(rows)
}

// ListConversationsByWindow retrieves every conversation linked to a window
func (r *ConversationRepository) ListConversationsByWindow(ctx context.Context, windowID string) ([]model.Conversation, error) {
	query := `
		SELECT id, owner_id, title, model_id, system_prompt_content, window_id, template_id, visible, created_at, updated_at
		FROM conversations
		WHERE window_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, windowID)
	if err != nil {
		r.logger.Error("failed to list window conversations", zap.Error(err), zap.String("window_id", windowID))
		return nil, fmt.Errorf("failed to list window conversations: %w", err)
	}
	defer rows.Close()

	return r.collectConversations(rows)
}

// FindConversationByTemplate looks up the conversation a user already started
// from a template inside a window. Used to keep template instantiation
// idempotent.
func (r *ConversationRepository) FindConversationByTemplate(ctx context.Context, ownerID, windowID, templateID string) (*model.Conversation, error) {
	query := `
		SELECT id, owner_id, title, model_id, system_prompt_content, window_id, template_id, visible, created_at, updated_at
		FROM conversations
		WHERE owner_id = $1 AND window_id = $2 AND template_id = $3
		ORDER BY created_at ASC
		LIMIT 1
	`

	var conv model.Conversation
	err := r.db.QueryRow(ctx, query, ownerID, windowID, templateID).Scan(
		&conv.ID,
		&conv.OwnerID,
		&conv.Title,
		&conv.ModelID,
		&conv.SystemPromptContent,
		&conv.WindowID,
		&conv.TemplateID,
		&conv.Visible,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("template conversation: %w", ErrNotFound)
		}
		r.logger.Error("failed to find template conversation", zap.Error(err), zap.String("template_id", templateID))
		return nil, fmt.Errorf("failed to find template conversation: %w", err)
	}

	return &conv, nil
}

// UpdateConversationTitle sets a conversation's title
func (r *ConversationRepository) UpdateConversationTitle(ctx context.Context, conversationID, title string) error {
	query := `
		UPDATE conversations
		SET title = $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.db.Exec(ctx, query, title, conversationID)
	if err != nil {
		r.logger.Error("failed to update conversation title", zap.Error(err), zap.String("conversation_id", conversationID))
		return fmt.Errorf("failed to update conversation title: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}

	return nil
}

// SetConversationVisibility hides or shows a conversation
func (r *ConversationRepository) SetConversationVisibility(ctx context.Context, conversationID string, visible bool) error {
	query := `
		UPDATE conversations
		SET visible = $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.db.Exec(ctx, query, visible, conversationID)
	if err != nil {
		r.logger.Error("failed to set conversation visibility", zap.Error(err), zap.String("conversation_id", conversationID))
		return fmt.Errorf("failed to set conversation visibility: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}

	return nil
}

// AppendMessage stores a message and bumps the conversation's updated_at
func (r *ConversationRepository) AppendMessage(ctx context.Context, msg *model.Message) error {
	query := `
		INSERT INTO messages (id, conversation_id, role, content, timestamp, response_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`

	_, err := r.db.Exec(ctx, query,
		msg.ID,
		msg.ConversationID,
		msg.Role,
		msg.Content,
		msg.Timestamp,
		msg.ResponseTime,
	)

	if err != nil {
		r.logger.Error("failed to append message",
			zap.Error(err),
			zap.String("conversation_id", msg.ConversationID),
			zap.String("message_id", msg.ID),
		)
		return fmt.Errorf("failed to append message: %w", err)
	}

	_, err = r.db.Exec(ctx, `UPDATE conversations SET updated_at = NOW() WHERE id = $1`, msg.ConversationID)
	if err != nil {
		r.logger.Warn("failed to bump conversation timestamp", zap.Error(err), zap.String("conversation_id", msg.ConversationID))
	}

	return nil
}

// ListMessages retrieves all messages of a conversation in chronological
// order, ties broken by insertion order
func (r *ConversationRepository) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	query := `
		SELECT id, conversation_id, role, content, timestamp, response_time
		FROM messages
		WHERE conversation_id = $1
		ORDER BY timestamp ASC, created_at ASC
	`

	rows, err := r.db.Query(ctx, query, conversationID)
	if err != nil {
		r.logger.Error("failed to list messages", zap.Error(err), zap.String("conversation_id", conversationID))
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	return r.collectMessages(rows)
}

// ListRecentMessages retrieves the last limit messages in chronological order
func (r *ConversationRepository) ListRecentMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	query := `
		SELECT id, conversation_id, role, content, timestamp, response_time
		FROM (
			SELECT id, conversation_id, role, content, timestamp, response_time, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY timestamp DESC, created_at DESC
			LIMIT $2
		) recent
		ORDER BY timestamp ASC, created_at ASC
	`

	rows, err := r.db.Query(ctx, query, conversationID, limit)
	if err != nil {
		r.logger.Error("failed to list recent messages", zap.Error(err), zap.String("conversation_id", conversationID))
		return nil, fmt.Errorf("failed to list recent messages: %w", err)
	}
	defer rows.Close()

	return r.collectMessages(rows)
}

// CountMessagesByRole counts a conversation's messages with the given role.
// Used for template message caps.
func (r *ConversationRepository) CountMessagesByRole(ctx context.Context, conversationID string, role model.MessageRole) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE conversation_id = $1 AND role = $2`, conversationID, role).Scan(&count)
	if err != nil {
		r.logger.Error("failed to count messages", zap.Error(err), zap.String("conversation_id", conversationID))
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// CountUserMessagesSince counts a user's own messages across all their
// conversations since the given time. Used for daily message limits.
func (r *ConversationRepository) CountUserMessagesSince(ctx context.Context, ownerID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE c.owner_id = $1 AND m.role = $2 AND m.timestamp >= $3
	`

	var count int
	err := r.db.QueryRow(ctx, query, ownerID, model.MessageRoleUser, since).Scan(&count)
	if err != nil {
		r.logger.Error("failed to count user messages", zap.Error(err), zap.String("owner_id", ownerID))
		return 0, fmt.Errorf("failed to count user messages: %w", err)
	}
	return count, nil
}

// CreateSelection stores a saved text selection
func (r *ConversationRepository) CreateSelection(ctx context.Context, sel *model.SavedSelection) error {
	messageIDs, err := json.Marshal(sel.MessageIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal message ids: %w", err)
	}

	query := `
		INSERT INTO saved_selections (id, user_id, conversation_id, selection_text, message_ids, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`

	_, err = r.db.Exec(ctx, query,
		sel.ID,
		sel.UserID,
		sel.ConversationID,
		sel.SelectionText,
		messageIDs,
		sel.Note,
	)

	if err != nil {
		r.logger.Error("failed to create selection", zap.Error(err), zap.String("selection_id", sel.ID))
		return fmt.Errorf("failed to create selection: %w", err)
	}

	return nil
}

// GetSelection retrieves a saved selection by ID
func (r *ConversationRepository) GetSelection(ctx context.Context, selectionID string) (*model.SavedSelection, error) {
	query := `
		SELECT id, user_id, conversation_id, selection_text, message_ids, note, created_at
		FROM saved_selections
		WHERE id = $1
	`

	sel, err := scanSelection(r.db.QueryRow(ctx, query, selectionID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("selection %s: %w", selectionID, ErrNotFound)
		}
		r.logger.Error("failed to get selection", zap.Error(err), zap.String("selection_id", selectionID))
		return nil, fmt.Errorf("failed to get selection: %w", err)
	}

	return sel, nil
}

// ListSelectionsByConversation retrieves a conversation's saved selections
func (r *ConversationRepository) ListSelectionsByConversation(ctx context.Context, conversationID string) ([]model.SavedSelection, error) {
	query := `
		SELECT id, user_id, conversation_id, selection_text, message_ids, note, created_at
		FROM saved_selections
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, conversationID)
	if err != nil {
		r.logger.Error("failed to list selections", zap.Error(err), zap.String("conversation_id", conversationID))
		return nil, fmt.Errorf("failed to list selections: %w", err)
	}
	defer rows.Close()

	return r.collectSelections(rows)
}

// ListSelectionsByWindow retrieves every saved selection made inside a
// window's conversations
func (r *ConversationRepository) ListSelectionsByWindow(ctx context.Context, windowID string) ([]model.SavedSelection, error) {
	query := `
		SELECT s.id, s.user_id, s.conversation_id, s.selection_text, s.message_ids, s.note, s.created_at
		FROM saved_selections s
		JOIN conversations c ON c.id = s.conversation_id
		WHERE c.window_id = $1
		ORDER BY s.created_at ASC
	`

	rows, err := r.db.Query(ctx, query, windowID)
	if err != nil {
		r.logger.Error("failed to list window selections", zap.Error(err), zap.String("window_id", windowID))
		return nil, fmt.Errorf("failed to list window selections: %w", err)
	}
	defer rows.Close()

	return r.collectSelections(rows)
}

// DeleteSelection removes a saved selection
func (r *ConversationRepository) DeleteSelection(ctx context.Context, selectionID string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM saved_selections WHERE id = $1`, selectionID)
	if err != nil {
		r.logger.Error("failed to delete selection", zap.Error(err), zap.String("selection_id", selectionID))
		return fmt.Errorf("failed to delete selection: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("selection %s: %w", selectionID, ErrNotFound)
	}

	return nil
}

func (r *ConversationRepository) collectConversations(rows pgx.Rows) ([]model.Conversation, error) {
	var conversations []model.Conversation
	for rows.Next() {
		var conv model.Conversation
		err := rows.Scan(
			&conv.ID,
			&conv.OwnerID,
			&conv.Title,
			&conv.ModelID,
			&conv.SystemPromptContent,
			&conv.WindowID,
			&conv.TemplateID,
			&conv.Visible,
			&conv.CreatedAt,
			&conv.UpdatedAt,
		)
		if err != nil {
			r.logger.Error("failed to scan conversation", zap.Error(err))
			continue
		}
		conversations = append(conversations, conv)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("error iterating conversations", zap.Error(err))
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}

	return conversations, nil
}

func (r *ConversationRepository) collectMessages(rows pgx.Rows) ([]model.Message, error) {
	var messages []model.Message
	for rows.Next() {
		var msg model.Message
		err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.Role,
			&msg.Content,
			&msg.Timestamp,
			&msg.ResponseTime,
		)
		if err != nil {
			r.logger.Error("failed to scan message", zap.Error(err))
			continue
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("error iterating messages", zap.Error(err))
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

func scanSelection(row rowScanner) (*model.SavedSelection, error) {
	var sel model.SavedSelection
	var messageIDs []byte
	err := row.Scan(
		&sel.ID,
		&sel.UserID,
		&sel.ConversationID,
		&sel.SelectionText,
		&messageIDs,
		&sel.Note,
		&sel.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(messageIDs) > 0 {
		if err := json.Unmarshal(messageIDs, &sel.MessageIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message ids: %w", err)
		}
	}

	return &sel, nil
}

func (r *ConversationRepository) collectSelections(rows pgx.Rows) ([]model.SavedSelection, error) {
	var selections []model.SavedSelection
	for rows.Next() {
		sel, err := scanSelection(rows)
		if err != nil {
			r.logger.Error("failed to scan selection", zap.Error(err))
			continue
		}
		selections = append(selections, *sel)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("error iterating selections", zap.Error(err))
		return nil, fmt.Errorf("error iterating selections: %w", err)
	}

	return selections, nil
}
