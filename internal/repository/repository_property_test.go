package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/clinchat/backend/pkg/model"
)

// setupTestDB creates a PostgreSQL testcontainer with the tables these
// properties touch
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("clinchat_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connString)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `
		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			deleted_at TIMESTAMPTZ
		);
		CREATE TABLE chat_windows (
			id TEXT PRIMARY KEY,
			patient_id TEXT NOT NULL,
			provider_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ NOT NULL,
			visible BOOLEAN NOT NULL DEFAULT TRUE,
			status TEXT NOT NULL,
			report_config JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE conversations (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			model_id TEXT NOT NULL,
			system_prompt_content TEXT NOT NULL DEFAULT '',
			window_id TEXT,
			template_id TEXT,
			visible BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			response_time DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return pool, cleanup
}

func TestProperty_WindowRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewWindowRepository(pool, zap.NewNop())

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	statuses := []model.WindowStatus{
		model.WindowStatusScheduled,
		model.WindowStatusActive,
		model.WindowStatusGeneratingReport,
		model.WindowStatusReportReady,
	}

	properties.Property("a stored window reads back unchanged", prop.ForAll(
		func(title string, description string, visible bool, statusIdx int, startOffset int, duration int) bool {
			window := &model.ChatWindow{
				ID:          uuid.New().String(),
				PatientID:   uuid.New().String(),
				ProviderID:  uuid.New().String(),
				Title:       title,
				Description: description,
				StartTime:   base.Add(time.Duration(startOffset) * time.Minute),
				EndTime:     base.Add(time.Duration(startOffset+duration) * time.Minute),
				Visible:     visible,
				Status:      statuses[statusIdx],
				ReportConfig: model.ReportConfig{
					model.ComponentAISummary:        visible,
					model.ComponentSavedMessages:    true,
					model.ComponentDescriptiveStats: true,
					model.ComponentNLPAnalysis:      !visible,
				},
			}
			if err := repo.CreateWindow(ctx, window); err != nil {
				t.Logf("create failed: %v", err)
				return false
			}

			got, err := repo.GetWindow(ctx, window.ID)
			if err != nil {
				t.Logf("get failed: %v", err)
				return false
			}

			return got.Title == window.Title &&
				got.Description == window.Description &&
				got.Visible == window.Visible &&
				got.Status == window.Status &&
				got.StartTime.Equal(window.StartTime) &&
				got.EndTime.Equal(window.EndTime) &&
				len(got.ReportConfig) == len(window.ReportConfig) &&
				got.ReportConfig[model.ComponentAISummary] == window.ReportConfig[model.ComponentAISummary]
		},
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
		gen.AlphaString(),
		gen.Bool(),
		gen.IntRange(0, len(statuses)-1),
		gen.IntRange(0, 10000),
		gen.IntRange(1, 10000),
	))

	properties.TestingRun(t)
}

func TestProperty_MessageOrderPreserved(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewConversationRepository(pool, zap.NewNop())

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	properties.Property("messages list back in chronological order", prop.ForAll(
		func(count int) bool {
			conv := &model.Conversation{
				ID:      uuid.New().String(),
				OwnerID: uuid.New().String(),
				ModelID: "model-1",
				Visible: true,
			}
			if err := repo.CreateConversation(ctx, conv); err != nil {
				t.Logf("create conversation failed: %v", err)
				return false
			}

			for i := 0; i < count; i++ {
				role := model.MessageRoleUser
				if i%2 == 1 {
					role = model.MessageRoleAssistant
				}
				msg := &model.Message{
					ID:             uuid.New().String(),
					ConversationID: conv.ID,
					Role:           role,
					Content:        fmt.Sprintf("message %d", i),
					Timestamp:      base.Add(time.Duration(i) * time.Minute),
				}
				if err := repo.AppendMessage(ctx, msg); err != nil {
					t.Logf("append failed: %v", err)
					return false
				}
			}

			messages, err := repo.ListMessages(ctx, conv.ID)
			if err != nil {
				t.Logf("list failed: %v", err)
				return false
			}
			if len(messages) != count {
				return false
			}
			for i := 1; i < len(messages); i++ {
				if messages[i].Timestamp.Before(messages[i-1].Timestamp) {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 12),
	))

	properties.TestingRun(t)
}
