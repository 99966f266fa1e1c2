package integration_tests

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clinchat/backend/internal/azure"
	"github.com/clinchat/backend/internal/llm"
	"github.com/clinchat/backend/internal/report"
	"github.com/clinchat/backend/internal/repository"
	"github.com/clinchat/backend/internal/service"
	"github.com/clinchat/backend/pkg/model"
)

// reportDataStore joins the two repositories the generator reads from
type reportDataStore struct {
	*repository.WindowRepository
	*repository.ConversationRepository
}

func TestReportPipelineIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	logger := zap.NewNop()
	pool := setupTestDatabase(t, ctx)

	windowRepo := repository.NewWindowRepository(pool, logger)
	conversationRepo := repository.NewConversationRepository(pool, logger)
	catalogRepo := repository.NewModelCatalogRepository(pool, logger)
	reportRepo := repository.NewReportRepository(pool, logger)
	userRepo := repository.NewUserRepository(pool, logger)

	// no local model server is running, so the AI summary omits itself
	router := llm.NewRouter(logger, map[model.ModelProvider]llm.Provider{
		model.ModelProviderLocal: llm.NewOllamaProvider("http://127.0.0.1:1", time.Second, time.Second, logger),
	})

	archiver := azure.NewMockBlobStorageClient(logger)
	generator := report.NewGenerator(
		reportDataStore{windowRepo, conversationRepo},
		reportRepo,
		archiver,
		report.DefaultComponents(catalogRepo, router, logger),
		logger,
	)

	provider := createUser(t, ctx, pool, model.RoleProvider)
	patient := createUser(t, ctx, pool, model.RolePatient)
	assignPatient(t, ctx, pool, provider.ID, patient.ID)

	seedEndedWindow := func(t *testing.T) *model.ChatWindow {
		t.Helper()
		window := &model.ChatWindow{
			ID:           uuid.New().String(),
			PatientID:    patient.ID,
			ProviderID:   provider.ID,
			Title:        "Closed window",
			StartTime:    time.Now().Add(-72 * time.Hour),
			EndTime:      time.Now().Add(-time.Hour),
			Visible:      true,
			Status:       model.WindowStatusActive,
			ReportConfig: model.DefaultReportConfig(),
		}
		require.NoError(t, windowRepo.CreateWindow(ctx, window))

		conv := &model.Conversation{
			ID:       uuid.New().String(),
			OwnerID:  patient.ID,
			Title:    "Mood diary",
			ModelID:  "model-1",
			WindowID: &window.ID,
			Visible:  true,
		}
		require.NoError(t, conversationRepo.CreateConversation(ctx, conv))

		base := window.StartTime.Add(time.Hour)
		for i, pair := range []struct {
			role    model.MessageRole
			content string
		}{
			{model.MessageRoleUser, "I felt anxious this morning but better by evening"},
			{model.MessageRoleAssistant, "Thank you for sharing. What helped in the evening?"},
			{model.MessageRoleUser, "Going for a walk helped, I felt calm afterwards"},
			{model.MessageRoleAssistant, "Walking is a great way to settle the mind."},
		} {
			require.NoError(t, conversationRepo.AppendMessage(ctx, &model.Message{
				ID:             uuid.New().String(),
				ConversationID: conv.ID,
				Role:           pair.role,
				Content:        pair.content,
				Timestamp:      base.Add(time.Duration(i) * time.Minute),
			}))
		}

		require.NoError(t, conversationRepo.CreateSelection(ctx, &model.SavedSelection{
			ID:             uuid.New().String(),
			UserID:         patient.ID,
			ConversationID: conv.ID,
			SelectionText:  "Going for a walk helped",
			Note:           "coping strategy",
		}))
		return window
	}

	t.Run("generator persists and archives the document", func(t *testing.T) {
		window := seedEndedWindow(t)

		rpt, err := generator.SaveReport(ctx, window.ID)
		require.NoError(t, err)

		stored, err := reportRepo.GetReportByWindow(ctx, window.ID)
		require.NoError(t, err)
		assert.Equal(t, rpt.ID, stored.ID)
		assert.Equal(t, model.ReportTypeUnified, stored.ReportType)
		assert.Equal(t, "reports/"+window.ID+"/"+rpt.ID+".json", stored.FilePath)

		_, err = archiver.DownloadReport(ctx, stored.FilePath)
		require.NoError(t, err, "the serialized document should be in blob storage")

		var doc report.Document
		require.NoError(t, json.Unmarshal(stored.Payload, &doc))
		assert.Equal(t, window.ID, doc.WindowID)
		assert.Contains(t, doc.Components, model.ComponentDescriptiveStats)
		assert.Contains(t, doc.Components, model.ComponentSavedMessages)
		assert.Contains(t, doc.Components, model.ComponentNLPAnalysis)
		assert.NotContains(t, doc.Components, model.ComponentAISummary,
			"with no reachable local model the summary drops out silently")

		assert.Equal(t, 1, doc.Summary.TotalConversations)
		assert.Equal(t, 2, doc.Summary.TotalUserMessages)
		assert.Equal(t, 2, doc.Summary.TotalModelMessages)
	})

	t.Run("scheduler finalizes an expired window end to end", func(t *testing.T) {
		window := seedEndedWindow(t)

		scheduler := service.NewScheduler(windowRepo, reportRepo, generator, time.Minute, logger)
		finalized := scheduler.RunOnce(ctx)
		assert.Contains(t, finalized, window.ID)

		updated, err := windowRepo.GetWindow(ctx, window.ID)
		require.NoError(t, err)
		assert.Equal(t, model.WindowStatusReportReady, updated.Status)

		_, err = reportRepo.GetReportByWindow(ctx, window.ID)
		require.NoError(t, err)

		// a second pass leaves the terminal window alone
		finalized = scheduler.RunOnce(ctx)
		assert.NotContains(t, finalized, window.ID)
	})

	t.Run("manual generation refuses a duplicate", func(t *testing.T) {
		window := seedEndedWindow(t)

		access := service.NewAccessService(userRepo, logger)
		reportService := service.NewReportService(reportRepo, windowRepo, generator, access, logger)

		first, err := reportService.GenerateReport(ctx, provider, window.ID)
		require.NoError(t, err)
		require.NotNil(t, first)

		_, err = reportService.GenerateReport(ctx, provider, window.ID)
		assert.ErrorIs(t, err, service.ErrReportExists)

		updated, err := windowRepo.GetWindow(ctx, window.ID)
		require.NoError(t, err)
		assert.Equal(t, model.WindowStatusReportReady, updated.Status)
	})
}
