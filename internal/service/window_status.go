package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clinchat/backend/pkg/model"
)

// ComputeStatus derives a window's lifecycle status from the clock. Terminal
// statuses are sticky: once a window is generating a report or has one ready,
// timestamps no longer matter. The function is pure; it never touches storage.
func ComputeStatus(window *model.ChatWindow, now time.Time) model.WindowStatus {
	if window.Status.Terminal() {
		return window.Status
	}
	if now.Before(window.StartTime) {
		return model.WindowStatusScheduled
	}
	if !now.After(window.EndTime) {
		return model.WindowStatusActive
	}
	// Past end time with no report recorded yet: this is the signal the
	// report generator consumes.
	return model.WindowStatusGeneratingReport
}

// WindowStatusStore persists window status transitions
type WindowStatusStore interface {
	UpdateWindowStatus(ctx context.Context, windowID string, status model.WindowStatus) error
}

// StatusEngine recomputes and persists window statuses
type StatusEngine struct {
	store  WindowStatusStore
	logger *zap.Logger
	now    func() time.Time
}

// NewStatusEngine creates a StatusEngine
func NewStatusEngine(store WindowStatusStore, logger *zap.Logger) *StatusEngine {
	return &StatusEngine{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Sync recomputes the window's status and persists it only when it changed.
// The window's in-memory status is updated either way.
func (e *StatusEngine) Sync(ctx context.Context, window *model.ChatWindow) error {
	computed := ComputeStatus(window, e.now())
	if computed == window.Status {
		return nil
	}

	if err := e.store.UpdateWindowStatus(ctx, window.ID, computed); err != nil {
		return fmt.Errorf("failed to sync window status: %w", err)
	}

	e.logger.Info("window status transitioned",
		zap.String("window_id", window.ID),
		zap.String("from", string(window.Status)),
		zap.String("to", string(computed)),
	)
	window.Status = computed
	return nil
}

// SyncAll syncs a batch of windows, continuing past individual failures
func (e *StatusEngine) SyncAll(ctx context.Context, windows []model.ChatWindow) {
	for i := range windows {
		if err := e.Sync(ctx, &windows[i]); err != nil {
			e.logger.Warn("failed to sync window status",
				zap.Error(err),
				zap.String("window_id", windows[i].ID),
			)
		}
	}
}
