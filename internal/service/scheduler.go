package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/clinchat/backend/internal/repository"
	"github.com/clinchat/backend/pkg/model"
)

// DefaultSchedulerInterval is the sweep cadence when none is configured
const DefaultSchedulerInterval = 5 * time.Minute

// SchedulerWindowStore is the window storage the scheduler sweeps
type SchedulerWindowStore interface {
	ListAllWindows(ctx context.Context) ([]model.ChatWindow, error)
	UpdateWindowStatus(ctx context.Context, windowID string, status model.WindowStatus) error
}

// SchedulerReportStore answers report existence checks
type SchedulerReportStore interface {
	GetReportByWindow(ctx context.Context, windowID string) (*model.Report, error)
}

// ReportSaver generates and persists a window's report
type ReportSaver interface {
	SaveReport(ctx context.Context, windowID string) (*model.Report, error)
}

// Scheduler sweeps all windows on a fixed interval, finalizing expired ones:
// sync status, generate the report if none exists, then mark report_ready.
// One window's failure never stops the rest of the tick; the failed window is
// rolled back and retried next tick.
type Scheduler struct {
	windows  SchedulerWindowStore
	reports  SchedulerReportStore
	saver    ReportSaver
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// NewScheduler creates a Scheduler. A non-positive interval falls back to
// the default.
func NewScheduler(windows SchedulerWindowStore, reports SchedulerReportStore, saver ReportSaver, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultSchedulerInterval
	}
	return &Scheduler{
		windows:  windows,
		reports:  reports,
		saver:    saver,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Start launches the background sweep loop. Calling Start on a running
// scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(s.stop, s.done)
	s.logger.Info("report scheduler started", zap.Duration("interval", s.interval))
}

// Stop signals the loop to exit and waits for an in-flight tick to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	<-done
	s.logger.Info("report scheduler stopped")
}

func (s *Scheduler) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			processed := s.RunOnce(context.Background())
			if len(processed) > 0 {
				s.logger.Info("scheduler tick finalized windows",
					zap.Int("count", len(processed)),
					zap.Strings("window_ids", processed),
				)
			}
		}
	}
}

// RunOnce performs one sweep and returns the IDs of windows it finalized.
// Exported for manual triggering and tests.
func (s *Scheduler) RunOnce(ctx context.Context) []string {
	windows, err := s.windows.ListAllWindows(ctx)
	if err != nil {
		s.logger.Error("scheduler failed to load windows", zap.Error(err))
		return nil
	}

	var processed []string
	for i := range windows {
		if s.processWindow(ctx, &windows[i]) {
			processed = append(processed, windows[i].ID)
		}
	}
	return processed
}

// processWindow syncs one window and runs its report flow when due. Returns
// true when the window reached report_ready this tick.
func (s *Scheduler) processWindow(ctx context.Context, window *model.ChatWindow) bool {
	prevStatus := window.Status
	computed := ComputeStatus(window, s.now())

	if computed != prevStatus {
		if err := s.windows.UpdateWindowStatus(ctx, window.ID, computed); err != nil {
			s.logger.Warn("scheduler failed to sync window status",
				zap.Error(err),
				zap.String("window_id", window.ID),
			)
			return false
		}
		window.Status = computed
	}

	if computed != model.WindowStatusGeneratingReport {
		return false
	}

	if _, err := s.reports.GetReportByWindow(ctx, window.ID); err == nil {
		// Report already exists, just advance the status
		return s.markReady(ctx, window, prevStatus)
	} else if !errors.Is(err, repository.ErrNotFound) {
		s.rollback(ctx, window, prevStatus)
		return false
	}

	if _, err := s.saver.SaveReport(ctx, window.ID); err != nil {
		s.logger.Error("report generation failed, rolling back window",
			zap.Error(err),
			zap.String("window_id", window.ID),
		)
		s.rollback(ctx, window, prevStatus)
		return false
	}

	return s.markReady(ctx, window, prevStatus)
}

func (s *Scheduler) markReady(ctx context.Context, window *model.ChatWindow, prevStatus model.WindowStatus) bool {
	if err := s.windows.UpdateWindowStatus(ctx, window.ID, model.WindowStatusReportReady); err != nil {
		s.logger.Error("failed to mark window report_ready",
			zap.Error(err),
			zap.String("window_id", window.ID),
		)
		s.rollback(ctx, window, prevStatus)
		return false
	}
	window.Status = model.WindowStatusReportReady
	s.logger.Info("window finalized", zap.String("window_id", window.ID))
	return true
}

// rollback restores the window's pre-tick persisted status so the next tick
// retries from a clean state
func (s *Scheduler) rollback(ctx context.Context, window *model.ChatWindow, prevStatus model.WindowStatus) {
	if window.Status == prevStatus {
		return
	}
	if err := s.windows.UpdateWindowStatus(ctx, window.ID, prevStatus); err != nil {
		s.logger.Error("failed to roll back window status",
			zap.Error(err),
			zap.String("window_id", window.ID),
			zap.String("status", string(prevStatus)),
		)
		return
	}
	window.Status = prevStatus
}
