package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"curator/internal/generation"
	"curator/internal/logging"
	"curator/internal/session"
)

const sendTimeout = 15 * time.Second

// JobSink sends one alert per finished generation job.
type JobSink struct {
	session.NopSink

	svc    Service
	logger *slog.Logger

	mu       sync.Mutex
	notified map[string]bool
	wg       sync.WaitGroup
}

// NewJobSink wraps svc as a session sink.
func NewJobSink(svc Service, logger *slog.Logger) *JobSink {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &JobSink{
		svc:      svc,
		logger:   logging.NewComponentLogger(logger, "notifications"),
		notified: make(map[string]bool),
	}
}

// JobChanged sends the alert in the background so the session is never
// blocked on ntfy.
func (s *JobSink) JobChanged(progress generation.Progress) {
	if !progress.State.Terminal() || progress.JobID == "" {
		return
	}
	s.mu.Lock()
	if s.notified[progress.JobID] {
		s.mu.Unlock()
		return
	}
	s.notified[progress.JobID] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := s.svc.NotifyJobFinished(ctx, progress); err != nil {
			logging.WarnWithContext(s.logger, "job notification failed", "notification_failed",
				logging.String(logging.FieldJobID, progress.JobID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "operator not alerted"),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			)
		}
	}()
}

// Flush waits for in-flight alerts.
func (s *JobSink) Flush() {
	s.wg.Wait()
}
