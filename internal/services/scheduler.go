package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fintrack/internal/log"
)

// DueProcessor is implemented by *RecurringProcessor.
type DueProcessor interface {
	ProcessDue(ctx context.Context, now time.Time) (int, error)
}

// SchedulerConfig holds configuration for the recurring scheduler
type SchedulerConfig struct {
	// Interval is how often due templates are checked (default: 1h)
	Interval time.Duration
}

// DefaultSchedulerConfig returns sensible defaults
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval: time.Hour,
	}
}

// RecurringScheduler runs a DueProcessor once at start and then on every tick.
type RecurringScheduler struct {
	processor DueProcessor
	config    SchedulerConfig
	logger    *log.Logger
	now       func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewRecurringScheduler(processor DueProcessor, config SchedulerConfig, logger *log.Logger) *RecurringScheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultSchedulerConfig().Interval
	}
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	return &RecurringScheduler{
		processor: processor,
		config:    config,
		logger:    logger.WithComponent(log.ComponentRecurring),
		now:       time.Now,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (s *RecurringScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("recurring scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	go s.runLoop(ctx, stopCh, doneCh)

	s.logger.InfoContext(ctx, "Recurring scheduler started", "interval", s.config.Interval)
	return nil
}

// Stop signals the loop and waits for it to finish or for ctx to expire.
func (s *RecurringScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.running = false
	s.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		s.logger.InfoContext(ctx, "Recurring scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "Recurring scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *RecurringScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *RecurringScheduler) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *RecurringScheduler) tick(ctx context.Context) {
	n, err := s.processor.ProcessDue(ctx, s.now())
	if err != nil {
		s.logger.ErrorContext(ctx, "Recurring processing failed", log.FieldError, err, log.FieldCount, n)
		return
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "Recurring transactions created", log.FieldCount, n)
	}
}
