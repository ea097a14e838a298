package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const minInterval = time.Second

// Scheduler runs a job at a fixed interval. A run that is still going when
// the next one is due causes that next run to be skipped.
type Scheduler struct {
	cron     *cron.Cron
	interval time.Duration
	mu       sync.Mutex
	entryID  cron.EntryID
	started  bool
}

// NewScheduler creates a new scheduler firing every interval.
func NewScheduler(interval time.Duration) (*Scheduler, error) {
	if interval < minInterval {
		return nil, fmt.Errorf("invalid interval %s: must be at least %s", interval, minInterval)
	}

	logger := slogLogger{}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		interval: interval,
	}, nil
}

// Schedule sets the job to run. It replaces any previously scheduled job.
func (s *Scheduler) Schedule(fn func()) error {
	spec := buildCronSpec(s.interval)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Remove existing job if any
	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
	}

	entryID, err := s.cron.AddFunc(spec, fn)
	if err != nil {
		return fmt.Errorf("add cron job: %w", err)
	}
	s.entryID = entryID

	return nil
}

// Next returns when the job fires next, or the zero time if nothing is scheduled
// or the scheduler is not running.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.cron.Start()
		s.started = true
	}
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	ctx := s.cron.Stop()
	s.mu.Unlock()

	<-ctx.Done()
}

func buildCronSpec(interval time.Duration) string {
	return "@every " + interval.String()
}

// slogLogger routes cron's own logging through slog.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
