package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	syncsvc "github.com/louiscrc/trakt-to-letterboxd/services/sync"
)

// ErrSyncInProgress is returned when a run is requested while another is
// still active. Runs are strictly serialized: two concurrent runs could each
// load the same previous history and overwrite each other's progress.
var ErrSyncInProgress = errors.New("a sync run is already in progress")

// Runner executes one full sync run.
type Runner interface {
	Run(ctx context.Context) (*syncsvc.RunSummary, error)
}

// Status describes the scheduler's view of the sync lifecycle.
type Status struct {
	Running     bool                `json:"running"`
	NextRunAt   time.Time           `json:"nextRunAt,omitempty"`
	LastSummary *syncsvc.RunSummary `json:"lastSummary,omitempty"`
}

// Service runs the sync pipeline on a fixed interval and exposes manual
// triggering for the status API.
type Service struct {
	runner   Runner
	interval time.Duration

	mu          sync.RWMutex
	started     bool
	syncRunning bool
	nextRunAt   time.Time
	lastSummary *syncsvc.RunSummary

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a scheduler that runs the pipeline every interval.
func NewService(runner Runner, interval time.Duration) *Service {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Service{runner: runner, interval: interval}
}

// Start begins the scheduler background loop. The first run happens
// immediately.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true

	s.wg.Add(1)
	go s.loop()

	log.Printf("[scheduler] started, interval %s", s.interval)
	return nil
}

// Stop gracefully stops the scheduler, waiting for an active run to finish.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	s.started = false
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[scheduler] stopped gracefully")
	case <-ctx.Done():
		log.Println("[scheduler] stopped (timeout)")
	}
	return nil
}

// Trigger starts a sync run now. Returns ErrSyncInProgress when one is
// already active.
func (s *Service) Trigger() error {
	s.mu.Lock()
	if s.syncRunning {
		s.mu.Unlock()
		return ErrSyncInProgress
	}
	s.syncRunning = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute()
	}()
	return nil
}

// Status reports whether a run is active plus the last run summary.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Running:     s.syncRunning,
		NextRunAt:   s.nextRunAt,
		LastSummary: s.lastSummary,
	}
}

func (s *Service) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start.
	s.runSerialized()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runSerialized()
		}
	}
}

// runSerialized skips the tick when a manual run is still active rather than
// overlapping it.
func (s *Service) runSerialized() {
	s.mu.Lock()
	if s.syncRunning {
		s.mu.Unlock()
		log.Println("[scheduler] previous run still active, skipping this tick")
		return
	}
	s.syncRunning = true
	s.mu.Unlock()

	s.execute()
}

func (s *Service) execute() {
	defer func() {
		s.mu.Lock()
		s.syncRunning = false
		s.nextRunAt = time.Now().UTC().Add(s.interval)
		s.mu.Unlock()
	}()

	ctx := s.ctx
	if ctx == nil {
		// Triggered before Start, e.g. a one-off manual run.
		ctx = context.Background()
	}

	summary, err := s.runner.Run(ctx)
	if err != nil {
		log.Printf("[scheduler] sync run failed: %v", err)
	}

	s.mu.Lock()
	s.lastSummary = summary
	s.mu.Unlock()
}
