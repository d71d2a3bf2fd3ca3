package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/nexusmail/nexus-mailer/pkg/logger"
)

// reclaimStore is the slice of the message repository the scheduler needs.
type reclaimStore interface {
	ReclaimDeferred(ctx context.Context, now time.Time) (int64, error)
}

type workSelector interface {
	Dispatch(ctx context.Context) (int, error)
}

// Scheduler fires the dispatch pipeline on a fixed interval. Each tick first
// reclaims expired rate-limit deferrals, then asks the batch builder to
// select and dispatch eligible work. Ticks need no mutual exclusion: the
// claim step makes overlapping selection rounds safe.
type Scheduler struct {
	store    reclaimStore
	builder  workSelector
	interval time.Duration

	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
	mu       sync.RWMutex

	// Statistics
	lastRunAt           time.Time
	runsCount           int64
	messagesDispatched  int64
	deferralsReclaimed  int64
	lastDispatchedCount int
}

func NewScheduler(store reclaimStore, builder workSelector, interval time.Duration) *Scheduler {
	return &Scheduler{
		store:    store,
		builder:  builder,
		interval: interval,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()

	if s.running {
		s.mu.Unlock()
		logger.Warnf("Scheduler is already running")
		return nil
	}

	s.running = true
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})
	s.mu.Unlock()

	logger.Infof("Starting dispatch scheduler with interval: %v", s.interval)

	go s.run(ctx)

	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneChan)

	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)

		case <-s.stopChan:
			logger.Warnf("Scheduler received stop signal")
			return

		case <-ctx.Done():
			logger.Warnf("Scheduler context cancelled")
			return
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	s.lastRunAt = time.Now()
	s.runsCount++
	runNumber := s.runsCount
	s.mu.Unlock()

	// Expired deferrals come back first so this same tick can pick them up.
	reclaimed, err := s.store.ReclaimDeferred(ctx, time.Now())
	if err != nil {
		logger.Errorf("[Tick #%d] Failed to reclaim deferred messages: %v", runNumber, err)
	} else if reclaimed > 0 {
		logger.Infof("[Tick #%d] Reclaimed %d rate-limit deferred messages", runNumber, reclaimed)
	}

	dispatched, err := s.builder.Dispatch(ctx)
	if err != nil {
		logger.Errorf("[Tick #%d] Dispatch round failed after %d messages: %v", runNumber, dispatched, err)
	}

	s.mu.Lock()
	s.messagesDispatched += int64(dispatched)
	s.deferralsReclaimed += reclaimed
	s.lastDispatchedCount = dispatched
	s.mu.Unlock()

	if dispatched > 0 {
		logger.Infof("[Tick #%d] Dispatched %d messages to delivery workers", runNumber, dispatched)
	} else {
		logger.Debugf("[Tick #%d] No eligible messages", runNumber)
	}
}

func (s *Scheduler) Stop() error {
	s.mu.Lock()

	if !s.running {
		s.mu.Unlock()
		logger.Warnf("Scheduler is not running")
		return nil
	}

	s.running = false
	stopChan := s.stopChan
	doneChan := s.doneChan
	s.mu.Unlock()

	close(stopChan)
	<-doneChan

	logger.Infof("Scheduler stopped")
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

type SchedulerStatus struct {
	Running             bool          `json:"running"`
	LastRunAt           time.Time     `json:"lastRunAt,omitempty"`
	NextRunAt           time.Time     `json:"nextRunAt,omitempty"`
	RunsCount           int64         `json:"runsCount"`
	MessagesDispatched  int64         `json:"messagesDispatched"`
	DeferralsReclaimed  int64         `json:"deferralsReclaimed"`
	LastDispatchedCount int           `json:"lastDispatchedCount"`
	Interval            time.Duration `json:"interval"`
}

func (s *Scheduler) GetStatus() SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := SchedulerStatus{
		Running:             s.running,
		LastRunAt:           s.lastRunAt,
		RunsCount:           s.runsCount,
		MessagesDispatched:  s.messagesDispatched,
		DeferralsReclaimed:  s.deferralsReclaimed,
		LastDispatchedCount: s.lastDispatchedCount,
		Interval:            s.interval,
	}

	if s.running && !s.lastRunAt.IsZero() {
		status.NextRunAt = s.lastRunAt.Add(s.interval)
	}

	return status
}
