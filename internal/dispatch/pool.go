package dispatch

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nexusmail/nexus-mailer/internal/domain"
	"github.com/nexusmail/nexus-mailer/pkg/logger"
)

// batchRunner executes one claimed batch to completion.
type batchRunner interface {
	Run(ctx context.Context, batch domain.Batch)
}

// Pool executes claimed batches on a bounded set of delivery workers.
// Batches for different identities may run in parallel; each batch runs on
// exactly one worker, sequentially.
type Pool struct {
	runner  batchRunner
	workers int
	queue   chan domain.Batch

	mu      sync.Mutex
	started bool
	group   *errgroup.Group
}

func NewPool(runner batchRunner, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	return &Pool{
		runner:  runner,
		workers: workers,
		queue:   make(chan domain.Batch, workers*2),
	}
}

// Start launches the worker goroutines. Workers drain the queue until it is
// closed; an in-flight batch always runs to terminal state, so shutdown
// never leaves a batch half-recorded.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}
	p.started = true

	group := &errgroup.Group{}
	for i := 0; i < p.workers; i++ {
		group.Go(func() error {
			for batch := range p.queue {
				// Only the queue hand-off observes cancellation; a batch
				// that already reached a worker runs to completion.
				p.runner.Run(context.WithoutCancel(ctx), batch)
			}
			return nil
		})
	}

	p.group = group
}

// Enqueue hands one batch to the pool, blocking while all workers are busy
// and the queue is full. Returns false when ctx ends before hand-off.
func (p *Pool) Enqueue(ctx context.Context, batch domain.Batch) bool {
	select {
	case p.queue <- batch:
		return true
	case <-ctx.Done():
		logger.Warnf("Dropping batch %s enqueue, shutdown in progress (messages stay claimed)", batch.ID)
		return false
	}
}

// Stop closes the queue and waits for in-flight batches to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	group := p.group
	p.mu.Unlock()

	close(p.queue)
	_ = group.Wait()
}
