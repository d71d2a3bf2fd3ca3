package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nexusmail/nexus-mailer/environments"
	"github.com/nexusmail/nexus-mailer/internal/domain"
	"github.com/nexusmail/nexus-mailer/pkg/logger"
)

// batchStore is the slice of the message repository the batch builder needs.
type batchStore interface {
	SelectEligible(ctx context.Context, now time.Time, limit int) ([]domain.Message, error)
	ClaimBatch(ctx context.Context, batchID string, ids []int64) ([]int64, error)
}

// batchSink receives claimed batches for execution.
type batchSink interface {
	Enqueue(ctx context.Context, batch domain.Batch) bool
}

// BatchBuilder selects eligible messages, partitions them by sending
// identity, and claims each partition with a unique batch id before handing
// it to the worker pool. The claim happens first: once a row carries a batch
// id, no later selection can pick it up again, whatever happens to the
// worker afterwards.
type BatchBuilder struct {
	store batchStore
	sink  batchSink
	cfg   environments.DispatchConfig
	now   func() time.Time
}

func NewBatchBuilder(store batchStore, sink batchSink, cfg environments.DispatchConfig) *BatchBuilder {
	return &BatchBuilder{
		store: store,
		sink:  sink,
		cfg:   cfg,
		now:   time.Now,
	}
}

// Dispatch runs one selection round and returns the number of messages
// handed to workers.
func (b *BatchBuilder) Dispatch(ctx context.Context) (int, error) {
	messages, err := b.store.SelectEligible(ctx, b.now(), b.cfg.SelectLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to select eligible messages: %w", err)
	}

	if len(messages) == 0 {
		return 0, nil
	}

	// Partition by owner: a worker holds exactly one relay session, so
	// messages for different identities never share a batch. Order of
	// first appearance keeps dispatch roughly FIFO per owner.
	order := make([]int64, 0)
	byOwner := make(map[int64][]int64)
	for _, msg := range messages {
		if _, seen := byOwner[msg.UserID]; !seen {
			order = append(order, msg.UserID)
		}
		byOwner[msg.UserID] = append(byOwner[msg.UserID], msg.ID)
	}

	dispatched := 0

	for _, userID := range order {
		ids := byOwner[userID]

		for start := 0; start < len(ids); start += b.cfg.BatchSize {
			end := start + b.cfg.BatchSize
			if end > len(ids) {
				end = len(ids)
			}

			n, err := b.dispatchChunk(ctx, userID, ids[start:end])
			if err != nil {
				return dispatched, err
			}
			dispatched += n

			// Spread hand-offs so a large selection does not flood the
			// pool queue in one burst.
			if b.cfg.InterBatchDelay > 0 {
				select {
				case <-time.After(b.cfg.InterBatchDelay):
				case <-ctx.Done():
					return dispatched, ctx.Err()
				}
			}
		}
	}

	return dispatched, nil
}

func (b *BatchBuilder) dispatchChunk(ctx context.Context, userID int64, ids []int64) (int, error) {
	batchID := uuid.NewString()

	claimed, err := b.store.ClaimBatch(ctx, batchID, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to claim chunk for user %d: %w", userID, err)
	}

	// A concurrent round may have claimed some or all of these ids between
	// our select and our update; only the rows we actually stamped are ours.
	if len(claimed) == 0 {
		logger.Debugf("Chunk for user %d already claimed elsewhere, skipping", userID)
		return 0, nil
	}

	batch := domain.Batch{ID: batchID, UserID: userID, MessageIDs: claimed}
	if !b.sink.Enqueue(ctx, batch) {
		// Claim already durable; the batch surfaces via the replay path.
		return 0, ctx.Err()
	}

	logger.Debugf("Dispatched batch %s (%d messages, user %d)", batchID, len(claimed), userID)

	return len(claimed), nil
}
