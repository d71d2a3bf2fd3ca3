package dispatch

import (
	"context"
	"fmt"

	"github.com/nexusmail/nexus-mailer/internal/domain"
	"github.com/nexusmail/nexus-mailer/pkg/logger"
)

type recorderStore interface {
	ApplyBatchOutcomes(ctx context.Context, outcome domain.BatchOutcome) error
	FailBatch(ctx context.Context, batchID string) (int64, error)
}

type alerter interface {
	CommitFailure(ctx context.Context, batchID string, cause error)
	BatchFailure(ctx context.Context, batchID string, cause error)
}

type tokenCache interface {
	CacheTrackingToken(ctx context.Context, token string, messageID int64) error
}

// Recorder commits a batch's final states. A failed commit is escalated
// loudly: a silently lost outcome would let a future tick re-select and
// re-send messages the relay already accepted.
type Recorder struct {
	store  recorderStore
	alerts alerter
	cache  tokenCache // optional, best-effort
}

func NewRecorder(store recorderStore, alerts alerter, cache tokenCache) *Recorder {
	return &Recorder{store: store, alerts: alerts, cache: cache}
}

// Record applies the batch outcome in one transaction and caches new
// tracking tokens for the beacon endpoints.
func (r *Recorder) Record(ctx context.Context, outcome domain.BatchOutcome) error {
	if outcome.Empty() {
		return nil
	}

	if err := r.store.ApplyBatchOutcomes(ctx, outcome); err != nil {
		r.alerts.CommitFailure(ctx, outcome.BatchID, err)
		return fmt.Errorf("outcome commit for batch %s failed: %w", outcome.BatchID, err)
	}

	if r.cache != nil {
		for id, token := range outcome.Tokens {
			if err := r.cache.CacheTrackingToken(ctx, token, id); err != nil {
				logger.Warnf("Failed to cache tracking token for message %d: %v", id, err)
			}
		}
	}

	return nil
}

// FailBatch marks every pending message of a batch failed and alerts the
// operator. Used for whole-batch terminal failures before any send.
func (r *Recorder) FailBatch(ctx context.Context, batchID string, cause error) error {
	failed, err := r.store.FailBatch(ctx, batchID)
	if err != nil {
		r.alerts.CommitFailure(ctx, batchID, err)
		return fmt.Errorf("failed to fail batch %s: %w", batchID, err)
	}

	r.alerts.BatchFailure(ctx, batchID, cause)
	logger.Warnf("Batch %s terminally failed (%d messages): %v", batchID, failed, cause)

	return nil
}
