package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/nexusmail/nexus-mailer/internal/domain"
)

type fakeRecorderStore struct {
	applied  []domain.BatchOutcome
	applyErr error

	failedBatches []string
	failErr       error
}

func (f *fakeRecorderStore) ApplyBatchOutcomes(_ context.Context, outcome domain.BatchOutcome) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applied = append(f.applied, outcome)
	return nil
}

func (f *fakeRecorderStore) FailBatch(_ context.Context, batchID string) (int64, error) {
	if f.failErr != nil {
		return 0, f.failErr
	}
	f.failedBatches = append(f.failedBatches, batchID)
	return 5, nil
}

type fakeAlerter struct {
	commitFailures []string
	batchFailures  []string
}

func (f *fakeAlerter) CommitFailure(_ context.Context, batchID string, _ error) {
	f.commitFailures = append(f.commitFailures, batchID)
}

func (f *fakeAlerter) BatchFailure(_ context.Context, batchID string, _ error) {
	f.batchFailures = append(f.batchFailures, batchID)
}

type fakeTokenCache struct {
	cached map[string]int64
	err    error
}

func (f *fakeTokenCache) CacheTrackingToken(_ context.Context, token string, messageID int64) error {
	if f.err != nil {
		return f.err
	}
	if f.cached == nil {
		f.cached = make(map[string]int64)
	}
	f.cached[token] = messageID
	return nil
}

func TestRecord_CommitsAndCachesTokens(t *testing.T) {
	store := &fakeRecorderStore{}
	alerts := &fakeAlerter{}
	cache := &fakeTokenCache{}

	r := NewRecorder(store, alerts, cache)

	outcome := domain.BatchOutcome{
		BatchID: "batch-1",
		SentIDs: []int64{1, 2},
		Tokens:  map[int64]string{1: "tok-1", 2: "tok-2"},
	}

	if err := r.Record(context.Background(), outcome); err != nil {
		t.Fatalf("record returned error: %v", err)
	}

	if len(store.applied) != 1 {
		t.Fatalf("expected 1 commit, got %d", len(store.applied))
	}
	if cache.cached["tok-1"] != 1 || cache.cached["tok-2"] != 2 {
		t.Errorf("expected both tokens cached, got %v", cache.cached)
	}
	if len(alerts.commitFailures) != 0 {
		t.Errorf("expected no alerts on success")
	}
}

func TestRecord_EmptyOutcomeIsANoOp(t *testing.T) {
	store := &fakeRecorderStore{}
	r := NewRecorder(store, &fakeAlerter{}, nil)

	if err := r.Record(context.Background(), domain.BatchOutcome{BatchID: "batch-2"}); err != nil {
		t.Fatalf("record returned error: %v", err)
	}
	if len(store.applied) != 0 {
		t.Errorf("expected no commit for an empty outcome")
	}
}

func TestRecord_CommitFailureAlertsAndReturnsError(t *testing.T) {
	store := &fakeRecorderStore{applyErr: errors.New("deadlock")}
	alerts := &fakeAlerter{}

	r := NewRecorder(store, alerts, nil)

	outcome := domain.BatchOutcome{BatchID: "batch-3", SentIDs: []int64{1}}
	if err := r.Record(context.Background(), outcome); err == nil {
		t.Fatal("expected an error when the commit fails")
	}

	if len(alerts.commitFailures) != 1 || alerts.commitFailures[0] != "batch-3" {
		t.Errorf("expected a commit-failure alert for batch-3, got %v", alerts.commitFailures)
	}
}

func TestRecord_CacheFailureDoesNotFailTheCommit(t *testing.T) {
	store := &fakeRecorderStore{}
	cache := &fakeTokenCache{err: errors.New("valkey down")}

	r := NewRecorder(store, &fakeAlerter{}, cache)

	outcome := domain.BatchOutcome{
		BatchID: "batch-4",
		SentIDs: []int64{1},
		Tokens:  map[int64]string{1: "tok-1"},
	}
	if err := r.Record(context.Background(), outcome); err != nil {
		t.Fatalf("record returned error: %v", err)
	}
	if len(store.applied) != 1 {
		t.Errorf("expected the commit to go through despite the cache error")
	}
}

func TestFailBatch_MarksBatchAndAlerts(t *testing.T) {
	store := &fakeRecorderStore{}
	alerts := &fakeAlerter{}

	r := NewRecorder(store, alerts, nil)

	cause := errors.New("no identity configured")
	if err := r.FailBatch(context.Background(), "batch-5", cause); err != nil {
		t.Fatalf("fail batch returned error: %v", err)
	}

	if len(store.failedBatches) != 1 || store.failedBatches[0] != "batch-5" {
		t.Errorf("expected batch-5 to be failed in the store, got %v", store.failedBatches)
	}
	if len(alerts.batchFailures) != 1 || alerts.batchFailures[0] != "batch-5" {
		t.Errorf("expected a batch-failure alert for batch-5, got %v", alerts.batchFailures)
	}
}

func TestFailBatch_StoreErrorEscalatesAsCommitFailure(t *testing.T) {
	store := &fakeRecorderStore{failErr: errors.New("db down")}
	alerts := &fakeAlerter{}

	r := NewRecorder(store, alerts, nil)

	if err := r.FailBatch(context.Background(), "batch-6", errors.New("cause")); err == nil {
		t.Fatal("expected an error when the store update fails")
	}
	if len(alerts.commitFailures) != 1 {
		t.Errorf("expected a commit-failure alert, got %v", alerts.commitFailures)
	}
}
