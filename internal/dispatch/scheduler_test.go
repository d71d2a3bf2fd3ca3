package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeReclaimStore struct {
	mu        sync.Mutex
	reclaimed int64
	calls     []time.Time
}

func (f *fakeReclaimStore) ReclaimDeferred(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, now)
	return f.reclaimed, nil
}

func (f *fakeReclaimStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeWorkSelector struct {
	mu         sync.Mutex
	dispatched int
	calls      int

	// records whether the reclaim store was consulted before each
	// dispatch call.
	store            *fakeReclaimStore
	reclaimedFirstOK bool
}

func (f *fakeWorkSelector) Dispatch(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.store != nil && f.store.callCount() >= f.calls {
		f.reclaimedFirstOK = true
	}
	return f.dispatched, nil
}

func (f *fakeWorkSelector) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestScheduler_TicksImmediatelyOnStart(t *testing.T) {
	store := &fakeReclaimStore{}
	builder := &fakeWorkSelector{dispatched: 2}

	s := NewScheduler(store, builder, time.Hour)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start returned error: %v", err)
	}
	defer s.Stop()

	waitFor(t, time.Second, func() bool { return builder.callCount() >= 1 })

	status := s.GetStatus()
	if status.RunsCount < 1 {
		t.Errorf("expected at least 1 run, got %d", status.RunsCount)
	}
	if status.MessagesDispatched < 2 {
		t.Errorf("expected dispatched counter >= 2, got %d", status.MessagesDispatched)
	}
}

func TestScheduler_ReclaimsDeferralsBeforeDispatch(t *testing.T) {
	store := &fakeReclaimStore{reclaimed: 3}
	builder := &fakeWorkSelector{store: store}

	s := NewScheduler(store, builder, time.Hour)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start returned error: %v", err)
	}
	defer s.Stop()

	waitFor(t, time.Second, func() bool { return builder.callCount() >= 1 })

	builder.mu.Lock()
	reclaimedFirst := builder.reclaimedFirstOK
	builder.mu.Unlock()

	if !reclaimedFirst {
		t.Error("expected deferral reclaim to run before the dispatch round")
	}

	status := s.GetStatus()
	if status.DeferralsReclaimed < 3 {
		t.Errorf("expected reclaimed counter >= 3, got %d", status.DeferralsReclaimed)
	}
}

func TestScheduler_StartIsIdempotent(t *testing.T) {
	store := &fakeReclaimStore{}
	builder := &fakeWorkSelector{}

	s := NewScheduler(store, builder, time.Hour)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("first start returned error: %v", err)
	}
	defer s.Stop()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("second start returned error: %v", err)
	}

	if !s.IsRunning() {
		t.Error("expected scheduler to be running")
	}
}

func TestScheduler_StopWaitsForLoopExit(t *testing.T) {
	store := &fakeReclaimStore{}
	builder := &fakeWorkSelector{}

	s := NewScheduler(store, builder, 10*time.Millisecond)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start returned error: %v", err)
	}

	waitFor(t, time.Second, func() bool { return builder.callCount() >= 2 })

	if err := s.Stop(); err != nil {
		t.Fatalf("stop returned error: %v", err)
	}
	if s.IsRunning() {
		t.Error("expected scheduler to be stopped")
	}

	// No further ticks after Stop returns.
	calls := builder.callCount()
	time.Sleep(50 * time.Millisecond)
	if builder.callCount() != calls {
		t.Error("scheduler ticked after Stop returned")
	}
}

func TestScheduler_StopWithoutStartIsSafe(t *testing.T) {
	s := NewScheduler(&fakeReclaimStore{}, &fakeWorkSelector{}, time.Hour)
	if err := s.Stop(); err != nil {
		t.Fatalf("stop on idle scheduler returned error: %v", err)
	}
}

func TestScheduler_StatusReportsNextRun(t *testing.T) {
	store := &fakeReclaimStore{}
	builder := &fakeWorkSelector{}

	interval := time.Hour
	s := NewScheduler(store, builder, interval)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start returned error: %v", err)
	}
	defer s.Stop()

	waitFor(t, time.Second, func() bool { return builder.callCount() >= 1 })

	status := s.GetStatus()
	if !status.Running {
		t.Error("expected running status")
	}
	if status.LastRunAt.IsZero() {
		t.Fatal("expected lastRunAt to be set")
	}
	if want := status.LastRunAt.Add(interval); !status.NextRunAt.Equal(want) {
		t.Errorf("expected nextRunAt %v, got %v", want, status.NextRunAt)
	}
}
