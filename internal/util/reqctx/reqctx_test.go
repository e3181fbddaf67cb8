package reqctx

import (
	"context"
	"sync/atomic"
	"testing"
)

func TestWithStateAndFromContext(t *testing.T) {
	s := New(10)
	ctx := WithState(context.Background(), s)

	got := FromContext(ctx)
	if got != s {
		t.Fatalf("expected FromContext to return the attached state")
	}
	if got.CorrelationID == "" {
		t.Fatalf("expected a non-empty correlation id")
	}
}

func TestFromContextMissing(t *testing.T) {
	if got := FromContext(context.Background()); got != nil {
		t.Fatalf("expected nil state for a context with none attached, got %+v", got)
	}
}

func TestBreadcrumbBounded(t *testing.T) {
	s := New(3)
	for i := 0; i < 10; i++ {
		s.Breadcrumb("stage", "msg")
	}
	if got := len(s.Breadcrumbs()); got != 3 {
		t.Fatalf("expected trail bounded to 3 entries, got %d", got)
	}
}

func TestBreadcrumbDisabled(t *testing.T) {
	s := New(0)
	s.Breadcrumb("stage", "msg")
	if got := len(s.Breadcrumbs()); got != 0 {
		t.Fatalf("expected no breadcrumbs recorded when cap is 0, got %d", got)
	}
}

func TestSpawnAndWait(t *testing.T) {
	s := New(5)
	var n int32
	for i := 0; i < 5; i++ {
		s.Spawn(func() { atomic.AddInt32(&n, 1) })
	}
	s.Wait()
	if atomic.LoadInt32(&n) != 5 {
		t.Fatalf("expected all 5 spawned funcs to complete, got %d", n)
	}
}

func TestSpawnAfterClearIsNoop(t *testing.T) {
	s := New(5)
	s.Clear()
	var ran bool
	s.Spawn(func() { ran = true })
	s.Wait()
	if ran {
		t.Fatalf("expected Spawn to be a no-op after Clear")
	}
}

func TestRecordTimingAccumulates(t *testing.T) {
	s := New(5)
	s.RecordTiming("cache", 10)
	s.RecordTiming("cache", 15)
	if got := s.Timings()["cache"]; got != 25 {
		t.Fatalf("expected accumulated timing 25, got %d", got)
	}
}

func TestNilStateIsSafe(t *testing.T) {
	var s *State
	s.Breadcrumb("a", "b")
	s.RecordTiming("a", 1)
	s.Clear()
	s.Wait()
	if got := s.Breadcrumbs(); got != nil {
		t.Fatalf("expected nil breadcrumbs from nil state")
	}
}
