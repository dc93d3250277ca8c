package follower

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestSession_StopAndResume(t *testing.T) {
	drv := &fakeDriver{onStraight: func(context.Context) { time.Sleep(time.Millisecond) }}
	l := newLoop(&fakeSource{next: uniform}, drv, defaultParams(), testConfig())
	s := NewSession(l, nil)

	var mu sync.Mutex
	var results []Result
	s.OnResult(func(r Result) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	eventually(t, s.Running, "session never started a run")
	if err := s.Resume(); !errors.Is(err, ErrRunning) {
		t.Errorf("Expected ErrRunning while running, got %v", err)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Unexpected stop error: %v", err)
	}
	eventually(t, func() bool { return !s.Running() }, "run did not stop")
	if err := s.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Expected ErrNotRunning, got %v", err)
	}

	last, ok := s.Last()
	if !ok || last.State != StateStopped {
		t.Fatalf("Expected stopped result, got %+v", last)
	}

	if err := s.Resume(); err != nil {
		t.Fatalf("Unexpected resume error: %v", err)
	}
	eventually(t, func() bool { return s.Runs() == 2 }, "resume did not start a second run")

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not exit on cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].RunID == results[1].RunID {
		t.Error("Expected a fresh run id per run")
	}
	if len(s.History()) != 2 {
		t.Errorf("Expected history of 2, got %d", len(s.History()))
	}
}

func TestSession_WaitsAfterLost(t *testing.T) {
	src := &fakeSource{next: uniform}
	l := newLoop(src, &fakeDriver{}, tapeParams(), testConfig())
	s := NewSession(l, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	eventually(t, func() bool { _, ok := s.Last(); return ok }, "no result")
	last, _ := s.Last()
	if last.State != StateLost || last.Kind != KindNoLineDetected {
		t.Fatalf("Expected Lost/no_line_detected, got %+v", last)
	}

	time.Sleep(20 * time.Millisecond)
	if s.Runs() != 1 || src.Calls() != 1 {
		t.Errorf("Expected session to wait for resume, got %d runs and %d reads", s.Runs(), src.Calls())
	}
}

func TestSession_Halt(t *testing.T) {
	drv := &fakeDriver{}
	s := NewSession(newLoop(&fakeSource{next: uniform}, drv, defaultParams(), testConfig()), nil)

	if err := s.Halt(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := drv.Calls(); !equalCalls(got, []string{"stop"}) {
		t.Errorf("Expected a stop call, got %v", got)
	}
}
