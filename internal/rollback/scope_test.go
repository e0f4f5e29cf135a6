package rollback

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestFireRunsAtMostOnce(t *testing.T) {
	s := NewScope()
	var calls int32
	s.Arm(func() { atomic.AddInt32(&calls, 1) })
	if !s.Fire() {
		t.Fatalf("expected first fire to run the action")
	}
	if s.Fire() {
		t.Fatalf("second fire must be a no-op")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected 1 call, got %d", got)
	}
}

func TestDisarmPreventsFire(t *testing.T) {
	s := NewScope()
	ran := false
	s.Arm(func() { ran = true })
	s.Disarm()
	if s.Armed() {
		t.Fatalf("scope should be disarmed")
	}
	if s.Fire() || ran {
		t.Fatalf("disarmed scope must not run its action")
	}
}

func TestWatchFiresOnCancel(t *testing.T) {
	s := NewScope()
	var calls int32
	s.Arm(func() { atomic.AddInt32(&calls, 1) })
	ctx, cancel := context.WithCancel(context.Background())
	stop := s.Watch(ctx)
	defer stop()
	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&calls) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected rollback on cancel, got %d calls", got)
	}
	if s.Fire() {
		t.Fatalf("rollback must not run twice after cancellation")
	}
}

func TestWatchStopDoesNotFire(t *testing.T) {
	s := NewScope()
	ran := false
	s.Arm(func() { ran = true })
	stop := s.Watch(context.Background())
	stop()
	stop()
	if ran {
		t.Fatalf("stop must not fire the action")
	}
	if !s.Armed() {
		t.Fatalf("scope should still be armed after stop")
	}
}
