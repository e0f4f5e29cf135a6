// Package rollback provides a cancellation scope that holds one compensating
// action while a risky region is in progress.
package rollback

import (
	"context"
	"sync"
)

// Scope arms a compensating action on entry to a risky region and disarms it
// on successful exit. The armed action runs at most once, whether the region
// ends through Fire, context cancellation, or process shutdown.
type Scope struct {
	mu sync.Mutex
	fn func()
}

// NewScope returns a disarmed scope.
func NewScope() *Scope {
	return &Scope{}
}

// Arm installs fn as the pending compensating action, replacing any previous one.
func (s *Scope) Arm(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fn = fn
}

// Disarm drops the pending action without running it.
func (s *Scope) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fn = nil
}

// Armed reports whether an action is pending.
func (s *Scope) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fn != nil
}

// Fire runs the pending action, if any, and disarms the scope. It reports
// whether an action ran.
func (s *Scope) Fire() bool {
	s.mu.Lock()
	fn := s.fn
	s.fn = nil
	s.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

// Watch fires the scope when ctx is cancelled. The returned stop function
// ends the watch without firing and waits for the watcher to exit.
func (s *Scope) Watch(ctx context.Context) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			s.Fire()
		case <-done:
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		<-exited
	}
}
