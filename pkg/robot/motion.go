package robot

import (
	"context"
	"sync"
	"time"
)

// Motion is a handle to a fire-and-forget wheel command.
type Motion struct {
	Duration time.Duration

	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	err    error
	timer  *time.Timer
	cancel func(ctx context.Context) error
}

// NewMotion returns a motion that completes when Finish or Cancel is called.
// cancel is invoked by Cancel to halt the wheels; it may be nil.
func NewMotion(d time.Duration, cancel func(ctx context.Context) error) *Motion {
	return &Motion{
		Duration: d,
		done:     make(chan struct{}),
		cancel:   cancel,
	}
}

// NewTimedMotion returns a motion that finishes successfully after d.
func NewTimedMotion(d time.Duration, cancel func(ctx context.Context) error) *Motion {
	m := NewMotion(d, cancel)
	m.mu.Lock()
	m.timer = time.AfterFunc(d, func() { m.Finish(nil) })
	m.mu.Unlock()
	return m
}

// Done is closed once the motion has finished or been cancelled.
func (m *Motion) Done() <-chan struct{} {
	return m.done
}

// Err returns the terminal error. It is nil until Done is closed and nil
// after a successful completion.
func (m *Motion) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Finish completes the motion. Only the first call has effect.
func (m *Motion) Finish(err error) {
	m.once.Do(func() {
		m.mu.Lock()
		m.err = err
		if m.timer != nil {
			m.timer.Stop()
		}
		m.mu.Unlock()
		close(m.done)
	})
}

// Cancel halts the wheels and completes the motion with ErrMotionCancelled.
// Cancelling a finished motion is a no-op.
func (m *Motion) Cancel(ctx context.Context) error {
	select {
	case <-m.done:
		return nil
	default:
	}

	var err error
	if m.cancel != nil {
		err = m.cancel(ctx)
	}
	m.Finish(ErrMotionCancelled)
	return err
}

// Wait blocks until the motion completes, ctx ends or timeout elapses.
// It returns false if the motion did not complete in time.
func (m *Motion) Wait(ctx context.Context, timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-m.done:
		return true
	case <-ctx.Done():
		return false
	case <-t.C:
		return false
	}
}
