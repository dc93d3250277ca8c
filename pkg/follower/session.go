package follower

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Session errors.
var (
	ErrRunning    = errors.New("follower: run in progress")
	ErrNotRunning = errors.New("follower: no run in progress")
)

const maxHistory = 20

// Session supervises repeated runs of one Loop. After a run ends (line lost
// or stopped) the session waits for an operator to Resume, then starts a
// fresh run from Seeking.
type Session struct {
	loop   *Loop
	logger *slog.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	running  bool
	history  []Result
	runs     int
	onResult []func(Result)

	resume chan struct{}
}

// NewSession creates a session around loop.
func NewSession(loop *Loop, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default().With("component", "session")
	}
	return &Session{
		loop:   loop,
		logger: logger,
		resume: make(chan struct{}, 1),
	}
}

// Loop returns the supervised loop.
func (s *Session) Loop() *Loop {
	return s.loop
}

// OnResult registers fn to be called after every run.
func (s *Session) OnResult(fn func(Result)) {
	s.mu.Lock()
	s.onResult = append(s.onResult, fn)
	s.mu.Unlock()
}

// Run starts the first run immediately and blocks until ctx is done.
func (s *Session) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		runCtx, cancel := context.WithCancel(ctx)
		s.mu.Lock()
		s.cancel = cancel
		s.running = true
		s.runs++
		s.mu.Unlock()

		res := s.loop.Run(runCtx)
		cancel()

		s.mu.Lock()
		s.cancel = nil
		s.running = false
		s.history = append(s.history, res)
		if len(s.history) > maxHistory {
			s.history = s.history[len(s.history)-maxHistory:]
		}
		hooks := append([]func(Result){}, s.onResult...)
		s.mu.Unlock()

		for _, fn := range hooks {
			fn(res)
		}

		if ctx.Err() != nil {
			return
		}
		s.logger.Info("waiting for resume", "state", res.State.String(), "kind", res.Kind.String())

		select {
		case <-ctx.Done():
			return
		case <-s.resume:
		}
	}
}

// Stop ends the current run at the next cycle boundary.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.cancel == nil {
		return ErrNotRunning
	}
	s.cancel()
	return nil
}

// Halt stops the current run, if any, and tells the base to stop its wheels.
func (s *Session) Halt(ctx context.Context) error {
	if err := s.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	return s.loop.drive.Stop(ctx)
}

// Resume starts a new run after the previous one ended.
func (s *Session) Resume() error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running {
		return ErrRunning
	}

	select {
	case s.resume <- struct{}{}:
	default:
	}
	return nil
}

// Running reports whether a run is in progress.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Runs returns how many runs have been started.
func (s *Session) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// History returns the most recent results, oldest first.
func (s *Session) History() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Result(nil), s.history...)
}

// Last returns the most recent result.
func (s *Session) Last() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return Result{}, false
	}
	return s.history[len(s.history)-1], true
}
