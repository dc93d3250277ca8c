package follower

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-linefollow/pkg/camera"
	"github.com/teslashibe/go-linefollow/pkg/debug"
	"github.com/teslashibe/go-linefollow/pkg/robot"
	"github.com/teslashibe/go-linefollow/pkg/steering"
	"github.com/teslashibe/go-linefollow/pkg/vision"
)

// Status is a point-in-time view of the loop, safe to read from any
// goroutine.
type Status struct {
	RunID     string        `json:"run_id"`
	State     State         `json:"state"`
	Kind      Kind          `json:"kind"`
	Err       string        `json:"error,omitempty"`
	Cycles    int           `json:"cycles"`
	Straights int           `json:"straights"`
	Turns     int           `json:"turns"`
	Command   string        `json:"command,omitempty"`
	LastCycle time.Duration `json:"last_cycle"`
	Started   time.Time     `json:"started"`
	Running   bool          `json:"running"`
	Volts     float64       `json:"battery_volts,omitempty"`
}

const haltTimeout = 2 * time.Second

// Loop is the line-following controller. A Loop is driven by one goroutine
// at a time; Status may be read concurrently.
type Loop struct {
	src     camera.Source
	drive   robot.Driver
	head    robot.HeadController
	battery robot.BatteryReader
	tuning  *Tuning
	sink    Sink
	cfg     Config
	logger  *slog.Logger

	mu     sync.RWMutex
	status Status

	// Owned by the control goroutine.
	volts       float64
	hasVolts    bool
	lastBattery time.Time
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(lp *Loop) {
		if l != nil {
			lp.logger = l
		}
	}
}

// WithSink sets the snapshot sink.
func WithSink(s Sink) Option {
	return func(lp *Loop) {
		if s != nil {
			lp.sink = s
		}
	}
}

// WithHead overrides the head used by Prepare. By default the drive is used
// when it also implements robot.HeadController.
func WithHead(h robot.HeadController) Option {
	return func(lp *Loop) { lp.head = h }
}

// WithBattery overrides the battery reader. By default the drive is used
// when it also implements robot.BatteryReader.
func WithBattery(b robot.BatteryReader) Option {
	return func(lp *Loop) { lp.battery = b }
}

// WithConfig sets loop timing and limits.
func WithConfig(cfg Config) Option {
	return func(lp *Loop) { lp.cfg = cfg }
}

// New creates a loop reading src and driving drive with the params held by
// tuning.
func New(src camera.Source, drive robot.Driver, tuning *Tuning, opts ...Option) *Loop {
	l := &Loop{
		src:    src,
		drive:  drive,
		tuning: tuning,
		sink:   nopSink{},
		cfg:    DefaultConfig(),
		logger: slog.Default().With("component", "follower"),
	}
	if h, ok := drive.(robot.HeadController); ok {
		l.head = h
	}
	if b, ok := drive.(robot.BatteryReader); ok {
		l.battery = b
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetSink replaces the snapshot sink. It must not be called while Run is
// active; it exists for sinks that need the loop to be constructed first.
func (l *Loop) SetSink(s Sink) {
	if s == nil {
		s = nopSink{}
	}
	l.sink = s
}

// Config returns the loop configuration.
func (l *Loop) Config() Config {
	return l.cfg
}

// Tuning returns the live params holder.
func (l *Loop) Tuning() *Tuning {
	return l.tuning
}

// Status returns the current loop status.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

func (l *Loop) update(fn func(s *Status)) {
	l.mu.Lock()
	fn(&l.status)
	l.mu.Unlock()
}

// Prepare points the camera head at the configured angle. It is a no-op when
// head preparation is disabled or no head is available.
func (l *Loop) Prepare(ctx context.Context) error {
	if !l.cfg.PrepareHead || l.head == nil {
		return nil
	}
	if err := l.head.SetHeadAngle(l.commandContext(ctx), l.cfg.HeadAngleRad); err != nil {
		return fault(ctx, "set head angle", err)
	}
	return nil
}

// Run executes cycles until the line is lost, the source is exhausted, a
// limit is reached or ctx is cancelled. Cancellation is observed between
// cycles; once Run returns Lost no further actuator calls have been made
// after the failing one.
func (l *Loop) Run(ctx context.Context) Result {
	runID := uuid.NewString()
	logger := l.logger.With("run_id", runID)
	start := time.Now()

	l.update(func(s *Status) {
		*s = Status{RunID: runID, State: StateSeeking, Started: start, Running: true}
	})
	logger.Info("run started", "max_cycles", l.cfg.MaxCycles, "budget", l.cfg.Budget)

	finish := func(state State, err error, snap *Snapshot) Result {
		kind := Classify(err)
		if state == StateStopped && kind.Terminal() {
			kind = KindNone
		}
		st := l.Status()
		res := Result{
			RunID:   runID,
			State:   state,
			Kind:    kind,
			Err:     err,
			Cycles:  st.Cycles,
			Elapsed: time.Since(start),
		}
		l.update(func(s *Status) {
			s.State = state
			s.Kind = kind
			s.Err = res.ErrText()
			s.Running = false
		})

		final := Snapshot{RunID: runID, Cycle: st.Cycles, Time: time.Now()}
		if snap != nil {
			final = *snap
		}
		final.State, final.Kind, final.Err = state, kind, res.ErrText()
		l.sink.Publish(final)

		if state == StateLost {
			logger.Warn("line lost", "kind", kind.String(), "error", err, "cycles", res.Cycles)
		} else {
			logger.Info("run stopped", "kind", kind.String(), "cycles", res.Cycles, "elapsed", res.Elapsed.Round(time.Millisecond))
		}
		return res
	}

	if err := l.Prepare(ctx); err != nil {
		if isCancel(err) && ctx.Err() != nil {
			return finish(StateStopped, ctx.Err(), nil)
		}
		return finish(StateLost, err, nil)
	}

	for {
		if err := ctx.Err(); err != nil {
			return finish(StateStopped, err, nil)
		}
		cycles := l.Status().Cycles
		if l.cfg.MaxCycles > 0 && cycles >= l.cfg.MaxCycles {
			return finish(StateStopped, nil, nil)
		}
		if l.cfg.Budget > 0 && time.Since(start) >= l.cfg.Budget {
			return finish(StateStopped, nil, nil)
		}

		snap, err := l.step(ctx, runID, logger)
		if err == nil {
			continue
		}
		switch {
		case isCancel(err) && ctx.Err() != nil:
			return finish(StateStopped, ctx.Err(), nil)
		case Classify(err) == KindEndOfInput:
			return finish(StateStopped, err, &snap)
		default:
			return finish(StateLost, err, &snap)
		}
	}
}

// Step runs exactly one cycle outside of Run: capture, preprocess, extract,
// error model, controller and dispatch. A successful cycle counts toward
// Status and is published to the sink like a cycle of Run; the loop State
// and Running flag are left alone.
func (l *Loop) Step(ctx context.Context) error {
	_, err := l.step(ctx, l.Status().RunID, l.logger)
	return err
}

func (l *Loop) step(ctx context.Context, runID string, logger *slog.Logger) (Snapshot, error) {
	cycleStart := time.Now()
	p := l.tuning.Get()
	cycle := l.Status().Cycles + 1

	snap := Snapshot{
		RunID:  runID,
		Cycle:  cycle,
		Time:   cycleStart,
		State:  StateSeeking,
		ROI:    p.Vision.ROI.Rect(),
		BandLo: p.Steering.BandLoPx,
		BandHi: p.Steering.BandHiPx,
	}
	if l.hasVolts {
		snap.BatteryVolts, snap.HasBattery = l.volts, true
	}

	if l.cfg.HoldHead && l.head != nil {
		if err := l.head.SetHeadAngle(l.commandContext(ctx), l.cfg.HeadAngleRad); err != nil {
			return snap, fault(ctx, "hold head angle", err)
		}
	}

	frame, err := l.acquire(ctx, logger)
	if err != nil {
		return snap, err
	}
	defer frame.Close()

	if !frame.Timestamp.IsZero() {
		snap.Time = frame.Timestamp
	}
	snap.FrameW, snap.FrameH = frame.Width(), frame.Height()
	if is, ok := l.sink.(ImageSink); ok && is.WantsImage() && !frame.Empty() {
		if img, err := frame.Mat().ToImage(); err == nil {
			snap.Image = img
		}
	}

	mask, err := vision.NewPreprocessor(p.Vision).Process(frame)
	if err != nil {
		return snap, err
	}
	defer mask.Close()

	feature, err := vision.NewExtractor(p.Vision).Extract(mask)
	if err != nil {
		return snap, err
	}
	centroid := feature.Centroid
	snap.Centroid = &centroid
	snap.Contour = feature.Contour
	snap.Area = feature.Area

	nav, err := steering.NewErrorModel(p.Steering).Compute(feature.Centroid)
	if err != nil {
		return snap, err
	}
	snap.Nav = &nav

	cmd := steering.NewController(p.Steering).Command(nav)
	snap.Command = cmd
	snap.CommandKind = steering.Kind(cmd)
	snap.CommandText = cmd.String()

	debug.Log("cycle", "run_id", runID, "cycle", cycle, "seq", frame.Seq,
		"cx", nav.CX, "cy", nav.CY, "x_mm", nav.XMM, "command", cmd.String())

	if err := l.dispatch(ctx, cmd); err != nil {
		return snap, err
	}

	l.refreshBattery(ctx, logger)
	if l.hasVolts {
		snap.BatteryVolts, snap.HasBattery = l.volts, true
	}

	elapsed := time.Since(cycleStart)
	l.update(func(s *Status) {
		s.Cycles++
		s.Command = cmd.String()
		s.LastCycle = elapsed
		s.Volts = snap.BatteryVolts
		switch cmd.(type) {
		case steering.Straight:
			s.Straights++
		case steering.Turn:
			s.Turns++
		}
	})
	l.sink.Publish(snap)
	return snap, nil
}

// acquire polls the source until a frame arrives. Transient source errors
// are retried like an empty poll; the last one is reported on timeout.
func (l *Loop) acquire(ctx context.Context, logger *slog.Logger) (*vision.Frame, error) {
	deadline := time.Now().Add(l.cfg.FrameTimeout)
	var last error

	for {
		f, err := l.src.Latest(ctx)
		if err == nil && f != nil {
			return f, nil
		}
		if err == nil {
			err = camera.ErrNoFrame
		}

		switch {
		case isCancel(err) && ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(err, camera.ErrExhausted), errors.Is(err, vision.ErrInvalidInput):
			return nil, err
		case !errors.Is(err, camera.ErrNoFrame):
			if last == nil || last.Error() != err.Error() {
				logger.Warn("frame source error", "error", err)
			}
			last = err
		}

		if !time.Now().Before(deadline) {
			if last != nil {
				return nil, fmt.Errorf("%w after %s: %w", ErrFrameTimeout, l.cfg.FrameTimeout, last)
			}
			return nil, fmt.Errorf("%w after %s", ErrFrameTimeout, l.cfg.FrameTimeout)
		}

		t := time.NewTimer(l.cfg.FramePoll)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// commandContext is the context actuator calls run on. Unless AbortOnCancel
// is set, an in-flight command completes even if ctx is cancelled.
func (l *Loop) commandContext(ctx context.Context) context.Context {
	if l.cfg.AbortOnCancel {
		return ctx
	}
	return context.WithoutCancel(ctx)
}

func (l *Loop) dispatch(ctx context.Context, cmd steering.Command) error {
	actx := l.commandContext(ctx)

	switch c := cmd.(type) {
	case steering.Straight:
		if err := l.drive.DriveStraight(actx, c.DistanceMM, c.SpeedMMPS); err != nil {
			if l.cfg.AbortOnCancel && ctx.Err() != nil {
				l.halt(ctx)
			}
			return fault(ctx, "drive straight", err)
		}
		return nil

	case steering.Turn:
		m, err := l.drive.DriveWheels(actx, c.LeftMMPS, c.RightMMPS, c.Duration)
		if err != nil {
			return fault(ctx, "drive wheels", err)
		}
		return l.awaitTurn(ctx, m, c.Duration)

	default:
		return fmt.Errorf("%w: unsupported command %T", robot.ErrActuatorFault, cmd)
	}
}

// halt stops the wheels after an aborted straight. The drive may have given
// up waiting without stopping the motor.
func (l *Loop) halt(ctx context.Context) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), haltTimeout)
	defer cancel()
	if err := l.drive.Stop(sctx); err != nil {
		l.logger.Warn("stop after aborted straight failed", "error", err)
	}
}

// awaitTurn waits for a wheel motion to finish, allowing TurnGrace past its
// duration. A motion that overruns is cancelled and reported as a fault.
func (l *Loop) awaitTurn(ctx context.Context, m *robot.Motion, d time.Duration) error {
	limit := d + l.cfg.TurnGrace
	t := time.NewTimer(limit)
	defer t.Stop()

	var abort <-chan struct{}
	if l.cfg.AbortOnCancel {
		abort = ctx.Done()
	}

	select {
	case <-m.Done():
		if err := m.Err(); err != nil {
			return fault(ctx, "turn", err)
		}
		return nil

	case <-t.C:
		err := fmt.Errorf("%w: turn did not complete within %s", robot.ErrActuatorFault, limit)
		if cerr := m.Cancel(context.WithoutCancel(ctx)); cerr != nil {
			err = fmt.Errorf("%w (stop failed: %v)", err, cerr)
		}
		return err

	case <-abort:
		m.Cancel(context.WithoutCancel(ctx))
		return ctx.Err()
	}
}

func (l *Loop) refreshBattery(ctx context.Context, logger *slog.Logger) {
	if l.battery == nil || l.cfg.BatteryInterval <= 0 {
		return
	}
	if !l.lastBattery.IsZero() && time.Since(l.lastBattery) < l.cfg.BatteryInterval {
		return
	}
	l.lastBattery = time.Now()

	v, err := l.battery.BatteryVoltage(l.commandContext(ctx))
	if err != nil {
		if errors.Is(err, robot.ErrUnsupported) {
			l.battery = nil
		}
		logger.Debug("battery read failed", "error", err)
		l.hasVolts = false
		return
	}
	l.volts, l.hasVolts = v, true
}

// fault wraps an actuator error so that it classifies as an actuator fault,
// unless it is the loop's own cancellation.
func fault(ctx context.Context, op string, err error) error {
	if isCancel(err) && ctx.Err() != nil {
		return err
	}
	if errors.Is(err, robot.ErrActuatorFault) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", robot.ErrActuatorFault, op, err)
}
