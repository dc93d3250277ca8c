package robot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Call is one recorded actuator call.
type Call struct {
	Op    string
	Args  []float64
	Dur   time.Duration
	Start time.Time
}

func (c Call) String() string {
	if c.Dur > 0 {
		return fmt.Sprintf("%s%v for %s", c.Op, c.Args, c.Dur)
	}
	return fmt.Sprintf("%s%v", c.Op, c.Args)
}

// DryRun implements Base without hardware. It logs and records every call;
// straight drives return after the time the segment would take when
// Simulate is set, and wheel motions complete after their duration.
type DryRun struct {
	Simulate bool
	Volts    float64

	logger *slog.Logger

	mu    sync.Mutex
	calls []Call
}

// NewDryRun creates a dry-run base.
func NewDryRun(simulate bool, logger *slog.Logger) *DryRun {
	if logger == nil {
		logger = slog.Default().With("component", "robot.dryrun")
	}
	return &DryRun{Simulate: simulate, Volts: 3.9, logger: logger}
}

func (d *DryRun) record(c Call) {
	c.Start = time.Now()
	d.mu.Lock()
	d.calls = append(d.calls, c)
	d.mu.Unlock()
	d.logger.Info("dry run", "call", c.String())
}

// Calls returns a copy of the recorded calls.
func (d *DryRun) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// DriveStraight records the call and optionally waits out the segment.
func (d *DryRun) DriveStraight(ctx context.Context, distanceMM, speedMMPS float64) error {
	d.record(Call{Op: "straight", Args: []float64{distanceMM, speedMMPS}})
	if !d.Simulate || speedMMPS <= 0 {
		return nil
	}
	wait := time.Duration(distanceMM / speedMMPS * float64(time.Second))
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: drive straight: %w", ErrActuatorFault, ctx.Err())
	}
}

// DriveWheels records the call and returns a timed motion.
func (d *DryRun) DriveWheels(ctx context.Context, leftMMPS, rightMMPS float64, dur time.Duration) (*Motion, error) {
	d.record(Call{Op: "wheels", Args: []float64{leftMMPS, rightMMPS}, Dur: dur})
	return NewTimedMotion(dur, d.Stop), nil
}

// SetHeadAngle records the call.
func (d *DryRun) SetHeadAngle(ctx context.Context, rad float64) error {
	d.record(Call{Op: "head", Args: []float64{ClampHeadAngle(rad)}})
	return nil
}

// Stop records the call.
func (d *DryRun) Stop(ctx context.Context) error {
	d.record(Call{Op: "stop"})
	return nil
}

// BatteryVoltage returns Volts.
func (d *DryRun) BatteryVoltage(ctx context.Context) (float64, error) {
	return d.Volts, nil
}

// Close is a no-op.
func (d *DryRun) Close() error {
	return nil
}
