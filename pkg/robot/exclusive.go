package robot

import (
	"context"
	"sync/atomic"
	"time"
)

// Exclusive wraps a Base and rejects a drive or head request with ErrBusy
// while another is still in flight. A wheel motion holds the port until it
// finishes. Stop and Close always pass through.
type Exclusive struct {
	base Base
	busy atomic.Bool
}

// NewExclusive wraps base.
func NewExclusive(base Base) *Exclusive {
	return &Exclusive{base: base}
}

func (e *Exclusive) acquire() error {
	if !e.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	return nil
}

func (e *Exclusive) release() {
	e.busy.Store(false)
}

// Busy reports whether a request is in flight.
func (e *Exclusive) Busy() bool {
	return e.busy.Load()
}

// DriveStraight forwards to the wrapped base.
func (e *Exclusive) DriveStraight(ctx context.Context, distanceMM, speedMMPS float64) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()
	return e.base.DriveStraight(ctx, distanceMM, speedMMPS)
}

// DriveWheels forwards to the wrapped base and stays busy until the motion
// is done.
func (e *Exclusive) DriveWheels(ctx context.Context, leftMMPS, rightMMPS float64, d time.Duration) (*Motion, error) {
	if err := e.acquire(); err != nil {
		return nil, err
	}
	m, err := e.base.DriveWheels(ctx, leftMMPS, rightMMPS, d)
	if err != nil {
		e.release()
		return nil, err
	}
	go func() {
		<-m.Done()
		e.release()
	}()
	return m, nil
}

// SetHeadAngle forwards to the wrapped base.
func (e *Exclusive) SetHeadAngle(ctx context.Context, rad float64) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()
	return e.base.SetHeadAngle(ctx, rad)
}

// Stop forwards without taking the port.
func (e *Exclusive) Stop(ctx context.Context) error {
	return e.base.Stop(ctx)
}

// BatteryVoltage forwards when the wrapped base reports battery.
func (e *Exclusive) BatteryVoltage(ctx context.Context) (float64, error) {
	if br, ok := e.base.(BatteryReader); ok {
		return br.BatteryVoltage(ctx)
	}
	return 0, ErrUnsupported
}

// Close forwards.
func (e *Exclusive) Close() error {
	return e.base.Close()
}
