package robot

import (
	"context"
	"io"
	"time"

	"go.uber.org/multierr"
)

// Composite joins a drive train and a separate head controller into a Base,
// e.g. an HTTP drive with a Feetech head servo.
type Composite struct {
	drive   Driver
	head    HeadController
	closers []io.Closer
}

// Compose builds a Base. Any part implementing io.Closer is closed by
// Close, drive first.
func Compose(drive Driver, head HeadController) *Composite {
	c := &Composite{drive: drive, head: head}
	if cl, ok := drive.(io.Closer); ok {
		c.closers = append(c.closers, cl)
	}
	if cl, ok := head.(io.Closer); ok && any(head) != any(drive) {
		c.closers = append(c.closers, cl)
	}
	return c
}

// DriveStraight forwards to the drive train.
func (c *Composite) DriveStraight(ctx context.Context, distanceMM, speedMMPS float64) error {
	return c.drive.DriveStraight(ctx, distanceMM, speedMMPS)
}

// DriveWheels forwards to the drive train.
func (c *Composite) DriveWheels(ctx context.Context, leftMMPS, rightMMPS float64, d time.Duration) (*Motion, error) {
	return c.drive.DriveWheels(ctx, leftMMPS, rightMMPS, d)
}

// Stop forwards to the drive train.
func (c *Composite) Stop(ctx context.Context) error {
	return c.drive.Stop(ctx)
}

// SetHeadAngle forwards to the head.
func (c *Composite) SetHeadAngle(ctx context.Context, rad float64) error {
	return c.head.SetHeadAngle(ctx, rad)
}

// BatteryVoltage asks the drive train.
func (c *Composite) BatteryVoltage(ctx context.Context) (float64, error) {
	if br, ok := c.drive.(BatteryReader); ok {
		return br.BatteryVoltage(ctx)
	}
	return 0, ErrUnsupported
}

// Close closes every part and combines their errors.
func (c *Composite) Close() error {
	var err error
	for _, cl := range c.closers {
		err = multierr.Append(err, cl.Close())
	}
	return err
}
