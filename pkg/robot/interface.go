// Package robot provides interfaces and implementations for driving a
// differential-drive robot base with a tilting camera head.
//
// This package follows the Interface Segregation Principle (ISP) by defining
// small, focused interfaces that can be composed as needed. Consumers should
// depend only on the interfaces they actually use.
package robot

import (
	"context"
	"time"
)

// StraightDriver drives the base forward.
// DriveStraight blocks until the robot reports the segment complete.
type StraightDriver interface {
	DriveStraight(ctx context.Context, distanceMM, speedMMPS float64) error
}

// WheelDriver runs each wheel at its own speed for a fixed duration.
// DriveWheels returns as soon as the command is accepted; the Motion
// completes when the duration has elapsed or it is cancelled.
type WheelDriver interface {
	DriveWheels(ctx context.Context, leftMMPS, rightMMPS float64, d time.Duration) (*Motion, error)
}

// HeadController tilts the camera head. SetHeadAngle blocks until the head
// reaches the angle.
type HeadController interface {
	SetHeadAngle(ctx context.Context, rad float64) error
}

// Stopper halts all wheel motion immediately.
type Stopper interface {
	Stop(ctx context.Context) error
}

// BatteryReader reports the supply voltage.
type BatteryReader interface {
	BatteryVoltage(ctx context.Context) (float64, error)
}

// Driver is the drive-train subset used by the control loop.
type Driver interface {
	StraightDriver
	WheelDriver
	Stopper
}

// Base is the composite interface for full robot control.
// Use this when you need complete robot control capabilities.
type Base interface {
	Driver
	HeadController
	Close() error
}

// Ensure implementations satisfy Base
var (
	_ Base = (*HTTPBase)(nil)
	_ Base = (*SerialBase)(nil)
	_ Base = (*DryRun)(nil)
	_ Base = (*Exclusive)(nil)
	_ Base = (*Composite)(nil)

	_ HeadController = (*ServoHead)(nil)

	_ BatteryReader = (*HTTPBase)(nil)
	_ BatteryReader = (*SerialBase)(nil)
	_ BatteryReader = (*DryRun)(nil)
)
