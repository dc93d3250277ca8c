package robot

import "errors"

// Sentinel errors for the robot package.
var (
	// ErrActuatorFault wraps any rejected, failed or timed-out command.
	ErrActuatorFault = errors.New("robot: actuator fault")

	// ErrBusy is returned when a request arrives while another is in flight.
	ErrBusy = errors.New("robot: actuator busy")

	// ErrMotionCancelled is the Motion error after Cancel.
	ErrMotionCancelled = errors.New("robot: motion cancelled")

	// ErrUnsupported is returned when the wrapped actuator lacks a capability.
	ErrUnsupported = errors.New("robot: unsupported")

	// ErrClosed is returned by operations on a closed actuator.
	ErrClosed = errors.New("robot: closed")
)
