// Package follower runs the line-following control loop: capture a frame,
// locate the line, turn the offset into a drive command and send it to the
// robot, once per cycle, until the line is lost or the run is stopped.
package follower

import (
	"context"
	"errors"
	"time"

	"github.com/teslashibe/go-linefollow/pkg/camera"
	"github.com/teslashibe/go-linefollow/pkg/robot"
	"github.com/teslashibe/go-linefollow/pkg/steering"
	"github.com/teslashibe/go-linefollow/pkg/vision"
)

// ErrFrameTimeout indicates no frame arrived within Config.FrameTimeout.
var ErrFrameTimeout = errors.New("follower: no frame within timeout")

// State is the loop state.
type State int

const (
	StateSeeking State = iota
	StateLost
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateSeeking:
		return "seeking"
	case StateLost:
		return "lost"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Kind classifies why a run ended.
type Kind int

const (
	KindNone Kind = iota
	KindInvalidInput
	KindNoLineDetected
	KindDegenerateCentroid
	KindOffTrack
	KindActuatorFault
	KindFrameTimeout
	KindEndOfInput
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return ""
	case KindInvalidInput:
		return "invalid_input"
	case KindNoLineDetected:
		return "no_line_detected"
	case KindDegenerateCentroid:
		return "degenerate_centroid"
	case KindOffTrack:
		return "off_track"
	case KindActuatorFault:
		return "actuator_fault"
	case KindFrameTimeout:
		return "frame_timeout"
	case KindEndOfInput:
		return "end_of_input"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Terminal reports whether the kind moves the loop to Lost.
func (k Kind) Terminal() bool {
	return k != KindNone && k != KindEndOfInput
}

// Classify maps a cycle error onto its Kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrFrameTimeout):
		return KindFrameTimeout
	case errors.Is(err, camera.ErrExhausted):
		return KindEndOfInput
	case errors.Is(err, vision.ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, vision.ErrNoLineDetected):
		return KindNoLineDetected
	case errors.Is(err, vision.ErrDegenerateCentroid):
		return KindDegenerateCentroid
	case errors.Is(err, steering.ErrOffTrack):
		return KindOffTrack
	case errors.Is(err, robot.ErrActuatorFault), errors.Is(err, robot.ErrBusy):
		return KindActuatorFault
	default:
		return KindUnknown
	}
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Result is the outcome of one Run.
type Result struct {
	RunID   string        `json:"run_id"`
	State   State         `json:"state"`
	Kind    Kind          `json:"kind"`
	Err     error         `json:"-"`
	Cycles  int           `json:"cycles"`
	Elapsed time.Duration `json:"elapsed"`
}

// ErrText returns the error text or "".
func (r Result) ErrText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
