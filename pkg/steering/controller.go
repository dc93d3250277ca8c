package steering

import (
	"math"
	"time"
)

// Controller turns a NavError into a Command. It holds no state between
// calls.
type Controller struct {
	cfg Config
}

// NewController creates a controller.
func NewController(cfg Config) *Controller {
	return &Controller{cfg: cfg}
}

// Config returns the controller's configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// Command selects a straight segment when centered, otherwise a timed pivot.
//
// The pivot angle is atan(|x|/y) and its duration is that fraction of a full
// turn. A right offset holds the left wheel and reverses the right; a left
// offset does the mirror image.
func (c *Controller) Command(e NavError) Command {
	if e.XMM == 0 {
		return Straight{
			DistanceMM: c.cfg.LookAheadMM - c.cfg.StraightMarginMM,
			SpeedMMPS:  c.cfg.ForwardSpeedMMPS,
		}
	}

	angle := TurnAngle(math.Abs(e.XMM), c.cfg.LookAheadMM)
	t := Turn{
		Duration: TurnDuration(angle, c.cfg.FullTurnDuration),
		AngleRad: angle,
	}
	if e.XMM > 0 {
		t.LeftMMPS, t.RightMMPS = 0, -c.cfg.TurnWheelSpeedMMPS
	} else {
		t.LeftMMPS, t.RightMMPS = -c.cfg.TurnWheelSpeedMMPS, 0
	}
	return t
}

// TurnAngle returns atan(x/y) in radians.
func TurnAngle(xMM, yMM float64) float64 {
	return math.Atan(xMM / yMM)
}

// TurnDuration returns the time needed to pivot angle radians when a full
// revolution takes fullTurn.
func TurnDuration(angle float64, fullTurn time.Duration) time.Duration {
	return time.Duration(float64(fullTurn) * angle / (2 * math.Pi))
}

// Degrees converts radians to degrees for logging/display.
func Degrees(radians float64) float64 {
	return radians * 180.0 / math.Pi
}

// Radians converts degrees to radians.
func Radians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}
