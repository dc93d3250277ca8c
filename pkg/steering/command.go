package steering

import (
	"fmt"
	"time"
)

// Command is a drive instruction for one cycle: Straight or Turn.
type Command interface {
	fmt.Stringer
	command()
}

// Straight drives forward a fixed distance and blocks until complete.
type Straight struct {
	DistanceMM float64 `json:"distance_mm"`
	SpeedMMPS  float64 `json:"speed_mmps"`
}

func (Straight) command() {}

func (s Straight) String() string {
	return fmt.Sprintf("straight %.1fmm @ %.0fmm/s", s.DistanceMM, s.SpeedMMPS)
}

// Turn pivots by running the wheels for Duration. AngleRad is the heading
// correction the duration was derived from.
type Turn struct {
	LeftMMPS  float64       `json:"left_mmps"`
	RightMMPS float64       `json:"right_mmps"`
	Duration  time.Duration `json:"duration"`
	AngleRad  float64       `json:"angle_rad"`
}

func (Turn) command() {}

func (t Turn) String() string {
	return fmt.Sprintf("turn L%.0f R%.0f for %s (%.1f°)",
		t.LeftMMPS, t.RightMMPS, t.Duration.Round(time.Millisecond), Degrees(t.AngleRad))
}

// Kind names the command type for logs and status payloads.
func Kind(c Command) string {
	switch c.(type) {
	case Straight:
		return "straight"
	case Turn:
		return "turn"
	default:
		return "none"
	}
}
