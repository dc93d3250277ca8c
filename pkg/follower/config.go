package follower

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-linefollow/pkg/robot"
)

// Config holds loop timing and limits.
type Config struct {
	// Frame acquisition
	FramePoll    time.Duration `yaml:"frame_poll" json:"frame_poll"`       // Wait between empty polls
	FrameTimeout time.Duration `yaml:"frame_timeout" json:"frame_timeout"` // Give up (Lost) after this long without a frame

	// Turn supervision
	TurnGrace time.Duration `yaml:"turn_grace" json:"turn_grace"` // Extra time allowed past a turn's duration

	// Limits (0 = unlimited)
	MaxCycles int           `yaml:"max_cycles" json:"max_cycles"`
	Budget    time.Duration `yaml:"budget" json:"budget"`

	// AbortOnCancel lets cancellation interrupt an in-flight command instead
	// of waiting for the cycle to finish.
	AbortOnCancel bool `yaml:"abort_on_cancel" json:"abort_on_cancel"`

	// Head preparation before the first cycle
	PrepareHead  bool    `yaml:"prepare_head" json:"prepare_head"`
	HeadAngleRad float64 `yaml:"head_angle_rad" json:"head_angle_rad"`

	// HoldHead re-sends HeadAngleRad at the start of every cycle.
	HoldHead bool `yaml:"hold_head" json:"hold_head"`

	// BatteryInterval is how often the supply voltage is refreshed for
	// snapshots. 0 disables polling.
	BatteryInterval time.Duration `yaml:"battery_interval" json:"battery_interval"`
}

// DefaultConfig returns loop settings for the reference robot: camera
// tilted fully down, no cycle or time limit.
func DefaultConfig() Config {
	return Config{
		FramePoll:       20 * time.Millisecond,
		FrameTimeout:    2 * time.Second,
		TurnGrace:       500 * time.Millisecond,
		PrepareHead:     true,
		HeadAngleRad:    robot.MinHeadAngle,
		BatteryInterval: 5 * time.Second,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() []string {
	var errs []string

	if c.FramePoll <= 0 {
		errs = append(errs, "frame_poll must be positive")
	}
	if c.FrameTimeout < c.FramePoll {
		errs = append(errs, "frame_timeout must be at least frame_poll")
	}
	if c.TurnGrace < 0 {
		errs = append(errs, "turn_grace must be non-negative")
	}
	if c.MaxCycles < 0 {
		errs = append(errs, "max_cycles must be non-negative")
	}
	if c.Budget < 0 {
		errs = append(errs, "budget must be non-negative")
	}
	if c.BatteryInterval < 0 {
		errs = append(errs, "battery_interval must be non-negative")
	}
	if (c.PrepareHead || c.HoldHead) && (c.HeadAngleRad < robot.MinHeadAngle || c.HeadAngleRad > robot.MaxHeadAngle) {
		errs = append(errs, fmt.Sprintf("head_angle_rad must be in [%.3f, %.3f]", robot.MinHeadAngle, robot.MaxHeadAngle))
	}

	return errs
}
