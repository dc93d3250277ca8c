// Package steering converts a line centroid into a lateral offset and then
// into a drive command. It is a bang-coast controller: inside the center
// band the robot drives straight, outside it pivots by an open-loop timed
// turn proportional to the offset angle.
package steering

import "time"

// Config holds the geometry and speed constants for steering.
type Config struct {
	// Geometry
	LookAheadMM float64 `yaml:"look_ahead_mm" json:"look_ahead_mm"` // Forward distance to the observed row (y_mm)
	CenterPx    int     `yaml:"center_px" json:"center_px"`         // Column of the robot's heading in the ROI
	BandLoPx    int     `yaml:"band_lo_px" json:"band_lo_px"`       // Inclusive lower edge of the straight band
	BandHiPx    int     `yaml:"band_hi_px" json:"band_hi_px"`       // Inclusive upper edge of the straight band

	// Expected centroid range (the ROI size)
	ExpectedWidthPx  int `yaml:"expected_width_px" json:"expected_width_px"`
	ExpectedHeightPx int `yaml:"expected_height_px" json:"expected_height_px"`

	// Straight
	StraightMarginMM float64 `yaml:"straight_margin_mm" json:"straight_margin_mm"` // Stop short of the look-ahead row
	ForwardSpeedMMPS float64 `yaml:"forward_speed_mmps" json:"forward_speed_mmps"`

	// Turn
	TurnWheelSpeedMMPS float64       `yaml:"turn_wheel_speed_mmps" json:"turn_wheel_speed_mmps"`
	FullTurnDuration   time.Duration `yaml:"full_turn_duration" json:"full_turn_duration"` // Time for a full 2π pivot at TurnWheelSpeedMMPS
}

// DefaultConfig returns the calibrated reference geometry: a 34.3mm look-ahead
// row, ±5px dead band around column 80 and a 12s full pivot at 50mm/s.
func DefaultConfig() Config {
	return Config{
		LookAheadMM: 34.3,
		CenterPx:    80,
		BandLoPx:    75,
		BandHiPx:    85,

		ExpectedWidthPx:  160,
		ExpectedHeightPx: 80,

		StraightMarginMM: 10,
		ForwardSpeedMMPS: 50,

		TurnWheelSpeedMMPS: 50,
		FullTurnDuration:   12 * time.Second,
	}
}

// CautiousConfig drives slower and widens the dead band. The full-turn
// duration scales with the slower wheel speed.
func CautiousConfig() Config {
	cfg := DefaultConfig()
	cfg.BandLoPx = 72
	cfg.BandHiPx = 88
	cfg.ForwardSpeedMMPS = 30
	cfg.TurnWheelSpeedMMPS = 30
	cfg.FullTurnDuration = 20 * time.Second
	return cfg
}

// BriskConfig drives faster with a narrower dead band.
func BriskConfig() Config {
	cfg := DefaultConfig()
	cfg.BandLoPx = 77
	cfg.BandHiPx = 83
	cfg.ForwardSpeedMMPS = 80
	cfg.TurnWheelSpeedMMPS = 80
	cfg.FullTurnDuration = 7500 * time.Millisecond
	return cfg
}

// Presets returns the named steering presets.
func Presets() map[string]Config {
	return map[string]Config{
		"default":  DefaultConfig(),
		"cautious": CautiousConfig(),
		"brisk":    BriskConfig(),
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.LookAheadMM <= 0 {
		errors = append(errors, "look_ahead_mm must be > 0")
	}
	if c.BandLoPx > c.CenterPx || c.BandHiPx < c.CenterPx {
		errors = append(errors, "band must contain center_px")
	}
	if c.ExpectedWidthPx <= 0 || c.ExpectedHeightPx <= 0 {
		errors = append(errors, "expected range must be positive")
	}
	if c.BandLoPx < 0 || c.BandHiPx > c.ExpectedWidthPx {
		errors = append(errors, "band must lie within the expected width")
	}
	if c.StraightMarginMM < 0 || c.StraightMarginMM >= c.LookAheadMM {
		errors = append(errors, "straight_margin_mm must be in [0, look_ahead_mm)")
	}
	if c.ForwardSpeedMMPS <= 0 {
		errors = append(errors, "forward_speed_mmps must be > 0")
	}
	if c.TurnWheelSpeedMMPS <= 0 {
		errors = append(errors, "turn_wheel_speed_mmps must be > 0")
	}
	if c.FullTurnDuration <= 0 {
		errors = append(errors, "full_turn_duration must be > 0")
	}

	return errors
}
