package vision

import (
	"fmt"
	"image"
)

// ROI is the fixed floor-facing window searched each cycle, in frame pixels.
// X1/Y1 are exclusive.
type ROI struct {
	X0 int `yaml:"x0" json:"x0"`
	Y0 int `yaml:"y0" json:"y0"`
	X1 int `yaml:"x1" json:"x1"`
	Y1 int `yaml:"y1" json:"y1"`
}

// ReferenceROI is rows 0-80, columns 80-240 of a 320x240 camera frame.
var ReferenceROI = ROI{X0: 80, Y0: 0, X1: 240, Y1: 80}

// Rect returns the ROI as an image.Rectangle.
func (r ROI) Rect() image.Rectangle {
	return image.Rect(r.X0, r.Y0, r.X1, r.Y1)
}

// Width returns the ROI width in pixels.
func (r ROI) Width() int {
	return r.X1 - r.X0
}

// Height returns the ROI height in pixels.
func (r ROI) Height() int {
	return r.Y1 - r.Y0
}

// Validate checks that the ROI is non-empty and lies within a w x h frame.
func (r ROI) Validate(w, h int) error {
	if r.X0 < 0 || r.Y0 < 0 || r.X1 <= r.X0 || r.Y1 <= r.Y0 {
		return fmt.Errorf("%w: roi %v is empty or negative", ErrInvalidInput, r.Rect())
	}
	if r.X1 > w || r.Y1 > h {
		return fmt.Errorf("%w: roi %v outside %dx%d frame", ErrInvalidInput, r.Rect(), w, h)
	}
	return nil
}

// Threshold methods.
const (
	MethodGaussian = "gaussian"
	MethodMean     = "mean"
)

// Contour retrieval modes.
const (
	RetrievalList     = "list"
	RetrievalExternal = "external"
)

// Config holds the perception parameters. They are read-only for the
// duration of a cycle.
type Config struct {
	ROI ROI `yaml:"roi" json:"roi"`

	// Smoothing
	BlurKernel int `yaml:"blur_kernel" json:"blur_kernel"` // Gaussian kernel size (odd)

	// Adaptive threshold
	Method    string  `yaml:"method" json:"method"`         // gaussian or mean neighborhood weighting
	BlockSize int     `yaml:"block_size" json:"block_size"` // Neighborhood size (odd, >1)
	C         float64 `yaml:"c" json:"c"`                   // Constant subtracted from the local mean
	Invert    bool    `yaml:"invert" json:"invert"`         // Dark features become foreground

	// Contours
	Retrieval string  `yaml:"retrieval" json:"retrieval"` // list or external
	MinArea   float64 `yaml:"min_area" json:"min_area"`   // Ignore contours below this area (px²)
}

// DefaultConfig returns the reference perception parameters.
func DefaultConfig() Config {
	return Config{
		ROI:        ReferenceROI,
		BlurKernel: 5,
		Method:     MethodGaussian,
		BlockSize:  11,
		C:          2,
		Retrieval:  RetrievalList,
	}
}

// ShadowsConfig widens the threshold neighborhood for floors with hard
// shadows or strong lighting gradients.
func ShadowsConfig() Config {
	cfg := DefaultConfig()
	cfg.BlockSize = 21
	cfg.C = 4
	return cfg
}

// TapeConfig suits dark tape on a light floor: the line itself becomes
// foreground and speckle contours are dropped.
func TapeConfig() Config {
	cfg := DefaultConfig()
	cfg.Invert = true
	cfg.Retrieval = RetrievalExternal
	cfg.MinArea = 20
	return cfg
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.ROI.X0 < 0 || c.ROI.Y0 < 0 || c.ROI.Width() <= 0 || c.ROI.Height() <= 0 {
		errors = append(errors, "roi must be a non-empty rectangle with non-negative origin")
	}
	if c.BlurKernel < 1 || c.BlurKernel%2 == 0 {
		errors = append(errors, "blur_kernel must be a positive odd number")
	}
	if c.BlockSize < 3 || c.BlockSize%2 == 0 {
		errors = append(errors, "block_size must be an odd number >= 3")
	}
	if c.Method != MethodGaussian && c.Method != MethodMean {
		errors = append(errors, "method must be gaussian or mean")
	}
	if c.Retrieval != RetrievalList && c.Retrieval != RetrievalExternal {
		errors = append(errors, "retrieval must be list or external")
	}
	if c.MinArea < 0 {
		errors = append(errors, "min_area must be >= 0")
	}

	return errors
}

// Presets returns the named perception presets.
func Presets() map[string]Config {
	return map[string]Config{
		"default": DefaultConfig(),
		"shadows": ShadowsConfig(),
		"tape":    TapeConfig(),
	}
}
