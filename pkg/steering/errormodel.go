package steering

import (
	"errors"
	"fmt"
	"math"

	"github.com/teslashibe/go-linefollow/pkg/vision"
)

// ErrOffTrack indicates a centroid outside the expected ROI range.
var ErrOffTrack = errors.New("steering: off track")

// Side is the direction of the lateral offset.
type Side int

const (
	SideCenter Side = iota
	SideLeft
	SideRight
)

func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	default:
		return "center"
	}
}

// NavError is the lateral offset of the line at the look-ahead row.
// XMM is positive to the right, negative to the left and exactly zero inside
// the center band.
type NavError struct {
	XMM  float64 `json:"x_mm"`
	YMM  float64 `json:"y_mm"`
	Side Side    `json:"side"`

	// Pixel centroid the error was computed from.
	CX int `json:"cx"`
	CY int `json:"cy"`
}

// Centered reports whether the line is inside the dead band.
func (e NavError) Centered() bool {
	return e.Side == SideCenter
}

// ErrorModel maps a centroid to a NavError using similar triangles between
// the centroid row and the calibrated look-ahead distance.
type ErrorModel struct {
	cfg Config
}

// NewErrorModel creates an error model.
func NewErrorModel(cfg Config) *ErrorModel {
	return &ErrorModel{cfg: cfg}
}

// Compute is pure: the same centroid always yields the same result.
func (m *ErrorModel) Compute(c vision.Centroid) (NavError, error) {
	if math.IsNaN(c.X) || math.IsNaN(c.Y) || math.IsInf(c.X, 0) || math.IsInf(c.Y, 0) {
		return NavError{}, fmt.Errorf("%w: centroid (%v, %v) is not finite", ErrOffTrack, c.X, c.Y)
	}

	cx, cy := c.Pixel()
	if cy == 0 {
		return NavError{}, fmt.Errorf("%w: centroid row is 0", vision.ErrDegenerateCentroid)
	}
	if cx < 0 || cx > m.cfg.ExpectedWidthPx || cy < 0 || cy > m.cfg.ExpectedHeightPx {
		return NavError{}, fmt.Errorf("%w: centroid (%d, %d) outside %dx%d",
			ErrOffTrack, cx, cy, m.cfg.ExpectedWidthPx, m.cfg.ExpectedHeightPx)
	}

	ne := NavError{YMM: m.cfg.LookAheadMM, CX: cx, CY: cy}
	switch {
	case cx > m.cfg.BandHiPx:
		ne.XMM = m.cfg.LookAheadMM * float64(cx-m.cfg.CenterPx) / float64(cy)
		ne.Side = SideRight
	case cx < m.cfg.BandLoPx:
		ne.XMM = -m.cfg.LookAheadMM * float64(m.cfg.CenterPx-cx) / float64(cy)
		ne.Side = SideLeft
	default:
		ne.Side = SideCenter
	}
	return ne, nil
}
