// Package annotate draws overlays onto camera frames for display. Each
// overlay is an Annotator; a Registry applies them in insertion order.
//
// Annotators receive everything they draw through Context. They hold no
// reference back to the robot or the control loop.
package annotate

import (
	"image"
	"time"

	"github.com/teslashibe/go-linefollow/pkg/vision"
)

// Context carries the render data for one frame.
type Context struct {
	Time time.Time

	// BatteryVolts is valid only when HasBattery is set.
	BatteryVolts float64
	HasBattery   bool

	State   string
	Command string

	// ROI locates the search window in frame coordinates. Centroid and
	// Contour are relative to it.
	ROI      image.Rectangle
	Centroid *vision.Centroid
	Contour  vision.Contour

	// Band is the inclusive straight-ahead column band, relative to ROI.
	BandLo, BandHi int
}

// Annotator draws onto img. scale is the ratio between img and the camera
// frame the Context coordinates refer to.
type Annotator interface {
	Apply(img *image.RGBA, scale float64, c Context) error
}

// Func adapts a plain function to Annotator.
type Func func(img *image.RGBA, scale float64, c Context) error

// Apply calls f.
func (f Func) Apply(img *image.RGBA, scale float64, c Context) error {
	return f(img, scale, c)
}

// Position anchors text inside the image.
type Position int

const (
	TopLeft Position = iota
	TopRight
	BottomLeft
	BottomRight
	Center
)

func (p Position) String() string {
	switch p {
	case TopLeft:
		return "top_left"
	case TopRight:
		return "top_right"
	case BottomLeft:
		return "bottom_left"
	case BottomRight:
		return "bottom_right"
	default:
		return "center"
	}
}

// ParsePosition maps a name from String back to a Position.
func ParsePosition(s string) (Position, bool) {
	for _, p := range []Position{TopLeft, TopRight, BottomLeft, BottomRight, Center} {
		if p.String() == s {
			return p, true
		}
	}
	return Center, false
}
