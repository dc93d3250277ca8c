package vision

import (
	"image"
	"math"
)

// flt32Epsilon matches FLT_EPSILON; polygon areas at or below it are zero.
const flt32Epsilon = 1.1920929e-07

// Contour is a closed polygon in mask coordinates. The last point connects
// back to the first.
type Contour []image.Point

// Area returns the enclosed polygon area (shoelace formula), always >= 0.
func (c Contour) Area() float64 {
	if len(c) < 3 {
		return 0
	}
	var a float64
	prev := c[len(c)-1]
	for _, p := range c {
		a += float64(prev.X)*float64(p.Y) - float64(p.X)*float64(prev.Y)
		prev = p
	}
	return math.Abs(a) / 2
}

// Bounds returns the contour's bounding rectangle.
func (c Contour) Bounds() image.Rectangle {
	if len(c) == 0 {
		return image.Rectangle{}
	}
	r := image.Rectangle{Min: c[0], Max: c[0]}
	for _, p := range c[1:] {
		r.Min.X = min(r.Min.X, p.X)
		r.Min.Y = min(r.Min.Y, p.Y)
		r.Max.X = max(r.Max.X, p.X)
		r.Max.Y = max(r.Max.Y, p.Y)
	}
	return r
}

// Moments are the zeroth and first spatial moments of a contour's enclosed
// area.
type Moments struct {
	M00 float64 `json:"m00"`
	M10 float64 `json:"m10"`
	M01 float64 `json:"m01"`
}

// Moments integrates over the polygon with Green's theorem, the same way
// OpenCV computes moments for a point contour. The result does not depend
// on winding direction. A polygon with no area yields all zeros.
func (c Contour) Moments() Moments {
	if len(c) < 3 {
		return Moments{}
	}

	var a00, a10, a01 float64
	prev := c[len(c)-1]
	for _, p := range c {
		xi1, yi1 := float64(prev.X), float64(prev.Y)
		xi, yi := float64(p.X), float64(p.Y)
		cross := xi1*yi - xi*yi1
		a00 += cross
		a10 += cross * (xi1 + xi)
		a01 += cross * (yi1 + yi)
		prev = p
	}

	if math.Abs(a00) <= flt32Epsilon {
		return Moments{}
	}

	sign := 1.0
	if a00 < 0 {
		sign = -1
	}
	return Moments{
		M00: sign * a00 / 2,
		M10: sign * a10 / 6,
		M01: sign * a01 / 6,
	}
}

// Centroid returns (m10/m00, m01/m00). ok is false when m00 is zero and the
// centroid is undefined.
func (m Moments) Centroid() (c Centroid, ok bool) {
	if m.M00 == 0 {
		return Centroid{}, false
	}
	return Centroid{X: m.M10 / m.M00, Y: m.M01 / m.M00}, true
}

// Centroid is the feature's center of mass in ROI pixel coordinates.
type Centroid struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pixel truncates the centroid toward zero, matching integer pixel
// coordinates used by the steering thresholds.
func (c Centroid) Pixel() (x, y int) {
	return int(c.X), int(c.Y)
}

// Point returns the truncated centroid as an image.Point.
func (c Centroid) Point() image.Point {
	x, y := c.Pixel()
	return image.Pt(x, y)
}
