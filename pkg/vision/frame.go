// Package vision turns camera frames into a line feature: it crops the
// floor-facing region of interest, binarizes it with adaptive thresholding,
// and locates the dominant contour and its area-moment centroid.
//
// All gocv.Mat values created here are owned by the caller and must be
// closed; a Frame, Mask and everything derived from them live for exactly
// one control cycle.
package vision

import (
	"fmt"
	"image"
	"time"

	"gocv.io/x/gocv"
)

// Frame is a captured color image. The pixel data MUST NOT be modified after
// capture; consumers only read it.
type Frame struct {
	mat gocv.Mat

	// Seq is assigned by the source, monotonically increasing.
	Seq uint64

	// Timestamp is the capture time reported by the source.
	Timestamp time.Time
}

// NewFrame takes ownership of mat.
func NewFrame(mat gocv.Mat, seq uint64, ts time.Time) *Frame {
	return &Frame{mat: mat, Seq: seq, Timestamp: ts}
}

// FrameFromImage copies img into a new BGR frame.
func FrameFromImage(img image.Image, seq uint64) (*Frame, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("%w: convert image: %v", ErrInvalidInput, err)
	}
	return NewFrame(mat, seq, time.Now()), nil
}

// DecodeFrame decodes an encoded image (JPEG, PNG) into a frame.
func DecodeFrame(data []byte, seq uint64, ts time.Time) (*Frame, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image buffer", ErrInvalidInput)
	}
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", ErrInvalidInput, err)
	}
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("%w: decoded image is empty", ErrInvalidInput)
	}
	return NewFrame(mat, seq, ts), nil
}

// Mat exposes the underlying image for read-only use.
func (f *Frame) Mat() gocv.Mat {
	return f.mat
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int {
	return f.mat.Cols()
}

// Height returns the frame height in pixels.
func (f *Frame) Height() int {
	return f.mat.Rows()
}

// Empty reports whether the frame carries no pixels.
func (f *Frame) Empty() bool {
	return f == nil || f.mat.Empty()
}

// Close releases the pixel buffer. Safe to call on a nil frame.
func (f *Frame) Close() error {
	if f == nil {
		return nil
	}
	return f.mat.Close()
}

// Mask is the single-channel binary image produced by the Preprocessor.
// Foreground pixels are 255, background 0.
type Mask struct {
	mat gocv.Mat
}

// NewMask takes ownership of a single-channel 8-bit mat.
func NewMask(mat gocv.Mat) *Mask {
	return &Mask{mat: mat}
}

// Mat exposes the mask for read-only use.
func (m *Mask) Mat() gocv.Mat {
	return m.mat
}

// Width returns the mask width (the ROI width).
func (m *Mask) Width() int {
	return m.mat.Cols()
}

// Height returns the mask height (the ROI height).
func (m *Mask) Height() int {
	return m.mat.Rows()
}

// Foreground counts the foreground pixels.
func (m *Mask) Foreground() int {
	return gocv.CountNonZero(m.mat)
}

// Close releases the mask. Safe to call on a nil mask.
func (m *Mask) Close() error {
	if m == nil {
		return nil
	}
	return m.mat.Close()
}
