package vision

import "errors"

// Sentinel errors for the vision package.
var (
	// ErrInvalidInput indicates a malformed frame, mask or ROI.
	ErrInvalidInput = errors.New("vision: invalid input")

	// ErrNoLineDetected indicates the mask contained no usable contour.
	ErrNoLineDetected = errors.New("vision: no line detected")

	// ErrDegenerateCentroid indicates a zero-area contour or a zero-depth
	// centroid; the centroid is undefined and must not be used.
	ErrDegenerateCentroid = errors.New("vision: degenerate centroid")
)
