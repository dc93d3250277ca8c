package vision

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var (
	overlayContour = color.RGBA{0, 255, 0, 255}
	overlayGuide   = color.RGBA{0, 0, 255, 255}
)

// Overlay renders the mask in color with every retrieved contour outlined
// and crosshair lines through the feature centroid. f may be nil, in which
// case only the mask is drawn.
func Overlay(m *Mask, f *Feature) (image.Image, error) {
	if m == nil || m.mat.Empty() {
		return nil, fmt.Errorf("%w: empty mask", ErrInvalidInput)
	}

	view := gocv.NewMat()
	defer view.Close()
	gocv.CvtColor(m.mat, &view, gocv.ColorGrayToBGR)

	if f != nil {
		pts := make([][]image.Point, 0, len(f.All))
		for _, c := range f.All {
			pts = append(pts, c)
		}
		if len(pts) > 0 {
			pv := gocv.NewPointsVectorFromPoints(pts)
			gocv.DrawContours(&view, pv, -1, overlayContour, 1)
			pv.Close()
		}

		cx, cy := f.Centroid.Pixel()
		w, h := m.Width(), m.Height()
		gocv.Line(&view, image.Pt(cx, 0), image.Pt(cx, h), overlayGuide, 1)
		gocv.Line(&view, image.Pt(0, cy), image.Pt(w, cy), overlayGuide, 1)
	}

	img, err := view.ToImage()
	if err != nil {
		return nil, fmt.Errorf("vision: overlay to image: %w", err)
	}
	return img, nil
}

// EncodeJPEG encodes an image as JPEG using OpenCV's encoder.
func EncodeJPEG(img image.Image) ([]byte, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("%w: convert image: %v", ErrInvalidInput, err)
	}
	defer mat.Close()
	return EncodeMatJPEG(mat)
}

// EncodeMatJPEG encodes a BGR mat as JPEG.
func EncodeMatJPEG(mat gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("vision: encode jpeg: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases C memory that Close releases.
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
