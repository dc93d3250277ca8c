package vision

import (
	"fmt"
	"image"
	"strings"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-linefollow/pkg/debug"
)

// Preprocessor converts a frame into a binary mask over the configured ROI.
type Preprocessor struct {
	cfg Config
}

// NewPreprocessor creates a preprocessor. The config is copied.
func NewPreprocessor(cfg Config) *Preprocessor {
	return &Preprocessor{cfg: cfg}
}

// Config returns the preprocessor's configuration.
func (p *Preprocessor) Config() Config {
	return p.cfg
}

// Process crops the frame to the ROI, converts it to intensity, blurs it and
// applies adaptive thresholding. Adaptive rather than global thresholding is
// required because floor lighting varies across the frame.
func (p *Preprocessor) Process(f *Frame) (*Mask, error) {
	if f.Empty() {
		return nil, fmt.Errorf("%w: empty frame", ErrInvalidInput)
	}
	if errs := p.cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(errs, "; "))
	}
	if err := p.cfg.ROI.Validate(f.Width(), f.Height()); err != nil {
		return nil, err
	}

	region := f.mat.Region(p.cfg.ROI.Rect())
	defer region.Close()

	gray := gocv.NewMat()
	defer gray.Close()

	switch f.mat.Channels() {
	case 3:
		gocv.CvtColor(region, &gray, gocv.ColorBGRToGray)
	case 4:
		gocv.CvtColor(region, &gray, gocv.ColorBGRAToGray)
	case 1:
		region.CopyTo(&gray)
	default:
		return nil, fmt.Errorf("%w: unsupported channel count %d", ErrInvalidInput, f.mat.Channels())
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	k := p.cfg.BlurKernel
	gocv.GaussianBlur(gray, &blurred, image.Pt(k, k), 0, 0, gocv.BorderDefault)

	method := gocv.AdaptiveThresholdGaussian
	if p.cfg.Method == MethodMean {
		method = gocv.AdaptiveThresholdMean
	}
	thresh := gocv.ThresholdBinary
	if p.cfg.Invert {
		thresh = gocv.ThresholdBinaryInv
	}

	out := gocv.NewMat()
	gocv.AdaptiveThreshold(blurred, &out, 255, method, thresh, p.cfg.BlockSize, float32(p.cfg.C))

	mask := NewMask(out)
	debug.VisionLog("mask ready",
		"seq", f.Seq, "size", fmt.Sprintf("%dx%d", mask.Width(), mask.Height()),
		"foreground", mask.Foreground())
	return mask, nil
}
