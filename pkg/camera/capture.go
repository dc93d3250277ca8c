package camera

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-linefollow/pkg/vision"
)

// Capture reads frames from a local camera or video stream through OpenCV.
type Capture struct {
	mu  sync.Mutex
	vc  *gocv.VideoCapture
	seq uint64
}

// OpenCapture opens cfg.Device, which is a device index or a stream URL.
func OpenCapture(cfg Config) (*Capture, error) {
	var device any = cfg.Device
	if idx, err := strconv.Atoi(cfg.Device); err == nil {
		device = idx
	}

	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("camera: open %v: %w", cfg.Device, err)
	}
	if cfg.Width > 0 && cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	return &Capture{vc: vc}, nil
}

// Latest grabs the next frame from the device.
func (c *Capture) Latest(ctx context.Context) (*vision.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	mat := gocv.NewMat()
	if ok := c.vc.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, ErrNoFrame
	}
	c.seq++
	return vision.NewFrame(mat, c.seq, time.Now()), nil
}

// Close releases the device.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vc.Close()
}
