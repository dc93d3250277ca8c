package camera

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-linefollow/pkg/vision"
)

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".bmp": true}

// ListImages returns the image files in dir sorted by name.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("camera: read dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Files replays a directory of still images in name order.
type Files struct {
	paths    []string
	loop     bool
	interval time.Duration

	mu   sync.Mutex
	next int
	seq  uint64
	last time.Time
}

// OpenFiles lists dir. With loop set, playback wraps around; otherwise
// Latest returns ErrExhausted after the last image.
func OpenFiles(dir string, loop bool, interval time.Duration) (*Files, error) {
	paths, err := ListImages(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("camera: no images in %s", dir)
	}
	return &Files{paths: paths, loop: loop, interval: interval}, nil
}

// Len returns the number of images.
func (f *Files) Len() int {
	return len(f.paths)
}

// Latest reads the next image. Calls faster than the interval return
// ErrNoFrame.
func (f *Files) Latest(ctx context.Context) (*vision.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.interval > 0 && !f.last.IsZero() && time.Since(f.last) < f.interval {
		return nil, ErrNoFrame
	}
	if f.next >= len(f.paths) {
		if !f.loop {
			return nil, ErrExhausted
		}
		f.next = 0
	}

	path := f.paths[f.next]
	f.next++
	f.last = time.Now()

	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("%w: unreadable image %s", vision.ErrInvalidInput, path)
	}
	f.seq++
	return vision.NewFrame(mat, f.seq, f.last), nil
}

// Close is a no-op.
func (f *Files) Close() error {
	return nil
}
