package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/teslashibe/go-linefollow/pkg/vision"
)

// Sentinel errors for the camera package.
var (
	// ErrNoFrame means no new frame is available yet; callers may retry.
	ErrNoFrame = errors.New("camera: no frame available")

	// ErrExhausted means a finite source has no more frames.
	ErrExhausted = errors.New("camera: source exhausted")
)

// Source yields the most recent camera frame. A source has exactly one
// reader. The returned frame is owned by the caller.
type Source interface {
	Latest(ctx context.Context) (*vision.Frame, error)
	Close() error
}

// Open creates the source described by cfg.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Source, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("camera: invalid config: %s", strings.Join(errs, "; "))
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "camera", "kind", cfg.Kind)

	switch cfg.Kind {
	case KindCapture:
		return OpenCapture(cfg)
	case KindHTTP:
		return NewHTTPSnapshot(cfg.URL, cfg.Timeout), nil
	case KindWS:
		return DialWSPush(ctx, cfg.URL, cfg.Timeout, logger)
	case KindFiles:
		return OpenFiles(cfg.Dir, cfg.Loop, cfg.Interval)
	}
	return nil, fmt.Errorf("camera: unknown kind %q", cfg.Kind)
}
