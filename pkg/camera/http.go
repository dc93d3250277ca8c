package camera

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/teslashibe/go-linefollow/internal/httpc"
	"github.com/teslashibe/go-linefollow/pkg/vision"
)

// HTTPSnapshot fetches a JPEG from the robot on every call.
type HTTPSnapshot struct {
	URL string

	client *http.Client
	seq    uint64
}

// NewHTTPSnapshot creates a snapshot source. A zero timeout uses the
// shared client default.
func NewHTTPSnapshot(url string, timeout time.Duration) *HTTPSnapshot {
	client := httpc.Client
	if timeout > 0 {
		client = httpc.NewClient(timeout)
	}
	return &HTTPSnapshot{URL: url, client: client}
}

// Latest downloads and decodes one snapshot. 204, 404 and 503 replies mean
// the camera has nothing yet and map to ErrNoFrame.
func (h *HTTPSnapshot) Latest(ctx context.Context) (*vision.Frame, error) {
	data, err := httpc.GetBytes(ctx, h.client, h.URL)
	if err != nil {
		var se *httpc.StatusError
		if errors.As(err, &se) && (se.StatusCode == http.StatusNotFound || se.StatusCode == http.StatusServiceUnavailable) {
			return nil, ErrNoFrame
		}
		return nil, fmt.Errorf("camera: snapshot: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrNoFrame
	}

	h.seq++
	return vision.DecodeFrame(data, h.seq, time.Now())
}

// Close releases idle connections.
func (h *HTTPSnapshot) Close() error {
	h.client.CloseIdleConnections()
	return nil
}
