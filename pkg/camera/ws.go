package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-linefollow/pkg/vision"
)

// WSPush subscribes to a websocket that pushes binary JPEG frames. Frames
// land in a single-slot mailbox: a newer frame overwrites an unread one and
// the overwrite is counted as a drop.
type WSPush struct {
	url    string
	logger *slog.Logger
	dialer websocket.Dialer

	mu      sync.Mutex
	ws      *websocket.Conn
	latest  []byte
	at      time.Time
	seq     uint64
	taken   uint64
	dropped uint64
	err     error
	closed  bool

	done chan struct{}
}

// DialWSPush connects to url and starts receiving frames. The connection is
// re-established with backoff if it drops.
func DialWSPush(ctx context.Context, url string, timeout time.Duration, logger *slog.Logger) (*WSPush, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default().With("component", "camera.ws")
	}
	w := &WSPush{
		url:    url,
		logger: logger,
		dialer: websocket.Dialer{HandshakeTimeout: timeout},
		done:   make(chan struct{}),
	}

	conn, _, err := w.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("camera: connect %s: %w", url, err)
	}
	w.ws = conn

	go w.run(conn)
	return w, nil
}

func (w *WSPush) run(conn *websocket.Conn) {
	defer close(w.done)

	backoff := 250 * time.Millisecond
	for {
		err := w.readFrames(conn)

		w.mu.Lock()
		closed := w.closed
		w.err = err
		w.mu.Unlock()
		if closed {
			return
		}
		w.logger.Warn("frame stream dropped, reconnecting", "error", err, "backoff", backoff)

		for {
			time.Sleep(backoff)
			if w.isClosed() {
				return
			}
			c, _, derr := w.dialer.Dial(w.url, nil)
			if derr == nil {
				w.mu.Lock()
				if w.closed {
					w.mu.Unlock()
					c.Close()
					return
				}
				w.ws = c
				w.err = nil
				w.mu.Unlock()
				conn = c
				backoff = 250 * time.Millisecond
				w.logger.Info("frame stream reconnected")
				break
			}
			backoff = min(backoff*2, 5*time.Second)
		}
	}
}

func (w *WSPush) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *WSPush) readFrames(conn *websocket.Conn) error {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if mt != websocket.BinaryMessage || len(data) == 0 {
			continue
		}
		w.put(data)
	}
}

func (w *WSPush) put(data []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.latest != nil {
		w.dropped++
	}
	w.latest = data
	w.at = time.Now()
	w.seq++
}

// Latest decodes the newest unread frame, or returns ErrNoFrame when
// nothing new has arrived since the previous call.
func (w *WSPush) Latest(ctx context.Context) (*vision.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w.mu.Lock()
	data, at, seq := w.latest, w.at, w.seq
	w.latest = nil
	if data != nil {
		w.taken++
	}
	w.mu.Unlock()

	if data == nil {
		return nil, ErrNoFrame
	}
	return vision.DecodeFrame(data, seq, at)
}

// Stats returns delivered and dropped frame counts.
func (w *WSPush) Stats() (taken, dropped uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.taken, w.dropped
}

// Close stops receiving and closes the connection.
func (w *WSPush) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	conn := w.ws
	w.mu.Unlock()

	err := conn.Close()
	<-w.done
	return err
}
