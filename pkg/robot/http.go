package robot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-linefollow/internal/httpc"
)

// DefaultHTTPPort is the robot API port assumed when addr has none.
const DefaultHTTPPort = 8000

// HTTPBase implements Base using the robot's HTTP API.
// Drive and head requests block server-side until the move completes, so
// the client carries no timeout of its own; the caller's context bounds it.
type HTTPBase struct {
	BaseURL string

	client *http.Client
	logger *slog.Logger
}

// HTTPOption configures an HTTPBase.
type HTTPOption func(*HTTPBase)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(b *HTTPBase) { b.client = c }
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(l *slog.Logger) HTTPOption {
	return func(b *HTTPBase) { b.logger = l }
}

// NewHTTPBase creates a new HTTP-based robot base. addr is a host (port
// DefaultHTTPPort assumed), host:port or a full http:// URL.
func NewHTTPBase(addr string, opts ...HTTPOption) *HTTPBase {
	base := addr
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		if _, _, err := net.SplitHostPort(addr); err == nil {
			base = "http://" + addr
		} else {
			base = fmt.Sprintf("http://%s:%d", addr, DefaultHTTPPort)
		}
	}
	b := &HTTPBase{
		BaseURL: strings.TrimRight(base, "/"),
		client:  httpc.NewClient(0),
		logger:  slog.Default().With("component", "robot.http"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type straightRequest struct {
	DistanceMM float64 `json:"distance_mm"`
	SpeedMMPS  float64 `json:"speed_mmps"`
}

type wheelsRequest struct {
	LeftMMPS   float64 `json:"left_mmps"`
	RightMMPS  float64 `json:"right_mmps"`
	DurationMS int64   `json:"duration_ms"`
}

type headRequest struct {
	AngleRad float64 `json:"angle_rad"`
}

// actionResponse is the common reply body. A 2xx reply with ok=false is a
// rejected command.
type actionResponse struct {
	OK    *bool  `json:"ok"`
	Error string `json:"error"`
}

// DriveStraight drives forward and blocks until the robot reports completion.
func (b *HTTPBase) DriveStraight(ctx context.Context, distanceMM, speedMMPS float64) error {
	return b.post(ctx, "/api/drive/straight", straightRequest{distanceMM, speedMMPS}, "drive straight")
}

// DriveWheels starts a timed wheel command and returns immediately.
func (b *HTTPBase) DriveWheels(ctx context.Context, leftMMPS, rightMMPS float64, d time.Duration) (*Motion, error) {
	req := wheelsRequest{LeftMMPS: leftMMPS, RightMMPS: rightMMPS, DurationMS: d.Milliseconds()}
	if err := b.post(ctx, "/api/drive/wheels", req, "drive wheels"); err != nil {
		return nil, err
	}
	return NewTimedMotion(d, b.Stop), nil
}

// SetHeadAngle tilts the head, clamped to the physical range.
func (b *HTTPBase) SetHeadAngle(ctx context.Context, rad float64) error {
	return b.post(ctx, "/api/head/angle", headRequest{ClampHeadAngle(rad)}, "set head angle")
}

// Stop halts the wheels.
func (b *HTTPBase) Stop(ctx context.Context) error {
	return b.post(ctx, "/api/drive/stop", struct{}{}, "stop")
}

// BatteryVoltage returns the battery voltage reported by the robot.
func (b *HTTPBase) BatteryVoltage(ctx context.Context) (float64, error) {
	body, err := httpc.GetBytes(ctx, b.client, b.BaseURL+"/api/battery")
	if err != nil {
		return 0, fmt.Errorf("%w: battery: %w", ErrActuatorFault, err)
	}

	var status struct {
		Volts float64 `json:"volts"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		return 0, fmt.Errorf("%w: decode battery status: %w", ErrActuatorFault, err)
	}
	return status.Volts, nil
}

// Close releases idle connections.
func (b *HTTPBase) Close() error {
	b.client.CloseIdleConnections()
	return nil
}

// post sends a command to the robot API and maps any failure to
// ErrActuatorFault.
func (b *HTTPBase) post(ctx context.Context, path string, payload any, op string) error {
	start := time.Now()

	var resp actionResponse
	if err := httpc.PostJSON(ctx, b.client, b.BaseURL+path, payload, &resp); err != nil {
		b.logger.Warn("robot request failed", "op", op, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrActuatorFault, op, err)
	}
	if resp.OK != nil && !*resp.OK {
		b.logger.Warn("robot rejected command", "op", op, "reason", resp.Error)
		return fmt.Errorf("%w: %s rejected: %s", ErrActuatorFault, op, resp.Error)
	}

	b.logger.Debug("robot request", "op", op, "elapsed", time.Since(start))
	return nil
}
