package follower

import (
	"image"
	"time"

	"github.com/teslashibe/go-linefollow/pkg/steering"
	"github.com/teslashibe/go-linefollow/pkg/vision"
)

// Snapshot describes one cycle for display. Every field is a copy; sinks may
// keep it after Publish returns.
type Snapshot struct {
	RunID  string    `json:"run_id"`
	Cycle  int       `json:"cycle"`
	Time   time.Time `json:"time"`
	State  State     `json:"state"`
	Kind   Kind      `json:"kind"`
	Err    string    `json:"error,omitempty"`
	FrameW int       `json:"frame_w"`
	FrameH int       `json:"frame_h"`

	ROI         image.Rectangle    `json:"roi"`
	Centroid    *vision.Centroid   `json:"centroid,omitempty"`
	Contour     vision.Contour     `json:"-"`
	Area        float64            `json:"area"`
	Nav         *steering.NavError `json:"nav,omitempty"`
	Command     steering.Command   `json:"-"`
	CommandKind string             `json:"command_kind,omitempty"`
	CommandText string             `json:"command,omitempty"`
	BandLo      int                `json:"band_lo"`
	BandHi      int                `json:"band_hi"`

	BatteryVolts float64 `json:"battery_volts,omitempty"`
	HasBattery   bool    `json:"has_battery"`

	// Image is the camera frame, set only for sinks that want images.
	Image image.Image `json:"-"`
}

// Sink receives snapshots. Publish must not block; the loop never waits on
// or hears back from a sink.
type Sink interface {
	Publish(s Snapshot)
}

// ImageSink is a Sink that also wants the camera frame in each snapshot.
type ImageSink interface {
	Sink
	WantsImage() bool
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Snapshot)

// Publish calls f.
func (f SinkFunc) Publish(s Snapshot) { f(s) }

type nopSink struct{}

func (nopSink) Publish(Snapshot) {}
