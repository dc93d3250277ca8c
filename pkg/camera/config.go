// Package camera provides frame sources for the line follower: a local
// capture device, robot HTTP snapshots, a websocket push stream, and a
// directory replay. Every source returns the most recent frame and never
// queues stale ones.
package camera

import "time"

// Source kinds.
const (
	KindCapture = "capture"
	KindHTTP    = "http"
	KindWS      = "ws"
	KindFiles   = "files"
)

// Config holds all frame source configuration parameters.
type Config struct {
	Kind string `yaml:"kind" json:"kind"`

	// capture
	Device string `yaml:"device" json:"device"` // Device index ("0") or stream URL

	// http / ws
	URL     string        `yaml:"url" json:"url"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"` // Per-request (http) or handshake (ws) timeout

	// files
	Dir      string        `yaml:"dir" json:"dir"`
	Loop     bool          `yaml:"loop" json:"loop"`
	Interval time.Duration `yaml:"interval" json:"interval"` // Minimum time between replayed frames

	// Requested resolution (capture only; 0 keeps the device default)
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// Preset names for common configurations
const (
	PresetDefault = "default"
	PresetWebcam  = "webcam"
	PresetRobot   = "robot"
	PresetStream  = "stream"
	PresetReplay  = "replay"
)

// DefaultConfig returns the robot's snapshot endpoint at the reference
// 320x240 resolution.
func DefaultConfig() Config {
	return RobotConfig()
}

// WebcamConfig opens the first local capture device at 320x240.
func WebcamConfig() Config {
	return Config{
		Kind:   KindCapture,
		Device: "0",
		Width:  320,
		Height: 240,
	}
}

// RobotConfig polls the robot's JPEG snapshot endpoint.
func RobotConfig() Config {
	return Config{
		Kind:    KindHTTP,
		URL:     "http://localhost:8000/api/camera/snapshot",
		Timeout: 2 * time.Second,
	}
}

// StreamConfig subscribes to the robot's binary JPEG websocket.
func StreamConfig() Config {
	return Config{
		Kind:    KindWS,
		URL:     "ws://localhost:8000/ws/camera",
		Timeout: 10 * time.Second,
	}
}

// ReplayConfig replays recorded frames at roughly 10 fps.
func ReplayConfig() Config {
	return Config{
		Kind:     KindFiles,
		Dir:      "frames",
		Interval: 100 * time.Millisecond,
	}
}

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault: DefaultConfig(),
		PresetWebcam:  WebcamConfig(),
		PresetRobot:   RobotConfig(),
		PresetStream:  StreamConfig(),
		PresetReplay:  ReplayConfig(),
	}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	presets := Presets()
	if cfg, ok := presets[name]; ok {
		return &cfg
	}
	return nil
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	switch c.Kind {
	case KindCapture:
		if c.Device == "" {
			errors = append(errors, "device is required for capture")
		}
	case KindHTTP, KindWS:
		if c.URL == "" {
			errors = append(errors, "url is required for "+c.Kind)
		}
		if c.Timeout < 0 {
			errors = append(errors, "timeout must be >= 0")
		}
	case KindFiles:
		if c.Dir == "" {
			errors = append(errors, "dir is required for files")
		}
		if c.Interval < 0 {
			errors = append(errors, "interval must be >= 0")
		}
	default:
		errors = append(errors, "kind must be capture, http, ws, or files")
	}

	if c.Width < 0 || c.Height < 0 {
		errors = append(errors, "width and height must be >= 0")
	}

	return errors
}
