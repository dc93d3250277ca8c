// Package config loads the linefollow YAML configuration and applies
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-linefollow/pkg/camera"
	"github.com/teslashibe/go-linefollow/pkg/follower"
	"github.com/teslashibe/go-linefollow/pkg/robot"
	"github.com/teslashibe/go-linefollow/pkg/steering"
	"github.com/teslashibe/go-linefollow/pkg/vision"
)

// Robot base kinds.
const (
	RobotHTTP   = "http"
	RobotSerial = "serial"
	RobotDryRun = "dryrun"
)

// Config is the complete linefollow configuration.
type Config struct {
	Camera   camera.Config   `yaml:"camera"`
	Vision   vision.Config   `yaml:"vision"`
	Steering steering.Config `yaml:"steering"`
	Follower follower.Config `yaml:"follower"`
	Robot    RobotConfig     `yaml:"robot"`
	Web      WebConfig       `yaml:"web"`
	Log      LogConfig       `yaml:"log"`
	Debug    DebugConfig     `yaml:"debug"`
}

// RobotConfig selects and configures the actuator.
type RobotConfig struct {
	Kind      string             `yaml:"kind"`      // http, serial or dryrun
	Addr      string             `yaml:"addr"`      // http: host, host:port or URL
	Exclusive bool               `yaml:"exclusive"` // Reject overlapping commands with ErrBusy
	Serial    robot.SerialConfig `yaml:"serial"`
	Servo     ServoConfig        `yaml:"servo"`
	Simulate  bool               `yaml:"simulate"` // dryrun: sleep for straight segments
}

// ServoConfig optionally moves head control to a bus servo.
type ServoConfig struct {
	Enabled           bool `yaml:"enabled"`
	robot.ServoConfig `yaml:",inline"`
}

// WebConfig configures the viewer.
type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Title   string `yaml:"title"` // Static overlay text; empty disables it
}

// LogConfig configures logging.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// DebugConfig enables verbose traces.
type DebugConfig struct {
	Enabled bool `yaml:"enabled"`
	Vision  bool `yaml:"vision"`
}

// Default returns the reference setup: robot HTTP camera and base, viewer on
// :8181.
func Default() *Config {
	return &Config{
		Camera:   camera.DefaultConfig(),
		Vision:   vision.DefaultConfig(),
		Steering: steering.DefaultConfig(),
		Follower: follower.DefaultConfig(),
		Robot: RobotConfig{
			Kind:   RobotHTTP,
			Addr:   DefaultRobotHost,
			Serial: robot.DefaultSerialConfig(),
			Servo:  ServoConfig{ServoConfig: robot.DefaultServoConfig()},
		},
		Web: WebConfig{
			Enabled: true,
			Addr:    ":8181",
			Title:   "Line-Cam",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path on top of Default, applies environment overrides and
// validates the result. An empty path loads only defaults and environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	ApplyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks every section and joins the problems into one error.
func (c *Config) Validate() error {
	var errs []string
	add := func(section string, list []string) {
		for _, e := range list {
			errs = append(errs, section+": "+e)
		}
	}

	add("camera", c.Camera.Validate())
	add("vision", c.Vision.Validate())
	add("steering", c.Steering.Validate())
	add("follower", c.Follower.Validate())

	if w, h := c.Vision.ROI.Width(), c.Vision.ROI.Height(); w != c.Steering.ExpectedWidthPx || h != c.Steering.ExpectedHeightPx {
		errs = append(errs, fmt.Sprintf("steering: expected range %dx%d does not match vision roi %dx%d",
			c.Steering.ExpectedWidthPx, c.Steering.ExpectedHeightPx, w, h))
	}

	switch c.Robot.Kind {
	case RobotHTTP:
		if c.Robot.Addr == "" {
			errs = append(errs, "robot: addr is required for http")
		}
	case RobotSerial:
		if c.Robot.Serial.Device == "" || c.Robot.Serial.Baud <= 0 {
			errs = append(errs, "robot: serial device and baud are required")
		}
	case RobotDryRun:
	default:
		errs = append(errs, fmt.Sprintf("robot: unknown kind %q", c.Robot.Kind))
	}
	if c.Robot.Servo.Enabled && c.Robot.Servo.Port == "" {
		errs = append(errs, "robot: servo port is required when enabled")
	}

	if c.Web.Enabled && c.Web.Addr == "" {
		errs = append(errs, "web: addr is required when enabled")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Params returns the runtime-tunable part of the configuration.
func (c *Config) Params() follower.Params {
	return follower.Params{Vision: c.Vision, Steering: c.Steering}
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
