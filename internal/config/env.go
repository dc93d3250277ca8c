package config

import (
	"os"
	"strings"
)

// DefaultRobotHost is used when neither the config file nor the environment
// names the robot.
const DefaultRobotHost = "localhost"

// Environment variables read by ApplyEnv.
const (
	EnvRobotAddr = "ROBOT_ADDR"
	EnvRobotIP   = "ROBOT_IP"
	EnvCameraURL = "CAMERA_URL"
	EnvLogLevel  = "LINEFOLLOW_LOG_LEVEL"
)

// RobotAddr returns the robot address from ROBOT_ADDR, then ROBOT_IP.
// Falls back to the provided default if neither is set.
func RobotAddr(defaultAddr string) string {
	if addr := os.Getenv(EnvRobotAddr); addr != "" {
		return addr
	}
	if ip := os.Getenv(EnvRobotIP); ip != "" {
		return ip
	}
	return defaultAddr
}

// LogLevel returns the level from LINEFOLLOW_LOG_LEVEL or the default.
func LogLevel(defaultLevel string) string {
	if level := os.Getenv(EnvLogLevel); level != "" {
		return strings.ToLower(level)
	}
	return defaultLevel
}

// ApplyEnv overrides file values with environment variables.
func ApplyEnv(cfg *Config) {
	cfg.Robot.Addr = RobotAddr(cfg.Robot.Addr)
	cfg.Log.Level = LogLevel(cfg.Log.Level)
	if url := os.Getenv(EnvCameraURL); url != "" {
		cfg.Camera.URL = url
	}
}
