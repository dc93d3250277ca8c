// Package debug provides global debug logging flags
package debug

import "log/slog"

// Enabled controls whether debug logging is active
var Enabled bool

// Vision controls whether per-stage pipeline traces are shown (mask size,
// contour counts, moments). Use --debug-vision to enable these very verbose logs.
var Vision bool

// Log emits a debug record only if debug mode is enabled
func Log(msg string, args ...any) {
	if Enabled {
		slog.Debug(msg, args...)
	}
}

// VisionLog emits a pipeline trace only if vision debug mode is enabled
func VisionLog(msg string, args ...any) {
	if Vision {
		slog.Debug(msg, append([]any{"trace", "vision"}, args...)...)
	}
}
