// Package config provides environment configuration helpers for go-gauge commands.
package config

import (
	"os"
	"strconv"
	"time"
)

// Defaults for the gauge reader service.
const (
	DefaultPort       = 8080
	DefaultParamsPath = "gauge-params.json"
	DefaultBackend    = "native"
	DefaultLogLevel   = "info"
	// Overlay endpoint on the camera itself.
	DefaultOverlayURL = "http://127.0.0.12"
)

// String returns the env var value or def when unset or empty.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Int returns the env var parsed as an int, or def when unset or malformed.
func Int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Bool returns the env var parsed as a bool, or def when unset or malformed.
func Bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Duration returns the env var parsed with time.ParseDuration, or def.
func Duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// Port returns the HTTP listen port from GAUGE_PORT.
func Port() int {
	return Int("GAUGE_PORT", DefaultPort)
}

// ParamsPath returns the parameter file path from GAUGE_PARAMS.
func ParamsPath() string {
	return String("GAUGE_PARAMS", DefaultParamsPath)
}

// DBPath returns the history database path from GAUGE_DB.
// Empty disables history.
func DBPath() string {
	return os.Getenv("GAUGE_DB")
}

// Backend returns the imaging backend name from GAUGE_BACKEND.
func Backend() string {
	return String("GAUGE_BACKEND", DefaultBackend)
}

// LogLevel returns the log level from GAUGE_LOG_LEVEL.
func LogLevel() string {
	return String("GAUGE_LOG_LEVEL", DefaultLogLevel)
}

// OverlayURL returns the camera overlay base URL from GAUGE_OVERLAY_URL.
func OverlayURL() string {
	return String("GAUGE_OVERLAY_URL", DefaultOverlayURL)
}

// OverlayUser returns the overlay user from GAUGE_OVERLAY_USER.
func OverlayUser() string {
	return os.Getenv("GAUGE_OVERLAY_USER")
}

// OverlayPass returns the overlay password from GAUGE_OVERLAY_PASS.
func OverlayPass() string {
	return os.Getenv("GAUGE_OVERLAY_PASS")
}
