// Package config reads service settings by dotted key, e.g.
// "modules.admin.otp.ttl_minutes". Missing keys yield zero values; callers
// apply their own defaults.
package config

import (
	"io"
	"time"
)

type Config interface {
	io.Closer

	GetString(key string) string
	GetBool(key string) bool
	GetInt(key string) int
	GetInt32(key string) int32
	GetFloat64(key string) float64

	// GetSecond and GetMinute read an integer and scale it to a duration.
	GetSecond(key string) time.Duration
	GetMinute(key string) time.Duration

	// GetBinary base64-decodes the value. Invalid base64 yields nil.
	GetBinary(key string) []byte

	// GetArray accepts either a YAML list or a comma separated string.
	// Elements are trimmed and empty ones dropped.
	GetArray(key string) []string
}
