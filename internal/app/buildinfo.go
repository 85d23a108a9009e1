package app

import (
	"fmt"
	"strings"
	"time"
)

var (
	// Version is filled by ldflags in release builds.
	Version = "dev"
	// BuildDate is filled by ldflags in release builds.
	BuildDate = ""
)

func BuildVersion() string {
	version := strings.TrimSpace(Version)
	if version == "" {
		return "dev"
	}

	return version
}

// BuildDateYMD normalizes the injected build date to YYYY-MM-DD, returning
// the raw value when it matches neither RFC3339 nor a date prefix.
func BuildDateYMD() string {
	raw := strings.TrimSpace(BuildDate)
	if raw == "" {
		return ""
	}

	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed.Format("2006-01-02")
	}
	if len(raw) >= len("2006-01-02") {
		prefix := raw[:len("2006-01-02")]
		if _, err := time.Parse("2006-01-02", prefix); err == nil {
			return prefix
		}
	}

	return raw
}

func BuildVersionWithDate() string {
	version := BuildVersion()
	if date := BuildDateYMD(); date != "" {
		return fmt.Sprintf("%s (%s)", version, date)
	}

	return version
}
