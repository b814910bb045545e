// Package output provides terminal output formatting utilities for the CLI.
package output

import (
	"os"

	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
)

// colorsEnabled caches the result of color support detection.
var colorsEnabled *bool

// IsColorSupported determines if color output should be enabled.
// It checks for NO_COLOR environment variable and terminal capability.
func IsColorSupported() bool {
	if colorsEnabled != nil {
		return *colorsEnabled
	}

	enabled := detectColorSupport()
	colorsEnabled = &enabled
	return enabled
}

func detectColorSupport() bool {
	// See https://no-color.org/
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return false
	}
	if _, exists := os.LookupEnv("FORCE_COLOR"); exists {
		return true
	}

	stat, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	if stat.Mode()&os.ModeCharDevice == 0 {
		return false
	}

	term := os.Getenv("TERM")
	return term != "" && term != "dumb"
}

// ResetColorDetection clears the cached color detection result.
func ResetColorDetection() {
	colorsEnabled = nil
}

// ConnectivityColor returns the color used to render a connectivity state.
func ConnectivityColor(state offline.ConnectivityState) Color {
	if state == offline.Online {
		return ColorGreen
	}
	return ColorYellow
}

// FreshnessColor returns the color used to render a load result's freshness.
func FreshnessColor(f offline.Freshness) Color {
	switch f {
	case offline.Fresh:
		return ColorGreen
	case offline.Stale:
		return ColorYellow
	default:
		return ColorRed
	}
}

// SessionColor returns the color used to render a scope's session state.
func SessionColor(s offline.SessionState) Color {
	switch s {
	case offline.SessionLoaded:
		return ColorGreen
	case offline.SessionLoading, offline.SessionDraining:
		return ColorCyan
	case offline.SessionFailed:
		return ColorRed
	default:
		return ColorDim
	}
}
