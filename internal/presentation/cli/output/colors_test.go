package output

import (
	"os"
	"testing"

	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
)

func TestIsColorSupported(t *testing.T) {
	defer ResetColorDetection()

	tests := []struct {
		name       string
		noColor    bool
		forceColor bool
		term       string
		want       bool
	}{
		{name: "NO_COLOR set", noColor: true, term: "xterm-256color", want: false},
		{name: "FORCE_COLOR overrides", forceColor: true, want: true},
		{name: "TERM dumb", term: "dumb", want: false},
		{name: "TERM empty", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ResetColorDetection()
			unsetEnv(t, "NO_COLOR")
			unsetEnv(t, "FORCE_COLOR")
			if tt.noColor {
				t.Setenv("NO_COLOR", "1")
			}
			if tt.forceColor {
				t.Setenv("FORCE_COLOR", "1")
			}
			t.Setenv("TERM", tt.term)

			if got := IsColorSupported(); got != tt.want {
				t.Errorf("IsColorSupported() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResetColorDetection(t *testing.T) {
	defer ResetColorDetection()
	unsetEnv(t, "NO_COLOR")
	t.Setenv("FORCE_COLOR", "1")

	ResetColorDetection()
	if !IsColorSupported() {
		t.Fatal("IsColorSupported() = false, want true after FORCE_COLOR=1")
	}

	unsetEnv(t, "FORCE_COLOR")
	t.Setenv("NO_COLOR", "1")

	// Cached until reset
	if !IsColorSupported() {
		t.Error("cached detection was invalidated without reset")
	}

	ResetColorDetection()
	if IsColorSupported() {
		t.Error("IsColorSupported() = true, want false after NO_COLOR=1 and reset")
	}
}

func TestStateColors(t *testing.T) {
	if ConnectivityColor(offline.Online) != ColorGreen || ConnectivityColor(offline.Offline) != ColorYellow {
		t.Error("unexpected connectivity colors")
	}

	freshness := map[offline.Freshness]Color{
		offline.Fresh:  ColorGreen,
		offline.Stale:  ColorYellow,
		offline.Failed: ColorRed,
	}
	for f, want := range freshness {
		if got := FreshnessColor(f); got != want {
			t.Errorf("FreshnessColor(%s) = %q, want %q", f, got, want)
		}
	}

	sessions := map[offline.SessionState]Color{
		offline.SessionIdle:     ColorDim,
		offline.SessionLoading:  ColorCyan,
		offline.SessionDraining: ColorCyan,
		offline.SessionLoaded:   ColorGreen,
		offline.SessionFailed:   ColorRed,
	}
	for s, want := range sessions {
		if got := SessionColor(s); got != want {
			t.Errorf("SessionColor(%s) = %q, want %q", s, got, want)
		}
	}
}

// unsetEnv removes key for the duration of the test.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}
