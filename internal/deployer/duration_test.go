package deployer

import (
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds  int
		expected string
	}{
		{0, "0s"},
		{59, "59s"},
		{60, "1m 0s"},
		{3600, "1h 0m 0s"},
		{3661, "1h 1m 1s"},
		{86400, "1d 0h 0m 0s"},
		{86461, "1d 0h 1m 1s"},
		{-5, "0s"},
	}

	for _, tt := range tests {
		got := FormatDuration(time.Duration(tt.seconds) * time.Second)
		if got != tt.expected {
			t.Errorf("FormatDuration(%ds) = %q, want %q", tt.seconds, got, tt.expected)
		}
	}

	if got := FormatDuration(1999 * time.Millisecond); got != "1s" {
		t.Errorf("FormatDuration(1.999s) = %q, want %q", got, "1s")
	}
}
