package cmd

import (
	"testing"
	"time"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"512", 512, false},
		{"0", 0, false},
		{"100B", 100, false},
		{"64KB", 64 * 1024, false},
		{"1.5MB", 1572864, false},
		{"2GB", 2 * 1024 * 1024 * 1024, false},
		{" 10 kb ", 10 * 1024, false},
		{"", 0, true},
		{"abc", 0, true},
		{"12XB", 0, true},
	}

	for _, tt := range tests {
		got, err := parseSize(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseSize(%q): expected error, got %d", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseSize(%q): %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseSize(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{5 * 1024 * 1024 * 1024, "5.0 GB"},
	}

	for _, tt := range tests {
		if got := formatBytes(tt.input); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFormatTimeSince(t *testing.T) {
	now := time.Now()

	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Time{}, "never"},
		{now.Add(-30 * time.Second), "just now"},
		{now.Add(-time.Minute), "1 minute ago"},
		{now.Add(-5 * time.Minute), "5 minutes ago"},
		{now.Add(-3 * time.Hour), "3 hours ago"},
		{now.Add(-2 * hoursPerDay * time.Hour), "2 days ago"},
		{now.Add(-14 * hoursPerDay * time.Hour), "2 weeks ago"},
	}

	for _, tt := range tests {
		if got := formatTimeSince(tt.at); got != tt.want {
			t.Errorf("formatTimeSince(%v) = %q, want %q", tt.at, got, tt.want)
		}
	}
}
