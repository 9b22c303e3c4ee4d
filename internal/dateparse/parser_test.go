package dateparse

import (
	"testing"
	"time"
)

func TestNormalize(t *testing.T) {
	// Saturday.
	now := time.Date(2025, 6, 14, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "empty stays empty", input: "", want: ""},
		{name: "blank stays empty", input: "   ", want: ""},
		{name: "calendar date passes through", input: "2024-05-01", want: "2024-05-01"},
		{name: "surrounding space trimmed", input: " 2024-05-01 ", want: "2024-05-01"},
		{name: "tomorrow", input: "tomorrow", want: "2025-06-15"},
		{name: "garbage", input: "zzz", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input, now)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Normalize(%q) = %q, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTodayIsUTC(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	now := time.Date(2024, 5, 2, 8, 0, 0, 0, loc) // 2024-05-01 22:00 UTC
	if got := Today(now); got != "2024-05-01" {
		t.Errorf("Today = %q, want 2024-05-01", got)
	}
}

func TestDisplay(t *testing.T) {
	tests := map[string]string{
		"":           "not scheduled",
		"2024-05-01": "May 1, 2024",
		"soon":       "soon",
	}
	for in, want := range tests {
		if got := Display(in); got != want {
			t.Errorf("Display(%q) = %q, want %q", in, got, want)
		}
	}
}
