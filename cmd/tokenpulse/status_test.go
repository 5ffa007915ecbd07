package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/janekbaraniewski/tokenpulse/internal/config"
	"github.com/janekbaraniewski/tokenpulse/internal/core"
)

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{950, "950"},
		{12_345, "12.3K"},
		{2_500_000, "2.5M"},
		{12.34, "12.3"},
	}
	for _, tt := range tests {
		if got := formatNumber(tt.in); got != tt.want {
			t.Errorf("formatNumber(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	if got := formatDuration(45 * time.Second); got != "45s" {
		t.Errorf("got %q", got)
	}
	if got := formatDuration(95 * time.Minute); got != "1h35m" {
		t.Errorf("got %q", got)
	}
}

func TestFormatStatus(t *testing.T) {
	rate := 300.0
	snap := core.UsageSnapshot{
		GeneratedAt:   time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC),
		Mode:          core.ModeWindowed,
		WindowDays:    7,
		Today:         core.TokenCounts{Input: 20_000},
		TodayMessages: 4,
		Window:        core.TokenCounts{Input: 1_500_000},
		CurrentSession: &core.SessionHealth{
			SessionID:       "0123456789abcdef",
			Band:            core.BandOrange,
			UsagePercent:    71.25,
			TokensPerMinute: &rate,
			Warnings:        []core.Warning{{Message: "16 turns in session"}},
		},
		DataQuality: core.DataQuality{Truncated: 2},
	}
	line := formatStatus(snap)
	for _, want := range []string{"today 20.0K (4 msgs)", "7d 1.5M", "session 01234567", "71.2% orange", "300/min", "16 turns", "2 bad lines"} {
		if !strings.Contains(line, want) {
			t.Errorf("status %q missing %q", line, want)
		}
	}
}

func TestWriteSnapshot(t *testing.T) {
	var buf bytes.Buffer
	snap := core.UsageSnapshot{Mode: core.ModeAllTime, TodayMessages: 3}
	if err := writeSnapshot(&buf, snap, true); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if decoded["mode"] != "all-time" || decoded["today_messages"] != float64(3) {
		t.Errorf("decoded = %v", decoded)
	}
}

func TestWithWindow(t *testing.T) {
	cfg := config.DefaultConfig()
	if got := withWindow(cfg, "").TimeWindow(); got != core.TimeWindowAll {
		t.Errorf("empty override = %s", got)
	}
	if got := withWindow(cfg, "3d").TimeWindow().Days(); got != 3 {
		t.Errorf("override days = %d, want 3", got)
	}
}
