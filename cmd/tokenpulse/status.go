package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/janekbaraniewski/tokenpulse/internal/core"
)

var (
	colorGreen = lipgloss.Color("#A6E3A1")
	colorPeach = lipgloss.Color("#FAB387")
	colorRed   = lipgloss.Color("#F38BA8")
	colorDim   = lipgloss.Color("#6C7086")

	dimStyle = lipgloss.NewStyle().Foreground(colorDim)
)

func bandStyle(b core.Band) lipgloss.Style {
	switch b {
	case core.BandRed:
		return lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	case core.BandOrange:
		return lipgloss.NewStyle().Foreground(colorPeach).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(colorGreen)
	}
}

func formatStatus(snap core.UsageSnapshot) string {
	parts := []string{
		dimStyle.Render(snap.GeneratedAt.Format("15:04:05")),
		fmt.Sprintf("today %s (%d msgs)", formatTokens(float64(snap.Today.Total())), snap.TodayMessages),
	}

	label := "all-time"
	if snap.Mode == core.ModeWindowed {
		label = fmt.Sprintf("%dd", snap.WindowDays)
	}
	parts = append(parts, fmt.Sprintf("%s %s", label, formatTokens(float64(snap.Window.Total()))))

	if s := snap.CurrentSession; s != nil {
		pct := bandStyle(s.Band).Render(fmt.Sprintf("%.1f%% %s", s.UsagePercent, s.Band))
		parts = append(parts, fmt.Sprintf("session %s %s", shortID(s.SessionID), pct))
		if s.TokensPerMinute != nil {
			parts = append(parts, fmt.Sprintf("%s/min", formatNumber(*s.TokensPerMinute)))
		}
		if s.IdleFor >= time.Minute {
			parts = append(parts, dimStyle.Render("idle "+formatDuration(s.IdleFor)))
		}
		if len(s.Warnings) > 0 {
			parts = append(parts, bandStyle(core.BandOrange).Render(s.Warnings[0].Message))
		}
	}

	if c := snap.DataQuality.Corrupt(); c > 0 {
		parts = append(parts, dimStyle.Render(fmt.Sprintf("%d bad lines", c)))
	}
	return strings.Join(parts, "  ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatNumber(n float64) string {
	if n == 0 {
		return "0"
	}
	abs := math.Abs(n)
	switch {
	case abs >= 1_000_000:
		return fmt.Sprintf("%.1fM", n/1_000_000)
	case abs >= 10_000:
		return fmt.Sprintf("%.1fK", n/1_000)
	case abs == math.Floor(abs):
		return fmt.Sprintf("%.0f", n)
	default:
		return fmt.Sprintf("%.1f", n)
	}
}

func formatTokens(n float64) string {
	if n == 0 {
		return "-"
	}
	return formatNumber(n)
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
