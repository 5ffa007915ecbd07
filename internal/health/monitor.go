// Package health scores per-session context-window pressure.
package health

import (
	"fmt"
	"sort"
	"time"

	"github.com/janekbaraniewski/tokenpulse/internal/core"
)

type Monitor struct {
	cfg Config
}

func New(cfg Config) *Monitor {
	return &Monitor{cfg: cfg.withDefaults()}
}

func (m *Monitor) Config() Config { return m.cfg }

// Assessment is the outcome of one scoring pass.
type Assessment struct {
	// Current is the session holding the chronologically last record.
	Current *core.SessionHealth
	// Top lists recent sessions, most recently active first.
	Top []core.SessionHealth
}

type sessionAgg struct {
	id     string
	first  time.Time
	last   time.Time
	latest core.UsageRecord
	turns  int
	totals core.TokenCounts
	cwd    string
	branch string
}

// Assess groups records by session in a single pass and scores every
// session active since the recent cutoff, plus the current session.
// limit <= 0 leaves Top uncapped.
func (m *Monitor) Assess(records []core.UsageRecord, now time.Time, limit int) Assessment {
	if len(records) == 0 {
		return Assessment{}
	}

	groups := make(map[string]*sessionAgg)
	lastIdx := 0
	for i, rec := range records {
		g, ok := groups[rec.SessionID]
		if !ok {
			g = &sessionAgg{id: rec.SessionID, first: rec.Timestamp, last: rec.Timestamp, latest: rec}
			groups[rec.SessionID] = g
		}
		g.turns++
		g.totals.Add(rec)
		if rec.Timestamp.Before(g.first) {
			g.first = rec.Timestamp
		}
		if !rec.Timestamp.Before(g.last) {
			g.last = rec.Timestamp
			g.latest = rec
		}
		if rec.CWD != "" {
			g.cwd = rec.CWD
		}
		if rec.GitBranch != "" {
			g.branch = rec.GitBranch
		}
		if !rec.Timestamp.Before(records[lastIdx].Timestamp) {
			lastIdx = i
		}
	}

	currentID := records[lastIdx].SessionID
	cutoff := now.Add(-m.cfg.RecentCutoff)

	var out Assessment
	var recent []core.SessionHealth
	for _, g := range groups {
		isCurrent := g.id == currentID
		isRecent := !g.last.Before(cutoff)
		if !isCurrent && !isRecent {
			continue
		}
		h := m.score(g, now)
		if isCurrent {
			cur := h
			out.Current = &cur
		}
		if isRecent {
			recent = append(recent, h)
		}
	}

	sort.Slice(recent, func(i, j int) bool {
		if recent[i].LastActivity.Equal(recent[j].LastActivity) {
			return recent[i].SessionID < recent[j].SessionID
		}
		return recent[i].LastActivity.After(recent[j].LastActivity)
	})
	if limit > 0 && len(recent) > limit {
		recent = recent[:limit]
	}
	out.Top = recent
	return out
}

func clampTokens(v, limit int) int {
	if v < 0 {
		return 0
	}
	if v > limit {
		return limit
	}
	return v
}

// ContextUsage clamps each component to the window, then clamps the sum.
func ContextUsage(latest core.UsageRecord, outputTotal, window int) int {
	usage := clampTokens(latest.InputTokens, window) +
		clampTokens(latest.CacheReadTokens, window) +
		clampTokens(latest.CacheWriteTokens, window) +
		clampTokens(outputTotal, window)
	return min(window, usage)
}

func (m *Monitor) Band(pct float64) core.Band {
	switch {
	case pct < m.cfg.GreenThreshold:
		return core.BandGreen
	case pct < m.cfg.RedThreshold:
		return core.BandOrange
	default:
		return core.BandRed
	}
}

func (m *Monitor) score(g *sessionAgg, now time.Time) core.SessionHealth {
	window := core.ContextWindow(g.latest.Model)
	usage := ContextUsage(g.latest, g.totals.Output, window)
	pct := float64(usage) / (float64(window) * m.cfg.CompactionFactor) * 100
	band := m.Band(pct)
	span := g.last.Sub(g.first)

	h := core.SessionHealth{
		SessionID:     g.id,
		Model:         g.latest.Model,
		Band:          band,
		UsagePercent:  pct,
		ContextUsage:  usage,
		ContextWindow: window,
		Tokens: core.TokenCounts{
			Input:      g.latest.InputTokens,
			Output:     g.totals.Output,
			CacheRead:  g.latest.CacheReadTokens,
			CacheWrite: g.latest.CacheWriteTokens,
		},
		Turns:         g.turns,
		FirstActivity: g.first,
		LastActivity:  g.last,
		Duration:      span,
		IdleFor:       max(0, now.Sub(g.last)),
		CWD:           g.cwd,
		GitBranch:     g.branch,
	}
	h.Warnings = m.warnings(g, usage, band, now)

	if g.turns >= 2 && span > m.cfg.VelocityMinSpan {
		v := float64(usage) / span.Minutes()
		h.TokensPerMinute = &v
	}
	return h
}

func (m *Monitor) warnings(g *sessionAgg, usage int, band core.Band, now time.Time) []core.Warning {
	var out []core.Warning

	switch {
	case g.turns > m.cfg.StrongTurns:
		out = append(out, core.Warning{
			Kind:     core.WarningTurnCount,
			Severity: core.SeverityStrong,
			Message:  fmt.Sprintf("%d turns in this session; start a fresh session to reset context", g.turns),
		})
	case g.turns > m.cfg.MildTurns:
		out = append(out, core.Warning{
			Kind:     core.WarningTurnCount,
			Severity: core.SeverityMild,
			Message:  fmt.Sprintf("%d turns in this session; context is getting long", g.turns),
		})
	}

	inputSide := g.totals.Input + g.totals.CacheRead + g.totals.CacheWrite
	if g.totals.Output > 0 {
		ratio := float64(inputSide) / float64(g.totals.Output)
		if ratio > m.cfg.RatioMultiple {
			out = append(out, core.Warning{
				Kind:     core.WarningRatio,
				Severity: core.SeverityMild,
				Message:  fmt.Sprintf("input is %.0fx output; most tokens are spent re-reading context", ratio),
			})
		}
	}

	if g.totals.Output == 0 && g.turns > m.cfg.StuckTurns {
		out = append(out, core.Warning{
			Kind:     core.WarningStuck,
			Severity: core.SeverityStrong,
			Message:  fmt.Sprintf("no output after %d turns; the session may be stuck", g.turns),
		})
	}

	if g.turns >= 2 && usage > m.cfg.RapidTokenFloor && g.last.Sub(g.first) <= m.cfg.RapidWindow {
		out = append(out, core.Warning{
			Kind:     core.WarningRapid,
			Severity: core.SeverityStrong,
			Message:  fmt.Sprintf("%d tokens of context used within %s", usage, g.last.Sub(g.first).Round(time.Second)),
		})
	}

	if now.Sub(g.last) > m.cfg.IdleThreshold && band != core.BandGreen {
		out = append(out, core.Warning{
			Kind:     core.WarningIdle,
			Severity: core.SeverityMild,
			Message:  fmt.Sprintf("idle for over %s with %s context; cache may have expired", m.cfg.IdleThreshold, band),
		})
	}

	return out
}
