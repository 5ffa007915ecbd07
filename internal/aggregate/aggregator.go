// Package aggregate merges live session records with the historical stats
// summary into a single usage snapshot.
package aggregate

import (
	"errors"
	"io/fs"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/janekbaraniewski/tokenpulse/internal/account"
	"github.com/janekbaraniewski/tokenpulse/internal/core"
	"github.com/janekbaraniewski/tokenpulse/internal/health"
	"github.com/janekbaraniewski/tokenpulse/internal/statscache"
)

const (
	DefaultModelRecency = 72 * time.Hour
	DefaultTopSessions  = 5
)

// SessionSource supplies the merged, time-sorted live record set.
type SessionSource interface {
	ReadAllUsageEntries() []core.UsageRecord
	Stats() core.DataQuality
}

// HistorySource supplies the precomputed summary, if one is available.
type HistorySource interface {
	Load() (*statscache.Summary, bool)
}

type ProfileStore interface {
	Load() (core.Profile, error)
	Save(core.Profile) error
}

type Options struct {
	// WindowDays of 0 selects all-time accounting.
	WindowDays      int
	ModelRecency    time.Duration
	TopSessions     int
	Health          health.Config
	Location        *time.Location
	ProfileOverride core.Profile
	AccountPath     string
	ProfileStore    ProfileStore
}

func (o Options) withDefaults() Options {
	if o.WindowDays < 0 {
		o.WindowDays = 0
	}
	if o.ModelRecency <= 0 {
		o.ModelRecency = DefaultModelRecency
	}
	if o.TopSessions <= 0 {
		o.TopSessions = DefaultTopSessions
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	return o
}

type Aggregator struct {
	sessions SessionSource
	history  HistorySource
	opts     Options
	monitor  *health.Monitor

	mu       sync.Mutex
	external core.External

	stored       core.Profile
	storedLoaded bool
}

func New(sessions SessionSource, history HistorySource, opts Options) *Aggregator {
	opts = opts.withDefaults()
	return &Aggregator{
		sessions: sessions,
		history:  history,
		opts:     opts,
		monitor:  health.New(opts.Health),
	}
}

func (a *Aggregator) Options() Options { return a.opts }

// SetExternal stores the latest data pushed by a network collaborator.
func (a *Aggregator) SetExternal(ext core.External) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ext.RateLimits = append([]core.RateLimit(nil), ext.RateLimits...)
	a.external = ext
}

func (a *Aggregator) externalData() core.External {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.external
}

// Aggregate builds a snapshot as of now. It is meant to be called from a
// single goroutine.
func (a *Aggregator) Aggregate(now time.Time) core.UsageSnapshot {
	loc := a.opts.Location
	records := a.sessions.ReadAllUsageEntries()
	summary, hasHistory := a.history.Load()
	if !hasHistory {
		summary = nil
	}

	snap := core.UsageSnapshot{
		GeneratedAt:      now,
		Mode:             core.ModeAllTime,
		HistoryAvailable: hasHistory,
		DataQuality:      a.sessions.Stats(),
	}
	windowed := a.opts.WindowDays > 0
	if windowed {
		snap.Mode = core.ModeWindowed
		snap.WindowDays = a.opts.WindowDays
	}

	todayKey := core.DateKey(now, loc)
	todayStart := core.StartOfDay(now, loc)
	windowStart := core.WindowStart(now, a.opts.WindowDays, loc)
	today, window := partition(records, todayStart, windowStart, windowed)

	for _, r := range today {
		snap.Today.Add(r)
	}
	snap.TodayMessages = len(today)
	snap.TodaySessions = len(lo.Uniq(lo.Map(today, func(r core.UsageRecord, _ int) string { return r.SessionID })))

	historyDates := summary.DateKeys()
	todayInHistory := historyDates[todayKey]

	totals := make(map[string]core.TokenCounts)
	if windowed {
		for _, r := range window {
			c := totals[r.Model]
			c.Add(r)
			totals[r.Model] = c
		}
		snap.WindowMessages = len(window)
	} else {
		if summary != nil {
			for model, u := range summary.ModelUsage {
				totals[model] = u.Counts()
			}
			snap.WindowMessages = summary.TotalMessages
		}
		for _, r := range today {
			if historyDates[core.DateKey(r.Timestamp, loc)] {
				continue
			}
			c := totals[r.Model]
			c.Add(r)
			totals[r.Model] = c
			snap.WindowMessages++
		}
	}
	for _, c := range totals {
		snap.Window.Input += c.Input
		snap.Window.Output += c.Output
		snap.Window.CacheRead += c.CacheRead
		snap.Window.CacheWrite += c.CacheWrite
	}

	active := a.activeModels(records, summary, now)
	shown := lo.Filter(lo.Keys(totals), func(model string, _ int) bool { return active[model] })
	snap.Models = make([]core.ModelTokens, 0, len(shown))
	for _, model := range shown {
		c := totals[model]
		snap.Models = append(snap.Models, core.ModelTokens{
			Model:            model,
			Tokens:           c,
			EstimatedCostUSD: core.EstimateCost(model, c),
		})
	}
	sort.Slice(snap.Models, func(i, j int) bool {
		ti, tj := snap.Models[i].Tokens.Total(), snap.Models[j].Tokens.Total()
		if ti != tj {
			return ti > tj
		}
		return snap.Models[i].Model < snap.Models[j].Model
	})

	assessment := a.monitor.Assess(records, now, a.opts.TopSessions)
	snap.CurrentSession = assessment.Current
	snap.TopSessions = assessment.Top

	ext := a.externalData()
	snap.Profile = a.resolveProfile(ext.Profile)
	snap.RateLimits = ext.RateLimits

	var historyFrom string
	if windowed {
		historyFrom = core.DateKey(windowStart, loc)
	}
	snap.DailySeries = dailySeries(summary, historyFrom, todayKey, today, todayInHistory)

	if summary != nil {
		snap.HourCounts = summary.Hours()
		snap.LongestSession = summary.Longest()
		snap.TotalSessions = summary.TotalSessions
		snap.TotalMessages = summary.TotalMessages
		snap.FirstSessionDate = summary.FirstSessionDate
		snap.HistoryComputedDate = summary.LastComputedDate
	}
	if !todayInHistory {
		snap.TotalSessions += snap.TodaySessions
		snap.TotalMessages += snap.TodayMessages
	}
	if snap.FirstSessionDate == "" && len(records) > 0 {
		snap.FirstSessionDate = core.DateKey(records[0].Timestamp, loc)
	}
	snap.LatestClientVersion = latestVersion(records)

	return snap
}

// partition walks the sorted records backwards and stops at the first record
// older than both bounds.
func partition(records []core.UsageRecord, todayStart, windowStart time.Time, windowed bool) (today, window []core.UsageRecord) {
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		inToday := !r.Timestamp.Before(todayStart)
		inWindow := windowed && !r.Timestamp.Before(windowStart)
		if !inToday && !inWindow {
			break
		}
		if inToday {
			today = append(today, r)
		}
		if inWindow {
			window = append(window, r)
		}
	}
	return today, window
}

func (a *Aggregator) activeModels(records []core.UsageRecord, summary *statscache.Summary, now time.Time) map[string]bool {
	horizon := now.Add(-a.opts.ModelRecency)
	models := summary.ModelsActiveSince(core.DateKey(horizon, a.opts.Location))
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Timestamp.Before(horizon) {
			break
		}
		models = append(models, records[i].Model)
	}
	return lo.SliceToMap(lo.Uniq(models), func(m string) (string, bool) { return m, true })
}

func dailySeries(summary *statscache.Summary, from, todayKey string, today []core.UsageRecord, todayInHistory bool) map[string][]core.TimePoint {
	series := make(map[string][]core.TimePoint)
	if summary != nil {
		for _, da := range summary.DailyActivity {
			if da.Date < from {
				continue
			}
			series["messages"] = append(series["messages"], core.TimePoint{Date: da.Date, Value: float64(da.MessageCount)})
			series["sessions"] = append(series["sessions"], core.TimePoint{Date: da.Date, Value: float64(da.SessionCount)})
			series["tool_calls"] = append(series["tool_calls"], core.TimePoint{Date: da.Date, Value: float64(da.ToolCallCount)})
		}
		for _, dt := range summary.DailyModelTokens {
			if dt.Date < from {
				continue
			}
			dayTotal := 0
			for _, model := range sortedKeys(dt.TokensByModel) {
				tokens := dt.TokensByModel[model]
				key := "tokens_" + sanitizeModelName(model)
				series[key] = append(series[key], core.TimePoint{Date: dt.Date, Value: float64(tokens)})
				dayTotal += tokens
			}
			series["tokens_total"] = append(series["tokens_total"], core.TimePoint{Date: dt.Date, Value: float64(dayTotal)})
		}
	}

	if !todayInHistory && len(today) > 0 {
		sessions := lo.Uniq(lo.Map(today, func(r core.UsageRecord, _ int) string { return r.SessionID }))
		tokens := lo.SumBy(today, func(r core.UsageRecord) int { return r.TotalTokens() })
		series["messages"] = append(series["messages"], core.TimePoint{Date: todayKey, Value: float64(len(today))})
		series["sessions"] = append(series["sessions"], core.TimePoint{Date: todayKey, Value: float64(len(sessions))})
		series["tokens_total"] = append(series["tokens_total"], core.TimePoint{Date: todayKey, Value: float64(tokens)})
	}

	if len(series) == 0 {
		return nil
	}
	return series
}

func sortedKeys(m map[string]int) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}

func sanitizeModelName(model string) string {
	result := make([]byte, 0, len(model))
	for _, c := range model {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			result = append(result, byte(c))
		} else {
			result = append(result, '_')
		}
	}
	return string(result)
}

// localProfile reads the account file, filling gaps from the profile cache.
func (a *Aggregator) localProfile() core.Profile {
	var fromFile core.Profile
	if a.opts.AccountPath != "" {
		p, err := account.ReadAccountFile(a.opts.AccountPath)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Printf("aggregate: %v", err)
		}
		fromFile = p
	}
	stored := a.storedProfile()
	return mergeProfiles(fromFile, stored)
}

func (a *Aggregator) storedProfile() core.Profile {
	if a.opts.ProfileStore == nil {
		return core.Profile{}
	}
	if !a.storedLoaded {
		p, err := a.opts.ProfileStore.Load()
		if err != nil {
			log.Printf("aggregate: %v", err)
		}
		a.stored = p
		a.storedLoaded = true
	}
	return a.stored
}

// resolveProfile picks each field from the network, then local sources, then
// the user override. Network values are cached unless the user overrode them.
func (a *Aggregator) resolveProfile(network core.Profile) core.Profile {
	override := a.opts.ProfileOverride
	resolved := mergeProfiles(network, a.localProfile(), override)
	a.persistNetworkProfile(network, override)
	return resolved
}

func (a *Aggregator) persistNetworkProfile(network, override core.Profile) {
	if a.opts.ProfileStore == nil || network.IsZero() {
		return
	}
	stored := a.storedProfile()
	next := stored
	update := func(dst *string, netVal, overrideVal string) {
		if netVal != "" && overrideVal == "" && *dst != netVal {
			*dst = netVal
		}
	}
	update(&next.DisplayName, network.DisplayName, override.DisplayName)
	update(&next.Email, network.Email, override.Email)
	update(&next.Organization, network.Organization, override.Organization)
	update(&next.BillingType, network.BillingType, override.BillingType)
	update(&next.Subscription, network.Subscription, override.Subscription)
	if next == stored {
		return
	}
	if err := a.opts.ProfileStore.Save(next); err != nil {
		log.Printf("aggregate: %v", err)
		return
	}
	a.stored = next
}

func mergeProfiles(sources ...core.Profile) core.Profile {
	pick := func(field func(core.Profile) string) string {
		return lo.CoalesceOrEmpty(lo.Map(sources, func(p core.Profile, _ int) string { return field(p) })...)
	}
	return core.Profile{
		DisplayName:  pick(func(p core.Profile) string { return p.DisplayName }),
		Email:        pick(func(p core.Profile) string { return p.Email }),
		Organization: pick(func(p core.Profile) string { return p.Organization }),
		BillingType:  pick(func(p core.Profile) string { return p.BillingType }),
		Subscription: pick(func(p core.Profile) string { return p.Subscription }),
	}
}
