package statscache

import (
	"sort"
	"strconv"
	"time"

	"github.com/janekbaraniewski/tokenpulse/internal/core"
)

// Summary is the precomputed stats document written by the client.
type Summary struct {
	Version          int                   `json:"version"`
	LastComputedDate string                `json:"lastComputedDate"`
	DailyActivity    []DailyActivity       `json:"dailyActivity"`
	DailyModelTokens []DailyTokens         `json:"dailyModelTokens"`
	ModelUsage       map[string]ModelUsage `json:"modelUsage"`
	TotalSessions    int                   `json:"totalSessions"`
	TotalMessages    int                   `json:"totalMessages"`
	LongestSession   *LongestSession       `json:"longestSession"`
	FirstSessionDate string                `json:"firstSessionDate"`
	HourCounts       map[string]int        `json:"hourCounts"`
}

type DailyActivity struct {
	Date          string `json:"date"`
	MessageCount  int    `json:"messageCount"`
	SessionCount  int    `json:"sessionCount"`
	ToolCallCount int    `json:"toolCallCount"`
}

type DailyTokens struct {
	Date          string         `json:"date"`
	TokensByModel map[string]int `json:"tokensByModel"`
}

type ModelUsage struct {
	InputTokens              int `json:"inputTokens"`
	OutputTokens             int `json:"outputTokens"`
	CacheReadInputTokens     int `json:"cacheReadInputTokens"`
	CacheCreationInputTokens int `json:"cacheCreationInputTokens"`
}

func (u ModelUsage) Counts() core.TokenCounts {
	return core.TokenCounts{
		Input:      u.InputTokens,
		Output:     u.OutputTokens,
		CacheRead:  u.CacheReadInputTokens,
		CacheWrite: u.CacheCreationInputTokens,
	}
}

type LongestSession struct {
	SessionID    string `json:"sessionId"`
	Duration     int64  `json:"duration"` // milliseconds
	MessageCount int    `json:"messageCount"`
	Timestamp    string `json:"timestamp"`
}

// DateKeys returns every date the summary already accounts for.
func (s *Summary) DateKeys() map[string]bool {
	if s == nil {
		return map[string]bool{}
	}
	keys := make(map[string]bool, len(s.DailyModelTokens)+len(s.DailyActivity))
	for _, dt := range s.DailyModelTokens {
		keys[dt.Date] = true
	}
	for _, da := range s.DailyActivity {
		keys[da.Date] = true
	}
	return keys
}

// ModelsActiveSince lists models with tokens on or after dateKey, sorted.
func (s *Summary) ModelsActiveSince(dateKey string) []string {
	if s == nil {
		return nil
	}
	seen := make(map[string]bool)
	for _, dt := range s.DailyModelTokens {
		if dt.Date < dateKey {
			continue
		}
		for model, tokens := range dt.TokensByModel {
			if tokens > 0 {
				seen[model] = true
			}
		}
	}
	models := make([]string, 0, len(seen))
	for m := range seen {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}

// Hours converts the string-keyed hour histogram, dropping keys outside 0..23.
func (s *Summary) Hours() map[int]int {
	if s == nil || len(s.HourCounts) == 0 {
		return nil
	}
	out := make(map[int]int, len(s.HourCounts))
	for k, v := range s.HourCounts {
		h, err := strconv.Atoi(k)
		if err != nil || h < 0 || h > 23 {
			continue
		}
		out[h] = v
	}
	return out
}

func (s *Summary) Longest() *core.LongestSession {
	if s == nil || s.LongestSession == nil {
		return nil
	}
	return &core.LongestSession{
		SessionID:    s.LongestSession.SessionID,
		Duration:     time.Duration(s.LongestSession.Duration) * time.Millisecond,
		MessageCount: s.LongestSession.MessageCount,
		Timestamp:    s.LongestSession.Timestamp,
	}
}
