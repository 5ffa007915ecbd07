package core

import "time"

// UsageRecord is one assistant turn with token usage, parsed from a single
// conversation log line. Records are never mutated after parsing.
type UsageRecord struct {
	Timestamp        time.Time `json:"timestamp"`
	Model            string    `json:"model"`
	MessageID        string    `json:"message_id"`
	RequestID        string    `json:"request_id,omitempty"`
	SessionID        string    `json:"session_id"`
	InputTokens      int       `json:"input_tokens"`
	OutputTokens     int       `json:"output_tokens"`
	CacheReadTokens  int       `json:"cache_read_tokens"`
	CacheWriteTokens int       `json:"cache_write_tokens"`
	CWD              string    `json:"cwd,omitempty"`
	GitBranch        string    `json:"git_branch,omitempty"`
	ClientVersion    string    `json:"client_version,omitempty"`
}

// TotalTokens returns input + output + cache tokens.
func (r UsageRecord) TotalTokens() int {
	return r.InputTokens + r.OutputTokens + r.CacheReadTokens + r.CacheWriteTokens
}

// InputSideTokens returns input plus both cache token kinds.
func (r UsageRecord) InputSideTokens() int {
	return r.InputTokens + r.CacheReadTokens + r.CacheWriteTokens
}

// TokenCounts is a per-kind token breakdown.
type TokenCounts struct {
	Input      int `json:"input"`
	Output     int `json:"output"`
	CacheRead  int `json:"cache_read"`
	CacheWrite int `json:"cache_write"`
}

func (c TokenCounts) Total() int {
	return c.Input + c.Output + c.CacheRead + c.CacheWrite
}

func (c *TokenCounts) Add(r UsageRecord) {
	c.Input += r.InputTokens
	c.Output += r.OutputTokens
	c.CacheRead += r.CacheReadTokens
	c.CacheWrite += r.CacheWriteTokens
}

type Band string

const (
	BandGreen  Band = "green"
	BandOrange Band = "orange"
	BandRed    Band = "red"
)

type Severity string

const (
	SeverityMild   Severity = "mild"
	SeverityStrong Severity = "strong"
)

type WarningKind string

const (
	WarningTurnCount WarningKind = "turn_count"
	WarningRatio     WarningKind = "input_output_ratio"
	WarningStuck     WarningKind = "no_output"
	WarningRapid     WarningKind = "rapid_consumption"
	WarningIdle      WarningKind = "idle"
)

type Warning struct {
	Kind     WarningKind `json:"kind"`
	Severity Severity    `json:"severity"`
	Message  string      `json:"message"`
}

// SessionHealth is the derived context-pressure view of one session.
type SessionHealth struct {
	SessionID       string        `json:"session_id"`
	Model           string        `json:"model"`
	Band            Band          `json:"band"`
	UsagePercent    float64       `json:"usage_percent"`
	ContextUsage    int           `json:"context_usage"`
	ContextWindow   int           `json:"context_window"`
	Tokens          TokenCounts   `json:"tokens"`
	Turns           int           `json:"turns"`
	Warnings        []Warning     `json:"warnings,omitempty"`
	TokensPerMinute *float64      `json:"tokens_per_minute,omitempty"`
	FirstActivity   time.Time     `json:"first_activity"`
	LastActivity    time.Time     `json:"last_activity"`
	Duration        time.Duration `json:"duration"`
	IdleFor         time.Duration `json:"idle_for"`
	CWD             string        `json:"cwd,omitempty"`
	GitBranch       string        `json:"git_branch,omitempty"`
}

// Profile holds account identity fields. Empty strings mean unknown.
type Profile struct {
	DisplayName  string `json:"display_name,omitempty"`
	Email        string `json:"email,omitempty"`
	Organization string `json:"organization,omitempty"`
	BillingType  string `json:"billing_type,omitempty"`
	Subscription string `json:"subscription,omitempty"`
}

func (p Profile) IsZero() bool {
	return p == Profile{}
}

// RateLimit is a remote utilisation bucket supplied by a network collaborator.
type RateLimit struct {
	Name        string     `json:"name"`
	Window      string     `json:"window"`
	Utilization float64    `json:"utilization"`
	ResetsAt    *time.Time `json:"resets_at,omitempty"`
}

// External is the data network collaborators push into the aggregator.
type External struct {
	Profile    Profile     `json:"profile"`
	RateLimits []RateLimit `json:"rate_limits,omitempty"`
	FetchedAt  time.Time   `json:"fetched_at"`
}

type ModelTokens struct {
	Model            string      `json:"model"`
	Tokens           TokenCounts `json:"tokens"`
	EstimatedCostUSD float64     `json:"estimated_cost_usd"`
}

type TimePoint struct {
	Date  string  `json:"date"`  // "2025-01-15"
	Value float64 `json:"value"` // metric value at that date
}

type LongestSession struct {
	SessionID    string        `json:"session_id"`
	Duration     time.Duration `json:"duration"`
	MessageCount int           `json:"message_count"`
	Timestamp    string        `json:"timestamp"`
}

// DataQuality exposes parse counters so callers can surface them.
type DataQuality struct {
	FilesScanned int `json:"files_scanned"`
	FilesFailed  int `json:"files_failed"`
	Lines        int `json:"lines"`
	DecodeErrors int `json:"decode_errors"`
	Oversized    int `json:"oversized"`
	Truncated    int `json:"truncated"`
}

func (q DataQuality) Corrupt() int {
	return q.DecodeErrors + q.Oversized + q.Truncated
}

type AccountingMode string

const (
	ModeAllTime  AccountingMode = "all-time"
	ModeWindowed AccountingMode = "windowed"
)

// UsageSnapshot is the only value the pipeline hands to its callers.
type UsageSnapshot struct {
	GeneratedAt         time.Time              `json:"generated_at"`
	Mode                AccountingMode         `json:"mode"`
	WindowDays          int                    `json:"window_days,omitempty"`
	Today               TokenCounts            `json:"today"`
	TodayMessages       int                    `json:"today_messages"`
	TodaySessions       int                    `json:"today_sessions"`
	Window              TokenCounts            `json:"window"`
	WindowMessages      int                    `json:"window_messages"`
	Models              []ModelTokens          `json:"models"`
	DailySeries         map[string][]TimePoint `json:"daily_series,omitempty"`
	HourCounts          map[int]int            `json:"hour_counts,omitempty"`
	TotalSessions       int                    `json:"total_sessions"`
	TotalMessages       int                    `json:"total_messages"`
	LongestSession      *LongestSession        `json:"longest_session,omitempty"`
	FirstSessionDate    string                 `json:"first_session_date,omitempty"`
	HistoryAvailable    bool                   `json:"history_available"`
	HistoryComputedDate string                 `json:"history_computed_date,omitempty"`
	CurrentSession      *SessionHealth         `json:"current_session,omitempty"`
	TopSessions         []SessionHealth        `json:"top_sessions,omitempty"`
	Profile             Profile                `json:"profile"`
	RateLimits          []RateLimit            `json:"rate_limits,omitempty"`
	LatestClientVersion string                 `json:"latest_client_version,omitempty"`
	DataQuality         DataQuality            `json:"data_quality"`
}
