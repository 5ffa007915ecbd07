package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/janekbaraniewski/tokenpulse/internal/account"
	"github.com/janekbaraniewski/tokenpulse/internal/core"
	"github.com/janekbaraniewski/tokenpulse/internal/health"
	"github.com/janekbaraniewski/tokenpulse/internal/sessionlog"
	"github.com/janekbaraniewski/tokenpulse/internal/statscache"
)

// PathsConfig overrides input locations. Empty values use the client's
// standard layout under the home directory.
type PathsConfig struct {
	ProjectsDir      string `json:"projects_dir,omitempty"`
	StatsPath        string `json:"stats_path,omitempty"`
	AccountPath      string `json:"account_path,omitempty"`
	ProfileCachePath string `json:"profile_cache_path,omitempty"`
}

type PollingConfig struct {
	BaseIntervalSeconds int `json:"base_interval_seconds"`
	MaxIntervalSeconds  int `json:"max_interval_seconds"`
	UnchangedThreshold  int `json:"unchanged_threshold"`
}

type AggregationConfig struct {
	Window            string `json:"window"`
	ModelRecencyHours int    `json:"model_recency_hours"`
	TopSessions       int    `json:"top_sessions"`
}

type HealthConfig struct {
	GreenThreshold       float64 `json:"green_threshold"`
	RedThreshold         float64 `json:"red_threshold"`
	CompactionFactor     float64 `json:"compaction_factor"`
	MildTurns            int     `json:"mild_turns"`
	StrongTurns          int     `json:"strong_turns"`
	RatioMultiple        float64 `json:"ratio_multiple"`
	StuckTurns           int     `json:"stuck_turns"`
	RapidTokenFloor      int     `json:"rapid_token_floor"`
	RapidWindowMinutes   int     `json:"rapid_window_minutes"`
	IdleThresholdMinutes int     `json:"idle_threshold_minutes"`
	VelocityMinSpanSecs  int     `json:"velocity_min_span_seconds"`
	RecentCutoffHours    int     `json:"recent_cutoff_hours"`
}

type WatchConfig struct {
	DebounceMillis       int `json:"debounce_ms"`
	RetryIntervalSeconds int `json:"retry_interval_seconds"`
	PollIntervalSeconds  int `json:"poll_interval_seconds"`
}

type Config struct {
	Paths           PathsConfig       `json:"paths"`
	Polling         PollingConfig     `json:"polling"`
	Aggregation     AggregationConfig `json:"aggregation"`
	Health          HealthConfig      `json:"health"`
	Watch           WatchConfig       `json:"watch"`
	ProfileOverride core.Profile      `json:"profile_override"`
}

func DefaultConfig() Config {
	h := health.DefaultConfig()
	return Config{
		Polling: PollingConfig{
			BaseIntervalSeconds: 30,
			MaxIntervalSeconds:  300,
			UnchangedThreshold:  3,
		},
		Aggregation: AggregationConfig{
			Window:            string(core.TimeWindowAll),
			ModelRecencyHours: 72,
			TopSessions:       5,
		},
		Health: HealthConfig{
			GreenThreshold:       h.GreenThreshold,
			RedThreshold:         h.RedThreshold,
			CompactionFactor:     h.CompactionFactor,
			MildTurns:            h.MildTurns,
			StrongTurns:          h.StrongTurns,
			RatioMultiple:        h.RatioMultiple,
			StuckTurns:           h.StuckTurns,
			RapidTokenFloor:      h.RapidTokenFloor,
			RapidWindowMinutes:   int(h.RapidWindow / time.Minute),
			IdleThresholdMinutes: int(h.IdleThreshold / time.Minute),
			VelocityMinSpanSecs:  int(h.VelocityMinSpan / time.Second),
			RecentCutoffHours:    int(h.RecentCutoff / time.Hour),
		},
		Watch: WatchConfig{
			DebounceMillis:       2000,
			RetryIntervalSeconds: 60,
			PollIntervalSeconds:  60,
		},
	}
}

func ConfigDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "tokenpulse")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "tokenpulse")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "settings.json")
}

func Load() (Config, error) {
	return LoadFrom(ConfigPath())
}

func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	d := DefaultConfig()

	positive := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	positive(&c.Polling.BaseIntervalSeconds, d.Polling.BaseIntervalSeconds)
	positive(&c.Polling.MaxIntervalSeconds, d.Polling.MaxIntervalSeconds)
	positive(&c.Polling.UnchangedThreshold, d.Polling.UnchangedThreshold)
	positive(&c.Aggregation.ModelRecencyHours, d.Aggregation.ModelRecencyHours)
	positive(&c.Aggregation.TopSessions, d.Aggregation.TopSessions)
	positive(&c.Watch.DebounceMillis, d.Watch.DebounceMillis)
	positive(&c.Watch.RetryIntervalSeconds, d.Watch.RetryIntervalSeconds)
	positive(&c.Watch.PollIntervalSeconds, d.Watch.PollIntervalSeconds)

	if c.Polling.MaxIntervalSeconds < c.Polling.BaseIntervalSeconds {
		c.Polling.MaxIntervalSeconds = c.Polling.BaseIntervalSeconds
	}
	c.Aggregation.Window = string(core.ParseTimeWindow(c.Aggregation.Window))
}

func Save(cfg Config) error {
	return SaveTo(ConfigPath(), cfg)
}

func SaveTo(path string, cfg Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func (c Config) TimeWindow() core.TimeWindow {
	return core.ParseTimeWindow(c.Aggregation.Window)
}

func (c Config) BaseInterval() time.Duration {
	return time.Duration(c.Polling.BaseIntervalSeconds) * time.Second
}

func (c Config) MaxInterval() time.Duration {
	return time.Duration(c.Polling.MaxIntervalSeconds) * time.Second
}

func (c Config) ModelRecency() time.Duration {
	return time.Duration(c.Aggregation.ModelRecencyHours) * time.Hour
}

func (c Config) Debounce() time.Duration {
	return time.Duration(c.Watch.DebounceMillis) * time.Millisecond
}

func (c Config) RetryInterval() time.Duration {
	return time.Duration(c.Watch.RetryIntervalSeconds) * time.Second
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Watch.PollIntervalSeconds) * time.Second
}

// HealthConfig converts the file's units into monitor settings. Zero fields
// fall back to the monitor defaults.
func (c Config) HealthConfig() health.Config {
	h := c.Health
	return health.Config{
		GreenThreshold:   h.GreenThreshold,
		RedThreshold:     h.RedThreshold,
		CompactionFactor: h.CompactionFactor,
		MildTurns:        h.MildTurns,
		StrongTurns:      h.StrongTurns,
		RatioMultiple:    h.RatioMultiple,
		StuckTurns:       h.StuckTurns,
		RapidTokenFloor:  h.RapidTokenFloor,
		RapidWindow:      time.Duration(h.RapidWindowMinutes) * time.Minute,
		IdleThreshold:    time.Duration(h.IdleThresholdMinutes) * time.Minute,
		VelocityMinSpan:  time.Duration(h.VelocityMinSpanSecs) * time.Second,
		RecentCutoff:     time.Duration(h.RecentCutoffHours) * time.Hour,
	}
}

func (c Config) ProjectsDir() string {
	if c.Paths.ProjectsDir != "" {
		return c.Paths.ProjectsDir
	}
	return sessionlog.DefaultRoot()
}

func (c Config) StatsPath() string {
	if c.Paths.StatsPath != "" {
		return c.Paths.StatsPath
	}
	return statscache.DefaultPath()
}

func (c Config) AccountPath() string {
	if c.Paths.AccountPath != "" {
		return c.Paths.AccountPath
	}
	return account.DefaultAccountPath()
}

func (c Config) ProfileCachePath() string {
	if c.Paths.ProfileCachePath != "" {
		return c.Paths.ProfileCachePath
	}
	return filepath.Join(ConfigDir(), "profile.json")
}
