package health

import "time"

// Config holds the band thresholds and warning heuristics.
type Config struct {
	GreenThreshold   float64
	RedThreshold     float64
	CompactionFactor float64
	MildTurns        int
	StrongTurns      int
	RatioMultiple    float64
	StuckTurns       int
	RapidTokenFloor  int
	RapidWindow      time.Duration
	IdleThreshold    time.Duration
	VelocityMinSpan  time.Duration
	RecentCutoff     time.Duration
}

func DefaultConfig() Config {
	return Config{
		GreenThreshold:   60,
		RedThreshold:     80,
		CompactionFactor: 0.8,
		MildTurns:        15,
		StrongTurns:      25,
		RatioMultiple:    20,
		StuckTurns:       5,
		RapidTokenFloor:  100_000,
		RapidWindow:      10 * time.Minute,
		IdleThreshold:    30 * time.Minute,
		VelocityMinSpan:  time.Minute,
		RecentCutoff:     24 * time.Hour,
	}
}

// withDefaults replaces non-positive fields with their defaults.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.GreenThreshold <= 0 {
		c.GreenThreshold = d.GreenThreshold
	}
	if c.RedThreshold <= 0 {
		c.RedThreshold = d.RedThreshold
	}
	if c.CompactionFactor <= 0 || c.CompactionFactor > 1 {
		c.CompactionFactor = d.CompactionFactor
	}
	if c.MildTurns <= 0 {
		c.MildTurns = d.MildTurns
	}
	if c.StrongTurns <= 0 {
		c.StrongTurns = d.StrongTurns
	}
	if c.RatioMultiple <= 0 {
		c.RatioMultiple = d.RatioMultiple
	}
	if c.StuckTurns <= 0 {
		c.StuckTurns = d.StuckTurns
	}
	if c.RapidTokenFloor <= 0 {
		c.RapidTokenFloor = d.RapidTokenFloor
	}
	if c.RapidWindow <= 0 {
		c.RapidWindow = d.RapidWindow
	}
	if c.IdleThreshold <= 0 {
		c.IdleThreshold = d.IdleThreshold
	}
	if c.VelocityMinSpan <= 0 {
		c.VelocityMinSpan = d.VelocityMinSpan
	}
	if c.RecentCutoff <= 0 {
		c.RecentCutoff = d.RecentCutoff
	}
	return c
}
