package main

import (
	"time"

	"github.com/janekbaraniewski/tokenpulse/internal/account"
	"github.com/janekbaraniewski/tokenpulse/internal/aggregate"
	"github.com/janekbaraniewski/tokenpulse/internal/config"
	"github.com/janekbaraniewski/tokenpulse/internal/sessionlog"
	"github.com/janekbaraniewski/tokenpulse/internal/statscache"
	"github.com/janekbaraniewski/tokenpulse/internal/watch"
)

type pipeline struct {
	sessions   *sessionlog.Reader
	history    *statscache.Reader
	aggregator *aggregate.Aggregator
}

func newPipeline(cfg config.Config) *pipeline {
	sessions := sessionlog.New(cfg.ProjectsDir())
	history := statscache.New(cfg.StatsPath())
	agg := aggregate.New(sessions, history, aggregate.Options{
		WindowDays:      cfg.TimeWindow().Days(),
		ModelRecency:    cfg.ModelRecency(),
		TopSessions:     cfg.Aggregation.TopSessions,
		Health:          cfg.HealthConfig(),
		Location:        time.Local,
		ProfileOverride: cfg.ProfileOverride,
		AccountPath:     cfg.AccountPath(),
		ProfileStore:    account.FileStore{Path: cfg.ProfileCachePath()},
	})
	return &pipeline{sessions: sessions, history: history, aggregator: agg}
}

func (p *pipeline) notifier(cfg config.Config) *watch.Notifier {
	return watch.New(watch.Options{
		FilePath:      p.history.Path(),
		TreeRoot:      p.sessions.Root(),
		Debounce:      cfg.Debounce(),
		RetryInterval: cfg.RetryInterval(),
		PollInterval:  cfg.PollInterval(),
		Invalidators:  []watch.Invalidator{p.sessions, p.history},
	})
}
