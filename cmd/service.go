package cmd

import (
	"os"
	"time"

	"github.com/abhisek/assessor/internal/difficulty"
	"github.com/abhisek/assessor/internal/metrics"
	"github.com/abhisek/assessor/internal/performance"
	"github.com/abhisek/assessor/internal/selection"
	"github.com/abhisek/assessor/internal/session"
)

// newService wires the session service from config. m may be nil.
func (e *env) newService(m *metrics.Metrics) (*session.Service, error) {
	level, err := e.cfg.Difficulty.Level()
	if err != nil {
		return nil, err
	}
	loc, err := e.cfg.Performance.Location()
	if err != nil {
		return nil, err
	}

	now := time.Now
	deps := session.Deps{
		Catalog:    e.store,
		Log:        e.store,
		Profiles:   e.store,
		Sessions:   e.store,
		Selector:   selection.NewEngine(e.cfg.Selection.Config, now),
		Controller: difficulty.NewController(e.cfg.Difficulty.Config, now),
		Aggregator: performance.NewAggregator(performance.Config{
			DailyGoal: e.cfg.Performance.DailyGoal,
			Location:  loc,
		}, now),
		Logger:  e.log,
		Metrics: m,
		Now:     now,
	}
	retry := session.DefaultRetryPolicy()
	retry.MaxAttempts = e.cfg.Session.MaxUpdateRetries + 1
	retry.InitialWait = e.cfg.Session.RetryInitialWait
	retry.MaxWait = e.cfg.Session.RetryMaxWait
	opts := session.Options{
		SessionSize:   e.cfg.Selection.SessionSize,
		InitialLevel:  level,
		AdaptiveAfter: e.cfg.Session.AdaptiveAfter,
		AutoReplace:   e.cfg.Session.AutoReplace,
		Retry:         retry,
	}
	return session.New(deps, opts), nil
}

func resolveUser(user string) string {
	if user != "" {
		return user
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "default"
}
