// Package metrics exposes prometheus collectors for the assessment engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "assessor"

// Metrics groups the engine's collectors.
type Metrics struct {
	Selections       *prometheus.CounterVec
	Fallbacks        *prometheus.CounterVec
	SelectDuration   prometheus.Histogram
	Answers          *prometheus.CounterVec
	AnswerTime       prometheus.Histogram
	LevelChanges     *prometheus.CounterVec
	Replacements     prometheus.Counter
	ProfileConflicts prometheus.Counter
	ActiveSessions   prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Selections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "selections_total",
				Help:      "Selection calls by outcome",
			},
			[]string{"outcome"},
		),
		Fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "selection_fallbacks_total",
				Help:      "Widening steps taken to fill a selection",
			},
			[]string{"reason"},
		),
		SelectDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "selection_duration_seconds",
			Help:      "Time spent ranking and picking items",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		Answers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "answers_total",
				Help:      "Submitted answers by correctness and level",
			},
			[]string{"correct", "level"},
		),
		AnswerTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_time_seconds",
			Help:      "Learner time to answer",
			Buckets:   []float64{2, 5, 10, 20, 40, 90},
		}),
		LevelChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "difficulty_changes_total",
				Help:      "Session difficulty transitions by direction",
			},
			[]string{"direction"},
		),
		Replacements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "item_replacements_total",
			Help:      "Items swapped after a difficulty change",
		}),
		ProfileConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_conflicts_total",
			Help:      "Optimistic profile saves that lost a race",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions started and not yet ended",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Selections, m.Fallbacks, m.SelectDuration,
			m.Answers, m.AnswerTime, m.LevelChanges,
			m.Replacements, m.ProfileConflicts, m.ActiveSessions,
		)
	}
	return m
}

// ObserveSelection records one selection call.
func (m *Metrics) ObserveSelection(fallbacks []string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case len(fallbacks) > 0:
		outcome = "fallback"
	}
	m.Selections.WithLabelValues(outcome).Inc()
	for _, r := range fallbacks {
		m.Fallbacks.WithLabelValues(r).Inc()
	}
	m.SelectDuration.Observe(d.Seconds())
}

// ObserveAnswer records one submitted answer.
func (m *Metrics) ObserveAnswer(correct bool, level string, timeSpent time.Duration) {
	if m == nil {
		return
	}
	m.Answers.WithLabelValues(strconv.FormatBool(correct), level).Inc()
	m.AnswerTime.Observe(timeSpent.Seconds())
}

// ObserveLevelChange records a difficulty transition.
func (m *Metrics) ObserveLevelChange(promoted bool) {
	if m == nil {
		return
	}
	dir := "down"
	if promoted {
		dir = "up"
	}
	m.LevelChanges.WithLabelValues(dir).Inc()
}

// ObserveReplacement records a mid-session item swap.
func (m *Metrics) ObserveReplacement() {
	if m == nil {
		return
	}
	m.Replacements.Inc()
}

// ObserveConflict records a lost optimistic save.
func (m *Metrics) ObserveConflict() {
	if m == nil {
		return
	}
	m.ProfileConflicts.Inc()
}

// SessionStarted and SessionEnded track the active session gauge.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Info("serving metrics", zap.String("addr", ln.Addr().String()))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
