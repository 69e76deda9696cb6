// Package telemetry exposes engine activity as Prometheus metrics and
// serves them (plus health/readiness) over HTTP, adapting the
// teacher's hand-rolled counters-and-ServeMux telemetry server
// (internal/telemetry/metrics.go) into registered
// prometheus/client_golang collectors behind a gorilla/mux router.
package telemetry

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/guyghost/backtestkit/internal/eventbus"
	"github.com/guyghost/backtestkit/internal/liveloop"
	"github.com/guyghost/backtestkit/internal/strategyclient"
	"github.com/guyghost/backtestkit/internal/walker"
)

var (
	signalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backtestkit_signals_total",
		Help: "Total signal lifecycle transitions by strategy and kind",
	}, []string{"strategy", "kind"})

	closedTradesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backtestkit_closed_trades_total",
		Help: "Total closed trades by strategy and close reason",
	}, []string{"strategy", "reason"})

	pnlPercentage = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "backtestkit_last_pnl_percentage",
		Help: "Most recent closed trade's PnL percentage by strategy and symbol",
	}, []string{"strategy", "symbol"})

	tickDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backtestkit_tick_duration_seconds",
		Help:    "Live tick duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"symbol"})

	riskRejectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "backtestkit_risk_rejections_total",
		Help: "Total candidates rejected by a risk predicate",
	})

	errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backtestkit_errors_total",
		Help: "Total errors published on the event bus by source",
	}, []string{"source"})

	walkerBestMetric = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "backtestkit_walker_best_metric",
		Help: "Running best metric value reported by a walker",
	}, []string{"walker", "strategy"})
)

func init() {
	prometheus.MustRegister(signalsTotal, closedTradesTotal, pnlPercentage, tickDuration, riskRejectionsTotal, errorsTotal, walkerBestMetric)
}

// Subscribe wires the collectors above to bus's events, adapting the
// teacher's RecordX free functions (which mutated package-level maps
// directly) into event-bus-driven Prometheus updates.
func Subscribe(bus *eventbus.Bus) eventbus.Unsubscribe {
	unsubs := []eventbus.Unsubscribe{
		bus.Subscribe(eventbus.SubjectSignal, func(ev eventbus.Event) {
			result, ok := ev.Payload.(strategyclient.Result)
			if !ok {
				return
			}
			signalsTotal.WithLabelValues(result.Row.StrategyName, string(result.Kind)).Inc()
			if result.Kind == strategyclient.KindClosed {
				closedTradesTotal.WithLabelValues(result.Row.StrategyName, string(result.Row.CloseReason)).Inc()
				pnl, _ := result.Row.PnlPercentage.Float64()
				pnlPercentage.WithLabelValues(result.Row.StrategyName, result.Row.Symbol).Set(pnl)
			}
		}),
		bus.Subscribe(eventbus.SubjectPerformance, func(ev eventbus.Event) {
			sample, ok := ev.Payload.(liveloop.PerformanceSample)
			if !ok {
				return
			}
			tickDuration.WithLabelValues(sample.Symbol).Observe(sample.Duration.Seconds())
		}),
		bus.Subscribe(eventbus.SubjectRisk, func(ev eventbus.Event) {
			riskRejectionsTotal.Inc()
		}),
		bus.Subscribe(eventbus.SubjectError, func(ev eventbus.Event) {
			errorsTotal.WithLabelValues("engine").Inc()
		}),
		bus.Subscribe(eventbus.SubjectProgressWalker, func(ev eventbus.Event) {
			progress, ok := ev.Payload.(walker.Progress)
			if !ok {
				return
			}
			value, _ := progress.BestMetric.Float64()
			walkerBestMetric.WithLabelValues(progress.WalkerName, progress.BestStrategy).Set(value)
		}),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

// Server exposes /metrics (Prometheus exposition format), /healthz and
// /readyz behind a gorilla/mux router.
type Server struct {
	srv        *http.Server
	readyState atomic.Bool
}

// NewServer constructs a Server bound to addr; a blank addr disables
// it (NewServer returns nil, and every method on a nil *Server is a
// no-op), matching the teacher's own optional-telemetry shape.
func NewServer(addr string) *Server {
	if addr == "" {
		return nil
	}

	server := &Server{}
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	router.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if server.readyState.Load() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
	}).Methods(http.MethodGet)

	server.srv = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return server
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	if s == nil || s.srv == nil {
		return nil
	}
	go func() {
		_ = s.srv.ListenAndServe()
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// SetReady updates the readiness state exposed on /readyz.
func (s *Server) SetReady(ready bool) {
	if s == nil {
		return
	}
	s.readyState.Store(ready)
}
