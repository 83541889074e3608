package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Alias1177/fxsignal/internal/model"
	"github.com/Alias1177/fxsignal/internal/trading/signal"
)

// Recorder exposes scanner, detector, signal and risk metrics on its own registry
type Recorder struct {
	registry         *prometheus.Registry
	scanDuration     prometheus.Histogram
	symbolDuration   *prometheus.HistogramVec
	detectorFailures *prometheus.CounterVec
	symbolFailures   *prometheus.CounterVec
	signals          *prometheus.CounterVec
	dailyRiskUsed    prometheus.Gauge
	weeklyRiskUsed   prometheus.Gauge
	openPositions    prometheus.Gauge
}

// New creates a recorder with Go runtime and process collectors registered
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		scanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fxsignal_scan_duration_seconds",
			Help:    "Duration of a full scan cycle in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		symbolDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fxsignal_symbol_duration_seconds",
			Help:    "Duration of one symbol pipeline in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"symbol"}),
		detectorFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fxsignal_detector_failures_total",
			Help: "Detector runs that degraded to a neutral result",
		}, []string{"detector", "timeframe"}),
		symbolFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fxsignal_symbol_failures_total",
			Help: "Symbols skipped during a scan",
		}, []string{"symbol"}),
		signals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fxsignal_signals_total",
			Help: "Candidate signals by status",
		}, []string{"status"}),
		dailyRiskUsed: f.NewGauge(prometheus.GaugeOpts{
			Name: "fxsignal_risk_daily_used_percent",
			Help: "Risk percent committed today",
		}),
		weeklyRiskUsed: f.NewGauge(prometheus.GaugeOpts{
			Name: "fxsignal_risk_weekly_used_percent",
			Help: "Risk percent committed this ISO week",
		}),
		openPositions: f.NewGauge(prometheus.GaugeOpts{
			Name: "fxsignal_open_positions",
			Help: "Open positions held by the broker",
		}),
	}
}

// ObserveScan records the duration of a scan cycle
func (r *Recorder) ObserveScan(d time.Duration) {
	r.scanDuration.Observe(d.Seconds())
}

// ObserveSymbol records the duration of one symbol pipeline
func (r *Recorder) ObserveSymbol(symbol string, d time.Duration) {
	r.symbolDuration.WithLabelValues(symbol).Observe(d.Seconds())
}

// DetectorFailure counts a degraded detector run
func (r *Recorder) DetectorFailure(name string, tf model.Timeframe, _ error) {
	r.detectorFailures.WithLabelValues(name, string(tf)).Inc()
}

// SymbolFailure counts a skipped symbol
func (r *Recorder) SymbolFailure(symbol string) {
	r.symbolFailures.WithLabelValues(symbol).Inc()
}

// SetRisk publishes budget usage and the open position count
func (r *Recorder) SetRisk(daily, weekly float64, openPositions int) {
	r.dailyRiskUsed.Set(daily)
	r.weeklyRiskUsed.Set(weekly)
	r.openPositions.Set(float64(openPositions))
}

// SignalListener counts every created signal and status change
func (r *Recorder) SignalListener() signal.Listener {
	return func(_ model.SignalStatus, s model.CandidateSignal) {
		r.signals.WithLabelValues(string(s.Status)).Inc()
	}
}

// Handler serves the registry in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
