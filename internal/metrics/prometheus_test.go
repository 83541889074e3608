package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Alias1177/fxsignal/internal/model"
)

func TestRecorder(t *testing.T) {
	r := New()

	r.DetectorFailure("liquidity", model.H1, errors.New("boom"))
	r.DetectorFailure("liquidity", model.H1, errors.New("boom"))
	r.SymbolFailure("EURUSD")
	r.SetRisk(1.5, 3, 2)
	r.ObserveScan(2 * time.Second)

	listener := r.SignalListener()
	listener("", model.CandidateSignal{Status: model.StatusPending})
	listener(model.StatusPending, model.CandidateSignal{Status: model.StatusExecuted})
	listener("", model.CandidateSignal{Status: model.StatusPending})

	if got := testutil.ToFloat64(r.detectorFailures.WithLabelValues("liquidity", "H1")); got != 2 {
		t.Errorf("detector failures = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.signals.WithLabelValues("pending")); got != 2 {
		t.Errorf("pending signals = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.signals.WithLabelValues("executed")); got != 1 {
		t.Errorf("executed signals = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.dailyRiskUsed); got != 1.5 {
		t.Errorf("daily risk = %v, want 1.5", got)
	}
	if got := testutil.CollectAndCount(r.scanDuration); got != 1 {
		t.Errorf("scan histogram series = %d, want 1", got)
	}
}

func TestRecorderHandler(t *testing.T) {
	r := New()
	r.SetRisk(0.5, 0.5, 1)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{"fxsignal_risk_weekly_used_percent 0.5", "fxsignal_open_positions 1", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
