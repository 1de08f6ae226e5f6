package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.IncCycle(OutcomeDone)
	m.AddItems(3, 1)
	m.IncStageError("scraping")
	m.ObserveScrape(time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if diff := cmp.Diff(http.StatusOK, rec.Code); diff != "" {
		t.Errorf("status (-want +got):\n%s", diff)
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.IncCycle(OutcomeDone)
	m.IncCycle(OutcomeDone)
	m.IncCycle(OutcomeFailed)
	m.AddItems(5, 2)
	m.IncStageError("persisting")

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"done cycles", testutil.ToFloat64(m.CyclesTotal.WithLabelValues(OutcomeDone)), 2},
		{"failed cycles", testutil.ToFloat64(m.CyclesTotal.WithLabelValues(OutcomeFailed)), 1},
		{"seen", testutil.ToFloat64(m.ItemsSeenTotal), 5},
		{"new", testutil.ToFloat64(m.NewItemsTotal), 2},
		{"stage errors", testutil.ToFloat64(m.StageErrors.WithLabelValues("persisting")), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.got); diff != "" {
				t.Errorf("value mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.IncCycle(OutcomeNotifyFailed)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `checker_cycles_total{outcome="notify_failed"} 1`) {
		t.Errorf("metrics output missing cycle counter:\n%s", body)
	}
}
