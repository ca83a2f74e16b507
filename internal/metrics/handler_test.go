package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func scrape(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	body, _ := io.ReadAll(w.Result().Body)
	return w.Result().StatusCode, string(body)
}

func TestHandler_ExposesDomainSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordOracleCall("task", "fallback_timeout", 2*time.Second)
	c.RecordPointsAwarded(120)
	c.RecordReminderSent()

	status, body := scrape(t, Handler(reg), "/metrics")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}

	for _, name := range []string{
		"flowstate_oracle_calls_total",
		"flowstate_points_awarded_total",
		"flowstate_reminders_sent_total",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("scrape should contain %s", name)
		}
	}
	if !strings.Contains(body, `outcome="fallback_timeout"`) {
		t.Error("oracle outcome label missing from scrape")
	}
}

func TestSetupMetricsRoute_OnlyServesMetricsPath(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg).RecordReminderFailure()

	h := SetupMetricsRoute(reg)

	status, body := scrape(t, h, "/metrics")
	if status != http.StatusOK {
		t.Errorf("/metrics status = %d, want %d", status, http.StatusOK)
	}
	if !strings.Contains(body, "flowstate_reminder_failures_total") {
		t.Error("worker scrape should contain flowstate_reminder_failures_total")
	}

	if status, _ := scrape(t, h, "/api/logs"); status != http.StatusNotFound {
		t.Errorf("/api/logs status = %d, want %d", status, http.StatusNotFound)
	}
}
