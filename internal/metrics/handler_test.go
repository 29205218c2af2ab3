package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// failingCollector は収集時に必ずエラーを返すコレクター。
type failingCollector struct {
	desc *prometheus.Desc
}

func newFailingCollector() *failingCollector {
	return &failingCollector{desc: prometheus.NewDesc("ideaforge_test_broken", "常に失敗する", nil, nil)}
}

func (c *failingCollector) Describe(ch chan<- *prometheus.Desc) { ch <- c.desc }

func (c *failingCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.NewInvalidMetric(c.desc, errors.New("collect failed"))
}

func scrape(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

// TestSetupMetricsRoute_ServesMetrics は/metricsパスでメトリクスが返ることを検証する。
func TestSetupMetricsRoute_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordLogin("GOOGLE", "success")
	c.RecordSweep(3, nil)

	w := scrape(t, SetupMetricsRoute(reg), "/metrics")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	for _, line := range []string{
		`ideaforge_logins_total{outcome="success",provider="GOOGLE"} 1`,
		`ideaforge_sweep_deleted_total 3`,
	} {
		if !strings.Contains(body, line) {
			t.Errorf("response should contain %q:\n%s", line, body)
		}
	}
}

// TestSetupMetricsRoute_OnlyMetricsPath はworkerのメトリクスサーバーが/metrics以外を公開しないことを検証する。
func TestSetupMetricsRoute_OnlyMetricsPath(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)

	for _, path := range []string{"/", "/debug/pprof/", "/health"} {
		if w := scrape(t, SetupMetricsRoute(reg), path); w.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, w.Code)
		}
	}
}

// TestHandler_ContinuesOnCollectorError は一部のコレクターが失敗しても残りのメトリクスを返すことを検証する。
func TestHandler_ContinuesOnCollectorError(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordHTTPStatus(http.StatusTooManyRequests)
	reg.MustRegister(newFailingCollector())

	w := scrape(t, Handler(reg), "/")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `ideaforge_http_status_total{status_code="429"} 1`) {
		t.Errorf("healthy metrics should still be served:\n%s", w.Body.String())
	}
}
