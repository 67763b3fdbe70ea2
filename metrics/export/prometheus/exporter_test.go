package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	goAdmin "github.com/MrEthical07/goAdmin"
)

type fakeSource struct {
	snapshot goAdmin.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goAdmin.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                     { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	m := goAdmin.NewMetrics(goAdmin.MetricsConfig{Enabled: false})
	exp := New(fakeSource{snapshot: m.Snapshot()})
	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output, got:\n%s", got)
	}
}

func TestRenderCountersAndHistograms(t *testing.T) {
	exp := New(fakeSource{
		snapshot: goAdmin.MetricsSnapshot{
			Counters: map[goAdmin.MetricID]uint64{
				goAdmin.MetricAccountDeleted: 4,
				goAdmin.MetricOrphanDetected: 1,
			},
			Histograms: map[goAdmin.MetricID][]uint64{
				goAdmin.MetricDeleteLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"# TYPE goadmin_account_deleted_total counter\ngoadmin_account_deleted_total 4\n",
		"goadmin_orphan_detected_total 1\n",
		"goadmin_reauth_invalid_total 0\n",
		`goadmin_account_delete_seconds_bucket{le="0.005"} 1`,
		`goadmin_account_delete_seconds_bucket{le="+Inf"} 36`,
		"goadmin_account_delete_seconds_count 36\n",
		"goadmin_audit_dropped_total 2\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "goadmin_directory_load_seconds") {
		t.Fatalf("histogram without snapshot data should be omitted, got:\n%s", out)
	}
}

func TestRenderFromLiveMetrics(t *testing.T) {
	m := goAdmin.NewMetrics(goAdmin.MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Inc(goAdmin.MetricDirectoryLoadSuccess)
	m.Observe(goAdmin.MetricLoadLatency, 30*time.Millisecond)

	out := New(fakeSource{snapshot: m.Snapshot()}).Render()
	if !strings.Contains(out, "goadmin_directory_load_success_total 1") {
		t.Fatalf("missing load counter:\n%s", out)
	}
	if !strings.Contains(out, `goadmin_directory_load_seconds_bucket{le="0.025"} 0`) ||
		!strings.Contains(out, `goadmin_directory_load_seconds_bucket{le="0.05"} 1`) {
		t.Fatalf("unexpected load buckets:\n%s", out)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := New(fakeSource{
		snapshot: goAdmin.MetricsSnapshot{
			Counters:   map[goAdmin.MetricID]uint64{goAdmin.MetricSessionLost: 1},
			Histograms: map[goAdmin.MetricID][]uint64{},
		},
	})

	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Fatalf("expected text/plain content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "goadmin_session_lost_total 1") {
		t.Fatalf("unexpected body:\n%s", rec.Body.String())
	}
}

func TestEscapeHelp(t *testing.T) {
	if got := escapeHelp("a\\b\nc"); got != `a\\b\nc` {
		t.Fatalf("unexpected escape result %q", got)
	}
}
