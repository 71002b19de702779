package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordPlanAndBranches(t *testing.T) {
	_, m := NewRegistry()

	m.RecordPlan("partial", "full", 2*time.Second)
	m.RecordBranch("trend", "placeholder")
	m.RecordBranch("trend", "placeholder")
	m.RecordBranch("route", "real")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PlanRequests.WithLabelValues("partial")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BranchResults.WithLabelValues("trend", "placeholder")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BranchResults.WithLabelValues("route", "real")))
}

func TestRecordCache(t *testing.T) {
	_, m := NewRegistry()

	m.RecordCache("plan", true, false)
	m.RecordCache("plan", false, true)
	m.RecordCache("plan", false, false)
	m.RecordCache("plan", false, false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits.WithLabelValues("plan")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheShared.WithLabelValues("plan")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheMisses.WithLabelValues("plan")))
}

func TestSyncMetrics(t *testing.T) {
	_, m := NewRegistry()

	m.SetPending(3)
	m.RecordEviction("max_count", 1)
	m.RecordEviction("max_age", 0)
	m.RecordReconcile("ok")

	assert.Equal(t, 3.0, testutil.ToFloat64(m.SyncPending))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SyncEvictions.WithLabelValues("max_count")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SyncReconciles.WithLabelValues("ok")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordPlan("ok", "full", time.Second)
		m.RecordTask("completed")
		m.RecordError("TASK-001", "task")
		m.SetPending(1)
	})
}

func TestHandlerFor(t *testing.T) {
	reg, m := NewRegistry()
	m.RecordTask("completed")

	srv := httptest.NewServer(HandlerFor(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `wayfinder_tasks_total{status="completed"} 1`)
}
