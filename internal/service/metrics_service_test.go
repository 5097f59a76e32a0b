package service

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsSnapshotAggregates(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/health", 200, time.Millisecond)
	m.ObservePush(10, time.Millisecond, true)
	m.ObservePush(10, time.Millisecond, false)
	m.ObserveBroadcast(3, 1)
	m.RecordLink(LinkOutcomeResolved)
	m.RecordLink(LinkOutcomeTimeout)
	m.RecordLink(LinkOutcomeStarted)
	m.SetWatchers(2)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)

	snap := m.Snapshot()
	assert.EqualValues(t, 1, snap.RequestsTotal)
	assert.EqualValues(t, 2, snap.PushesTotal)
	assert.EqualValues(t, 1, snap.PushesFailed)
	assert.EqualValues(t, 3, snap.DeliveriesTotal)
	assert.EqualValues(t, 1, snap.LinksResolved)
	assert.EqualValues(t, 1, snap.LinkTimeouts)
	assert.Equal(t, 2, snap.Watchers)
	assert.InDelta(t, 0.5, snap.StaffCacheHitRate, 0.0001)
}

func TestMetricsHandlerExposesCollectors(t *testing.T) {
	m := NewMetricsService()
	m.RecordLink(LinkOutcomeStarted)
	m.SetWatchers(1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `asterism_link_total{outcome="started"} 1`))
	assert.True(t, strings.Contains(body, "asterism_watchers 1"))
}

func TestMetricsNilReceiver(t *testing.T) {
	var m *MetricsService
	assert.NotPanics(t, func() {
		m.ObservePush(1, time.Millisecond, true)
		m.RecordLink(LinkOutcomeStarted)
		m.SetWatchers(1)
		_ = m.Snapshot()
	})
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
