package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndHandler(t *testing.T) {
	m := New("")
	m.ObserveWrite("gold:sjc", "persisted", 1)
	m.ObserveWrite("gold:sjc", "skipped", 0)
	m.ObserveAuthRejection("scope")
	m.ObserveNotification("fcm", "sent")
	m.ObserveHTTP("GET", "/api/v2/gold/sjc", "200", 5*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FeedWrites.WithLabelValues("gold:sjc", "persisted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotsAppended.WithLabelValues("gold:sjc")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthRejections.WithLabelValues("scope")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "vapi_feed_writes_total")
	assert.Contains(t, string(body), "vapi_http_request_duration_seconds")
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveWrite("gold:sjc", "persisted", 1)
	m.ObserveAuthRejection("missing")
	m.ObserveNotification("fcm", "failed")
	m.ObserveHTTP("GET", "/", "200", time.Millisecond)
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}
