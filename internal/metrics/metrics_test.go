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

func TestCollectorStaticGauges(t *testing.T) {
	c := NewCollector(4, 250*time.Millisecond)

	assert.Equal(t, 4.0, testutil.ToFloat64(c.SpeedMultiplier))
	assert.Equal(t, 0.25, testutil.ToFloat64(c.TickInterval))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector(1, time.Second)
	c.Ticks.Inc()
	c.SinkErrors.WithLabelValues("nats").Inc()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "simulator_ticks_total 1")
	assert.Contains(t, string(body), `simulator_sink_errors_total{sink="nats"} 1`)
}
