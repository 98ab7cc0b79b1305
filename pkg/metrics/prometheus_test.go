package metrics

import (
	"testing"
	"time"

	"Aegis/pkg/queue"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCounts(t *testing.T) {
	r := NewWithRegistry(prometheus.NewRegistry())

	r.RecordIngest("accepted")
	r.RecordIngest("accepted")
	r.RecordIngest("not_found")
	r.ObserveJob("orderflow.signal", "retry", 10*time.Millisecond)
	r.ObserveDepth(queue.Stats{Ready: 3, Failed: 1})
	r.RealtimeConnected(1)
	r.RealtimeConnected(1)
	r.RealtimeConnected(-1)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.ingestTotal.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ingestTotal.WithLabelValues("not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobsTotal.WithLabelValues("orderflow.signal", "retry")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.queueDepth.WithLabelValues("ready")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.queueDepth.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.wsConnections))
}
