package realtime

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordSession(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	script := map[int][]string{
		0: {"A", "B"}, 1: {"A"}, 2: {"A"}, 3: {"A"}, // A ends on window 4
		5: {"C"}, 6: {"C"}, 7: {"C"}, // C is still live at the end
	}
	q := newTestQuery(t, completedQueue(t, seconds(8)), &scriptedSource{script: script},
		func(FinalizedMatchEvent) {}, testConfig(t), WithMetrics(m))
	require.NoError(t, q.Run(context.Background()))

	assert.Equal(t, 8.0, testutil.ToFloat64(m.ChunksReceived))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.WindowsQueried))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.RawMatches))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsEmitted.WithLabelValues("gap")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsEmitted.WithLabelValues("flush")))
	assert.Zero(t, testutil.ToFloat64(m.ActiveTracks))
	assert.Zero(t, testutil.ToFloat64(m.QueueDepth))
	assert.Zero(t, testutil.ToFloat64(m.MatchErrors))

	count, err := testutil.GatherAndCount(reg, "acousticdna_realtime_window_samples")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.chunk()
		m.timeout()
		m.window(10, 0.1, 2)
		m.matchError()
		m.emitted(true)
		m.tracks(3)
		m.queue(1)
	})
}
