package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the realtime pipeline. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	ChunksReceived prometheus.Counter
	ChunkTimeouts  prometheus.Counter
	WindowsQueried prometheus.Counter
	WindowSamples  prometheus.Histogram
	RawMatches     prometheus.Counter
	MatchErrors    prometheus.Counter
	MatchDuration  prometheus.Histogram
	EventsEmitted  *prometheus.CounterVec
	ActiveTracks   prometheus.Gauge
	QueueDepth     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ChunksReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "acousticdna_realtime_chunks_received_total",
			Help: "Audio chunks taken from the ingestion queue",
		}),
		ChunkTimeouts: f.NewCounter(prometheus.CounterOpts{
			Name: "acousticdna_realtime_chunk_wait_timeouts_total",
			Help: "Timed waits that returned without a chunk",
		}),
		WindowsQueried: f.NewCounter(prometheus.CounterOpts{
			Name: "acousticdna_realtime_windows_queried_total",
			Help: "Analysis windows submitted to the match source",
		}),
		WindowSamples: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "acousticdna_realtime_window_samples",
			Help:    "Number of samples per analysis window",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 8), // 1k to 128k
		}),
		RawMatches: f.NewCounter(prometheus.CounterOpts{
			Name: "acousticdna_realtime_raw_matches_total",
			Help: "Raw candidate matches returned by the match source",
		}),
		MatchErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "acousticdna_realtime_match_errors_total",
			Help: "Match source failures that terminated a session",
		}),
		MatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "acousticdna_realtime_match_duration_seconds",
			Help:    "Time spent waiting for the match source per window",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}),
		EventsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "acousticdna_realtime_events_emitted_total",
			Help: "Finalized match events delivered to the sink",
		}, []string{"reason"}),
		ActiveTracks: f.NewGauge(prometheus.GaugeOpts{
			Name: "acousticdna_realtime_active_tracks",
			Help: "Tracks currently matching in the session",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "acousticdna_realtime_queue_depth",
			Help: "Chunks waiting in the ingestion queue",
		}),
	}
}

func (m *Metrics) chunk() {
	if m == nil {
		return
	}
	m.ChunksReceived.Inc()
}

func (m *Metrics) timeout() {
	if m == nil {
		return
	}
	m.ChunkTimeouts.Inc()
}

func (m *Metrics) window(samples int, seconds float64, raw int) {
	if m == nil {
		return
	}
	m.WindowsQueried.Inc()
	m.WindowSamples.Observe(float64(samples))
	m.MatchDuration.Observe(seconds)
	m.RawMatches.Add(float64(raw))
}

func (m *Metrics) matchError() {
	if m == nil {
		return
	}
	m.MatchErrors.Inc()
}

func (m *Metrics) emitted(flushed bool) {
	if m == nil {
		return
	}
	reason := "gap"
	if flushed {
		reason = "flush"
	}
	m.EventsEmitted.WithLabelValues(reason).Inc()
}

func (m *Metrics) tracks(n int) {
	if m == nil {
		return
	}
	m.ActiveTracks.Set(float64(n))
}

func (m *Metrics) queue(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}
