package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/himanishpuri/acousticdna-live/pkg/logger"
)

var (
	// ErrMatchSource wraps a failure of the match stage; it ends the session.
	ErrMatchSource = errors.New("match source failed")
	// ErrAlreadyStarted is returned when Run is called twice on one Query.
	ErrAlreadyStarted = errors.New("realtime query already started")
)

// State of a query session.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stats are running counters of one session.
type Stats struct {
	Chunks     int64
	Windows    int64
	RawMatches int64
	Events     int64
	Timeouts   int64
}

// Query is one realtime recognition session: it pulls chunks, windows them,
// matches every window and reports consolidated events to the sink.
type Query struct {
	id      string
	cfg     Config
	source  ChunkSource
	matcher MatchSource
	sink    EventSink
	log     Logger
	metrics *Metrics

	started atomic.Bool
	state   atomic.Int32

	chunks, windows, raw, events, timeouts atomic.Int64
}

type QueryOption func(*Query)

func WithLogger(log Logger) QueryOption {
	return func(q *Query) {
		q.log = log
	}
}

func WithMetrics(m *Metrics) QueryOption {
	return func(q *Query) {
		q.metrics = m
	}
}

func WithSessionID(id string) QueryOption {
	return func(q *Query) {
		q.id = id
	}
}

// NewQuery validates the collaborators and configuration up front so that
// Run never starts with a broken session.
func NewQuery(source ChunkSource, matcher MatchSource, sink EventSink, cfg Config, opts ...QueryOption) (*Query, error) {
	if source == nil {
		return nil, errors.New("chunk source is nil")
	}
	if matcher == nil {
		return nil, errors.New("match source is nil")
	}
	if sink == nil {
		return nil, errors.New("event sink is nil")
	}
	if !cfg.validated {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	q := &Query{
		cfg:     cfg,
		source:  source,
		matcher: matcher,
		sink:    sink,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.log == nil {
		q.log = logger.GetLogger()
	}
	if q.id == "" {
		q.id = uuid.NewString()
	}
	return q, nil
}

func (q *Query) ID() string {
	return q.id
}

func (q *Query) Config() Config {
	return q.cfg
}

func (q *Query) State() State {
	return State(q.state.Load())
}

func (q *Query) Stats() Stats {
	return Stats{
		Chunks:     q.chunks.Load(),
		Windows:    q.windows.Load(),
		RawMatches: q.raw.Load(),
		Events:     q.events.Load(),
		Timeouts:   q.timeouts.Load(),
	}
}

// Run executes the session until the source is exhausted, ctx is cancelled
// or the match source fails. Only the last case returns an error.
func (q *Query) Run(ctx context.Context) error {
	if !q.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	q.state.Store(int32(StateRunning))
	defer q.state.Store(int32(StateStopped))

	agg := NewWindowAggregator(q.cfg.Stride, q.cfg.WindowSize)
	cons := NewConsolidator()

	q.log.Infof("[%s] realtime query started (stride=%d window=%d votes=%d threshold=%.2fs wait=%v)",
		q.id, q.cfg.Stride, q.cfg.WindowSize, q.cfg.ThresholdVotes, q.cfg.SecondsThreshold, q.cfg.ChunkWait)

	for {
		if ctx.Err() != nil {
			return q.stop(cons, "cancelled")
		}
		if q.source.IsClosed() {
			return q.stop(cons, "end of input")
		}

		chunk, ok := q.source.TryTake(ctx, q.cfg.ChunkWait)
		if !ok {
			if ctx.Err() == nil && !q.source.IsClosed() {
				q.timeouts.Add(1)
				q.metrics.timeout()
			}
			continue
		}
		// A chunk taken after cancellation is dropped unmatched.
		if ctx.Err() != nil {
			return q.stop(cons, "cancelled")
		}
		q.chunks.Add(1)
		q.metrics.chunk()
		if l, ok := q.source.(interface{ Len() int }); ok {
			q.metrics.queue(l.Len())
		}

		window := agg.Aggregate(chunk)

		began := time.Now()
		raw, err := q.matcher.Query(ctx, window, q.cfg.Match())
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return q.stop(cons, "cancelled")
			}
			q.state.Store(int32(StateStopping))
			cons.Reset()
			q.metrics.matchError()
			q.log.Errorf("[%s] match source failed on window %d: %v", q.id, window.Index, err)
			return fmt.Errorf("%w: window %d: %w", ErrMatchSource, window.Index, err)
		}
		q.windows.Add(1)
		q.raw.Add(int64(len(raw)))
		q.metrics.window(len(window.Samples), time.Since(began).Seconds(), len(raw))

		events := cons.Consume(raw, q.cfg.SecondsThreshold, chunk.Duration.Seconds())
		q.metrics.tracks(cons.Len())
		q.log.Debugf("[%s] window %d: %d samples, %d raw matches, %d live tracks",
			q.id, window.Index, len(window.Samples), len(raw), cons.Len())

		q.deliver(events)
	}
}

// stop ends the loop without touching the match source again.
func (q *Query) stop(cons *Consolidator, reason string) error {
	q.state.Store(int32(StateStopping))

	if q.cfg.FlushOnStop {
		q.deliver(cons.Flush(q.cfg.SecondsThreshold))
	} else {
		cons.Reset()
	}
	q.metrics.tracks(0)

	s := q.Stats()
	q.log.Infof("[%s] realtime query stopped (%s): %d chunks, %d windows, %d raw matches, %d events",
		q.id, reason, s.Chunks, s.Windows, s.RawMatches, s.Events)
	return nil
}

func (q *Query) deliver(events []FinalizedMatchEvent) {
	for _, ev := range events {
		q.events.Add(1)
		q.metrics.emitted(ev.Flushed)
		q.log.Infof("[%s] recognized %q (%s) for %.2fs at %v-%v, confidence %.1f%%",
			q.id, ev.Title, ev.TrackID, ev.MatchedSeconds, ev.StreamStart, ev.StreamEnd, ev.Confidence)
		q.sink(ev)
	}
}
