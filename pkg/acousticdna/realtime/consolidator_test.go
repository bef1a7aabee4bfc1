package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hit(id string, pos time.Duration) RawMatch {
	return RawMatch{TrackID: id, Title: "t-" + id, Artist: "a-" + id, Votes: 8, Confidence: 40, StreamPosition: pos}
}

func TestConsolidatorEmitsAfterGap(t *testing.T) {
	c := NewConsolidator()

	for i := 1; i <= 4; i++ {
		events := c.Consume([]RawMatch{hit("A", time.Duration(i)*time.Second)}, 3.0, 1.0)
		assert.Empty(t, events, "window %d", i)
	}

	events := c.Consume(nil, 3.0, 1.0)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "A", ev.TrackID)
	assert.Equal(t, "t-A", ev.Title)
	assert.Equal(t, "a-A", ev.Artist)
	assert.InDelta(t, 4.0, ev.MatchedSeconds, 1e-9)
	assert.Equal(t, 4, ev.Windows)
	assert.Equal(t, time.Duration(0), ev.StreamStart)
	assert.Equal(t, 4*time.Second, ev.StreamEnd)
	assert.False(t, ev.Flushed)
	assert.Zero(t, c.Len())
}

func TestConsolidatorDiscardsShortRuns(t *testing.T) {
	c := NewConsolidator()

	assert.Empty(t, c.Consume([]RawMatch{hit("B", time.Second)}, 3.0, 0.5))
	for range 10 {
		assert.Empty(t, c.Consume(nil, 3.0, 0.5))
	}
	assert.Zero(t, c.Len())
	assert.Empty(t, c.Flush(3.0))
}

func TestConsolidatorThresholdIsInclusive(t *testing.T) {
	c := NewConsolidator()
	for range 3 {
		c.Consume([]RawMatch{hit("A", 0)}, 3.0, 1.0)
	}
	assert.Len(t, c.Consume(nil, 3.0, 1.0), 1)
}

func TestConsolidatorNoDoubleEmission(t *testing.T) {
	c := NewConsolidator()
	for range 4 {
		c.Consume([]RawMatch{hit("A", 0)}, 3.0, 1.0)
	}
	require.Len(t, c.Consume(nil, 3.0, 1.0), 1)
	assert.Empty(t, c.Consume(nil, 3.0, 1.0))

	// A later return of the same track is a new run.
	c.Consume([]RawMatch{hit("A", 10*time.Second)}, 3.0, 1.0)
	active := c.Active()
	require.Len(t, active, 1)
	assert.InDelta(t, 1.0, active[0].MatchedSeconds, 1e-9)
	assert.Equal(t, PhaseActive, active[0].Phase)
	assert.Equal(t, 9*time.Second, active[0].FirstSeen)
}

func TestConsolidatorEventOrder(t *testing.T) {
	c := NewConsolidator()
	for range 4 {
		c.Consume([]RawMatch{hit("B", 0), hit("A", 0)}, 3.0, 1.0)
	}
	c.Consume([]RawMatch{hit("C", 0), hit("B", 0), hit("A", 0)}, 3.0, 1.0)

	events := c.Consume([]RawMatch{hit("C", 0)}, 3.0, 1.0)
	require.Len(t, events, 2)
	assert.Equal(t, "B", events[0].TrackID)
	assert.Equal(t, "A", events[1].TrackID)
	assert.Equal(t, 1, c.Len())
}

func TestConsolidatorKeepsMaxima(t *testing.T) {
	c := NewConsolidator()
	for i, conf := range []float64{30, 90, 60} {
		m := hit("A", time.Duration(i+1)*time.Second)
		m.Confidence = conf
		m.Votes = 10 * (i + 1) % 25
		m.TrackOffset = time.Duration(i) * time.Minute
		c.Consume([]RawMatch{m}, 1.0, 1.0)
	}

	events := c.Consume(nil, 1.0, 1.0)
	require.Len(t, events, 1)
	assert.Equal(t, 90.0, events[0].Confidence)
	assert.Equal(t, 20, events[0].Votes)
	// The offset of the first window anchors the run.
	assert.Equal(t, time.Duration(0), events[0].TrackOffset)
	assert.Equal(t, 3*time.Second, events[0].StreamEnd)
}

func TestConsolidatorDuplicateInBatch(t *testing.T) {
	c := NewConsolidator()

	first := hit("A", time.Second)
	better := hit("A", time.Second)
	better.Confidence = 99
	c.Consume([]RawMatch{first, better}, 3.0, 1.0)
	c.Consume([]RawMatch{hit("A", 2*time.Second), hit("A", 2*time.Second)}, 3.0, 1.0)

	active := c.Active()
	require.Len(t, active, 1)
	assert.InDelta(t, 2.0, active[0].MatchedSeconds, 1e-9)
	assert.Equal(t, 2, active[0].Windows)
	assert.Equal(t, 99.0, active[0].Confidence)
}

func TestConsolidatorSkipsEmptyTrackID(t *testing.T) {
	c := NewConsolidator()
	c.Consume([]RawMatch{{Votes: 50}}, 3.0, 1.0)
	assert.Zero(t, c.Len())
}

func TestConsolidatorFlush(t *testing.T) {
	c := NewConsolidator()
	for range 4 {
		c.Consume([]RawMatch{hit("A", 0)}, 3.0, 1.0)
	}
	c.Consume([]RawMatch{hit("A", 0), hit("B", 0)}, 3.0, 1.0)

	events := c.Flush(3.0)
	require.Len(t, events, 1)
	assert.Equal(t, "A", events[0].TrackID)
	assert.True(t, events[0].Flushed)
	assert.InDelta(t, 5.0, events[0].MatchedSeconds, 1e-9)
	assert.Zero(t, c.Len())
	assert.Empty(t, c.Flush(3.0))
}

func TestConsolidatorActiveIsCopy(t *testing.T) {
	c := NewConsolidator()
	c.Consume([]RawMatch{hit("A", 0)}, 3.0, 1.0)

	active := c.Active()
	active[0].MatchedSeconds = 100
	assert.InDelta(t, 1.0, c.Active()[0].MatchedSeconds, 1e-9)
}

func TestTrackPhaseString(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "active", PhaseActive.String())
	assert.Equal(t, "finalized", PhaseFinalized.String())
	assert.Equal(t, "discarded", PhaseDiscarded.String())
	assert.Equal(t, "unknown", TrackPhase(42).String())
}
