package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(start, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(start + i)
	}
	return out
}

func TestAggregatorWindowSizes(t *testing.T) {
	agg := NewWindowAggregator(2, 6)

	var sizes []int
	for _, n := range []int{4, 4, 4} {
		w := agg.Aggregate(NewAudioChunk(make([]float64, n), 1))
		sizes = append(sizes, len(w.Samples))
	}
	assert.Equal(t, []int{4, 6, 6}, sizes)
}

func TestAggregatorOverlapAndContinuity(t *testing.T) {
	const stride = 3
	agg := NewWindowAggregator(stride, 8)

	sizes := []int{5, 1, 2, 7, 3, 6}
	var (
		stream []float64
		prev   *AnalysisWindow
		pos    int
	)
	for i, n := range sizes {
		w := agg.Aggregate(NewAudioChunk(ramp(pos, n), 10))
		pos += n

		assert.Equal(t, i, w.Index)
		require.Len(t, w.Samples, w.Overlap+n)

		if prev == nil {
			assert.Zero(t, w.Overlap)
		} else {
			want := min(stride, len(prev.Samples))
			assert.Equal(t, want, w.Overlap)
			assert.Equal(t, prev.Samples[len(prev.Samples)-want:], w.Samples[:w.Overlap])
		}
		assert.Equal(t, float64(w.StartSample), w.Samples[0])

		stream = append(stream, w.Samples[w.Overlap:]...)
		prev = &w
	}

	assert.Equal(t, ramp(0, pos), stream)
}

func TestAggregatorChunksShorterThanStride(t *testing.T) {
	agg := NewWindowAggregator(4, 8)

	var overlaps []int
	for i := range 6 {
		w := agg.Aggregate(NewAudioChunk([]float64{float64(i)}, 10))
		overlaps = append(overlaps, w.Overlap)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 4}, overlaps)
	assert.Equal(t, []float64{2, 3, 4, 5}, agg.Retained())
}

func TestAggregatorStreamPosition(t *testing.T) {
	agg := NewWindowAggregator(50, 150)

	w0 := agg.Aggregate(NewAudioChunk(make([]float64, 100), 100))
	w1 := agg.Aggregate(NewAudioChunk(make([]float64, 50), 100))

	assert.Equal(t, time.Second, w0.StreamPosition)
	assert.Equal(t, time.Second, w0.Contributed)
	assert.Equal(t, 1500*time.Millisecond, w1.StreamPosition)
	assert.Equal(t, 500*time.Millisecond, w1.Contributed)
	assert.Equal(t, int64(50), w1.StartSample)
	assert.Equal(t, 100, w1.SampleRate)
}

func TestAggregatorWindowsAreIndependent(t *testing.T) {
	agg := NewWindowAggregator(2, 4)
	chunk := []float64{1, 2, 3}

	w0 := agg.Aggregate(NewAudioChunk(chunk, 1))
	chunk[2] = 99
	w0.Samples[1] = -1

	w1 := agg.Aggregate(NewAudioChunk([]float64{4}, 1))
	assert.Equal(t, []float64{2, 3, 4}, w1.Samples)

	retained := agg.Retained()
	retained[0] = 42
	assert.Equal(t, []float64{3, 4}, agg.Retained())
}

func TestAggregatorEmptyChunk(t *testing.T) {
	agg := NewWindowAggregator(2, 4)
	agg.Aggregate(NewAudioChunk([]float64{1, 2, 3}, 1))

	w := agg.Aggregate(NewAudioChunk(nil, 1))
	assert.Equal(t, []float64{2, 3}, w.Samples)
	assert.Equal(t, []float64{2, 3}, agg.Retained())
}

func TestAggregatorReset(t *testing.T) {
	agg := NewWindowAggregator(2, 4)
	agg.Aggregate(NewAudioChunk([]float64{1, 2, 3}, 1))
	agg.Reset()

	w := agg.Aggregate(NewAudioChunk([]float64{7}, 1))
	assert.Zero(t, w.Index)
	assert.Zero(t, w.Overlap)
	assert.Equal(t, time.Second, w.StreamPosition)
	assert.Equal(t, []float64{7}, w.Samples)
}
