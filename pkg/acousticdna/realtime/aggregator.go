package realtime

import "time"

// WindowAggregator turns variable-length chunks into overlapping analysis
// windows. The only state carried between calls is the tail of the last
// window and the stream counters.
type WindowAggregator struct {
	stride     int
	windowSize int

	tail     []float64
	index    int
	consumed int64 // samples received so far
	position time.Duration
}

func NewWindowAggregator(stride, windowSize int) *WindowAggregator {
	return &WindowAggregator{
		stride:     stride,
		windowSize: windowSize,
		tail:       make([]float64, 0, stride),
	}
}

// Aggregate prefixes chunk with the retained tail and returns the result as
// the next window. Short windows (stream start, tiny chunks, last chunk) are
// returned as-is.
func (a *WindowAggregator) Aggregate(chunk AudioChunk) AnalysisWindow {
	overlap := len(a.tail)
	size := overlap + len(chunk.Samples)

	capacity := size
	if capacity < a.windowSize {
		capacity = a.windowSize
	}
	samples := make([]float64, size, capacity)
	copy(samples, a.tail)
	copy(samples[overlap:], chunk.Samples)

	keep := a.stride
	if size < keep {
		keep = size
	}
	a.tail = append(a.tail[:0], samples[size-keep:]...)

	a.position += chunk.Duration
	w := AnalysisWindow{
		Index:          a.index,
		Samples:        samples,
		SampleRate:     chunk.SampleRate,
		Overlap:        overlap,
		StartSample:    a.consumed - int64(overlap),
		Contributed:    chunk.Duration,
		StreamPosition: a.position,
	}
	a.index++
	a.consumed += int64(len(chunk.Samples))
	return w
}

// Retained returns a copy of the tail that will prefix the next window.
func (a *WindowAggregator) Retained() []float64 {
	out := make([]float64, len(a.tail))
	copy(out, a.tail)
	return out
}

// Reset forgets the tail and restarts the stream counters.
func (a *WindowAggregator) Reset() {
	a.tail = a.tail[:0]
	a.index = 0
	a.consumed = 0
	a.position = 0
}
