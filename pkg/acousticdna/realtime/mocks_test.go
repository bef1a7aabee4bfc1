package realtime

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/himanishpuri/acousticdna-live/pkg/logger"
)

// mockMatchSource matches on the window index so expectations stay readable.
type mockMatchSource struct {
	mock.Mock
}

func (m *mockMatchSource) Query(ctx context.Context, window AnalysisWindow, cfg MatchConfig) ([]RawMatch, error) {
	args := m.Called(ctx, window.Index, cfg)
	raw, _ := args.Get(0).([]RawMatch)
	return raw, args.Error(1)
}

// scriptedSource reports the listed track ids for each window index and
// records every window it was asked about.
type scriptedSource struct {
	mu      sync.Mutex
	script  map[int][]string
	windows []AnalysisWindow
}

func (s *scriptedSource) Query(_ context.Context, w AnalysisWindow, _ MatchConfig) ([]RawMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows = append(s.windows, w)

	var out []RawMatch
	for _, id := range s.script[w.Index] {
		out = append(out, RawMatch{
			TrackID:        id,
			Title:          "title " + id,
			Artist:         "artist " + id,
			Votes:          10,
			Confidence:     50,
			StreamPosition: w.StreamPosition,
		})
	}
	return out, nil
}

func (s *scriptedSource) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// collector is an EventSink that keeps everything it receives.
type collector struct {
	mu     sync.Mutex
	events []FinalizedMatchEvent
}

func (c *collector) sink(ev FinalizedMatchEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) all() []FinalizedMatchEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]FinalizedMatchEvent(nil), c.events...)
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Config{Level: logger.ERROR, Output: io.Discard})
}

const testRate = 100

// second is one second of silence at testRate.
func second() AudioChunk {
	return NewAudioChunk(make([]float64, testRate), testRate)
}

func seconds(n int) []AudioChunk {
	out := make([]AudioChunk, n)
	for i := range out {
		out[i] = second()
	}
	return out
}

var testWait = 20 * time.Millisecond
