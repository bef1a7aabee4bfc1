package realtime

import (
	"context"
	"time"
)

// AudioChunk is a run of mono samples handed to the pipeline by the capture
// side. Chunks arrive at irregular sizes and must not be modified once queued.
type AudioChunk struct {
	Samples    []float64
	SampleRate int
	Duration   time.Duration
}

// NewAudioChunk builds a chunk and derives its duration from the sample count.
func NewAudioChunk(samples []float64, sampleRate int) AudioChunk {
	var d time.Duration
	if sampleRate > 0 {
		d = time.Duration(float64(len(samples)) / float64(sampleRate) * float64(time.Second))
	}
	return AudioChunk{Samples: samples, SampleRate: sampleRate, Duration: d}
}

// AnalysisWindow is the buffer submitted to the match stage: the retained
// tail of the previous window followed by the newest chunk.
type AnalysisWindow struct {
	Index          int           // 0-based window sequence number
	Samples        []float64     // overlap prefix + chunk samples
	SampleRate     int           // sample rate of the originating chunk
	Overlap        int           // number of leading samples repeated from the previous window
	StartSample    int64         // absolute stream position of Samples[0]
	Contributed    time.Duration // duration of the chunk that produced this window
	StreamPosition time.Duration // cumulative stream duration at the end of this window
}

// RawMatch is one unconfirmed candidate for a single analysis window.
type RawMatch struct {
	TrackID        string
	Title          string
	Artist         string
	Votes          int           // aligned fingerprint hashes
	Confidence     float64       // 0-100
	TrackOffset    time.Duration // position inside the track the window aligned to
	StreamPosition time.Duration // stream position the window was observed at
}

// FinalizedMatchEvent is a consolidated recognition of one continuous
// playback of a track.
type FinalizedMatchEvent struct {
	TrackID        string
	Title          string
	Artist         string
	MatchedSeconds float64
	StreamStart    time.Duration
	StreamEnd      time.Duration
	Confidence     float64
	Votes          int
	TrackOffset    time.Duration
	Windows        int
	// Flushed is set when the event was emitted at shutdown while the track
	// was still matching.
	Flushed bool
}

// MatchConfig is what the match stage needs to know about the session.
type MatchConfig struct {
	ThresholdVotes int
}

// ChunkSource is the ingestion boundary consumed by Query.
type ChunkSource interface {
	// TryTake waits up to timeout for the next chunk. ok is false on timeout,
	// cancellation or when the source is exhausted.
	TryTake(ctx context.Context, timeout time.Duration) (chunk AudioChunk, ok bool)
	// IsClosed reports that no further chunk will ever be delivered.
	IsClosed() bool
}

// MatchSource resolves a window into raw candidate matches.
type MatchSource interface {
	Query(ctx context.Context, window AnalysisWindow, cfg MatchConfig) ([]RawMatch, error)
}

// MatchSourceFunc adapts a plain function to MatchSource.
type MatchSourceFunc func(ctx context.Context, window AnalysisWindow, cfg MatchConfig) ([]RawMatch, error)

func (f MatchSourceFunc) Query(ctx context.Context, window AnalysisWindow, cfg MatchConfig) ([]RawMatch, error) {
	return f(ctx, window, cfg)
}

// EventSink receives finalized events synchronously, in emission order.
type EventSink func(FinalizedMatchEvent)

// Logger is the logging surface used by the package; *logger.Logger satisfies it.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
