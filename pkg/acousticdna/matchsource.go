package acousticdna

import (
	"context"
	"time"

	"github.com/himanishpuri/acousticdna-live/pkg/acousticdna/realtime"
)

type matchSource struct {
	svc Service
}

// NewMatchSource exposes the service as the match stage of a realtime query.
// Candidates with fewer aligned hashes than the session's vote threshold are
// dropped.
func NewMatchSource(svc Service) realtime.MatchSource {
	return &matchSource{svc: svc}
}

func (m *matchSource) Query(ctx context.Context, window realtime.AnalysisWindow, cfg realtime.MatchConfig) ([]realtime.RawMatch, error) {
	results, err := m.svc.MatchSamples(ctx, window.Samples, window.SampleRate)
	if err != nil {
		return nil, err
	}

	out := make([]realtime.RawMatch, 0, len(results))
	for _, r := range results {
		if r.Score < cfg.ThresholdVotes {
			continue
		}
		out = append(out, realtime.RawMatch{
			TrackID:        r.TrackID,
			Title:          r.Title,
			Artist:         r.Artist,
			Votes:          r.Score,
			Confidence:     r.Confidence,
			TrackOffset:    time.Duration(r.OffsetMs) * time.Millisecond,
			StreamPosition: window.StreamPosition,
		})
	}
	return out, nil
}
