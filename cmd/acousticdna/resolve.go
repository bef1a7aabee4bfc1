package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"github.com/himanishpuri/acousticdna-live/pkg/models"
)

const titleSimilarity = 0.85

var errNoTrack = errors.New("no matching track")

// resolveTrack finds a track by exact id, or else by the closest
// "title artist" to query. Ambiguous best matches are rejected.
func resolveTrack(tracks []models.Track, query string) (models.Track, error) {
	for _, t := range tracks {
		if t.ID == query {
			return t, nil
		}
	}

	jw := metrics.NewJaroWinkler()
	jw.CaseSensitive = false

	q := strings.TrimSpace(query)
	var (
		best      models.Track
		bestScore float64
		tie       bool
	)
	for _, t := range tracks {
		score := max(
			strutil.Similarity(q, t.Title, jw),
			strutil.Similarity(q, t.Title+" "+t.Artist, jw),
		)
		switch {
		case score > bestScore:
			best, bestScore, tie = t, score, false
		case score == bestScore && score > 0:
			tie = true
		}
	}

	if bestScore < titleSimilarity {
		return models.Track{}, fmt.Errorf("%w for %q", errNoTrack, query)
	}
	if tie {
		return models.Track{}, fmt.Errorf("%q matches several tracks, use the track id", query)
	}
	return best, nil
}
