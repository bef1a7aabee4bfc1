package acousticdna

import (
	"context"

	"github.com/himanishpuri/acousticdna-live/pkg/models"
)

type Service interface {
	AddTrack(ctx context.Context, audioPath, title, artist string) (string, error)
	MatchFile(ctx context.Context, audioPath string) ([]models.MatchResult, error)
	// MatchSamples matches mono samples already at the index sample rate.
	MatchSamples(ctx context.Context, samples []float64, sampleRate int) ([]models.MatchResult, error)
	GetTrack(trackID string) (*models.Track, error)
	ListTracks() ([]models.Track, error)
	DeleteTrack(trackID string) error
	Close() error
}

// Storage is the fingerprint index. *storage.DBClient implements it.
type Storage interface {
	RegisterTrack(title, artist string, durationMs int) (string, error)
	StoreFingerprints(fingerprints map[uint32][]models.Couple) error
	GetCouplesByHashes(hashes []uint32) (map[uint32][]models.Couple, error)
	DeleteTrackByID(trackID string) error
	GetTrackByID(trackID string) (*models.Track, error)
	GetFingerprintCount(trackID string) (int, error)
	ListTracks() ([]models.Track, error)
	Close() error
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
