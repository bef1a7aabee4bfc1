package acousticdna

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"sync"

	"github.com/himanishpuri/acousticdna-live/pkg/acousticdna/audio"
	"github.com/himanishpuri/acousticdna-live/pkg/acousticdna/fingerprint"
	"github.com/himanishpuri/acousticdna-live/pkg/acousticdna/storage"
	"github.com/himanishpuri/acousticdna-live/pkg/logger"
	"github.com/himanishpuri/acousticdna-live/pkg/models"
)

// ErrSampleRate is returned when query samples are not at the index rate.
var ErrSampleRate = errors.New("sample rate does not match index")

// acousticService is the default implementation of the Service interface.
type acousticService struct {
	storage Storage
	log     Logger
	config  *Config

	// Track metadata and fingerprint counts are read for every candidate of
	// every realtime window, so they are cached until the track is deleted.
	mu     sync.RWMutex
	tracks map[string]trackInfo
	gen    uint64 // bumped by forget; a lookup that raced it is not cached
}

type trackInfo struct {
	track   models.Track
	hashCnt int
}

// NewSQLiteStorage opens the sqlite fingerprint index at dbPath.
func NewSQLiteStorage(dbPath string) (Storage, error) {
	db, err := storage.NewDBClientWithPath(dbPath)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", cfg.SampleRate)
	}

	stor := cfg.Storage
	if stor == nil {
		var err error
		stor, err = NewSQLiteStorage(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
	}

	return &acousticService{
		storage: stor,
		log:     cfg.Logger,
		config:  cfg,
		tracks:  make(map[string]trackInfo),
	}, nil
}

func (s *acousticService) loadWAV(ctx context.Context, audioPath string) ([]float64, int, error) {
	wavPath, err := audio.ConvertToMonoWAV(ctx, audioPath, s.config.TempDir, audio.ConvertWAVConfig{
		SampleRate: s.config.SampleRate,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("audio conversion failed: %w", err)
	}

	samples, sampleRate, err := audio.ReadWavAsFloat64(wavPath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read WAV file: %w", err)
	}
	return samples, sampleRate, nil
}

func (s *acousticService) peaks(samples []float64, sampleRate int) ([]fingerprint.Peak, error) {
	spec, err := fingerprint.ComputeSpectrogram(samples, sampleRate, 0, 0)
	if err != nil {
		return nil, err
	}
	return fingerprint.ExtractPeaks(spec, sampleRate), nil
}

// AddTrack processes an audio file and stores its fingerprint in the index.
// Empty title or artist fall back to the file's tags, then to its name.
func (s *acousticService) AddTrack(ctx context.Context, audioPath, title, artist string) (string, error) {
	if title == "" || artist == "" {
		if meta, err := audio.ReadMetadataFFmpeg(ctx, audioPath); err != nil {
			s.log.Debugf("No metadata for %s: %v", audioPath, err)
		} else {
			if title == "" {
				title = meta.Title
			}
			if artist == "" {
				artist = meta.Artist
			}
		}
	}
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	}
	if artist == "" {
		artist = "Unknown"
	}

	s.log.Infof("Processing track: %s by %s", title, artist)

	samples, sampleRate, err := s.loadWAV(ctx, audioPath)
	if err != nil {
		return "", err
	}
	return s.indexSamples(samples, sampleRate, title, artist)
}

func (s *acousticService) indexSamples(samples []float64, sampleRate int, title, artist string) (string, error) {
	peaks, err := s.peaks(samples, sampleRate)
	if err != nil {
		return "", fmt.Errorf("spectrogram generation failed: %w", err)
	}
	s.log.Infof("Extracted %d peaks", len(peaks))

	durationMs := int(float64(len(samples)) / float64(sampleRate) * 1000)
	trackID, err := s.storage.RegisterTrack(title, artist, durationMs)
	if err != nil {
		return "", fmt.Errorf("failed to register track: %w", err)
	}

	fps := fingerprint.Fingerprint(peaks, trackID)
	s.log.Infof("Generated %d unique hashes", len(fps))

	if err := s.storage.StoreFingerprints(fps); err != nil {
		if derr := s.storage.DeleteTrackByID(trackID); derr != nil {
			s.log.Errorf("Rollback of track %s failed: %v", trackID, derr)
		}
		return "", fmt.Errorf("failed to store fingerprints: %w", err)
	}

	s.forget(trackID)
	s.log.Infof("Successfully added track ID=%s", trackID)
	return trackID, nil
}

// MatchFile finds matches for a query audio file.
func (s *acousticService) MatchFile(ctx context.Context, audioPath string) ([]models.MatchResult, error) {
	s.log.Infof("Matching audio: %s", audioPath)

	samples, sampleRate, err := s.loadWAV(ctx, audioPath)
	if err != nil {
		return nil, err
	}
	results, err := s.MatchSamples(ctx, samples, sampleRate)
	if err != nil {
		return nil, err
	}
	s.log.Infof("Returning %d matches", len(results))
	return results, nil
}

// MatchSamples matches raw samples against the index. Input too short for a
// single FFT frame has no peaks and so no matches.
func (s *acousticService) MatchSamples(ctx context.Context, samples []float64, sampleRate int) ([]models.MatchResult, error) {
	if sampleRate != s.config.SampleRate {
		return nil, fmt.Errorf("%w: got %d Hz, index is %d Hz", ErrSampleRate, sampleRate, s.config.SampleRate)
	}

	queryPeaks, err := s.peaks(samples, sampleRate)
	if errors.Is(err, fingerprint.ErrTooShort) || errors.Is(err, fingerprint.ErrEmptySamples) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("spectrogram generation failed: %w", err)
	}

	hashes := fingerprint.Hashes(queryPeaks)
	if len(hashes) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dbMap, err := s.storage.GetCouplesByHashes(hashes)
	if err != nil {
		return nil, fmt.Errorf("fingerprint lookup failed: %w", err)
	}
	s.log.Debugf("Retrieved couples for %d/%d hashes", len(dbMap), len(hashes))

	matches := fingerprint.Vote(queryPeaks, dbMap)

	results := make([]models.MatchResult, 0, len(matches))
	for _, match := range matches {
		info, err := s.lookup(match.TrackID)
		if err != nil {
			s.log.Warnf("Failed to get track %s: %v", match.TrackID, err)
			continue
		}

		results = append(results, models.MatchResult{
			TrackID:    match.TrackID,
			Title:      info.track.Title,
			Artist:     info.track.Artist,
			Score:      match.Count,
			OffsetMs:   match.OffsetMs,
			Confidence: calculateConfidence(match.Count, len(hashes), info.hashCnt),
		})
	}
	return results, nil
}

func (s *acousticService) lookup(trackID string) (trackInfo, error) {
	s.mu.RLock()
	info, ok := s.tracks[trackID]
	gen := s.gen
	s.mu.RUnlock()
	if ok {
		return info, nil
	}

	track, err := s.storage.GetTrackByID(trackID)
	if err != nil {
		return trackInfo{}, err
	}
	count, err := s.storage.GetFingerprintCount(trackID)
	if err != nil {
		return trackInfo{}, err
	}

	info = trackInfo{track: *track, hashCnt: count}
	s.mu.Lock()
	if s.gen == gen {
		s.tracks[trackID] = info
	}
	s.mu.Unlock()
	return info, nil
}

func (s *acousticService) forget(trackID string) {
	s.mu.Lock()
	delete(s.tracks, trackID)
	s.gen++
	s.mu.Unlock()
}

// calculateConfidence maps the aligned hash ratio onto 0-100 with a
// logistic curve centred at a 15% match ratio. Ratios above 30% get an
// extra linear boost and fewer than 5 aligned hashes are scaled down.
func calculateConfidence(matchCount, queryFPCount, dbFPCount int) float64 {
	if matchCount == 0 || queryFPCount == 0 || dbFPCount == 0 {
		return 0.0
	}

	// short queries against long tracks are judged on the smaller side
	ratio := float64(matchCount) / float64(min(queryFPCount, dbFPCount))

	const (
		steepness = 20.0
		midpoint  = 0.15
	)
	confidence := 100.0 / (1.0 + math.Exp(-steepness*(ratio-midpoint)))

	if ratio > 0.30 {
		confidence = math.Min(100.0, confidence+(ratio-0.30)*50)
	}
	if matchCount < 5 {
		confidence *= float64(matchCount) / 5.0
	}
	return confidence
}

func (s *acousticService) GetTrack(trackID string) (*models.Track, error) {
	return s.storage.GetTrackByID(trackID)
}

// ListTracks returns all indexed tracks ordered by artist and title.
func (s *acousticService) ListTracks() ([]models.Track, error) {
	return s.storage.ListTracks()
}

// DeleteTrack removes a track and all its fingerprints from the index.
func (s *acousticService) DeleteTrack(trackID string) error {
	s.forget(trackID)
	return s.storage.DeleteTrackByID(trackID)
}

func (s *acousticService) Close() error {
	return s.storage.Close()
}
