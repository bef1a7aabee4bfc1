package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/himanishpuri/acousticdna-live/pkg/models"
)

const DefaultDBFile = "acousticdna.sqlite3"

// sqlite caps bound parameters per statement; hash lookups are chunked below it.
const maxHashesPerQuery = 500

var errDBClientNil = errors.New("db client is nil")

type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

type Track struct {
	ID         string `gorm:"primaryKey;type:varchar(36)"`
	Title      string `gorm:"uniqueIndex:idx_track_unique,priority:1" json:"title"`
	Artist     string `gorm:"uniqueIndex:idx_track_unique,priority:2" json:"artist"`
	DurationMs int    `json:"duration_ms"`
	CreatedAt  time.Time
}

type Fingerprint struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	Hash         uint32 `gorm:"index:idx_hash" json:"hash"`
	TrackID      string `gorm:"type:varchar(36);index:idx_track" json:"track_id"`
	AnchorTimeMs uint32 `json:"anchor_time_ms"`
}

// NewDBClient opens the database named by ACOUSTIC_DB_PATH, or DefaultDBFile.
func NewDBClient() (*DBClient, error) {
	dbPath := os.Getenv("ACOUSTIC_DB_PATH")
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return NewDBClientWithPath(dbPath)
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_pragma=foreign_keys(1)"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	// One writer at a time; readers are shared across realtime sessions.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Track{}, &Fingerprint{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *DBClient) ready() error {
	if c == nil || c.DB == nil {
		return errDBClientNil
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// RegisterTrack returns the id of the (title, artist) track, creating it
// when missing.
func (c *DBClient) RegisterTrack(title, artist string, durationMs int) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}

	var track Track
	err := c.DB.Where("title = ? AND artist = ?", title, artist).First(&track).Error
	if err == nil {
		return track.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("querying existing track: %w", err)
	}

	track = Track{ID: uuid.NewString(), Title: title, Artist: artist, DurationMs: durationMs}
	if err := c.DB.Create(&track).Error; err != nil {
		if !isUniqueViolation(err) {
			return "", fmt.Errorf("creating track: %w", err)
		}
		// Lost a race with a concurrent insert of the same track.
		if err := c.DB.Where("title = ? AND artist = ?", title, artist).First(&track).Error; err != nil {
			return "", fmt.Errorf("fetching track after constraint violation: %w", err)
		}
	}
	return track.ID, nil
}

func (c *DBClient) DeleteTrackByID(trackID string) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("track_id = ?", trackID).Delete(&Fingerprint{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", trackID).Delete(&Track{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (c *DBClient) StoreFingerprints(fp map[uint32][]models.Couple) error {
	if err := c.ready(); err != nil {
		return err
	}

	entries := make([]Fingerprint, 0, 1024)
	flush := func() error {
		if len(entries) == 0 {
			return nil
		}
		if err := c.DB.CreateInBatches(entries, 500).Error; err != nil {
			return fmt.Errorf("batch insert fingerprints: %w", err)
		}
		entries = entries[:0]
		return nil
	}

	for hash, couples := range fp {
		for _, cou := range couples {
			entries = append(entries, Fingerprint{Hash: hash, TrackID: cou.TrackID, AnchorTimeMs: cou.AnchorTimeMs})
			if len(entries) >= 1000 {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	return flush()
}

// GetCouplesByHashes loads the buckets of all hashes, querying in chunks.
func (c *DBClient) GetCouplesByHashes(hashes []uint32) (map[uint32][]models.Couple, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	result := make(map[uint32][]models.Couple)
	for start := 0; start < len(hashes); start += maxHashesPerQuery {
		end := min(start+maxHashesPerQuery, len(hashes))

		var rows []Fingerprint
		if err := c.DB.Where("hash IN ?", hashes[start:end]).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("batch querying fingerprints: %w", err)
		}
		for _, r := range rows {
			result[r.Hash] = append(result[r.Hash], models.Couple{TrackID: r.TrackID, AnchorTimeMs: r.AnchorTimeMs})
		}
	}
	return result, nil
}

func (c *DBClient) GetTrackByID(trackID string) (*models.Track, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	var t Track
	if err := c.DB.Where("id = ?", trackID).First(&t).Error; err != nil {
		return nil, err
	}
	return t.model(), nil
}

func (c *DBClient) ListTracks() ([]models.Track, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	var rows []Track
	if err := c.DB.Order("artist, title").Find(&rows).Error; err != nil {
		return nil, err
	}
	tracks := make([]models.Track, len(rows))
	for i := range rows {
		tracks[i] = *rows[i].model()
	}
	return tracks, nil
}

func (c *DBClient) GetFingerprintCount(trackID string) (int, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	var count int64
	if err := c.DB.Model(&Fingerprint{}).Where("track_id = ?", trackID).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (t *Track) model() *models.Track {
	return &models.Track{ID: t.ID, Title: t.Title, Artist: t.Artist, DurationMs: t.DurationMs}
}
