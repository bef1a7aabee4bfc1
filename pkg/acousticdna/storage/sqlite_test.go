package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/himanishpuri/acousticdna-live/pkg/models"
)

// setupTestDB creates a client on a temporary database file
func setupTestDB(t *testing.T) (*DBClient, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test_acoustic.sqlite3")
	t.Setenv("ACOUSTIC_DB_PATH", dbPath)

	client, err := NewDBClient()
	require.NoError(t, err, "failed to create test DB client")
	t.Cleanup(func() { client.Close() })

	return client, dbPath
}

func TestNewDBClient(t *testing.T) {
	client, dbPath := setupTestDB(t)

	require.NotNil(t, client.DB)
	require.NotNil(t, client.db)

	_, err := os.Stat(dbPath)
	assert.NoError(t, err, "database file was not created")
}

func TestNewDBClientCreatesDirectory(t *testing.T) {
	customPath := filepath.Join(t.TempDir(), "subdir", "custom.db")

	client, err := NewDBClientWithPath(customPath)
	require.NoError(t, err)
	defer client.Close()

	_, err = os.Stat(customPath)
	assert.NoError(t, err)
}

func TestRegisterTrackIsIdempotent(t *testing.T) {
	client, _ := setupTestDB(t)

	id, err := client.RegisterTrack("Sandstorm", "Darude", 225000)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	again, err := client.RegisterTrack("Sandstorm", "Darude", 225000)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	other, err := client.RegisterTrack("Sandstorm", "Someone Else", 1000)
	require.NoError(t, err)
	assert.NotEqual(t, id, other)

	track, err := client.GetTrackByID(id)
	require.NoError(t, err)
	assert.Equal(t, "Sandstorm", track.Title)
	assert.Equal(t, "Darude", track.Artist)
	assert.Equal(t, 225000, track.DurationMs)
}

func TestStoreAndLookupFingerprints(t *testing.T) {
	client, _ := setupTestDB(t)

	id, err := client.RegisterTrack("Track", "Artist", 1000)
	require.NoError(t, err)

	fp := map[uint32][]models.Couple{
		100: {{TrackID: id, AnchorTimeMs: 10}, {TrackID: id, AnchorTimeMs: 250}},
		200: {{TrackID: id, AnchorTimeMs: 40}},
	}
	// Enough hashes to cross both the insert batch and the lookup chunk size.
	for h := uint32(1000); h < 2200; h++ {
		fp[h] = []models.Couple{{TrackID: id, AnchorTimeMs: h}}
	}
	require.NoError(t, client.StoreFingerprints(fp))

	count, err := client.GetFingerprintCount(id)
	require.NoError(t, err)
	assert.Equal(t, 3+1200, count)

	hashes := []uint32{100, 200, 999}
	for h := uint32(1000); h < 2200; h++ {
		hashes = append(hashes, h)
	}
	got, err := client.GetCouplesByHashes(hashes)
	require.NoError(t, err)

	assert.Len(t, got[100], 2)
	assert.Len(t, got[200], 1)
	assert.NotContains(t, got, uint32(999))
	assert.Equal(t, uint32(2100), got[2100][0].AnchorTimeMs)
	assert.Len(t, got, 2+1200)
}

func TestGetCouplesByHashesEmpty(t *testing.T) {
	client, _ := setupTestDB(t)

	got, err := client.GetCouplesByHashes(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDeleteTrackRemovesFingerprints(t *testing.T) {
	client, _ := setupTestDB(t)

	id, err := client.RegisterTrack("Gone", "Soon", 1000)
	require.NoError(t, err)
	require.NoError(t, client.StoreFingerprints(map[uint32][]models.Couple{7: {{TrackID: id, AnchorTimeMs: 1}}}))

	require.NoError(t, client.DeleteTrackByID(id))

	_, err = client.GetTrackByID(id)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	count, err := client.GetFingerprintCount(id)
	require.NoError(t, err)
	assert.Zero(t, count)

	assert.ErrorIs(t, client.DeleteTrackByID(id), gorm.ErrRecordNotFound)
}

func TestListTracksOrdered(t *testing.T) {
	client, _ := setupTestDB(t)

	_, err := client.RegisterTrack("B", "Zed", 1)
	require.NoError(t, err)
	_, err = client.RegisterTrack("A", "Alpha", 1)
	require.NoError(t, err)

	tracks, err := client.ListTracks()
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, "Alpha", tracks[0].Artist)
	assert.Equal(t, "Zed", tracks[1].Artist)
}

func TestNilClient(t *testing.T) {
	var c *DBClient

	assert.NoError(t, c.Close())
	_, err := c.RegisterTrack("a", "b", 1)
	assert.ErrorIs(t, err, errDBClientNil)
	assert.ErrorIs(t, c.StoreFingerprints(nil), errDBClientNil)
}
