package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(freq float64, rate, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return out
}

func TestWavRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	in := sine(440, 8000, 8000)

	require.NoError(t, WriteWav(path, in, 8000))

	out, rate, err := ReadWavAsFloat64(path)
	require.NoError(t, err)
	assert.Equal(t, 8000, rate)
	require.Len(t, out, len(in))
	for i := range in {
		assert.InDelta(t, in[i], out[i], 1e-3)
	}
}

func TestReadWavRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a riff header"), 0o644))

	_, _, err := ReadWavAsFloat64(path)
	assert.ErrorIs(t, err, ErrInvalidWAV)

	_, _, err = ReadWavAsFloat64(filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)
}

func TestMixdown(t *testing.T) {
	// Two stereo frames at 16 bits.
	got := mixdown([]int{16384, -16384, 32767, 32767}, 2, 16)
	require.Len(t, got, 2)
	assert.InDelta(t, 0, got[0], 1e-9)
	assert.InDelta(t, 1, got[1], 1e-3)

	assert.Len(t, mixdown([]int{1, 2, 3}, 0, 0), 3)
}

func TestStreamWAVChunks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.wav")
	require.NoError(t, WriteWav(path, sine(300, 8000, 8000*2+1000), 8000))

	var sizes []int
	total := 0
	err := StreamWAV(context.Background(), path, StreamConfig{ChunkDuration: 500 * time.Millisecond}, func(s []float64, rate int) error {
		assert.Equal(t, 8000, rate)
		sizes = append(sizes, len(s))
		total += len(s)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{4000, 4000, 4000, 4000, 1000}, sizes)
	assert.Equal(t, 17000, total)
}

func TestStreamWAVStopsOnEmitError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stop.wav")
	require.NoError(t, WriteWav(path, sine(300, 8000, 8000), 8000))

	stop := errors.New("stop")
	calls := 0
	err := StreamWAV(context.Background(), path, StreamConfig{ChunkDuration: 100 * time.Millisecond}, func([]float64, int) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestStreamWAVRealtimePacing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paced.wav")
	require.NoError(t, WriteWav(path, sine(300, 8000, 800*3), 8000))

	start := time.Now()
	chunks := 0
	err := StreamWAV(context.Background(), path, StreamConfig{ChunkDuration: 100 * time.Millisecond, Realtime: true}, func([]float64, int) error {
		chunks++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, chunks)
	// First chunk is released immediately, the next two wait one period each.
	assert.GreaterOrEqual(t, time.Since(start), 180*time.Millisecond)
}

func TestStreamWAVCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cancel.wav")
	require.NoError(t, WriteWav(path, sine(300, 8000, 8000), 8000))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := StreamWAV(ctx, path, StreamConfig{}, func([]float64, int) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadPCM(t *testing.T) {
	var raw bytes.Buffer
	for _, v := range []int16{0, 16384, -16384, 32767, -32768} {
		require.NoError(t, binary.Write(&raw, binary.LittleEndian, v))
	}
	raw.WriteByte(0x7f) // dangling half sample is dropped

	var got [][]float64
	cfg := StreamConfig{SampleRate: 4, ChunkDuration: 500 * time.Millisecond}
	err := readPCM(context.Background(), &raw, cfg, func(s []float64, rate int) error {
		assert.Equal(t, 4, rate)
		got = append(got, s)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, []float64{0, 0.5}, got[0])
	assert.Equal(t, []float64{-0.5, 32767.0 / 32768.0}, got[1])
	assert.Equal(t, []float64{-1}, got[2])
}

func TestParseProbe(t *testing.T) {
	raw := []byte(`{
		"format": {"duration": "12.5", "format_name": "mp3", "tags": {"TITLE": "Song", "artist": "Band", "album": "LP"}},
		"streams": [{"codec_type": "video"}, {"codec_type": "audio", "sample_rate": "44100", "channels": 2}]
	}`)

	meta, err := parseProbe("/tmp/song.mp3", raw)
	require.NoError(t, err)
	assert.Equal(t, "song.mp3", meta.Filename)
	assert.Equal(t, "Song", meta.Title)
	assert.Equal(t, "Band", meta.Artist)
	assert.Equal(t, "LP", meta.Album)
	assert.Equal(t, 12.5, meta.DurationSec)
	assert.Equal(t, 44100, meta.SampleRate)
	assert.Equal(t, 2, meta.Channels)

	_, err = parseProbe("x", []byte(`{"format": {}, "streams": [{"codec_type": "video"}]}`))
	assert.Error(t, err)
}
