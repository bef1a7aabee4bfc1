package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"golang.org/x/time/rate"
)

// EmitFunc receives each decoded chunk of mono samples. Returning an error
// stops the stream.
type EmitFunc func(samples []float64, sampleRate int) error

// StreamConfig controls chunked decoding.
type StreamConfig struct {
	SampleRate    int           // output rate for StreamPCM; ignored by StreamWAV
	ChunkDuration time.Duration // approximate length of each emitted chunk
	Realtime      bool          // pace emission at playback speed
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.ChunkDuration <= 0 {
		c.ChunkDuration = 500 * time.Millisecond
	}
	return c
}

func (c StreamConfig) framesPerChunk(sampleRate int) int {
	n := int(c.ChunkDuration.Seconds() * float64(sampleRate))
	if n < 1 {
		n = 1
	}
	return n
}

// pacer waits so that one chunk is released per chunk duration. A nil pacer
// never waits.
type pacer struct {
	lim *rate.Limiter
}

func newPacer(cfg StreamConfig) *pacer {
	if !cfg.Realtime {
		return &pacer{}
	}
	return &pacer{lim: rate.NewLimiter(rate.Every(cfg.ChunkDuration), 1)}
}

func (p *pacer) wait(ctx context.Context) error {
	if p.lim == nil {
		return ctx.Err()
	}
	return p.lim.Wait(ctx)
}

// StreamWAV decodes a WAV file chunk by chunk and hands each chunk to emit.
func StreamWAV(ctx context.Context, path string, cfg StreamConfig, emit EmitFunc) error {
	cfg = cfg.withDefaults()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return fmt.Errorf("%s: %w", path, ErrInvalidWAV)
	}

	sampleRate := int(dec.SampleRate)
	channels := int(dec.NumChans)
	bitDepth := int(dec.BitDepth)
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:   make([]int, cfg.framesPerChunk(sampleRate)*channels),
	}

	p := newPacer(cfg)
	for {
		n, err := dec.PCMBuffer(buf)
		if err != nil {
			return fmt.Errorf("decoding PCM samples: %w", err)
		}
		if n == 0 {
			return nil
		}
		if err := p.wait(ctx); err != nil {
			return err
		}
		if err := emit(mixdown(buf.Data[:n], channels, bitDepth), sampleRate); err != nil {
			return err
		}
	}
}

// decodePCM16 converts little-endian s16 mono bytes to samples in [-1, 1].
func decodePCM16(raw []byte) []float64 {
	out := make([]float64, len(raw)/2)
	for i := range out {
		out[i] = float64(int16(binary.LittleEndian.Uint16(raw[2*i:]))) / 32768.0
	}
	return out
}

// readPCM reads fixed-size chunks from r until EOF. A trailing partial
// chunk is still emitted.
func readPCM(ctx context.Context, r io.Reader, cfg StreamConfig, emit EmitFunc) error {
	raw := make([]byte, cfg.framesPerChunk(cfg.SampleRate)*2)
	p := newPacer(cfg)
	for {
		n, err := io.ReadFull(r, raw)
		n -= n % 2
		if n > 0 {
			if werr := p.wait(ctx); werr != nil {
				return werr
			}
			if eerr := emit(decodePCM16(raw[:n]), cfg.SampleRate); eerr != nil {
				return eerr
			}
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return nil
		default:
			return err
		}
	}
}

// StreamPCM decodes any ffmpeg-readable input (file, URL, capture device)
// to mono s16le at cfg.SampleRate and emits it chunk by chunk.
func StreamPCM(ctx context.Context, input string, cfg StreamConfig, emit EmitFunc) error {
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-v", "quiet",
		"-i", input,
		"-ac", "1",
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting ffmpeg: %w", err)
	}

	readErr := readPCM(ctx, stdout, cfg, emit)
	if readErr != nil {
		cancel()
	}
	waitErr := cmd.Wait()

	switch {
	case readErr != nil:
		return readErr
	case ctx.Err() != nil:
		return ctx.Err()
	case waitErr != nil:
		return fmt.Errorf("ffmpeg failed: %w", waitErr)
	}
	return nil
}
