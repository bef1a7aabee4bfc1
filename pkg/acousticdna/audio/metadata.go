package audio

import (
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

type Metadata struct {
	Filename    string
	Title       string
	Artist      string
	Album       string
	DurationSec float64
	SampleRate  int
	Channels    int
	Format      string
}

type ffprobeOutput struct {
	Format struct {
		Duration string            `json:"duration"`
		Format   string            `json:"format_name"`
		Tags     map[string]string `json:"tags"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
}

// parseProbe turns ffprobe JSON into Metadata. Tag names are matched as
// ffprobe reports them for the common containers.
func parseProbe(path string, raw []byte) (*Metadata, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}

	meta := &Metadata{Filename: filepath.Base(path), Format: probe.Format.Format}
	found := false
	for _, s := range probe.Streams {
		if s.CodecType != "audio" {
			continue
		}
		meta.SampleRate, _ = strconv.Atoi(s.SampleRate)
		meta.Channels = s.Channels
		found = true
		break
	}
	if !found {
		return nil, errors.New("no audio stream found")
	}

	meta.DurationSec, _ = strconv.ParseFloat(probe.Format.Duration, 64)
	for _, key := range []string{"title", "TITLE", "Title"} {
		if v := probe.Format.Tags[key]; v != "" {
			meta.Title = v
			break
		}
	}
	for _, key := range []string{"artist", "ARTIST", "Artist"} {
		if v := probe.Format.Tags[key]; v != "" {
			meta.Artist = v
			break
		}
	}
	meta.Album = probe.Format.Tags["album"]
	return meta, nil
}

// ReadMetadataFFmpeg probes an audio file with ffprobe.
func ReadMetadataFFmpeg(ctx context.Context, path string) (*Metadata, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	out, err := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	).Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return parseProbe(path, out)
}
