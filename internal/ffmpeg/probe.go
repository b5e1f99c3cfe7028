package ffmpeg

import (
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"time"

	"github.com/rvhout/shrync/internal/logger"
)

// CodecUnknown is returned when the probe fails or finds no video stream.
// Callers treat unknown as "needs conversion".
const CodecUnknown = "unknown"

// probeTimeout bounds every ffprobe invocation.
const probeTimeout = 30 * time.Second

// ffprobeOutput represents the JSON output from ffprobe
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
}

// Prober wraps ffprobe functionality
type Prober struct {
	ffprobePath string
}

// NewProber creates a new Prober with the given ffprobe path
func NewProber(ffprobePath string) *Prober {
	return &Prober{ffprobePath: ffprobePath}
}

// CodecOf returns the codec name of the first video stream, or CodecUnknown
// on any failure. Paths are passed as separate argv entries, never composed
// into a shell string.
func (p *Prober) CodecOf(ctx context.Context, path string) string {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		logger.Warn("ffprobe mislukt", "path", path, "error", err)
		return CodecUnknown
	}

	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		logger.Warn("ffprobe uitvoer onleesbaar", "path", path, "error", err)
		return CodecUnknown
	}

	for _, stream := range probe.Streams {
		if stream.CodecType == "video" {
			if stream.CodecName == "" {
				return CodecUnknown
			}
			return stream.CodecName
		}
	}
	return CodecUnknown
}

// DurationOf returns the container duration in seconds, or 0 on any failure.
func (p *Prober) DurationOf(ctx context.Context, path string) float64 {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return 0
	}

	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return 0
	}

	if probe.Format.Duration == "" {
		return 0
	}
	seconds, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil || seconds < 0 {
		return 0
	}
	return seconds
}
