package ffmpeg

import (
	"bufio"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rvhout/shrync/internal/logger"
)

// TempMarker identifies in-flight transcode artifacts. Files carrying it in
// their name are never scanned or enqueued.
const TempMarker = "_shrync_"

// stderrTailSize is how much trailing stderr is kept for error reporting.
const stderrTailSize = 1024

// TranscodeSpec describes one transcode invocation. VideoCodec must already
// be the effective codec (after the GPU mode downgrade).
type TranscodeSpec struct {
	Input      string
	Output     string
	VideoCodec string
	Preset     string
	Quality    string
	AudioCodec string
	// Duration is the source duration in seconds (0 = unknown; progress
	// stays at 0 and the eta stays empty).
	Duration float64
}

// NVENC reports whether the effective codec takes NVENC rate-control args.
func (s TranscodeSpec) NVENC() bool {
	return strings.Contains(s.VideoCodec, "nvenc")
}

// ProgressFunc receives live progress while a transcode runs.
type ProgressFunc func(progress int, fps float64, eta string)

// Transcoder spawns and supervises ffmpeg transcodes.
type Transcoder struct {
	ffmpegPath string
}

// NewTranscoder creates a new Transcoder with the given ffmpeg path
func NewTranscoder(ffmpegPath string) *Transcoder {
	return &Transcoder{ffmpegPath: ffmpegPath}
}

// buildArgs assembles the ffmpeg argument vector. NVENC codecs use constant
// QP rate control; CPU codecs use CRF. Subtitles are always copied.
func buildArgs(spec TranscodeSpec) []string {
	args := []string{
		"-y",
		"-i", spec.Input,
		"-c:v", spec.VideoCodec,
		"-preset", spec.Preset,
	}
	if spec.NVENC() {
		args = append(args,
			"-rc", "constqp",
			"-qp", spec.Quality,
			"-b:v", "0",
		)
	} else {
		args = append(args, "-crf", spec.Quality)
	}
	args = append(args,
		"-c:a", spec.AudioCodec,
		"-c:s", "copy",
		"-progress", "pipe:1",
		"-nostats",
		spec.Output,
	)
	return args
}

// Proc is a running transcode: the ffmpeg child plus its two stream readers.
type Proc struct {
	cmd    *exec.Cmd
	stderr *tailBuffer
	done   sync.WaitGroup

	waitOnce sync.Once
	waitErr  error
}

// Start spawns ffmpeg for the given spec and begins draining both output
// streams. onProgress is invoked on each fps frame of the progress protocol;
// it may be nil.
func (t *Transcoder) Start(spec TranscodeSpec, onProgress ProgressFunc) (*Proc, error) {
	args := buildArgs(spec)
	cmd := exec.Command(t.ffmpegPath, args...)
	logger.Debug("ffmpeg commando", "args", strings.Join(args, " "))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	p := &Proc{cmd: cmd, stderr: newTailBuffer(stderrTailSize)}

	// Stderr is drained concurrently into a bounded tail so pipe
	// backpressure can never stall the encoder.
	p.done.Add(2)
	go func() {
		defer p.done.Done()
		buf := make([]byte, 4096)
		for {
			n, err := stderr.Read(buf)
			if n > 0 {
				p.stderr.Write(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()

	go func() {
		defer p.done.Done()
		var outTimeUS int64
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			key, value, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			switch key {
			case "out_time_us":
				if us, err := strconv.ParseInt(value, 10, 64); err == nil {
					outTimeUS = us
				}
			case "fps":
				fps, err := strconv.ParseFloat(value, 64)
				if err != nil {
					continue
				}
				progress, eta := progressAt(outTimeUS, fps, spec.Duration)
				if onProgress != nil {
					onProgress(progress, fps, eta)
				}
			}
		}
	}()

	return p, nil
}

// Wait blocks until ffmpeg exits and both readers have drained.
func (p *Proc) Wait() error {
	p.waitOnce.Do(func() {
		p.done.Wait()
		p.waitErr = p.cmd.Wait()
	})
	return p.waitErr
}

// Kill terminates the ffmpeg child. Wait still returns afterwards.
func (p *Proc) Kill() {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

// ExitCode returns the child's exit code, valid after Wait.
func (p *Proc) ExitCode() int {
	if p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

// StderrTail returns the retained trailing stderr output.
func (p *Proc) StderrTail() string {
	return p.stderr.String()
}

// progressAt computes the integer progress percent (capped at 99) and the
// human eta string for one progress frame. The ×25 factor in the remaining
// time mirrors the established eta heuristic and is kept for parity.
func progressAt(outTimeUS int64, fps, duration float64) (int, string) {
	if duration <= 0 {
		return 0, ""
	}
	currentSec := float64(outTimeUS) / 1e6
	progress := int(currentSec / duration * 100)
	if progress > 99 {
		progress = 99
	}
	eta := ""
	if fps > 0 {
		remaining := int((duration - currentSec) / fps * 25)
		eta = fmt.Sprintf("%dm%ds", remaining/60, remaining%60)
	}
	return progress, eta
}

// TempPath computes the temp output path for a job:
// <dir>/<source stem>_shrync_<first 8 chars of job id>.mkv.
// Callers resolve dir via config.TempDir (cache dir, or next to the source).
func TempPath(sourcePath, dir, jobID string) string {
	base := filepath.Base(sourcePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	short := jobID
	if len(short) > 8 {
		short = short[:8]
	}
	return filepath.Join(dir, stem+TempMarker+short+".mkv")
}

// tailBuffer keeps the last n bytes written to it.
type tailBuffer struct {
	mu   sync.Mutex
	max  int
	data []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
	if len(b.data) > b.max {
		b.data = b.data[len(b.data)-b.max:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}
