package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rvhout/shrync/internal/config"
	"github.com/rvhout/shrync/internal/ffmpeg"
	"github.com/rvhout/shrync/internal/logger"
	"github.com/rvhout/shrync/internal/store"
)

// Starter launches a transcode process. The ffmpeg-backed implementation is
// NewFFmpegStarter; tests inject fakes.
type Starter func(spec ffmpeg.TranscodeSpec, onProgress ffmpeg.ProgressFunc) (Process, error)

// NewFFmpegStarter adapts a Transcoder to the Starter signature.
func NewFFmpegStarter(t *ffmpeg.Transcoder) Starter {
	return func(spec ffmpeg.TranscodeSpec, onProgress ffmpeg.ProgressFunc) (Process, error) {
		return t.Start(spec, onProgress)
	}
}

// Runner executes a single queued job end to end: probe, transcode into the
// temp file, then atomically take the place of the source.
type Runner struct {
	store  *store.Store
	cfg    *config.Config
	prober *ffmpeg.Prober
	start  Starter
	active *ActiveJobs
}

func NewRunner(st *store.Store, cfg *config.Config, prober *ffmpeg.Prober, start Starter, active *ActiveJobs) *Runner {
	return &Runner{store: st, cfg: cfg, prober: prober, start: start, active: active}
}

// Run processes one job in the given worker slot. The slot must already be
// registered in the active set; the caller releases it afterwards.
func (r *Runner) Run(ctx context.Context, slot string, job *store.QueueJob) {
	info, err := os.Stat(job.FilePath)
	if err != nil {
		logger.Warn("bronbestand verdwenen", "worker", slot, "path", job.FilePath)
		r.fail(job, job.FileSize, 0, "Bestand niet gevonden")
		return
	}

	if err := r.store.MarkProcessing(job.ID, info.Size()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Claimed by someone else or deleted in the meantime.
			return
		}
		logger.Error("job markeren mislukt", "worker", slot, "job", job.ID, "error", err)
		return
	}

	profile := ffmpeg.GetProfile(r.store.Setting("conversion_profile", ffmpeg.DefaultProfileID))
	audioCodec := r.store.Setting("audio_codec", "copy")
	duration := r.prober.DurationOf(ctx, job.FilePath)

	started := time.Now()
	tempPath := ffmpeg.TempPath(job.FilePath, r.cfg.TempDir(job.FilePath), job.ID)
	if err := os.MkdirAll(filepath.Dir(tempPath), 0755); err != nil {
		r.fail(job, info.Size(), 0, fmt.Sprintf("ffmpeg starten mislukt: %v", err))
		return
	}

	spec := ffmpeg.TranscodeSpec{
		Input:      job.FilePath,
		Output:     tempPath,
		VideoCodec: ffmpeg.EffectiveCodec(profile.VideoCodec, r.cfg.GPUMode),
		Preset:     profile.Preset,
		Quality:    profile.Quality,
		AudioCodec: audioCodec,
		Duration:   duration,
	}

	logger.Info("transcode gestart", "worker", slot, "path", job.FilePath,
		"profile", profile.ID, "codec", spec.VideoCodec,
		"size", humanize.Bytes(uint64(info.Size())))

	proc, err := r.start(spec, func(progress int, fps float64, eta string) {
		if err := r.store.UpdateJobProgress(job.ID, progress, fps, eta); err != nil {
			logger.Debug("voortgang opslaan mislukt", "job", job.ID, "error", err)
		}
	})
	if err != nil {
		r.fail(job, info.Size(), elapsedSince(started), fmt.Sprintf("ffmpeg starten mislukt: %v", err))
		return
	}
	r.active.Attach(slot, proc)

	waitErr := proc.Wait()
	elapsed := elapsedSince(started)

	if waitErr != nil || proc.ExitCode() != 0 {
		os.Remove(tempPath)
		msg := strings.TrimSpace(proc.StderrTail())
		if msg == "" {
			msg = fmt.Sprintf("ffmpeg returncode: %d", proc.ExitCode())
		}
		r.fail(job, info.Size(), elapsed, msg)
		return
	}

	tempInfo, err := os.Stat(tempPath)
	if err != nil {
		r.fail(job, info.Size(), elapsed, fmt.Sprintf("ffmpeg returncode: %d", proc.ExitCode()))
		return
	}
	newSize := tempInfo.Size()

	// A row deleted mid-flight means the job was cancelled through the API:
	// the source stays, the artifact goes, no history is written.
	if _, err := r.store.QueueJobByID(job.ID); errors.Is(err, store.ErrNotFound) {
		os.Remove(tempPath)
		logger.Info("job geannuleerd", "job", job.ID, "path", job.FilePath)
		return
	}

	if err := os.Remove(job.FilePath); err != nil {
		os.Remove(tempPath)
		r.fail(job, info.Size(), elapsed, fmt.Sprintf("Bestand verplaatsen mislukt: %v", err))
		return
	}
	if err := os.Rename(tempPath, job.FilePath); err != nil {
		os.Remove(tempPath)
		r.fail(job, info.Size(), elapsed, fmt.Sprintf("Bestand verplaatsen mislukt: %v", err))
		return
	}

	if err := r.store.AppendHistory(store.HistoryEntry{
		LibraryID:       job.LibraryID,
		FilePath:        job.FilePath,
		OriginalSize:    info.Size(),
		NewSize:         newSize,
		DurationSeconds: elapsed,
		Status:          store.StatusSuccess,
	}); err != nil {
		logger.Error("historie opslaan mislukt", "job", job.ID, "error", err)
	}
	if err := r.store.DeleteQueueJob(job.ID); err != nil {
		logger.Error("wachtrijrij verwijderen mislukt", "job", job.ID, "error", err)
	}

	saved := info.Size() - newSize
	logger.Info("transcode klaar", "worker", slot, "path", job.FilePath,
		"original", humanize.Bytes(uint64(info.Size())),
		"new", humanize.Bytes(uint64(newSize)),
		"saved", humanize.Bytes(uint64(max64(saved, 0))),
		"duration", time.Duration(elapsed)*time.Second)
}

// fail terminates a job on its error path: the outcome goes to history with
// the source size and elapsed wall time, and the queue row is removed. A row
// already deleted mid-flight means the job was cancelled through the API; a
// cancelled job leaves no trace.
func (r *Runner) fail(job *store.QueueJob, originalSize, elapsed int64, msg string) {
	if _, err := r.store.QueueJobByID(job.ID); errors.Is(err, store.ErrNotFound) {
		logger.Info("job geannuleerd", "job", job.ID, "path", job.FilePath)
		return
	}
	logger.Warn("transcode mislukt", "job", job.ID, "path", job.FilePath, "error", msg)
	if err := r.store.AppendHistory(store.HistoryEntry{
		LibraryID:       job.LibraryID,
		FilePath:        job.FilePath,
		OriginalSize:    originalSize,
		DurationSeconds: elapsed,
		Status:          store.StatusError,
		ErrorMsg:        msg,
	}); err != nil {
		logger.Error("historie opslaan mislukt", "job", job.ID, "error", err)
	}
	if err := r.store.DeleteQueueJob(job.ID); err != nil {
		logger.Error("wachtrijrij verwijderen mislukt", "job", job.ID, "error", err)
	}
}

func elapsedSince(started time.Time) int64 {
	return int64(time.Since(started).Seconds())
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
