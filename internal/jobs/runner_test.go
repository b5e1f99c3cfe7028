package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rvhout/shrync/internal/config"
	"github.com/rvhout/shrync/internal/ffmpeg"
	"github.com/rvhout/shrync/internal/store"
)

func newTestRunner(t *testing.T, start Starter) (*Runner, *store.Store, *ActiveJobs) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.DefaultConfig()
	active := NewActiveJobs()
	prober := ffmpeg.NewProber("/bestaat/niet/ffprobe")
	return NewRunner(st, cfg, prober, start, active), st, active
}

func enqueueFile(t *testing.T, st *store.Store, dir, name string) *store.QueueJob {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("origineel videomateriaal"), 0644); err != nil {
		t.Fatal(err)
	}
	info, _ := os.Stat(path)
	id, err := st.Enqueue("", path, info.Size())
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job, err := st.QueueJobByID(id)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	return job
}

func TestRunnerSuccessReplacesSource(t *testing.T) {
	dir := t.TempDir()
	start := func(spec ffmpeg.TranscodeSpec, onProgress ffmpeg.ProgressFunc) (Process, error) {
		if err := os.WriteFile(spec.Output, []byte("klein"), 0644); err != nil {
			t.Fatal(err)
		}
		return newFakeProc(0, ""), nil
	}
	r, st, active := newTestRunner(t, start)
	job := enqueueFile(t, st, dir, "film.mp4")

	active.Register("Worker-1", job.ID)
	r.Run(context.Background(), "Worker-1", job)
	active.Release("Worker-1")

	// The transcoded file takes the exact source path, extension included.
	data, err := os.ReadFile(filepath.Join(dir, "film.mp4"))
	if err != nil {
		t.Fatalf("replacement missing: %v", err)
	}
	if string(data) != "klein" {
		t.Errorf("replacement content = %q", data)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected only the replaced file in %s, found %d entries", dir, len(entries))
	}

	if _, err := st.QueueJobByID(job.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("queue row should be gone, got %v", err)
	}

	recent, _ := st.Recent(10)
	if len(recent) != 1 {
		t.Fatalf("expected one success row, got %d", len(recent))
	}
	if recent[0].FilePath != filepath.Join(dir, "film.mp4") {
		t.Errorf("history should record the source path, got %q", recent[0].FilePath)
	}
	if recent[0].NewSize != int64(len("klein")) {
		t.Errorf("new size = %d", recent[0].NewSize)
	}
	if recent[0].OriginalSize != int64(len("origineel videomateriaal")) {
		t.Errorf("original size = %d", recent[0].OriginalSize)
	}
}

func TestRunnerFailureRecordsHistoryAndRemovesRow(t *testing.T) {
	dir := t.TempDir()
	start := func(spec ffmpeg.TranscodeSpec, onProgress ffmpeg.ProgressFunc) (Process, error) {
		return newFakeProc(1, "Error: kapotte stream"), nil
	}
	r, st, active := newTestRunner(t, start)
	job := enqueueFile(t, st, dir, "film.mp4")

	active.Register("Worker-1", job.ID)
	r.Run(context.Background(), "Worker-1", job)
	active.Release("Worker-1")

	if _, err := st.QueueJobByID(job.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("failed job's row should be removed, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "film.mp4")); err != nil {
		t.Error("source should be untouched after a failed transcode")
	}

	total, rows, _ := st.History(1, 10)
	if total != 1 {
		t.Fatalf("expected one error history row, got %d", total)
	}
	if rows[0].Status != store.StatusError || rows[0].ErrorMsg != "Error: kapotte stream" {
		t.Errorf("unexpected history: %+v", rows[0])
	}
	// Error rows carry the source size and the elapsed time too.
	if rows[0].OriginalSize != int64(len("origineel videomateriaal")) {
		t.Errorf("original size = %d", rows[0].OriginalSize)
	}
	if rows[0].DurationSeconds < 0 {
		t.Errorf("duration = %d", rows[0].DurationSeconds)
	}
}

func TestRunnerFailureWithoutStderrUsesExitCode(t *testing.T) {
	dir := t.TempDir()
	start := func(spec ffmpeg.TranscodeSpec, onProgress ffmpeg.ProgressFunc) (Process, error) {
		return newFakeProc(137, ""), nil
	}
	r, st, active := newTestRunner(t, start)
	job := enqueueFile(t, st, dir, "film.mp4")

	active.Register("Worker-1", job.ID)
	r.Run(context.Background(), "Worker-1", job)
	active.Release("Worker-1")

	_, rows, _ := st.History(1, 10)
	if len(rows) != 1 || rows[0].ErrorMsg != "ffmpeg returncode: 137" {
		t.Errorf("unexpected history: %+v", rows)
	}
}

func TestRunnerMissingSource(t *testing.T) {
	start := func(spec ffmpeg.TranscodeSpec, onProgress ffmpeg.ProgressFunc) (Process, error) {
		t.Error("ffmpeg should never start for a missing source")
		return nil, nil
	}
	r, st, active := newTestRunner(t, start)
	id, _ := st.Enqueue("", "/bestaat/niet/film.mkv", 100)
	job, _ := st.QueueJobByID(id)

	active.Register("Worker-1", job.ID)
	r.Run(context.Background(), "Worker-1", job)
	active.Release("Worker-1")

	if _, err := st.QueueJobByID(id); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing-source row should be removed, got %v", err)
	}
	total, rows, _ := st.History(1, 10)
	if total != 1 {
		t.Fatalf("expected one history row, got %d", total)
	}
	if rows[0].Status != store.StatusError || rows[0].ErrorMsg != "Bestand niet gevonden" {
		t.Errorf("unexpected history: %+v", rows[0])
	}
	// Without a stat the enqueued size is all there is.
	if rows[0].OriginalSize != 100 {
		t.Errorf("original size = %d", rows[0].OriginalSize)
	}
}

func TestRunnerCancelledDuringTranscodeKeepsSource(t *testing.T) {
	dir := t.TempDir()
	r, st, active := newTestRunner(t, nil)
	job := enqueueFile(t, st, dir, "film.mp4")

	// The transcode itself succeeds, but the row disappears while it runs:
	// the source must survive and no history may be written.
	r.start = func(spec ffmpeg.TranscodeSpec, onProgress ffmpeg.ProgressFunc) (Process, error) {
		if err := os.WriteFile(spec.Output, []byte("klein"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := st.DeleteQueueJob(job.ID); err != nil {
			t.Fatal(err)
		}
		return newFakeProc(0, ""), nil
	}

	active.Register("Worker-1", job.ID)
	r.Run(context.Background(), "Worker-1", job)
	active.Release("Worker-1")

	data, err := os.ReadFile(filepath.Join(dir, "film.mp4"))
	if err != nil {
		t.Fatalf("source missing after cancel: %v", err)
	}
	if string(data) != "origineel videomateriaal" {
		t.Errorf("source content = %q", data)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temp artifact left behind, %d entries in %s", len(entries), dir)
	}
	total, _, _ := st.History(1, 10)
	if total != 0 {
		t.Errorf("cancelled job should leave no history, got %d rows", total)
	}
}

func TestRunnerKilledJobLeavesNoHistory(t *testing.T) {
	dir := t.TempDir()
	proc := &fakeProc{waitCh: make(chan struct{}), exitCode: -1, tail: ""}
	start := func(spec ffmpeg.TranscodeSpec, onProgress ffmpeg.ProgressFunc) (Process, error) {
		return proc, nil
	}
	r, st, active := newTestRunner(t, start)
	job := enqueueFile(t, st, dir, "film.mp4")

	active.Register("Worker-1", job.ID)
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(context.Background(), "Worker-1", job)
	}()

	// The kill endpoint removes the row first, then kills the process.
	if err := st.DeleteQueueJob(job.ID); err != nil {
		t.Fatal(err)
	}
	close(proc.waitCh)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not return")
	}

	total, _, _ := st.History(1, 10)
	if total != 0 {
		t.Errorf("killed job should leave no history, got %d rows", total)
	}
}

func TestRunnerSpawnFailure(t *testing.T) {
	dir := t.TempDir()
	start := func(spec ffmpeg.TranscodeSpec, onProgress ffmpeg.ProgressFunc) (Process, error) {
		return nil, os.ErrPermission
	}
	r, st, active := newTestRunner(t, start)
	job := enqueueFile(t, st, dir, "film.mp4")

	active.Register("Worker-1", job.ID)
	r.Run(context.Background(), "Worker-1", job)
	active.Release("Worker-1")

	if _, err := st.QueueJobByID(job.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("spawn-failure row should be removed, got %v", err)
	}
	_, rows, _ := st.History(1, 10)
	if len(rows) != 1 || rows[0].Status != store.StatusError {
		t.Errorf("unexpected history: %+v", rows)
	}
}
