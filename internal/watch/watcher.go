package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rvhout/shrync/internal/config"
	"github.com/rvhout/shrync/internal/ffmpeg"
	"github.com/rvhout/shrync/internal/logger"
	"github.com/rvhout/shrync/internal/scan"
	"github.com/rvhout/shrync/internal/store"
)

// defaultSettle is the pause between the two size samples taken before a new
// file is considered complete.
const defaultSettle = 10 * time.Second

// Watcher observes one library directory for new video files. Two modes:
// "poll" diffs directory snapshots on an interval (reliable on network
// mounts), "native" uses fsnotify events.
type Watcher struct {
	store  *store.Store
	cfg    *config.Config
	prober scan.Prober
	lib    store.Library

	settle   time.Duration
	interval time.Duration

	mu      sync.Mutex
	pending map[string]bool

	alive  atomic.Bool
	cancel context.CancelFunc
	done   chan struct{}
}

func NewWatcher(st *store.Store, cfg *config.Config, prober scan.Prober, lib store.Library) *Watcher {
	return &Watcher{
		store:    st,
		cfg:      cfg,
		prober:   prober,
		lib:      lib,
		settle:   defaultSettle,
		interval: time.Duration(cfg.PollInterval) * time.Second,
		pending:  make(map[string]bool),
		done:     make(chan struct{}),
	}
}

// Start launches the watch goroutine for the configured mode.
func (w *Watcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.alive.Store(true)

	go func() {
		defer close(w.done)
		defer w.alive.Store(false)
		if w.cfg.WatchMode == "native" {
			w.runNative(ctx)
		} else {
			w.runPoll(ctx)
		}
	}()
}

// Stop cancels the watch goroutine and waits for it to exit.
func (w *Watcher) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
}

// Alive reports whether the watch goroutine is still running.
func (w *Watcher) Alive() bool {
	return w.alive.Load()
}

// runPoll diffs directory snapshots. The first snapshot is the baseline;
// only paths appearing after it are handled.
func (w *Watcher) runPoll(ctx context.Context) {
	known := w.snapshot()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		current := w.snapshot()
		for path := range current {
			if !known[path] {
				known[path] = true
				w.handle(ctx, path)
			}
		}
	}
}

// snapshot lists every video file currently under the library root. Walk
// errors yield a partial snapshot; missing paths show up on a later tick.
func (w *Watcher) snapshot() map[string]bool {
	out := make(map[string]bool)
	filepath.WalkDir(w.lib.Path, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != w.lib.Path {
				return filepath.SkipDir
			}
			return nil
		}
		if ffmpeg.IsVideoFile(path) {
			out[path] = true
		}
		return nil
	})
	return out
}

// runNative uses fsnotify. Watches are added recursively; new directories
// are picked up from create events.
func (w *Watcher) runNative(ctx context.Context) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("watcher aanmaken mislukt", "library", w.lib.Name, "error", err)
		return
	}
	defer fsw.Close()

	addTree := func(root string) {
		filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if strings.HasPrefix(d.Name(), ".") && path != root {
					return filepath.SkipDir
				}
				if err := fsw.Add(path); err != nil {
					logger.Warn("map toevoegen aan watcher mislukt", "path", path, "error", err)
				}
			}
			return nil
		})
	}
	addTree(w.lib.Path)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			info, err := os.Stat(event.Name)
			if err != nil {
				continue
			}
			if info.IsDir() {
				addTree(event.Name)
				continue
			}
			if ffmpeg.IsVideoFile(event.Name) {
				w.handle(ctx, event.Name)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("watcher fout", "library", w.lib.Name, "error", err)
		}
	}
}

// handle reacts to one newly appeared file: filter out temp artifacts and
// cache-dir files, then settle and enqueue in the background so a big copy
// never blocks the watch loop.
func (w *Watcher) handle(ctx context.Context, path string) {
	if strings.Contains(filepath.Base(path), ffmpeg.TempMarker) {
		return
	}
	if w.cfg.CacheDir != "" && strings.Contains(path, w.cfg.CacheDir) {
		return
	}

	w.mu.Lock()
	if w.pending[path] {
		w.mu.Unlock()
		return
	}
	w.pending[path] = true
	w.mu.Unlock()

	go func() {
		defer func() {
			w.mu.Lock()
			delete(w.pending, path)
			w.mu.Unlock()
		}()
		w.settleAndEnqueue(ctx, path)
	}()
}

// settleAndEnqueue waits for the file size to hold steady across two samples
// before running the eligibility checks. A still-growing file is abandoned;
// the poll differ or a later scan will see it again once it is complete.
func (w *Watcher) settleAndEnqueue(ctx context.Context, path string) {
	if !sleepCtx(ctx, w.settle) {
		return
	}
	size1, err := fileSize(path)
	if err != nil {
		return
	}
	if !sleepCtx(ctx, w.settle) {
		return
	}
	size2, err := fileSize(path)
	if err != nil {
		return
	}
	if size1 != size2 {
		logger.Info("bestand nog bezig met kopiëren", "path", path)
		return
	}

	queued, err := w.store.HasQueued(path)
	if err != nil || queued {
		return
	}
	done, err := w.store.HasSuccess(path)
	if err != nil || done {
		return
	}

	profile := ffmpeg.GetProfile(w.store.Setting("conversion_profile", ffmpeg.DefaultProfileID))
	codec := w.prober.CodecOf(ctx, path)
	if !ffmpeg.NeedsConversion(codec, profile.VideoCodec) {
		return
	}

	if _, err := w.store.Enqueue(w.lib.ID, path, size2); err != nil {
		logger.Error("toevoegen aan wachtrij mislukt", "path", path, "error", err)
		return
	}
	logger.Info("nieuw bestand in wachtrij", "library", w.lib.Name, "path", path)
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
