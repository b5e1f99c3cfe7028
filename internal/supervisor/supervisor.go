package supervisor

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/rvhout/shrync/internal/config"
	"github.com/rvhout/shrync/internal/ffmpeg"
	"github.com/rvhout/shrync/internal/jobs"
	"github.com/rvhout/shrync/internal/logger"
	"github.com/rvhout/shrync/internal/scan"
	"github.com/rvhout/shrync/internal/store"
	"github.com/rvhout/shrync/internal/watch"
)

// monitorInterval is how often the watcher health check runs.
const monitorInterval = 30 * time.Second

// Supervisor wires the moving parts together: startup recovery, initial
// scans, watchers, periodic rescans and the worker pool. The API layer calls
// back into it for restarts after settings or library changes.
type Supervisor struct {
	store    *store.Store
	cfg      *config.Config
	scanner  *scan.Scanner
	watchers *watch.Manager
	pool     *jobs.Pool

	mu      sync.Mutex
	crontab *cron.Cron

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(st *store.Store, cfg *config.Config, scanner *scan.Scanner, watchers *watch.Manager, pool *jobs.Pool) *Supervisor {
	return &Supervisor{
		store:    st,
		cfg:      cfg,
		scanner:  scanner,
		watchers: watchers,
		pool:     pool,
	}
}

// Recover returns every job left in the processing state by a previous run
// to pending, removing its temp artifact first. Runs before anything else
// starts so no worker can race it.
func (s *Supervisor) Recover() error {
	stuck, err := s.store.ProcessingJobs()
	if err != nil {
		return err
	}
	for _, job := range stuck {
		tempPath := ffmpeg.TempPath(job.FilePath, s.cfg.TempDir(job.FilePath), job.ID)
		if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
			logger.Warn("tempbestand opruimen mislukt", "path", tempPath, "error", err)
		}
		if err := s.store.ResetToPending(job.ID); err != nil {
			return err
		}
		logger.Info("onderbroken job hersteld", "job", job.ID, "path", job.FilePath)
	}
	if len(stuck) > 0 {
		logger.Info("herstel afgerond", "jobs", len(stuck))
	}
	return nil
}

// Start brings the service up in the background: initial scans of every
// enabled library, then watchers, schedules and workers, then the watcher
// health monitor. The HTTP server is expected to already be listening.
func (s *Supervisor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		libs, err := s.store.EnabledLibraries()
		if err != nil {
			logger.Error("bibliotheken ophalen mislukt", "error", err)
		} else {
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(2)
			for i := range libs {
				lib := libs[i]
				g.Go(func() error {
					s.scanner.ScanLibrary(gctx, &lib)
					return nil
				})
			}
			g.Wait()
		}

		if ctx.Err() != nil {
			return
		}

		if err := s.watchers.StartAll(); err != nil {
			logger.Error("watchers starten mislukt", "error", err)
		}
		s.ReloadSchedules()
		s.pool.Start(s.store.MaxWorkers())

		s.monitor(ctx)
	}()
}

// monitor restarts the watcher set whenever one of its goroutines has died.
func (s *Supervisor) monitor(ctx context.Context) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !s.watchers.AllAlive() {
			logger.Warn("dode watcher gevonden, herstart alle watchers")
			if err := s.watchers.StartAll(); err != nil {
				logger.Error("watchers herstarten mislukt", "error", err)
			}
		}
	}
}

// RestartWorkers rebuilds the worker pool at the currently configured size.
// Pause state carries over; in-flight transcodes are not interrupted.
func (s *Supervisor) RestartWorkers() {
	s.pool.Stop()
	s.pool.Start(s.store.MaxWorkers())
}

// RestartWatchers rebuilds the watcher set from the current library list.
func (s *Supervisor) RestartWatchers() {
	if err := s.watchers.StartAll(); err != nil {
		logger.Error("watchers herstarten mislukt", "error", err)
	}
}

// ReloadSchedules rebuilds the periodic rescan schedule from the library
// scan intervals. Libraries with interval 0 are not scheduled.
func (s *Supervisor) ReloadSchedules() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.crontab != nil {
		s.crontab.Stop()
	}
	s.crontab = cron.New()

	libs, err := s.store.EnabledLibraries()
	if err != nil {
		logger.Error("bibliotheken ophalen mislukt", "error", err)
		return
	}
	for i := range libs {
		lib := libs[i]
		if lib.ScanInterval <= 0 {
			continue
		}
		spec := fmt.Sprintf("@every %ds", lib.ScanInterval)
		_, err := s.crontab.AddFunc(spec, func() {
			fresh, err := s.store.Library(lib.ID)
			if err != nil || !fresh.Enabled {
				return
			}
			s.scanner.ScanLibrary(context.Background(), fresh)
		})
		if err != nil {
			logger.Error("rescan inplannen mislukt", "library", lib.Name, "error", err)
			continue
		}
		logger.Debug("rescan ingepland", "library", lib.Name, "interval", lib.ScanInterval)
	}
	s.crontab.Start()
}

// Stop shuts the background machinery down: monitor, schedules, watchers and
// worker loops. Running transcodes keep running; recovery handles them on
// the next start if the process exits.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	if s.crontab != nil {
		s.crontab.Stop()
	}
	s.mu.Unlock()
	s.watchers.StopAll()
	s.pool.Stop()
	s.wg.Wait()
}
