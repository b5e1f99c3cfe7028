package watch

import (
	"os"
	"sync"

	"github.com/rvhout/shrync/internal/config"
	"github.com/rvhout/shrync/internal/logger"
	"github.com/rvhout/shrync/internal/scan"
	"github.com/rvhout/shrync/internal/store"
)

// Manager owns one watcher per enabled library.
type Manager struct {
	store  *store.Store
	cfg    *config.Config
	prober scan.Prober

	mu       sync.Mutex
	watchers map[string]*Watcher
}

func NewManager(st *store.Store, cfg *config.Config, prober scan.Prober) *Manager {
	return &Manager{store: st, cfg: cfg, prober: prober, watchers: make(map[string]*Watcher)}
}

// StartAll stops any running watchers and starts a fresh one for every
// enabled library. Called at startup and after every library mutation.
func (m *Manager) StartAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, w := range m.watchers {
		w.Stop()
		delete(m.watchers, id)
	}

	libs, err := m.store.EnabledLibraries()
	if err != nil {
		return err
	}
	for _, lib := range libs {
		if info, err := os.Stat(lib.Path); err != nil || !info.IsDir() {
			logger.Warn("bibliotheekpad niet bereikbaar, geen watcher", "library", lib.Name, "path", lib.Path)
			continue
		}
		w := NewWatcher(m.store, m.cfg, m.prober, lib)
		w.Start()
		m.watchers[lib.ID] = w
		logger.Info("watcher gestart", "library", lib.Name, "path", lib.Path, "mode", m.cfg.WatchMode)
	}
	return nil
}

// StopAll stops every watcher.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, w := range m.watchers {
		w.Stop()
		delete(m.watchers, id)
	}
}

// AllAlive reports whether every started watcher goroutine is still running.
// A dead watcher means the set needs a restart.
func (m *Manager) AllAlive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.watchers {
		if !w.Alive() {
			return false
		}
	}
	return true
}

// Count returns the number of running watchers.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watchers)
}
