package jobs

import "sync/atomic"

// Flags holds the worker control state. It lives outside the Pool so pause
// state survives pool restarts (a max_workers change rebuilds the pool but
// keeps the flags).
type Flags struct {
	paused  atomic.Bool
	running atomic.Bool
}

func NewFlags() *Flags {
	return &Flags{}
}

// Pause stops workers from claiming new jobs. In-flight transcodes run on.
func (f *Flags) Pause() { f.paused.Store(true) }

// Resume lets workers claim jobs again.
func (f *Flags) Resume() { f.paused.Store(false) }

// Paused reports whether claiming is paused.
func (f *Flags) Paused() bool { return f.paused.Load() }

func (f *Flags) setRunning(v bool) { f.running.Store(v) }

// Running reports whether a worker pool is live.
func (f *Flags) Running() bool { return f.running.Load() }
