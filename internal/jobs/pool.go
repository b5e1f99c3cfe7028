package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rvhout/shrync/internal/logger"
	"github.com/rvhout/shrync/internal/store"
)

// Poll cadences for the worker loop.
const (
	pausedSleep = 1 * time.Second
	idleSleep   = 3 * time.Second
	errorSleep  = 5 * time.Second
)

// Pool runs N worker goroutines that claim pending jobs from the queue. Stop
// only halts claiming; transcodes already handed to the runner finish on
// their own.
type Pool struct {
	store  *store.Store
	runner *Runner
	active *ActiveJobs
	flags  *Flags

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(st *store.Store, runner *Runner, active *ActiveJobs, flags *Flags) *Pool {
	return &Pool{store: st, runner: runner, active: active, flags: flags}
}

// Start launches n workers. n is clamped to [1,3].
func (p *Pool) Start(n int) {
	n = ClampWorkers(n)
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.flags.setRunning(true)

	for i := 1; i <= n; i++ {
		slot := fmt.Sprintf("Worker-%d", i)
		p.wg.Add(1)
		go p.loop(ctx, slot)
	}
	logger.Info("workers gestart", "count", n)
}

// Stop cancels the worker loops and waits for them to return. An in-flight
// runner call completes first; its transcode is not interrupted.
func (p *Pool) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	p.wg.Wait()
	p.cancel = nil
	p.flags.setRunning(false)
	logger.Info("workers gestopt")
}

func (p *Pool) loop(ctx context.Context, slot string) {
	defer p.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		if p.flags.Paused() {
			if !sleepCtx(ctx, pausedSleep) {
				return
			}
			continue
		}

		job, err := p.store.NextPending(p.active.IDs())
		if err != nil {
			logger.Error("wachtrij lezen mislukt", "worker", slot, "error", err)
			if !sleepCtx(ctx, errorSleep) {
				return
			}
			continue
		}
		if job == nil {
			if !sleepCtx(ctx, idleSleep) {
				return
			}
			continue
		}

		p.active.Register(slot, job.ID)
		p.runner.Run(ctx, slot, job)
		p.active.Release(slot)
	}
}

// sleepCtx sleeps for d unless the context is cancelled first. It reports
// whether the full sleep completed.
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

// ClampWorkers bounds a worker count to the supported range [1,3].
func ClampWorkers(n int) int {
	if n < 1 {
		return 1
	}
	if n > 3 {
		return 3
	}
	return n
}
