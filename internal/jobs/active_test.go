package jobs

import (
	"sort"
	"testing"
)

type fakeProc struct {
	waitCh   chan struct{}
	exitCode int
	tail     string
	killed   bool
}

func newFakeProc(exitCode int, tail string) *fakeProc {
	p := &fakeProc{waitCh: make(chan struct{}), exitCode: exitCode, tail: tail}
	close(p.waitCh)
	return p
}

func (p *fakeProc) Wait() error {
	<-p.waitCh
	if p.exitCode != 0 {
		return &exitErr{code: p.exitCode}
	}
	return nil
}

func (p *fakeProc) Kill()              { p.killed = true }
func (p *fakeProc) ExitCode() int      { return p.exitCode }
func (p *fakeProc) StderrTail() string { return p.tail }

type exitErr struct{ code int }

func (e *exitErr) Error() string { return "exit status" }

func TestActiveJobsRegisterRelease(t *testing.T) {
	a := NewActiveJobs()
	a.Register("Worker-1", "job-a")
	a.Register("Worker-2", "job-b")

	if a.Count() != 2 {
		t.Errorf("count = %d, want 2", a.Count())
	}
	ids := a.IDs()
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "job-a" || ids[1] != "job-b" {
		t.Errorf("ids = %v", ids)
	}

	a.Release("Worker-1")
	if a.Count() != 1 {
		t.Errorf("count after release = %d, want 1", a.Count())
	}
	if ids := a.IDs(); len(ids) != 1 || ids[0] != "job-b" {
		t.Errorf("ids after release = %v", ids)
	}
}

func TestActiveJobsKill(t *testing.T) {
	a := NewActiveJobs()
	proc := newFakeProc(0, "")
	a.Register("Worker-1", "job-a")
	a.Attach("Worker-1", proc)

	if !a.Kill("job-a") {
		t.Error("kill of a running job should report true")
	}
	if !proc.killed {
		t.Error("process should be killed")
	}
	if a.Kill("job-onbekend") {
		t.Error("kill of an unknown job should report false")
	}
}

func TestActiveJobsKillWithoutProcess(t *testing.T) {
	a := NewActiveJobs()
	a.Register("Worker-1", "job-a")
	// Claimed but not yet spawned: found, nothing to kill.
	if !a.Kill("job-a") {
		t.Error("claimed job should be found even before the process exists")
	}
}

func TestFlags(t *testing.T) {
	f := NewFlags()
	if f.Paused() {
		t.Error("fresh flags should not be paused")
	}
	f.Pause()
	if !f.Paused() {
		t.Error("should be paused")
	}
	f.Resume()
	if f.Paused() {
		t.Error("should be resumed")
	}
}

func TestClampWorkers(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, 1}, {1, 1}, {2, 2}, {3, 3}, {4, 3}, {-1, 1},
	}
	for _, tt := range tests {
		if got := ClampWorkers(tt.in); got != tt.want {
			t.Errorf("ClampWorkers(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
