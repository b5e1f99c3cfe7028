package jobs

import "sync"

// Process is a running transcode as the job layer sees it. *ffmpeg.Proc
// satisfies it; tests substitute fakes.
type Process interface {
	Wait() error
	Kill()
	ExitCode() int
	StderrTail() string
}

type activeEntry struct {
	jobID string
	proc  Process
}

// ActiveJobs tracks which job each worker slot is running, plus the live
// process handle once the spawn succeeds. It is the only bridge between the
// HTTP layer and running transcodes: the kill endpoint looks up the process
// here.
type ActiveJobs struct {
	mu    sync.Mutex
	slots map[string]*activeEntry
}

func NewActiveJobs() *ActiveJobs {
	return &ActiveJobs{slots: make(map[string]*activeEntry)}
}

// Register claims a slot for a job before the process exists. Claimed job
// ids are excluded from queue polling by the other workers.
func (a *ActiveJobs) Register(slot, jobID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.slots[slot] = &activeEntry{jobID: jobID}
}

// Attach stores the process handle for an already registered slot.
func (a *ActiveJobs) Attach(slot string, proc Process) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.slots[slot]; ok {
		e.proc = proc
	}
}

// Release frees a slot after the job finishes, whatever the outcome.
func (a *ActiveJobs) Release(slot string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.slots, slot)
}

// IDs returns the job ids currently claimed by any slot.
func (a *ActiveJobs) IDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, 0, len(a.slots))
	for _, e := range a.slots {
		ids = append(ids, e.jobID)
	}
	return ids
}

// Count returns the number of busy slots.
func (a *ActiveJobs) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.slots)
}

// Kill terminates the process running the given job, if any slot has it.
// It reports whether a matching running job was found.
func (a *ActiveJobs) Kill(jobID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.slots {
		if e.jobID == jobID {
			if e.proc != nil {
				e.proc.Kill()
			}
			return true
		}
	}
	return false
}
