package scan

import "sync"

// Status is the live progress of one library scan, served verbatim by the
// scan-status endpoint.
type Status struct {
	Status           string `json:"status"`
	Path             string `json:"path"`
	Scanned          int    `json:"scanned"`
	Added            int    `json:"added"`
	Skipped          int    `json:"skipped"`
	AlreadyConverted int    `json:"already_converted"`
	CurrentFile      string `json:"current_file"`
	Error            string `json:"error,omitempty"`
}

// StatusBoard holds per-library scan status. Scans write, the API reads.
type StatusBoard struct {
	mu    sync.RWMutex
	byLib map[string]Status
}

func NewStatusBoard() *StatusBoard {
	return &StatusBoard{byLib: make(map[string]Status)}
}

// Set replaces the status for a library.
func (b *StatusBoard) Set(libraryID string, st Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byLib[libraryID] = st
}

// Get returns the status for a library, with ok=false when no scan has run.
func (b *StatusBoard) Get(libraryID string) (Status, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st, ok := b.byLib[libraryID]
	return st, ok
}

// All returns a copy of every library's status.
func (b *StatusBoard) All() map[string]Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]Status, len(b.byLib))
	for k, v := range b.byLib {
		out[k] = v
	}
	return out
}
