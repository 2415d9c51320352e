// Package statussync keeps a fast-changing local training-status record and
// a remote copy under the job's storage prefix reconciled while a remote
// training run is in flight.
package statussync

import "sync"

// Flags is the wire shape both sides exchange. The spellings are shared with
// the training container's entrypoint.
type Flags struct {
	Interrupted           bool `json:"interrupted"`
	InterruptedAfterSave  bool `json:"interrupted_after_save"`
	InterruptedAfterEpoch bool `json:"interrupted_after_epoch"`
	DoSaveModel           bool `json:"do_save_model"`
	DoSaveSamples         bool `json:"do_save_samples"`
}

// Status is the owned, lock-protected training-status record. The mirror and
// pull loops never touch fields directly; everything goes through Snapshot
// and Apply.
type Status struct {
	mu    sync.RWMutex
	flags Flags
}

func NewStatus() *Status {
	return &Status{}
}

func (s *Status) Snapshot() Flags {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags
}

// Apply overwrites the whole record with the remote-authored document.
func (s *Status) Apply(flags Flags) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags = flags
}

// RequestStop marks the run for cooperative interruption. afterSave and
// afterEpoch soften the stop point.
func (s *Status) RequestStop(afterSave, afterEpoch bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags.Interrupted = true
	s.flags.InterruptedAfterSave = afterSave
	s.flags.InterruptedAfterEpoch = afterEpoch
}

func (s *Status) RequestSave(model, samples bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags.DoSaveModel = model
	s.flags.DoSaveSamples = samples
}
