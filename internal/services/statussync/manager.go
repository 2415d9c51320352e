package statussync

import (
	"context"
	"sync"

	"github.com/sdstation/middleware/internal/services/objectstore"
)

// Manager owns one bridge per active training job and the cancellation that
// stops it when the job finishes.
type Manager struct {
	store objectstore.Store

	mu   sync.Mutex
	jobs map[string]*trackedJob
}

type trackedJob struct {
	status *Status
	cancel context.CancelFunc
}

func NewManager(store objectstore.Store) *Manager {
	return &Manager{store: store, jobs: map[string]*trackedJob{}}
}

// Start spins up the sync loops for a job and returns its status record.
// Starting an already-tracked job returns the existing record.
func (m *Manager) Start(ctx context.Context, jobID string) *Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tracked, ok := m.jobs[jobID]; ok {
		return tracked.status
	}

	status := NewStatus()
	jobCtx, cancel := context.WithCancel(ctx)
	m.jobs[jobID] = &trackedJob{status: status, cancel: cancel}

	bridge := NewBridge(m.store, status, jobID)
	go bridge.Run(jobCtx)

	return status
}

// Status returns the live record for a tracked job, or nil.
func (m *Manager) Status(jobID string) *Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tracked, ok := m.jobs[jobID]; ok {
		return tracked.status
	}
	return nil
}

// Stop cancels a job's loops. Unknown ids are a no-op.
func (m *Manager) Stop(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tracked, ok := m.jobs[jobID]; ok {
		tracked.cancel()
		delete(m.jobs, jobID)
	}
}

// StopAll cancels every tracked job, for shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, tracked := range m.jobs {
		tracked.cancel()
		delete(m.jobs, id)
	}
}
