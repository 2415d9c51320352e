package statussync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdstation/middleware/internal/config"
	"github.com/sdstation/middleware/internal/services/objectstore"
	"github.com/sdstation/middleware/pkg/logger"
)

func init() {
	if _, err := logger.InitLogger(&config.Config{Environment: "test"}); err != nil {
		panic(err)
	}
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	getErr  error
}

var _ objectstore.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (m *memStore) Put(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return data, nil
}

func (m *memStore) List(ctx context.Context, prefix string) ([]string, error) { return nil, nil }
func (m *memStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "", nil
}
func (m *memStore) PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "", nil
}
func (m *memStore) DeletePrefix(ctx context.Context, prefix string) error { return nil }
func (m *memStore) MultipartInit(ctx context.Context, key string, parts int, ttl time.Duration) (*objectstore.MultipartUpload, error) {
	return nil, errors.New("not supported")
}
func (m *memStore) MultipartComplete(ctx context.Context, key, uploadID string, parts []objectstore.CompletedPart) error {
	return errors.New("not supported")
}

func (m *memStore) get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}

func runBridge(t *testing.T, store *memStore, status *Status) (context.CancelFunc, chan struct{}) {
	t.Helper()
	bridge := NewBridge(store, status, "job-1")
	bridge.interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		bridge.Run(ctx)
		close(done)
	}()
	return cancel, done
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("condition not reached in time")
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func TestBridgeMirrorsLocalStatus(t *testing.T) {
	store := newMemStore()
	status := NewStatus()
	status.RequestSave(true, false)

	cancel, done := runBridge(t, store, status)
	defer cancel()

	waitFor(t, func() bool {
		_, ok := store.get("training/job-1/sagemaker_status.json")
		return ok
	})

	data, _ := store.get("training/job-1/sagemaker_status.json")
	var flags Flags
	require.NoError(t, json.Unmarshal(data, &flags))
	assert.True(t, flags.DoSaveModel)
	assert.False(t, flags.Interrupted)

	cancel()
	<-done
}

func TestBridgeAppliesRemoteInterruption(t *testing.T) {
	store := newMemStore()
	status := NewStatus()

	remote, err := json.Marshal(Flags{Interrupted: true, InterruptedAfterSave: true})
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), "training/job-1/webui_status.json", remote))

	cancel, done := runBridge(t, store, status)
	defer cancel()

	waitFor(t, func() bool { return status.Snapshot().Interrupted })
	assert.True(t, status.Snapshot().InterruptedAfterSave)
	assert.False(t, status.Snapshot().InterruptedAfterEpoch)

	cancel()
	<-done
}

func TestBridgeSurvivesFetchFailures(t *testing.T) {
	store := newMemStore()
	store.getErr = errors.New("throttled")
	status := NewStatus()

	cancel, done := runBridge(t, store, status)
	defer cancel()

	// Mirror keeps publishing while the pull side keeps failing.
	waitFor(t, func() bool {
		_, ok := store.get("training/job-1/sagemaker_status.json")
		return ok
	})

	store.mu.Lock()
	store.getErr = nil
	store.mu.Unlock()

	remote, err := json.Marshal(Flags{Interrupted: true})
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), "training/job-1/webui_status.json", remote))

	waitFor(t, func() bool { return status.Snapshot().Interrupted })

	cancel()
	<-done
}

func TestBridgeStopsOnCancel(t *testing.T) {
	store := newMemStore()
	cancel, done := runBridge(t, store, NewStatus())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("bridge did not stop on cancellation")
	}
}

func TestStatusConcurrentAccess(t *testing.T) {
	status := NewStatus()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			status.RequestStop(true, false)
		}()
		go func() {
			defer wg.Done()
			_ = status.Snapshot()
		}()
	}
	wg.Wait()
	assert.True(t, status.Snapshot().Interrupted)
}
