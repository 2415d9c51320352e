package statussync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sdstation/middleware/internal/services/objectstore"
	"github.com/sdstation/middleware/pkg/logger"
)

// Status documents under the job prefix. The local side authors one, the
// remote GUI authors the other.
const (
	mirrorObject = "sagemaker_status.json"
	pullObject   = "webui_status.json"
)

// DefaultInterval matches the cadence the training container polls at.
const DefaultInterval = time.Second

// Bridge runs two loops for the lifetime of one training job: a mirror loop
// that publishes the local status record remotely, and a pull loop that
// applies the remote-authored interruption document locally. Both stop when
// the context bound to job completion is cancelled.
type Bridge struct {
	store    objectstore.Store
	status   *Status
	prefix   string
	interval time.Duration
}

func NewBridge(store objectstore.Store, status *Status, jobID string) *Bridge {
	return &Bridge{
		store:    store,
		status:   status,
		prefix:   fmt.Sprintf("training/%s", jobID),
		interval: DefaultInterval,
	}
}

// Run blocks until ctx is cancelled. Transient store failures are logged and
// retried on the next tick; they never terminate a loop.
func (b *Bridge) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		b.loop(ctx, b.mirror)
	}()
	go func() {
		defer wg.Done()
		b.loop(ctx, b.pull)
	}()
	wg.Wait()
}

func (b *Bridge) loop(ctx context.Context, step func(context.Context) error) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := step(ctx); err != nil && ctx.Err() == nil {
				logger.Debug("status sync tick", "prefix", b.prefix, "error", err.Error())
			}
		}
	}
}

func (b *Bridge) mirror(ctx context.Context) error {
	data, err := json.Marshal(b.status.Snapshot())
	if err != nil {
		return err
	}
	return b.store.Put(ctx, b.prefix+"/"+mirrorObject, data)
}

func (b *Bridge) pull(ctx context.Context) error {
	data, err := b.store.Get(ctx, b.prefix+"/"+pullObject)
	if err != nil {
		// Not written yet or transient; next tick retries.
		return err
	}

	var flags Flags
	if err := json.Unmarshal(data, &flags); err != nil {
		return err
	}
	b.status.Apply(flags)
	return nil
}
