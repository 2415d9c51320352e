package objectstore

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/gammazero/workerpool"

	"github.com/sdstation/middleware/internal/types"
)

// DefaultPresignTTL bounds how long issued upload URLs stay usable.
const DefaultPresignTTL = time.Hour

// Presigner fans multipart-init requests for a batch of files out over a
// worker pool, so a checkpoint with many weight files does not serialize its
// presign round trips.
type Presigner struct {
	wp    *workerpool.WorkerPool
	store Store
	ttl   time.Duration
}

func NewPresigner(store Store, maxWorkers int, ttl time.Duration) *Presigner {
	return &Presigner{
		wp:    workerpool.New(maxWorkers),
		store: store,
		ttl:   ttl,
	}
}

func (p *Presigner) Stop() {
	p.wp.Stop()
}

// BatchMultipartInit starts one multipart upload per file under baseKey and
// returns the bookkeeping keyed by filename. The first failure wins; uploads
// already opened for other files are left for the bucket's lifecycle rules
// to reap.
func (p *Presigner) BatchMultipartInit(ctx context.Context, baseKey string, files []types.MultipartFileReq) (map[string]*MultipartUpload, error) {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)
	uploads := make(map[string]*MultipartUpload, len(files))

	for _, file := range files {
		file := file
		wg.Add(1)
		p.wp.Submit(func() {
			defer wg.Done()

			parts := file.PartsNumber
			if parts <= 0 {
				parts = 1
			}

			upload, err := p.store.MultipartInit(ctx, path.Join(baseKey, file.Filename), parts, p.ttl)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("multipart init for %s: %w", file.Filename, err)
				}
				return
			}
			uploads[file.Filename] = upload
		})
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	return uploads, nil
}
