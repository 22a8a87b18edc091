package blobstore

import (
	"context"

	"golang.org/x/time/rate"
)

// ThrottledStore wraps a BlobStore and limits aggregate read throughput.
// Useful when background scans share a disk or network link with serving
// traffic.
type ThrottledStore struct {
	inner   BlobStore
	limiter *rate.Limiter
}

// NewThrottledStore limits reads from inner to bytesPerSec. Individual reads
// larger than the limiter burst are split across waits.
func NewThrottledStore(inner BlobStore, bytesPerSec int) *ThrottledStore {
	return &ThrottledStore{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), bytesPerSec),
	}
}

// Open opens a blob whose reads are throttled.
func (s *ThrottledStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &throttledBlob{inner: b, limiter: s.limiter}, nil
}

type throttledBlob struct {
	inner   Blob
	limiter *rate.Limiter
}

func (b *throttledBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	remaining := len(p)
	for remaining > 0 {
		n := remaining
		if burst := b.limiter.Burst(); n > burst {
			n = burst
		}
		if err := b.limiter.WaitN(ctx, n); err != nil {
			return 0, err
		}
		remaining -= n
	}
	return b.inner.ReadAt(ctx, p, off)
}

func (b *throttledBlob) Size() int64 { return b.inner.Size() }

func (b *throttledBlob) Close() error { return b.inner.Close() }
