// Package budget bounds how many model fits run at once across every target
// and every nested search.
package budget

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Budget is a counting semaphore over leaf fits. Only leaf work acquires a
// token, so callers that fan out and wait never hold one.
type Budget struct {
	sem   *semaphore.Weighted
	size  int
	inUse atomic.Int64
	peak  atomic.Int64
}

// New returns a budget of size tokens. A size <= 0 uses the CPU count.
func New(size int) *Budget {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Budget{sem: semaphore.NewWeighted(int64(size)), size: size}
}

func (b *Budget) Size() int {
	return b.size
}

func (b *Budget) Acquire(ctx context.Context) error {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	n := b.inUse.Add(1)
	for {
		peak := b.peak.Load()
		if n <= peak || b.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	return nil
}

func (b *Budget) Release() {
	b.inUse.Add(-1)
	b.sem.Release(1)
}

// Do runs fn while holding one token.
func (b *Budget) Do(ctx context.Context, fn func() error) error {
	if err := b.Acquire(ctx); err != nil {
		return err
	}
	defer b.Release()
	return fn()
}

// Peak reports the highest number of tokens held at once.
func (b *Budget) Peak() int {
	return int(b.peak.Load())
}
