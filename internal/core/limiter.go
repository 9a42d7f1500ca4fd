package core

// limiter.go implements concurrency control for import execution.
//
// The limiter uses a semaphore pattern to restrict parallel imports to a
// configurable maximum. When all slots are occupied, new submissions wait up
// to maxWait before failing with ErrTooManyImports.
//
// The limiter also supports graceful shutdown via WaitForDrain, which blocks
// until all active imports complete.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyImports is returned when all import slots are occupied and the
// wait timeout expires. Clients should retry after a short delay.
var ErrTooManyImports = errors.New("too many concurrent imports, please try again later")

// DefaultMaxConcurrentImports is the default limit for parallel imports.
const DefaultMaxConcurrentImports = 5

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// ImportLimiter controls concurrent import execution using a semaphore.
type ImportLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewImportLimiter creates a limiter that allows at most maxConcurrent
// simultaneous imports. Submissions that cannot acquire a slot within
// maxWait receive ErrTooManyImports.
func NewImportLimiter(maxConcurrent int, maxWait time.Duration) *ImportLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentImports
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	return &ImportLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire attempts to acquire an import slot.
// The caller MUST call Release() when the import completes (use defer).
func (l *ImportLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil

	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyImports

	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release releases a previously acquired slot.
// Must be called exactly once for each successful Acquire.
func (l *ImportLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of currently active imports.
func (l *ImportLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// MaxConcurrent returns the maximum allowed concurrent imports.
func (l *ImportLimiter) MaxConcurrent() int {
	return cap(l.semaphore)
}

// WaitForDrain blocks until all active imports complete or the context is
// cancelled. Used for graceful shutdown.
func (l *ImportLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if l.ActiveCount() == 0 {
				return nil
			}
		}
	}
}
