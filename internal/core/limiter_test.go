package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

// ============================================================================
// ImportLimiter Tests
// ============================================================================

func TestImportLimiter_AcquireRelease(t *testing.T) {
	limiter := NewImportLimiter(2, time.Second)

	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if limiter.ActiveCount() != 1 {
		t.Errorf("ActiveCount() = %d, want 1", limiter.ActiveCount())
	}

	limiter.Release()
	if limiter.ActiveCount() != 0 {
		t.Errorf("ActiveCount() after Release = %d, want 0", limiter.ActiveCount())
	}
}

func TestImportLimiter_RejectsWhenFull(t *testing.T) {
	limiter := NewImportLimiter(1, 50*time.Millisecond)

	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	defer limiter.Release()

	err := limiter.Acquire(context.Background())
	if !errors.Is(err, ErrTooManyImports) {
		t.Errorf("second Acquire() error = %v, want ErrTooManyImports", err)
	}
}

func TestImportLimiter_SlotFreedWhileWaiting(t *testing.T) {
	limiter := NewImportLimiter(1, 2*time.Second)

	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		limiter.Release()
	}()

	if err := limiter.Acquire(context.Background()); err != nil {
		t.Errorf("waiting Acquire() error = %v, want slot after release", err)
	}
	limiter.Release()
}

func TestImportLimiter_CancelledContext(t *testing.T) {
	limiter := NewImportLimiter(1, time.Second)

	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer limiter.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := limiter.Acquire(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire() error = %v, want context.Canceled", err)
	}
}

func TestImportLimiter_DefaultsApplied(t *testing.T) {
	limiter := NewImportLimiter(0, 0)

	if limiter.MaxConcurrent() != DefaultMaxConcurrentImports {
		t.Errorf("MaxConcurrent() = %d, want %d", limiter.MaxConcurrent(), DefaultMaxConcurrentImports)
	}
}

func TestImportLimiter_WaitForDrain(t *testing.T) {
	limiter := NewImportLimiter(2, time.Second)

	limiter.Acquire(context.Background())
	limiter.Acquire(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		limiter.Release()
		limiter.Release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := limiter.WaitForDrain(ctx); err != nil {
		t.Errorf("WaitForDrain() error = %v", err)
	}
}

func TestImportLimiter_DrainTimeout(t *testing.T) {
	limiter := NewImportLimiter(1, time.Second)
	limiter.Acquire(context.Background())
	defer limiter.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	if err := limiter.WaitForDrain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForDrain() error = %v, want DeadlineExceeded", err)
	}
}
