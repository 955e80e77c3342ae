// Package resource provides process-wide budgeting for the streaming
// pipeline: tracked memory across cache tiers, background fetch slots, and
// backend I/O throughput.
package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for tracked memory across all
	// caches sharing this controller. If 0, no hard limit is enforced
	// (only tracking).
	MemoryLimitBytes int64

	// MaxFetchers is the maximum number of concurrent background fetch
	// jobs (dataset staging, prefetch). If 0, defaults to 1.
	MaxFetchers int64

	// IOLimitBytesPerSec is the maximum backend read throughput for
	// decode workers. If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller tracks shared resources across the decode and texture tiers.
// A nil *Controller is valid and enforces nothing.
type Controller struct {
	cfg Config

	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	fetchSem *semaphore.Weighted

	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxFetchers <= 0 {
		cfg.MaxFetchers = 1
	}

	c := &Controller{
		cfg:      cfg,
		fetchSem: semaphore.NewWeighted(cfg.MaxFetchers),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// TryAcquireMemory attempts to reserve memory without blocking.
// Returns true if acquired, false if the limit would be exceeded.
// Cache tiers never block on memory reservation; a denied reservation is
// reported by the caller as a budget overrun.
func (c *Controller) TryAcquireMemory(bytes int64) bool {
	if c == nil || bytes <= 0 {
		return true
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(bytes) {
			return false
		}
	}

	c.memUsed.Add(bytes)
	return true
}

// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the currently tracked memory in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// AcquireIO waits until the I/O limit allows reading the given number of
// bytes. Called by decode workers, never by the rendering thread.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil || bytes <= 0 {
		return nil
	}
	return c.ioLimiter.WaitN(ctx, bytes)
}

// AcquireFetcher reserves a background fetch slot, blocking until one is
// available or ctx is canceled.
func (c *Controller) AcquireFetcher(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.fetchSem.Acquire(ctx, 1)
}

// TryAcquireFetcher reserves a background fetch slot without blocking.
func (c *Controller) TryAcquireFetcher() bool {
	if c == nil {
		return true
	}
	return c.fetchSem.TryAcquire(1)
}

// ReleaseFetcher releases a background fetch slot.
func (c *Controller) ReleaseFetcher() {
	if c == nil {
		return
	}
	c.fetchSem.Release(1)
}
