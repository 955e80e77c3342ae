// Package cache implements the bounded cache engine shared by the CPU
// decode tier and the GPU texture tier.
//
// The engine maps block identifiers to cache objects, enforces a byte
// budget with least-recently-used eviction among unreferenced entries, and
// guarantees single-flight construction: concurrent Get calls for the same
// never-seen identifier collapse into one Generate invocation.
//
// Entries are constructed by a per-cache Generator on miss. A pinned entry
// (reference count > 0) is never evicted; when every resident entry is
// pinned the budget is transiently exceeded rather than corrupting in-use
// data, and the overrun is counted.
package cache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/JamesLinus/livre/lod"
	"github.com/JamesLinus/livre/resource"
)

var (
	// ErrNotReady signals that an entry cannot be produced yet. It is a
	// normal transient outcome, not a failure: the caller skips the block
	// this frame and requests it again later. Generators return it when
	// their input is still being produced asynchronously.
	ErrNotReady = errors.New("cache: not ready")

	// ErrClosed is returned for operations on a closed cache.
	ErrClosed = errors.New("cache: closed")
)

// FailedError records a permanent generate failure for one identifier.
// The cache returns it for every subsequent Get of that identifier until
// Forget is called; the failure is never retried implicitly.
type FailedError struct {
	ID    lod.NodeID
	Cause error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("cache: generate %s failed: %v", e.ID, e.Cause)
}

func (e *FailedError) Unwrap() error { return e.Cause }

// Object is the unit of cached content.
//
// SizeBytes must be exact and constant for the object's lifetime; it is
// charged against the cache budget at admission. Destroy releases the
// object's resources and is called exactly once, on eviction or cache
// teardown, never while the object is referenced (except via Discard).
type Object interface {
	ID() lod.NodeID
	SizeBytes() int64
	Destroy()
}

// Generator constructs the object for a missing identifier.
//
// Returning ErrNotReady (possibly wrapped) means the object cannot be
// produced yet and nothing is cached or recorded. Any other error is
// recorded against the identifier and surfaced as *FailedError until the
// identifier is forgotten.
type Generator[T Object] interface {
	Generate(ctx context.Context, id lod.NodeID) (T, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc[T Object] func(ctx context.Context, id lod.NodeID) (T, error)

// Generate implements Generator.
func (f GeneratorFunc[T]) Generate(ctx context.Context, id lod.NodeID) (T, error) {
	return f(ctx, id)
}

// Stats is a point-in-time snapshot of cache counters. Counters are
// cumulative; ResidentBytes and Entries reflect the current state.
type Stats struct {
	Hits          int64
	Misses        int64
	Evictions     int64
	Failures      int64
	Overruns      int64
	ResidentBytes int64
	Entries       int
}

type entry[T Object] struct {
	obj  T
	refs int
	elem *list.Element
	// tracked is set when the global resource controller accepted the
	// reservation for this entry.
	tracked bool
}

// Cache is a bounded, reference-counted block cache.
//
// All methods are safe for concurrent use. Note that the texture tier
// additionally restricts which thread may call into it; that contract
// belongs to the tier, not to the engine.
type Cache[T Object] struct {
	name   string
	budget int64
	gen    Generator[T]
	logger *slog.Logger
	rc     *resource.Controller

	mu      sync.Mutex
	entries map[lod.NodeID]*entry[T]
	recency *list.List // all entries; front = most recently fetched
	bytes   int64
	failed  map[lod.NodeID]error
	closed  bool

	group singleflight.Group

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	failures  atomic.Int64
	overruns  atomic.Int64
}

// Option configures a Cache.
type Option[T Object] func(*Cache[T])

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger[T Object](logger *slog.Logger) Option[T] {
	return func(c *Cache[T]) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithController attaches a global resource controller that tracks the
// cache's resident bytes alongside other consumers.
func WithController[T Object](rc *resource.Controller) Option[T] {
	return func(c *Cache[T]) { c.rc = rc }
}

// New creates a cache with the given display name (used in logs and
// statistics overlays), byte budget and generator.
func New[T Object](name string, budget int64, gen Generator[T], opts ...Option[T]) *Cache[T] {
	c := &Cache[T]{
		name:    name,
		budget:  budget,
		gen:     gen,
		logger:  slog.Default(),
		entries: make(map[lod.NodeID]*entry[T]),
		recency: list.New(),
		failed:  make(map[lod.NodeID]error),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the cache display name.
func (c *Cache[T]) Name() string { return c.name }

// Budget returns the configured byte budget.
func (c *Cache[T]) Budget() int64 { return c.budget }

// Get returns a pinned reference to the object for id, constructing it on
// miss. Concurrent calls for the same missing identifier run exactly one
// Generate; every caller receives a reference to the same object.
//
// The returned reference pins the entry against eviction until Release is
// called. Errors: ErrNotReady (transient, retry later), *FailedError
// (recorded generate failure, cleared only by Forget), ErrClosed.
func (c *Cache[T]) Get(ctx context.Context, id lod.NodeID) (*Ref[T], error) {
	if ref, err, done := c.acquire(id, true); done {
		return ref, err
	}

	// Miss: collapse concurrent construction of the same identifier.
	_, err, _ := c.group.Do(strconv.FormatUint(uint64(id), 16), func() (any, error) {
		return nil, c.generate(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	ref, err, done := c.acquire(id, false)
	if !done {
		// The entry was evicted between construction and acquisition.
		// Possible only under extreme pressure; treat as transient.
		return nil, ErrNotReady
	}
	return ref, err
}

// acquire pins an existing entry. done reports whether the request was
// resolved (hit, recorded failure, or closed).
func (c *Cache[T]) acquire(id lod.NodeID, count bool) (*Ref[T], error, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed, true
	}
	if cause, ok := c.failed[id]; ok {
		return nil, &FailedError{ID: id, Cause: cause}, true
	}
	e, ok := c.entries[id]
	if !ok {
		if count {
			c.misses.Add(1)
		}
		return nil, nil, false
	}
	if count {
		c.hits.Add(1)
	}
	e.refs++
	c.recency.MoveToFront(e.elem)
	return &Ref[T]{cache: c, entry: e}, nil, true
}

// generate runs under single-flight for id.
func (c *Cache[T]) generate(ctx context.Context, id lod.NodeID) error {
	// Another collapsed caller may have completed construction already.
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if cause, ok := c.failed[id]; ok {
		c.mu.Unlock()
		return &FailedError{ID: id, Cause: cause}
	}
	if _, ok := c.entries[id]; ok {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	obj, err := c.gen.Generate(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotReady) {
			return err
		}
		c.failures.Add(1)
		c.logger.Error("block generation failed",
			"cache", c.name,
			"node", id.String(),
			"error", err,
		)
		c.mu.Lock()
		c.failed[id] = err
		c.mu.Unlock()
		return &FailedError{ID: id, Cause: err}
	}

	c.insert(obj)
	return nil
}

// insert admits a freshly generated object, evicting unreferenced entries
// as needed to stay within budget.
func (c *Cache[T]) insert(obj T) {
	size := obj.SizeBytes()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		obj.Destroy()
		return
	}

	evicted := c.evictToFitLocked(size)

	e := &entry[T]{obj: obj}
	e.elem = c.recency.PushFront(e)
	c.entries[obj.ID()] = e
	c.bytes += size
	e.tracked = c.rc.TryAcquireMemory(size)

	over := c.bytes > c.budget
	c.mu.Unlock()

	if over {
		c.overruns.Add(1)
		c.logger.Warn("cache budget exceeded",
			"cache", c.name,
			"budget", c.budget,
			"resident", c.ResidentBytes(),
		)
	}
	for _, old := range evicted {
		old.Destroy()
	}
}

// evictToFitLocked removes least-recently-used unreferenced entries until
// additional bytes fit within the budget or no unreferenced entry remains.
// Returns the removed objects; the caller destroys them outside the lock.
func (c *Cache[T]) evictToFitLocked(additional int64) []T {
	var evicted []T
	for c.bytes+additional > c.budget {
		victim := c.oldestUnreferencedLocked()
		if victim == nil {
			break
		}
		evicted = append(evicted, c.removeLocked(victim))
		c.evictions.Add(1)
	}
	return evicted
}

func (c *Cache[T]) oldestUnreferencedLocked() *entry[T] {
	for elem := c.recency.Back(); elem != nil; elem = elem.Prev() {
		e := elem.Value.(*entry[T])
		if e.refs == 0 {
			return e
		}
	}
	return nil
}

func (c *Cache[T]) removeLocked(e *entry[T]) T {
	c.recency.Remove(e.elem)
	delete(c.entries, e.obj.ID())
	size := e.obj.SizeBytes()
	c.bytes -= size
	if e.tracked {
		c.rc.ReleaseMemory(size)
		e.tracked = false
	}
	e.elem = nil
	return e.obj
}

// release drops one pin from an entry. Called by Ref.Release only.
func (c *Cache[T]) release(e *entry[T]) {
	c.mu.Lock()
	if e.refs > 0 {
		e.refs--
	}
	c.mu.Unlock()
	// Eviction stays lazy: the entry becomes a candidate but is only
	// removed when a later insertion needs the space.
}

// Discard removes the entry for id, if any, and records cause as its
// failure. It is the error path for asynchronously produced content whose
// production failed after admission: the payload is unusable, so the entry
// is removed even if references are outstanding. Holders of outstanding
// references observe the failed state through the object itself.
func (c *Cache[T]) Discard(id lod.NodeID, cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.failed[id] = cause
	c.failures.Add(1)
	var obj T
	removed := false
	if e, ok := c.entries[id]; ok {
		obj = c.removeLocked(e)
		removed = true
	}
	c.mu.Unlock()

	if removed {
		obj.Destroy()
	}
	c.logger.Error("block discarded",
		"cache", c.name,
		"node", id.String(),
		"error", cause,
	)
}

// Forget clears the recorded failure for id, if any, and drops an
// unreferenced resident entry for id. The next Get regenerates the block,
// e.g. after the backing data was repaired.
func (c *Cache[T]) Forget(id lod.NodeID) {
	c.mu.Lock()
	delete(c.failed, id)
	var obj T
	removed := false
	if e, ok := c.entries[id]; ok && e.refs == 0 {
		obj = c.removeLocked(e)
		removed = true
		c.evictions.Add(1)
	}
	c.mu.Unlock()

	if removed {
		obj.Destroy()
	}
}

// EvictOne removes the least-recently-used unreferenced entry, if any,
// and destroys its object. Used by tiers whose objects hold pooled
// resources that must be recycled before a new object can be produced.
func (c *Cache[T]) EvictOne() bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	victim := c.oldestUnreferencedLocked()
	if victim == nil {
		c.mu.Unlock()
		return false
	}
	obj := c.removeLocked(victim)
	c.evictions.Add(1)
	c.mu.Unlock()

	obj.Destroy()
	return true
}

// Contains reports whether id is resident. Intended for tests and
// diagnostics; residency can change immediately after the call.
func (c *Cache[T]) Contains(id lod.NodeID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[id]
	return ok
}

// Len returns the number of resident entries.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// ResidentBytes returns the bytes currently charged against the budget.
func (c *Cache[T]) ResidentBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// Stats returns a snapshot of the cache counters. The snapshot is
// eventually consistent under concurrent use.
func (c *Cache[T]) Stats() Stats {
	c.mu.Lock()
	bytes := c.bytes
	entries := len(c.entries)
	c.mu.Unlock()
	return Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Evictions:     c.evictions.Load(),
		Failures:      c.failures.Load(),
		Overruns:      c.overruns.Load(),
		ResidentBytes: bytes,
		Entries:       entries,
	}
}

// Close tears down the cache and destroys every resident object. Callers
// must have released all references; outstanding pins are logged and the
// objects destroyed regardless.
func (c *Cache[T]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true

	pinned := 0
	objs := make([]T, 0, len(c.entries))
	for _, e := range c.entries {
		if e.refs > 0 {
			pinned++
		}
		objs = append(objs, c.removeLocked(e))
	}
	c.mu.Unlock()

	if pinned > 0 {
		c.logger.Warn("cache closed with pinned entries",
			"cache", c.name,
			"pinned", pinned,
		)
	}
	for _, obj := range objs {
		obj.Destroy()
	}
	return nil
}
