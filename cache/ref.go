package cache

import "sync/atomic"

// Ref is a pinned reference to a cache object.
//
// Every Ref returned by Get must be released exactly once; the pin blocks
// eviction of the entry until then. Release is safe to call from a defer on
// every frame exit path. A second Release on the same Ref is a contract
// violation in the driver; it is ignored, never corrupting the count of
// other holders.
type Ref[T Object] struct {
	cache    *Cache[T]
	entry    *entry[T]
	released atomic.Bool
}

// Object returns the referenced cache object.
func (r *Ref[T]) Object() T { return r.entry.obj }

// Release drops the pin. Idempotent per Ref.
func (r *Ref[T]) Release() {
	if r == nil {
		return
	}
	if !r.released.CompareAndSwap(false, true) {
		r.cache.logger.Debug("duplicate release ignored",
			"cache", r.cache.name,
			"node", r.entry.obj.ID().String(),
		)
		return
	}
	r.cache.release(r.entry)
}
