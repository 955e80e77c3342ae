package cache

import "sync/atomic"

// Slot states, see ResultSlot.
const (
	SlotPending uint32 = iota
	SlotReady
	SlotFailed
)

// ResultSlot hands the outcome of an asynchronous computation from a
// producer goroutine to a consumer that polls without blocking. It is the
// bridge between decode workers and the rendering thread: the rendering
// thread may never wait mid-frame, so this is deliberately not a future.
//
// The producer calls exactly one of Ready or Fail, once. Poll is safe from
// any goroutine; the payload write happens-before the state store, so a
// consumer observing SlotReady reads a fully published value.
type ResultSlot[T any] struct {
	state atomic.Uint32
	value T
	err   error
}

// Ready publishes a successful result.
func (s *ResultSlot[T]) Ready(v T) {
	s.value = v
	s.state.Store(SlotReady)
}

// Fail publishes a failure.
func (s *ResultSlot[T]) Fail(err error) {
	s.err = err
	s.state.Store(SlotFailed)
}

// Poll returns the current state without blocking. value is meaningful
// only for SlotReady, err only for SlotFailed.
func (s *ResultSlot[T]) Poll() (value T, err error, state uint32) {
	switch s.state.Load() {
	case SlotReady:
		return s.value, nil, SlotReady
	case SlotFailed:
		var zero T
		return zero, s.err, SlotFailed
	default:
		var zero T
		return zero, nil, SlotPending
	}
}
