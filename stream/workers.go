package stream

import (
	"sync"
	"sync/atomic"
)

// workerPool runs decode tasks on a fixed set of goroutines with a bounded
// queue. Admission is strictly non-blocking: when the queue is full the
// submit fails and the caller reports the block as not ready, putting
// backpressure on bursty viewpoint changes instead of queueing unboundedly.
type workerPool struct {
	workCh   chan func()
	stopCh   chan struct{}
	wg       sync.WaitGroup
	closed   atomic.Bool
	submitMu sync.RWMutex
}

// newWorkerPool starts numWorkers goroutines behind a queue of queueDepth
// pending tasks.
func newWorkerPool(numWorkers, queueDepth int) *workerPool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueDepth <= 0 {
		queueDepth = numWorkers * 2
	}

	wp := &workerPool{
		workCh: make(chan func(), queueDepth),
		stopCh: make(chan struct{}),
	}

	wp.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go wp.worker()
	}
	return wp
}

func (wp *workerPool) worker() {
	defer wp.wg.Done()

	for {
		select {
		case <-wp.stopCh:
			// Drain remaining work before exiting.
			for {
				select {
				case task, ok := <-wp.workCh:
					if !ok {
						return
					}
					task()
				default:
					return
				}
			}
		case task, ok := <-wp.workCh:
			if !ok {
				return
			}
			task()
		}
	}
}

// TrySubmit enqueues a task without blocking. Returns false when the queue
// is full or the pool is closed.
func (wp *workerPool) TrySubmit(task func()) bool {
	wp.submitMu.RLock()
	defer wp.submitMu.RUnlock()

	if wp.closed.Load() {
		return false
	}

	select {
	case wp.workCh <- task:
		return true
	default:
		return false
	}
}

// Close shuts the pool down, running already queued tasks.
func (wp *workerPool) Close() {
	if !wp.closed.CompareAndSwap(false, true) {
		return
	}

	wp.submitMu.Lock()
	close(wp.stopCh)
	close(wp.workCh)
	wp.submitMu.Unlock()

	wp.wg.Wait()
}
