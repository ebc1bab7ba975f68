package fakegpu

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// Fence implements framesync.Fence.
type Fence struct {
	gpu *GPU

	mu        sync.Mutex
	signaled  chan struct{}
	isSet     bool
	pending   bool
	destroyed bool
}

func newFence(gpu *GPU, signaled bool) *Fence {
	f := &Fence{gpu: gpu, signaled: make(chan struct{})}
	if signaled {
		f.isSet = true
		close(f.signaled)
	}
	return f
}

func (f *Fence) Wait(timeout time.Duration) (bool, error) {
	f.mu.Lock()
	if f.destroyed {
		f.mu.Unlock()
		return false, errors.New("wait on destroyed fence")
	}
	ch := f.signaled
	f.mu.Unlock()

	if timeout <= 0 {
		select {
		case <-ch:
			return true, nil
		default:
			return false, nil
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return true, nil
	case <-timer.C:
		return false, nil
	}
}

func (f *Fence) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending {
		f.gpu.violation("fence reset while its submission is pending")
		return errors.New("fence is in use")
	}
	if f.isSet {
		f.isSet = false
		f.signaled = make(chan struct{})
	}
	return nil
}

// Signal sets the fence as the queue does when a submission completes.
func (f *Fence) Signal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = false
	if !f.isSet {
		f.isSet = true
		close(f.signaled)
	}
}

func (f *Fence) Signaled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.isSet
}

func (f *Fence) use() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = true
}

func (f *Fence) Destroy() {
	f.mu.Lock()
	if f.pending {
		f.gpu.violation("fence destroyed while its submission is pending")
	}
	f.destroyed = true
	f.mu.Unlock()
	f.gpu.destroyed(KindFence, "fence")
}

// Semaphore implements framesync.Semaphore as a binary semaphore.
type Semaphore struct {
	gpu     *GPU
	payload chan struct{}

	mu        sync.Mutex
	refs      int
	destroyed bool
}

func newSemaphore(gpu *GPU) *Semaphore {
	return &Semaphore{gpu: gpu, payload: make(chan struct{}, 1)}
}

// use records a queued operation that will signal or wait on the semaphore.
func (s *Semaphore) use() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		s.gpu.violation("destroyed semaphore used")
	}
	s.refs++
}

func (s *Semaphore) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs--
}

// signal completes a queued signal operation.
func (s *Semaphore) signal() {
	s.release()
	s.Signal()
}

// Signal sets the semaphore the way the presentation engine does on acquire.
func (s *Semaphore) Signal() {
	select {
	case s.payload <- struct{}{}:
	default:
		s.gpu.violation("binary semaphore signaled twice without a wait")
	}
}

// consume completes a queued wait operation.
func (s *Semaphore) consume(ctx context.Context) bool {
	select {
	case <-s.payload:
	case <-ctx.Done():
		return false
	}
	s.release()
	return true
}

// Signaled reports whether a signal is waiting to be consumed.
func (s *Semaphore) Signaled() bool {
	return len(s.payload) > 0
}

func (s *Semaphore) Destroy() {
	s.mu.Lock()
	if s.refs > 0 {
		s.gpu.violation("semaphore destroyed while in use")
	}
	s.destroyed = true
	s.mu.Unlock()
	s.gpu.destroyed(KindSemaphore, "semaphore")
}
