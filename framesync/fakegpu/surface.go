package fakegpu

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/square/framesync"
)

// Target is the render target of one image generation.
type Target struct {
	Image      int
	Generation int
	Extent     framesync.Extent
	destroyed  atomic.Bool
}

func (t *Target) Destroyed() bool {
	return t.destroyed.Load()
}

// Surface implements framesync.Surface with a pool of images recycled by the presentation
// goroutine.
type Surface struct {
	gpu *GPU

	mu         sync.Mutex
	generation int
	extent     framesync.Extent
	platform   framesync.Extent
	nextImages int
	targets    []*Target
	available  chan int
	acquired   map[int]bool

	acquires      int
	presents      int
	recreations   int
	acquireScript map[int]framesync.Status
	presentScript map[int]framesync.Status
	recreateErr   error
	acquireErr    error
}

// NewSurface creates a surface with images presentable images of extent.
func (g *GPU) NewSurface(images int, extent framesync.Extent) *Surface {
	s := &Surface{
		gpu:           g,
		platform:      extent,
		nextImages:    images,
		acquireScript: map[int]framesync.Status{},
		presentScript: map[int]framesync.Status{},
	}
	s.build(extent)
	return s
}

func (s *Surface) build(extent framesync.Extent) {
	s.generation++
	s.extent = extent
	s.targets = make([]*Target, s.nextImages)
	s.available = make(chan int, s.nextImages)
	s.acquired = map[int]bool{}
	for i := range s.targets {
		s.targets[i] = &Target{Image: i, Generation: s.generation, Extent: extent}
		s.available <- i
		_ = s.gpu.create(KindTarget)
	}
}

// ScriptAcquire makes the n-th AcquireNextImage call (counting from 1) report status.
func (s *Surface) ScriptAcquire(n int, status framesync.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquireScript[n] = status
}

// ScriptPresent makes the n-th Present call (counting from 1) report status.
func (s *Surface) ScriptPresent(n int, status framesync.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presentScript[n] = status
}

// FailNextAcquire makes the next AcquireNextImage call fail with err.
func (s *Surface) FailNextAcquire(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquireErr = err
}

// FailRecreate makes every following Recreate call fail with err.
func (s *Surface) FailRecreate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recreateErr = err
}

// SetImageCount sets the number of images the next recreation produces.
func (s *Surface) SetImageCount(images int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextImages = images
}

// SetPlatformExtent sets the window size used when recreation is not given an extent.
func (s *Surface) SetPlatformExtent(extent framesync.Extent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.platform = extent
}

func (s *Surface) Generation() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *Surface) Recreations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recreations
}

func (s *Surface) Acquires() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquires
}

func (s *Surface) Targets() []framesync.Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	targets := make([]framesync.Target, len(s.targets))
	for i, t := range s.targets {
		targets[i] = t
	}
	return targets
}

func (s *Surface) Extent() framesync.Extent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extent
}

func (s *Surface) AcquireNextImage(signal framesync.Semaphore) (int, framesync.Status, error) {
	sem, ok := signal.(*Semaphore)
	if !ok {
		return -1, framesync.StatusSuccess, errors.Newf("foreign semaphore %T", signal)
	}

	s.mu.Lock()
	s.acquires++
	call := s.acquires
	status := s.acquireScript[call]
	err := s.acquireErr
	s.acquireErr = nil
	available := s.available
	s.mu.Unlock()

	s.gpu.event("acquire %d", call)
	if err != nil {
		return -1, framesync.StatusSuccess, err
	}
	if status == framesync.StatusOutOfDate {
		return -1, status, errors.New("swapchain out of date")
	}

	var image int
	select {
	case image = <-available:
	case <-s.gpu.ctx.Done():
		return -1, framesync.StatusSuccess, errors.New("device lost")
	}

	s.mu.Lock()
	if s.acquired[image] {
		s.gpu.violation("image %d acquired twice", image)
	}
	s.acquired[image] = true
	s.mu.Unlock()

	sem.Signal()
	return image, status, nil
}

func (s *Surface) Present(image int, wait framesync.Semaphore) (framesync.Status, error) {
	sem, ok := wait.(*Semaphore)
	if !ok {
		return framesync.StatusSuccess, errors.Newf("foreign semaphore %T", wait)
	}

	s.mu.Lock()
	s.presents++
	call := s.presents
	status := s.presentScript[call]
	if !s.acquired[image] {
		s.mu.Unlock()
		s.gpu.violation("image %d presented without being acquired", image)
		return framesync.StatusSuccess, errors.Newf("image %d not acquired", image)
	}
	delete(s.acquired, image)
	generation := s.generation
	s.mu.Unlock()

	s.gpu.event("present %d image %d", call, image)
	sem.use()
	s.gpu.begin()
	s.gpu.presentations <- presentation{surface: s, image: image, wait: sem, generation: generation}

	if status == framesync.StatusOutOfDate {
		return status, errors.New("swapchain out of date")
	}
	return status, nil
}

// release returns an image to the pool once its presentation is over. Images of an older
// generation are dropped.
func (s *Surface) release(image, generation int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation {
		return
	}
	s.available <- image
}

// Recreate rebuilds the image pool. The device must be idle.
func (s *Surface) Recreate(requested framesync.Extent) error {
	if s.gpu.Busy() {
		s.gpu.violation("surface recreated while the device is busy")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recreateErr != nil {
		return s.recreateErr
	}

	for _, t := range s.targets {
		t.destroyed.Store(true)
		s.gpu.destroyed(KindTarget, "target")
	}

	extent := requested
	if extent.Empty() {
		extent = s.platform
	}
	s.recreations++
	s.build(extent)
	s.gpu.event("recreate %d", s.generation)
	return nil
}

// Destroy releases the targets of the current generation.
func (s *Surface) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.targets {
		t.destroyed.Store(true)
		s.gpu.destroyed(KindTarget, "target")
	}
	s.targets = nil
}
