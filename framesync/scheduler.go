package framesync

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
	"github.com/vkngwrapper/square/teardown"
)

// FrameSlot is one of the frames in flight.
type FrameSlot struct {
	Index            int
	AcquireSemaphore Semaphore
	Fence            Fence
	Commands         CommandBuffer
}

// Scheduler owns the frame slots and the frame counter.
type Scheduler struct {
	device  Device
	slots   []*FrameSlot
	frame   uint64
	timeout time.Duration
	logger  log.FieldLogger
	guards  teardown.Stack
}

// NewScheduler creates framesInFlight slots. Every slot fence starts signaled so the first
// BeginFrame on each slot does not wait.
func NewScheduler(device Device, framesInFlight int, fenceTimeout time.Duration, logger log.FieldLogger) (*Scheduler, error) {
	if framesInFlight < 1 {
		return nil, errors.Newf("frames in flight must be at least 1, got %d", framesInFlight)
	}
	if fenceTimeout <= 0 {
		return nil, errors.Newf("fence timeout must be positive, got %s", fenceTimeout)
	}
	if logger == nil {
		logger = log.StandardLogger()
	}

	s := &Scheduler{
		device:  device,
		timeout: fenceTimeout,
		logger:  logger,
	}
	s.guards.SetLogger(logger)

	for i := 0; i < framesInFlight; i++ {
		slot, err := s.createSlot(i)
		if err != nil {
			s.guards.Release()
			return nil, err
		}
		s.slots = append(s.slots, slot)
	}

	return s, nil
}

func (s *Scheduler) createSlot(index int) (*FrameSlot, error) {
	semaphore, err := s.device.CreateSemaphore()
	if err != nil {
		return nil, creationError(err, "creating acquire semaphore for frame slot %d", index)
	}
	s.guards.Push("acquire semaphore", semaphore.Destroy)

	fence, err := s.device.CreateFence(true)
	if err != nil {
		return nil, creationError(err, "creating fence for frame slot %d", index)
	}
	s.guards.Push("frame fence", fence.Destroy)

	commands, err := s.device.AllocateCommandBuffer()
	if err != nil {
		return nil, creationError(err, "allocating command buffer for frame slot %d", index)
	}
	s.guards.Push("command buffer", commands.Destroy)

	return &FrameSlot{
		Index:            index,
		AcquireSemaphore: semaphore,
		Fence:            fence,
		Commands:         commands,
	}, nil
}

func (s *Scheduler) FramesInFlight() int {
	return len(s.slots)
}

// Frame is the number of frames presented so far.
func (s *Scheduler) Frame() uint64 {
	return s.frame
}

// Current is the slot the next frame renders with.
func (s *Scheduler) Current() *FrameSlot {
	return s.slots[s.frame%uint64(len(s.slots))]
}

// BeginFrame returns the current slot once the GPU has finished the work it was last submitted
// with.
func (s *Scheduler) BeginFrame(ctx context.Context) (*FrameSlot, error) {
	slot := s.Current()
	if err := waitFence(ctx, slot.Fence, s.timeout); err != nil {
		return nil, errors.Wrapf(err, "waiting for frame slot %d", slot.Index)
	}
	return slot, nil
}

// Arm resets the slot fence. It must only be called once an image has been acquired and
// claimed for the slot, because nothing else will signal the fence again.
func (s *Scheduler) Arm(slot *FrameSlot) error {
	if err := slot.Fence.Reset(); err != nil {
		return errors.Mark(errors.Wrapf(err, "resetting fence of frame slot %d", slot.Index), ErrSubmission)
	}
	return nil
}

// Submit enqueues the slot's recorded commands. The work waits for the image to be released by
// the presentation engine and signals the image's render-finished semaphore and the slot fence.
func (s *Scheduler) Submit(slot *FrameSlot, image *PresentableImage) error {
	err := s.device.Submit(Submission{
		WaitSemaphore:   slot.AcquireSemaphore,
		WaitStage:       StageColorAttachmentOutput,
		Commands:        slot.Commands,
		SignalSemaphore: image.RenderFinished,
		Fence:           slot.Fence,
	})
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "submitting frame slot %d for image %d", slot.Index, image.Index), ErrSubmission)
	}
	return nil
}

// Advance moves to the next slot. It is called once per presented frame.
func (s *Scheduler) Advance() {
	s.frame++
}

// Destroy releases every slot. The caller must have waited for the device to go idle.
func (s *Scheduler) Destroy() {
	s.guards.Release()
	s.slots = nil
}
