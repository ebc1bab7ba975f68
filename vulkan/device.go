package vulkan

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/square/framesync"
)

func (c *Context) CreateFence(signaled bool) (framesync.Fence, error) {
	var flags core1_0.FenceCreateFlags
	if signaled {
		flags = core1_0.FenceCreateSignaled
	}

	fence, _, err := c.device.CreateFence(nil, core1_0.FenceCreateInfo{Flags: flags})
	if err != nil {
		return nil, err
	}
	return &Fence{handle: fence}, nil
}

func (c *Context) CreateSemaphore() (framesync.Semaphore, error) {
	semaphore, _, err := c.device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return nil, err
	}
	return &Semaphore{handle: semaphore}, nil
}

func (c *Context) AllocateCommandBuffer() (framesync.CommandBuffer, error) {
	buffers, _, err := c.device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        c.commandPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return nil, err
	}
	return &CommandBuffer{handle: buffers[0], device: c.device}, nil
}

// Submit hands the recorded commands to the graphics queue.
func (c *Context) Submit(s framesync.Submission) error {
	commands, ok := s.Commands.(*CommandBuffer)
	if !ok {
		return errors.Newf("unexpected command buffer type %T", s.Commands)
	}
	wait, ok := s.WaitSemaphore.(*Semaphore)
	if !ok {
		return errors.Newf("unexpected semaphore type %T", s.WaitSemaphore)
	}
	signal, ok := s.SignalSemaphore.(*Semaphore)
	if !ok {
		return errors.Newf("unexpected semaphore type %T", s.SignalSemaphore)
	}
	fence, ok := s.Fence.(*Fence)
	if !ok {
		return errors.Newf("unexpected fence type %T", s.Fence)
	}

	_, err := c.graphicsQueue.Submit(fence.handle, []core1_0.SubmitInfo{
		{
			WaitSemaphores:   []core1_0.Semaphore{wait.handle},
			WaitDstStageMask: []core1_0.PipelineStageFlags{pipelineStage(s.WaitStage)},
			CommandBuffers:   []core1_0.CommandBuffer{commands.handle},
			SignalSemaphores: []core1_0.Semaphore{signal.handle},
		},
	})
	return err
}

func (c *Context) WaitIdle() error {
	_, err := c.device.WaitIdle()
	return err
}

func pipelineStage(stage framesync.Stage) core1_0.PipelineStageFlags {
	switch stage {
	case framesync.StageColorAttachmentOutput:
		return core1_0.PipelineStageColorAttachmentOutput
	}
	return core1_0.PipelineStageTopOfPipe
}

// Fence wraps core1_0.Fence.
type Fence struct {
	handle core1_0.Fence
}

func (f *Fence) Wait(timeout time.Duration) (bool, error) {
	res, err := f.handle.Wait(timeout)
	if err != nil {
		return false, err
	}
	return res != core1_0.VKTimeout, nil
}

func (f *Fence) Reset() error {
	_, err := f.handle.Reset()
	return err
}

func (f *Fence) Destroy() {
	f.handle.Destroy(nil)
}

// Semaphore wraps core1_0.Semaphore.
type Semaphore struct {
	handle core1_0.Semaphore
}

func (s *Semaphore) Destroy() {
	s.handle.Destroy(nil)
}
