// Package framesync paces frame submission against asynchronous GPU execution.
//
// A Renderer owns a fixed number of frame slots (the frames in flight), each holding an
// acquire semaphore, a submission fence and a command buffer, and a recreatable set of
// presentable images, each holding a render-finished semaphore and a render target. Every
// iteration waits for the slot's previous submission, acquires an image, waits for whichever
// slot last rendered to that image, records, submits and presents.
//
// The graphics API is reached only through the interfaces in this file. The vulkan package
// implements them on top of vkngwrapper; the fakegpu package implements them in-process for
// tests.
package framesync

import "time"

// Extent is a size in pixels.
type Extent struct {
	Width  int
	Height int
}

// Empty reports whether either dimension is zero, as happens while a window is minimized.
func (e Extent) Empty() bool {
	return e.Width <= 0 || e.Height <= 0
}

// Rect is a pixel rectangle.
type Rect struct {
	X, Y   int
	Extent Extent
}

// Viewport maps normalized device coordinates to the framebuffer.
type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

// Color is an RGBA clear color.
type Color [4]float32

// IndexType is the element type of an index buffer.
type IndexType int

const (
	IndexUint16 IndexType = iota
	IndexUint32
)

func (t IndexType) String() string {
	switch t {
	case IndexUint16:
		return "uint16"
	case IndexUint32:
		return "uint32"
	}
	return "unknown"
}

// Stage is a pipeline stage a submission waits at.
type Stage int

const (
	StageColorAttachmentOutput Stage = iota
)

// Status is the non-error outcome of an acquire or present.
type Status int

const (
	StatusSuccess Status = iota
	// StatusSuboptimal means the image is usable but the surface should be recreated.
	StatusSuboptimal
	// StatusOutOfDate means the surface no longer matches the window and must be recreated.
	StatusOutOfDate
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSuboptimal:
		return "suboptimal"
	case StatusOutOfDate:
		return "out of date"
	}
	return "unknown"
}

// Handle is an opaque backend object. The core never inspects handles; it hands them back to
// the backend that created them.
type Handle any

// Target is the per-image render target (a framebuffer bound to the surface's render pass).
type Target Handle

// Fence is a CPU-observable completion flag signaled by the GPU.
type Fence interface {
	// Wait blocks for at most timeout and reports whether the fence is signaled.
	Wait(timeout time.Duration) (bool, error)
	Reset() error
	Destroy()
}

// Semaphore orders GPU work between queue operations. The CPU never waits on it.
type Semaphore interface {
	Destroy()
}

// CommandBuffer is a reusable primary command buffer.
type CommandBuffer interface {
	Reset() error
	Begin() error
	End() error

	BeginRenderPass(target Target, area Rect, clear Color) error
	BindPipeline(pipeline Handle) error
	BindVertexBuffer(buffer Handle, offset int) error
	BindIndexBuffer(buffer Handle, offset int, indexType IndexType) error
	SetViewport(viewport Viewport) error
	SetScissor(scissor Rect) error
	DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, firstInstance int) error
	EndRenderPass() error

	Destroy()
}

// Submission is one batch of GPU work.
type Submission struct {
	WaitSemaphore   Semaphore
	WaitStage       Stage
	Commands        CommandBuffer
	SignalSemaphore Semaphore
	Fence           Fence
}

// Device creates synchronization objects and feeds the graphics queue.
type Device interface {
	CreateFence(signaled bool) (Fence, error)
	CreateSemaphore() (Semaphore, error)
	AllocateCommandBuffer() (CommandBuffer, error)
	// Submit enqueues work and returns without waiting for it.
	Submit(submission Submission) error
	// WaitIdle blocks until every queue of the device has drained.
	WaitIdle() error
}

// Surface is the chain of presentable images and the render targets built on it.
type Surface interface {
	// Targets returns one render target per presentable image, indexed by image index.
	Targets() []Target
	Extent() Extent

	// AcquireNextImage blocks until an image index is available. signal is signaled once the
	// presentation engine has released the image.
	AcquireNextImage(signal Semaphore) (int, Status, error)
	// Present queues image for display once wait is signaled.
	Present(image int, wait Semaphore) (Status, error)

	// Recreate destroys every image-indexed resource and the render pass and rebuilds them
	// from the current window state. requested is used when the platform leaves the choice of
	// extent to the application; an empty extent means "use the current one".
	Recreate(requested Extent) error
}

// Geometry is the static draw input recorded every frame.
type Geometry struct {
	Pipeline     Handle
	VertexBuffer Handle
	IndexBuffer  Handle
	IndexType    IndexType
	IndexCount   int
}

// WindowHandler receives window events. The handler value is the callback context; event
// sources never reach the renderer any other way.
type WindowHandler interface {
	Resized(extent Extent)
	CloseRequested()
}

// EventSource is the windowing layer as seen by the render loop. Events are dispatched on the
// goroutine that calls PollEvents or WaitEvents.
type EventSource interface {
	Register(handler WindowHandler)
	// PollEvents dispatches pending events without blocking.
	PollEvents()
	// WaitEvents blocks for at most timeout until an event arrives, then dispatches it.
	WaitEvents(timeout time.Duration)
}
