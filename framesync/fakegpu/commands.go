package fakegpu

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/square/framesync"
)

// Op names a recorded command.
type Op string

const (
	OpBeginRenderPass  Op = "begin-render-pass"
	OpBindPipeline     Op = "bind-pipeline"
	OpBindVertexBuffer Op = "bind-vertex-buffer"
	OpBindIndexBuffer  Op = "bind-index-buffer"
	OpSetViewport      Op = "set-viewport"
	OpSetScissor       Op = "set-scissor"
	OpDrawIndexed      Op = "draw-indexed"
	OpEndRenderPass    Op = "end-render-pass"
)

// Command is one recorded command with the arguments that matter for its op.
type Command struct {
	Op        Op
	Target    *Target
	Area      framesync.Rect
	Clear     framesync.Color
	Handle    framesync.Handle
	Offset    int
	IndexType framesync.IndexType
	Viewport  framesync.Viewport

	IndexCount    int
	InstanceCount int
	FirstIndex    int
	VertexOffset  int
	FirstInstance int
}

type bufferState int

const (
	stateInitial bufferState = iota
	stateRecording
	stateExecutable
	statePending
)

// CommandBuffer implements framesync.CommandBuffer by keeping the recorded commands.
type CommandBuffer struct {
	gpu *GPU

	mu        sync.Mutex
	state     bufferState
	commands  []Command
	destroyed bool
}

func (b *CommandBuffer) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == statePending {
		b.gpu.violation("command buffer reset while pending")
		return errors.New("command buffer is pending")
	}
	b.state = stateInitial
	b.commands = nil
	return nil
}

func (b *CommandBuffer) Begin() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != stateInitial {
		return errors.Newf("begin on command buffer in state %d", b.state)
	}
	b.state = stateRecording
	return nil
}

func (b *CommandBuffer) End() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != stateRecording {
		return errors.Newf("end on command buffer in state %d", b.state)
	}
	b.state = stateExecutable
	return nil
}

func (b *CommandBuffer) record(cmd Command) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != stateRecording {
		return errors.Newf("%s outside recording", cmd.Op)
	}
	b.commands = append(b.commands, cmd)
	return nil
}

func (b *CommandBuffer) BeginRenderPass(target framesync.Target, area framesync.Rect, clear framesync.Color) error {
	t, ok := target.(*Target)
	if !ok {
		return errors.Newf("foreign target %T", target)
	}
	if t.Destroyed() {
		b.gpu.violation("render pass begun on destroyed target %d", t.Image)
		return errors.Newf("target %d is destroyed", t.Image)
	}
	return b.record(Command{Op: OpBeginRenderPass, Target: t, Area: area, Clear: clear})
}

func (b *CommandBuffer) BindPipeline(pipeline framesync.Handle) error {
	return b.record(Command{Op: OpBindPipeline, Handle: pipeline})
}

func (b *CommandBuffer) BindVertexBuffer(buffer framesync.Handle, offset int) error {
	return b.record(Command{Op: OpBindVertexBuffer, Handle: buffer, Offset: offset})
}

func (b *CommandBuffer) BindIndexBuffer(buffer framesync.Handle, offset int, indexType framesync.IndexType) error {
	return b.record(Command{Op: OpBindIndexBuffer, Handle: buffer, Offset: offset, IndexType: indexType})
}

func (b *CommandBuffer) SetViewport(viewport framesync.Viewport) error {
	return b.record(Command{Op: OpSetViewport, Viewport: viewport})
}

func (b *CommandBuffer) SetScissor(scissor framesync.Rect) error {
	return b.record(Command{Op: OpSetScissor, Area: scissor})
}

func (b *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, firstInstance int) error {
	return b.record(Command{
		Op:            OpDrawIndexed,
		IndexCount:    indexCount,
		InstanceCount: instanceCount,
		FirstIndex:    firstIndex,
		VertexOffset:  vertexOffset,
		FirstInstance: firstInstance,
	})
}

func (b *CommandBuffer) EndRenderPass() error {
	return b.record(Command{Op: OpEndRenderPass})
}

// Commands returns a copy of what was recorded since the last reset.
func (b *CommandBuffer) Commands() []Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Command(nil), b.commands...)
}

func (b *CommandBuffer) submit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case stateExecutable:
		b.state = statePending
		return nil
	case statePending:
		b.gpu.violation("command buffer submitted while pending")
		return errors.New("command buffer is pending")
	}
	return errors.Newf("submitting command buffer in state %d", b.state)
}

// execute runs on the queue goroutine and returns the buffer to the executable state.
func (b *CommandBuffer) execute() []Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, cmd := range b.commands {
		if cmd.Op == OpBeginRenderPass && cmd.Target.Destroyed() {
			b.gpu.violation("executed render pass on destroyed target %d", cmd.Target.Image)
		}
	}
	b.state = stateExecutable
	return append([]Command(nil), b.commands...)
}

func (b *CommandBuffer) Destroy() {
	b.mu.Lock()
	if b.state == statePending {
		b.gpu.violation("command buffer destroyed while pending")
	}
	b.destroyed = true
	b.mu.Unlock()
	b.gpu.destroyed(KindCommandBuffer, "command buffer")
}
