package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/square/framesync"
)

// CommandBuffer records into a core1_0.CommandBuffer allocated from the context's pool.
type CommandBuffer struct {
	handle core1_0.CommandBuffer
	device core1_0.Device
}

func (b *CommandBuffer) Reset() error {
	_, err := b.handle.Reset(0)
	return err
}

func (b *CommandBuffer) Begin() error {
	_, err := b.handle.Begin(core1_0.CommandBufferBeginInfo{})
	return err
}

func (b *CommandBuffer) End() error {
	_, err := b.handle.End()
	return err
}

func (b *CommandBuffer) BeginRenderPass(target framesync.Target, area framesync.Rect, clear framesync.Color) error {
	t, ok := target.(*Target)
	if !ok {
		return errors.Newf("unexpected target type %T", target)
	}

	return b.handle.CmdBeginRenderPass(core1_0.SubpassContentsInline, core1_0.RenderPassBeginInfo{
		RenderPass:  t.renderPass,
		Framebuffer: t.framebuffer,
		RenderArea:  rect2D(area),
		ClearValues: []core1_0.ClearValue{
			core1_0.ClearValueFloat{clear[0], clear[1], clear[2], clear[3]},
		},
	})
}

func (b *CommandBuffer) BindPipeline(pipeline framesync.Handle) error {
	p, ok := pipeline.(*Pipeline)
	if !ok {
		return errors.Newf("unexpected pipeline type %T", pipeline)
	}
	b.handle.CmdBindPipeline(core1_0.PipelineBindPointGraphics, p.pipeline)
	return nil
}

func (b *CommandBuffer) BindVertexBuffer(buffer framesync.Handle, offset int) error {
	buf, ok := buffer.(*Buffer)
	if !ok {
		return errors.Newf("unexpected buffer type %T", buffer)
	}
	b.handle.CmdBindVertexBuffers(0, []core1_0.Buffer{buf.buffer}, []int{offset})
	return nil
}

func (b *CommandBuffer) BindIndexBuffer(buffer framesync.Handle, offset int, indexType framesync.IndexType) error {
	buf, ok := buffer.(*Buffer)
	if !ok {
		return errors.Newf("unexpected buffer type %T", buffer)
	}

	vkType := core1_0.IndexTypeUInt16
	if indexType == framesync.IndexUint32 {
		vkType = core1_0.IndexTypeUInt32
	}
	b.handle.CmdBindIndexBuffer(buf.buffer, offset, vkType)
	return nil
}

func (b *CommandBuffer) SetViewport(viewport framesync.Viewport) error {
	b.handle.CmdSetViewport([]core1_0.Viewport{
		{
			X:        viewport.X,
			Y:        viewport.Y,
			Width:    viewport.Width,
			Height:   viewport.Height,
			MinDepth: viewport.MinDepth,
			MaxDepth: viewport.MaxDepth,
		},
	})
	return nil
}

func (b *CommandBuffer) SetScissor(scissor framesync.Rect) error {
	b.handle.CmdSetScissor([]core1_0.Rect2D{rect2D(scissor)})
	return nil
}

func (b *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, firstInstance int) error {
	b.handle.CmdDrawIndexed(indexCount, instanceCount, uint32(firstIndex), vertexOffset, uint32(firstInstance))
	return nil
}

func (b *CommandBuffer) EndRenderPass() error {
	b.handle.CmdEndRenderPass()
	return nil
}

func (b *CommandBuffer) Destroy() {
	b.device.FreeCommandBuffers([]core1_0.CommandBuffer{b.handle})
}

func rect2D(r framesync.Rect) core1_0.Rect2D {
	return core1_0.Rect2D{
		Offset: core1_0.Offset2D{X: r.X, Y: r.Y},
		Extent: core1_0.Extent2D{Width: r.Extent.Width, Height: r.Extent.Height},
	}
}
