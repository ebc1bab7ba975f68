package framesync

import (
	"github.com/cockroachdb/errors"
)

// Recorder writes the frame's command sequence: clear, bind, draw the geometry once.
type Recorder struct {
	geometry Geometry
	clear    Color
}

func NewRecorder(geometry Geometry, clear Color) (*Recorder, error) {
	if geometry.IndexCount <= 0 {
		return nil, errors.Newf("geometry must have at least one index, got %d", geometry.IndexCount)
	}
	return &Recorder{geometry: geometry, clear: clear}, nil
}

func (r *Recorder) Geometry() Geometry {
	return r.geometry
}

// Record overwrites commands with a render pass drawing the geometry into target. The buffer
// must not be pending on the GPU.
func (r *Recorder) Record(commands CommandBuffer, target Target, extent Extent) error {
	err := r.record(commands, target, extent)
	if err != nil {
		return errors.Mark(err, ErrRecording)
	}
	return nil
}

func (r *Recorder) record(commands CommandBuffer, target Target, extent Extent) error {
	full := Rect{Extent: extent}

	if err := commands.Reset(); err != nil {
		return errors.Wrap(err, "resetting command buffer")
	}
	if err := commands.Begin(); err != nil {
		return errors.Wrap(err, "beginning command buffer")
	}
	if err := commands.BeginRenderPass(target, full, r.clear); err != nil {
		return errors.Wrap(err, "beginning render pass")
	}
	if err := commands.BindPipeline(r.geometry.Pipeline); err != nil {
		return errors.Wrap(err, "binding pipeline")
	}
	if err := commands.BindVertexBuffer(r.geometry.VertexBuffer, 0); err != nil {
		return errors.Wrap(err, "binding vertex buffer")
	}
	if err := commands.BindIndexBuffer(r.geometry.IndexBuffer, 0, r.geometry.IndexType); err != nil {
		return errors.Wrap(err, "binding index buffer")
	}

	err := commands.SetViewport(Viewport{
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	})
	if err != nil {
		return errors.Wrap(err, "setting viewport")
	}
	if err := commands.SetScissor(full); err != nil {
		return errors.Wrap(err, "setting scissor")
	}

	if err := commands.DrawIndexed(r.geometry.IndexCount, 1, 0, 0, 0); err != nil {
		return errors.Wrap(err, "drawing")
	}
	if err := commands.EndRenderPass(); err != nil {
		return errors.Wrap(err, "ending render pass")
	}
	return errors.Wrap(commands.End(), "ending command buffer")
}
