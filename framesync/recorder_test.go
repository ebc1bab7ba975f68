package framesync_test

import (
	"testing"

	"github.com/vkngwrapper/square/framesync"
	"github.com/vkngwrapper/square/framesync/fakegpu"
)

func TestRecorderSequence(t *testing.T) {
	gpu := newGPU(t, fakegpu.Options{})
	surface := gpu.NewSurface(2, framesync.Extent{Width: 800, Height: 600})

	geometry := squareGeometry()
	geometry.IndexType = framesync.IndexUint32
	recorder, err := framesync.NewRecorder(geometry, framesync.Color{0, 0, 0, 1})
	if err != nil {
		t.Fatal(err)
	}

	buffer, err := gpu.AllocateCommandBuffer()
	if err != nil {
		t.Fatal(err)
	}
	target := surface.Targets()[1]

	for i := 0; i < 2; i++ {
		if err := recorder.Record(buffer, target, surface.Extent()); err != nil {
			t.Fatalf("%+v", err)
		}
	}

	commands := buffer.(*fakegpu.CommandBuffer).Commands()
	want := []fakegpu.Op{
		fakegpu.OpBeginRenderPass,
		fakegpu.OpBindPipeline,
		fakegpu.OpBindVertexBuffer,
		fakegpu.OpBindIndexBuffer,
		fakegpu.OpSetViewport,
		fakegpu.OpSetScissor,
		fakegpu.OpDrawIndexed,
		fakegpu.OpEndRenderPass,
	}
	if len(commands) != len(want) {
		t.Fatalf("recorded %d commands after re-recording, want %d", len(commands), len(want))
	}
	for i, op := range want {
		if commands[i].Op != op {
			t.Errorf("command %d: got %s, want %s", i, commands[i].Op, op)
		}
	}

	begin := commands[0]
	if begin.Target.Image != 1 || begin.Clear != (framesync.Color{0, 0, 0, 1}) {
		t.Errorf("render pass %+v", begin)
	}
	if begin.Area.Extent != (framesync.Extent{Width: 800, Height: 600}) {
		t.Errorf("render area %+v", begin.Area)
	}
	if commands[2].Offset != 0 || commands[3].IndexType != framesync.IndexUint32 {
		t.Errorf("buffer bindings %+v %+v", commands[2], commands[3])
	}
	viewport := commands[4].Viewport
	if viewport.Width != 800 || viewport.Height != 600 || viewport.MinDepth != 0 || viewport.MaxDepth != 1 {
		t.Errorf("viewport %+v", viewport)
	}
	draw := commands[6]
	if draw.IndexCount != 6 || draw.InstanceCount != 1 || draw.FirstIndex != 0 || draw.VertexOffset != 0 || draw.FirstInstance != 0 {
		t.Errorf("draw %+v", draw)
	}
}

func TestRecorderRejectsEmptyGeometry(t *testing.T) {
	if _, err := framesync.NewRecorder(framesync.Geometry{}, framesync.Color{}); err == nil {
		t.Fatal("empty geometry accepted")
	}
}

func TestRecorderRejectsDestroyedTarget(t *testing.T) {
	gpu := newGPU(t, fakegpu.Options{})
	surface := gpu.NewSurface(2, framesync.Extent{Width: 100, Height: 100})
	stale := surface.Targets()[0]
	if err := surface.Recreate(framesync.Extent{}); err != nil {
		t.Fatal(err)
	}

	recorder, _ := framesync.NewRecorder(squareGeometry(), framesync.Color{})
	buffer, _ := gpu.AllocateCommandBuffer()
	if err := recorder.Record(buffer, stale, surface.Extent()); err == nil {
		t.Fatal("recorded into a destroyed target")
	}
	if len(gpu.Violations()) != 1 {
		t.Errorf("violations %v", gpu.Violations())
	}
}
