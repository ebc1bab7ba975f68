package framesync_test

import (
	"context"
	"io"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vkngwrapper/square/framesync"
	"github.com/vkngwrapper/square/framesync/fakegpu"
)

const testTimeout = 5 * time.Second

func quietLogger() log.FieldLogger {
	logger := log.New()
	logger.Out = io.Discard
	return logger
}

func squareGeometry() framesync.Geometry {
	return framesync.Geometry{
		Pipeline:     "pipeline",
		VertexBuffer: "vertices",
		IndexBuffer:  "indices",
		IndexType:    framesync.IndexUint16,
		IndexCount:   6,
	}
}

type rig struct {
	gpu      *fakegpu.GPU
	surface  *fakegpu.Surface
	renderer *framesync.Renderer
}

func newGPU(t *testing.T, opts fakegpu.Options) *fakegpu.GPU {
	t.Helper()
	gpu := fakegpu.New(opts)
	t.Cleanup(func() {
		if err := gpu.Close(); err != nil {
			t.Errorf("closing gpu: %v", err)
		}
	})
	return gpu
}

func newRig(t *testing.T, framesInFlight, images int) *rig {
	t.Helper()

	gpu := newGPU(t, fakegpu.Options{Latency: time.Millisecond, PresentLatency: time.Millisecond})
	surface := gpu.NewSurface(images, framesync.Extent{Width: 800, Height: 600})

	renderer, err := framesync.NewRenderer(gpu, surface, squareGeometry(), framesync.Options{
		FramesInFlight: framesInFlight,
		FenceTimeout:   10 * time.Millisecond,
		Logger:         quietLogger(),
	})
	if err != nil {
		t.Fatalf("creating renderer: %+v", err)
	}
	t.Cleanup(renderer.Close)

	return &rig{gpu: gpu, surface: surface, renderer: renderer}
}

func (r *rig) draw(t *testing.T) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	return r.renderer.DrawFrame(ctx)
}

func (r *rig) mustDraw(t *testing.T) {
	t.Helper()
	if err := r.draw(t); err != nil {
		t.Fatalf("frame %d: %+v", r.renderer.Frame(), err)
	}
}

func (r *rig) checkClean(t *testing.T) {
	t.Helper()
	if err := r.gpu.WaitIdle(); err != nil {
		t.Fatalf("waiting for idle: %v", err)
	}
	for _, v := range r.gpu.Violations() {
		t.Errorf("violation: %s", v)
	}
}

func indexOf(events []string, event string, from int) int {
	for i := from; i < len(events); i++ {
		if events[i] == event {
			return i
		}
	}
	return -1
}

func drawCalls(commands []fakegpu.Command) []fakegpu.Command {
	var draws []fakegpu.Command
	for _, cmd := range commands {
		if cmd.Op == fakegpu.OpDrawIndexed {
			draws = append(draws, cmd)
		}
	}
	return draws
}

func targetOf(commands []fakegpu.Command) *fakegpu.Target {
	for _, cmd := range commands {
		if cmd.Op == fakegpu.OpBeginRenderPass {
			return cmd.Target
		}
	}
	return nil
}
