package framesync_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/square/framesync"
	"github.com/vkngwrapper/square/framesync/fakegpu"
)

func TestSteadyStateSlotRotation(t *testing.T) {
	r := newRig(t, 2, 3)

	var slots []int
	for i := 0; i < 6; i++ {
		slots = append(slots, int(r.renderer.Frame()%2))
		r.mustDraw(t)
	}

	want := []int{0, 1, 0, 1, 0, 1}
	for i := range want {
		if slots[i] != want[i] {
			t.Fatalf("slot sequence %v, want %v", slots, want)
		}
	}
	if r.renderer.Frame() != 6 {
		t.Errorf("frame counter %d, want 6", r.renderer.Frame())
	}

	r.checkClean(t)
	perImage := map[int]int{}
	for _, exec := range r.gpu.Executions() {
		perImage[targetOf(exec.Commands).Image]++
	}
	for image, uses := range perImage {
		if uses > 3 {
			t.Errorf("image %d rendered %d times", image, uses)
		}
	}
	if r.renderer.State() != framesync.StateIdle {
		t.Errorf("state %s after presented frames", r.renderer.State())
	}
}

func TestStaleAcquireSkipsFrame(t *testing.T) {
	r := newRig(t, 2, 3)
	r.surface.ScriptAcquire(3, framesync.StatusOutOfDate)

	r.mustDraw(t)
	r.mustDraw(t)

	err := r.draw(t)
	if !errors.Is(err, framesync.ErrSurfaceStale) {
		t.Fatalf("third frame: got %v, want stale", err)
	}
	if framesync.IsFatal(err) {
		t.Fatal("stale surface reported as fatal")
	}
	if r.renderer.Frame() != 2 {
		t.Fatalf("frame counter advanced on stale acquire: %d", r.renderer.Frame())
	}
	if r.renderer.State() != framesync.StateIdle {
		t.Fatalf("state %s after stale frame", r.renderer.State())
	}
	if r.surface.Recreations() != 0 {
		t.Fatal("recreated before the next iteration")
	}

	r.mustDraw(t)

	events := r.gpu.Events()
	recreate := indexOf(events, "recreate 2", 0)
	acquire := indexOf(events, "acquire 4", 0)
	if recreate < 0 || acquire < 0 || recreate > acquire {
		t.Fatalf("recreation not before fourth acquire: %v", events)
	}
	if r.renderer.Frame() != 3 {
		t.Errorf("frame counter %d after recovery", r.renderer.Frame())
	}
	r.checkClean(t)
}

func TestResizeRecreatesBehindIdleBarrier(t *testing.T) {
	r := newRig(t, 2, 3)
	r.mustDraw(t)
	r.mustDraw(t)

	before := len(r.gpu.Events())
	r.surface.SetImageCount(4)
	r.renderer.Resized(framesync.Extent{Width: 1024, Height: 768})
	r.mustDraw(t)

	events := r.gpu.Events()
	idle := indexOf(events, "idle", before)
	destroy := indexOf(events, "destroy semaphore", before)
	recreate := indexOf(events, "recreate 2", before)
	if idle < 0 || destroy < 0 || recreate < 0 {
		t.Fatalf("missing recreation events: %v", events[before:])
	}
	if idle > destroy || destroy > recreate {
		t.Fatalf("idle wait must precede destruction and recreation: %v", events[before:])
	}

	if r.renderer.ImageCount() != 4 {
		t.Errorf("image count %d, want 4", r.renderer.ImageCount())
	}
	if got := r.surface.Extent(); got != (framesync.Extent{Width: 1024, Height: 768}) {
		t.Errorf("extent %+v", got)
	}

	r.checkClean(t)
	executions := r.gpu.Executions()
	last := executions[len(executions)-1].Commands
	target := targetOf(last)
	if target.Generation != 2 {
		t.Errorf("last frame rendered into generation %d", target.Generation)
	}
	for _, cmd := range last {
		if cmd.Op == fakegpu.OpSetViewport && (cmd.Viewport.Width != 1024 || cmd.Viewport.Height != 768) {
			t.Errorf("viewport %+v after resize", cmd.Viewport)
		}
	}
}

func TestEveryFrameDrawsSquareOnce(t *testing.T) {
	r := newRig(t, 2, 3)
	for i := 0; i < 9; i++ {
		r.mustDraw(t)
	}
	r.checkClean(t)

	images := map[int]bool{}
	for _, exec := range r.gpu.Executions() {
		draws := drawCalls(exec.Commands)
		if len(draws) != 1 {
			t.Fatalf("submission %d has %d draws", exec.Sequence, len(draws))
		}
		if draws[0].IndexCount != 6 || draws[0].InstanceCount != 1 {
			t.Errorf("draw %+v", draws[0])
		}
		images[targetOf(exec.Commands).Image] = true
	}
	if len(images) < 2 {
		t.Errorf("only %d distinct images used", len(images))
	}
}

func TestMoreFramesThanImagesRejected(t *testing.T) {
	gpu := newGPU(t, fakegpu.Options{})
	surface := gpu.NewSurface(1, framesync.Extent{Width: 640, Height: 480})

	_, err := framesync.NewRenderer(gpu, surface, squareGeometry(), framesync.Options{
		FramesInFlight: 2,
		Logger:         quietLogger(),
	})
	if !errors.Is(err, framesync.ErrTooFewImages) {
		t.Fatalf("got %v, want too few images", err)
	}
	if !errors.Is(err, framesync.ErrCreation) || !framesync.IsFatal(err) {
		t.Errorf("too few images must be a fatal creation failure: %v", err)
	}
	for _, kind := range []fakegpu.Kind{fakegpu.KindFence, fakegpu.KindSemaphore, fakegpu.KindCommandBuffer} {
		if n := gpu.Live(kind); n != 0 {
			t.Errorf("%d %s objects leaked", n, kind)
		}
	}
}

func TestCreationFailureReleasesPartialState(t *testing.T) {
	gpu := newGPU(t, fakegpu.Options{})
	surface := gpu.NewSurface(3, framesync.Extent{Width: 640, Height: 480})
	gpu.FailCreation(fakegpu.KindFence, 2, errors.New("out of device memory"))

	_, err := framesync.NewRenderer(gpu, surface, squareGeometry(), framesync.Options{
		FramesInFlight: 2,
		Logger:         quietLogger(),
	})
	if !errors.Is(err, framesync.ErrCreation) {
		t.Fatalf("got %v, want creation failure", err)
	}
	for _, kind := range []fakegpu.Kind{fakegpu.KindFence, fakegpu.KindSemaphore, fakegpu.KindCommandBuffer} {
		if n := gpu.Live(kind); n != 0 {
			t.Errorf("%d %s objects leaked", n, kind)
		}
	}
}

func TestPresentOutOfDateAdvancesAndRecreates(t *testing.T) {
	r := newRig(t, 2, 3)
	r.surface.ScriptPresent(2, framesync.StatusOutOfDate)

	r.mustDraw(t)
	r.mustDraw(t)
	if r.renderer.Frame() != 2 {
		t.Fatalf("frame counter %d, present out of date must still advance", r.renderer.Frame())
	}
	if r.surface.Recreations() != 0 {
		t.Fatal("recreated inside the iteration")
	}

	r.mustDraw(t)
	if r.surface.Recreations() != 1 {
		t.Errorf("recreations %d, want 1", r.surface.Recreations())
	}
	r.checkClean(t)
}

func TestSuboptimalAcquireStillPresents(t *testing.T) {
	r := newRig(t, 2, 3)
	r.surface.ScriptAcquire(1, framesync.StatusSuboptimal)

	r.mustDraw(t)
	if r.renderer.Frame() != 1 {
		t.Fatalf("suboptimal frame not presented")
	}

	r.mustDraw(t)
	if r.surface.Recreations() != 1 {
		t.Errorf("recreations %d, want 1", r.surface.Recreations())
	}
	r.checkClean(t)
}

func TestFatalSubmitStopsLoop(t *testing.T) {
	r := newRig(t, 2, 3)
	r.gpu.FailNextSubmit(errors.New("device lost"))

	window := &fakegpu.Window{}
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	err := r.renderer.RunLoop(ctx, window)
	if !errors.Is(err, framesync.ErrSubmission) || !framesync.IsFatal(err) {
		t.Fatalf("got %v, want fatal submission error", err)
	}
	if r.renderer.State() != framesync.StateFailed {
		t.Errorf("state %s", r.renderer.State())
	}
	events := r.gpu.Events()
	if events[len(events)-1] != "idle" {
		t.Errorf("loop returned without an idle wait: %v", events)
	}
}

func TestRunLoopStopsOnClose(t *testing.T) {
	r := newRig(t, 2, 3)

	window := fakegpu.CloseAfter(5)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	if err := r.renderer.RunLoop(ctx, window); err != nil {
		t.Fatalf("%+v", err)
	}
	if r.renderer.Frame() != 4 {
		t.Errorf("drew %d frames before close", r.renderer.Frame())
	}
	if r.gpu.Busy() {
		t.Error("loop returned with work in flight")
	}

	r.renderer.Close()
	r.renderer.Close()
	for _, kind := range []fakegpu.Kind{fakegpu.KindFence, fakegpu.KindSemaphore, fakegpu.KindCommandBuffer} {
		if n := r.gpu.Live(kind); n != 0 {
			t.Errorf("%d %s objects left after close", n, kind)
		}
	}
	for _, v := range r.gpu.Violations() {
		t.Errorf("violation: %s", v)
	}
}

func TestRunLoopStopsOnCancel(t *testing.T) {
	r := newRig(t, 2, 3)

	ctx, cancel := context.WithCancel(context.Background())
	window := &fakegpu.Window{
		OnPoll: func(poll int, handler framesync.WindowHandler) {
			if poll == 3 {
				cancel()
			}
		},
	}

	if err := r.renderer.RunLoop(ctx, window); err != nil {
		t.Fatalf("%+v", err)
	}
	if r.renderer.Frame() != 2 {
		t.Errorf("drew %d frames", r.renderer.Frame())
	}
	r.checkClean(t)
}

func TestMinimizedWindowPauses(t *testing.T) {
	r := newRig(t, 2, 3)

	window := &fakegpu.Window{
		OnPoll: func(poll int, handler framesync.WindowHandler) {
			switch poll {
			case 2:
				handler.Resized(framesync.Extent{})
			case 6:
				handler.Resized(framesync.Extent{Width: 320, Height: 200})
			case 8:
				handler.CloseRequested()
			}
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := r.renderer.RunLoop(ctx, window); err != nil {
		t.Fatalf("%+v", err)
	}

	// Poll 1 draws, polls 2 to 5 are two minimized iterations, polls 6 and 7 draw.
	if r.renderer.Frame() != 3 {
		t.Errorf("drew %d frames", r.renderer.Frame())
	}
	if window.Waits() != 2 {
		t.Errorf("waited %d times while minimized", window.Waits())
	}
	if r.surface.Recreations() != 1 {
		t.Errorf("recreations %d, want one after restore", r.surface.Recreations())
	}
	if got := r.surface.Extent(); got != (framesync.Extent{Width: 320, Height: 200}) {
		t.Errorf("extent %+v", got)
	}
	r.checkClean(t)
}

func TestDrawFrameWhilePausedDoesNothing(t *testing.T) {
	r := newRig(t, 2, 3)
	r.renderer.Resized(framesync.Extent{Width: 0, Height: 600})

	r.mustDraw(t)
	if r.surface.Acquires() != 0 || r.renderer.Frame() != 0 {
		t.Errorf("paused renderer acquired %d images", r.surface.Acquires())
	}
	if !r.renderer.Paused() {
		t.Error("not paused")
	}
}

func TestRecreationFailureIsFatal(t *testing.T) {
	r := newRig(t, 2, 3)
	r.mustDraw(t)

	r.surface.FailRecreate(errors.New("surface lost"))
	r.renderer.Resized(framesync.Extent{Width: 640, Height: 480})

	err := r.draw(t)
	if !errors.Is(err, framesync.ErrCreation) {
		t.Fatalf("got %v, want creation failure", err)
	}
}

func TestShrinkBelowFramesInFlightIsFatal(t *testing.T) {
	r := newRig(t, 2, 3)
	r.mustDraw(t)

	r.surface.SetImageCount(1)
	r.renderer.Resized(framesync.Extent{Width: 640, Height: 480})

	err := r.draw(t)
	if !errors.Is(err, framesync.ErrTooFewImages) {
		t.Fatalf("got %v, want too few images", err)
	}
}

func TestNoViolationsUnderSlowGPU(t *testing.T) {
	gpu := newGPU(t, fakegpu.Options{Latency: 5 * time.Millisecond, PresentLatency: 3 * time.Millisecond})
	surface := gpu.NewSurface(3, framesync.Extent{Width: 800, Height: 600})
	renderer, err := framesync.NewRenderer(gpu, surface, squareGeometry(), framesync.Options{
		FramesInFlight: 2,
		FenceTimeout:   time.Millisecond,
		Logger:         quietLogger(),
	})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer renderer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	for i := 0; i < 20; i++ {
		if i == 10 {
			renderer.Resized(framesync.Extent{Width: 400, Height: 300})
		}
		if err := renderer.DrawFrame(ctx); err != nil {
			t.Fatalf("frame %d: %+v", i, err)
		}
	}

	if err := gpu.WaitIdle(); err != nil {
		t.Fatal(err)
	}
	for _, v := range gpu.Violations() {
		t.Errorf("violation: %s", v)
	}
}
