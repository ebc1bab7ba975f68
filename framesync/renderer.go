package framesync

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
	"github.com/vkngwrapper/square/teardown"
)

const (
	DefaultFramesInFlight = 2
	DefaultFenceTimeout   = 100 * time.Millisecond
)

type Options struct {
	FramesInFlight int
	// FenceTimeout bounds a single fence wait slice. Cancellation is checked between slices.
	FenceTimeout time.Duration
	ClearColor   Color
	// StatsInterval is the number of frames between timing log lines. Zero disables them.
	StatsInterval int
	Logger        log.FieldLogger
}

func (o *Options) setDefaults() {
	if o.FramesInFlight == 0 {
		o.FramesInFlight = DefaultFramesInFlight
	}
	if o.FenceTimeout == 0 {
		o.FenceTimeout = DefaultFenceTimeout
	}
	if o.ClearColor == (Color{}) {
		o.ClearColor = Color{0, 0, 0, 1}
	}
	if o.Logger == nil {
		o.Logger = log.StandardLogger()
	}
}

// Renderer drives the frame loop over a device and a surface.
type Renderer struct {
	device  Device
	surface Surface
	opts    Options
	logger  log.FieldLogger

	scheduler *Scheduler
	presenter *Presenter
	recorder  *Recorder
	fences    *ImageFenceTable
	images    *imageSet
	stats     *frameStats

	state FrameState

	closeRequested  bool
	paused          bool
	requestedExtent Extent

	guards teardown.Stack
}

// NewRenderer creates the frame slots and the image-indexed resources for surface. It fails
// with ErrTooFewImages when the surface has fewer images than opts.FramesInFlight.
func NewRenderer(device Device, surface Surface, geometry Geometry, opts Options) (*Renderer, error) {
	opts.setDefaults()

	recorder, err := NewRecorder(geometry, opts.ClearColor)
	if err != nil {
		return nil, err
	}

	r := &Renderer{
		device:    device,
		surface:   surface,
		opts:      opts,
		logger:    opts.Logger,
		recorder:  recorder,
		presenter: NewPresenter(surface, opts.Logger),
		stats:     newFrameStats(opts.StatsInterval, opts.Logger),
	}
	r.guards.SetLogger(r.logger)

	r.scheduler, err = NewScheduler(device, opts.FramesInFlight, opts.FenceTimeout, r.logger)
	if err != nil {
		return nil, err
	}
	r.guards.Push("frame slots", r.scheduler.Destroy)

	r.images, err = buildImageSet(device, surface, r.logger)
	if err != nil {
		r.guards.Release()
		return nil, err
	}
	r.guards.Push("presentable images", func() { r.images.destroy() })

	if err := r.checkImageCount(); err != nil {
		r.guards.Release()
		return nil, err
	}
	r.fences = NewImageFenceTable(r.images.len(), opts.FenceTimeout)

	r.logger.WithFields(log.Fields{
		"framesInFlight": opts.FramesInFlight,
		"images":         r.images.len(),
		"extent":         r.images.extent,
		"swapchain":      r.images.generation,
	}).Info("renderer ready")

	return r, nil
}

func (r *Renderer) checkImageCount() error {
	if r.images.len() < r.scheduler.FramesInFlight() {
		return errors.Mark(
			errors.Wrapf(ErrTooFewImages, "%d images for %d frames in flight", r.images.len(), r.scheduler.FramesInFlight()),
			ErrCreation)
	}
	return nil
}

// Frame is the number of frames presented so far.
func (r *Renderer) Frame() uint64 {
	return r.scheduler.Frame()
}

func (r *Renderer) State() FrameState {
	return r.state
}

// ImageCount is the number of presentable images of the current surface generation.
func (r *Renderer) ImageCount() int {
	return r.images.len()
}

func (r *Renderer) Paused() bool {
	return r.paused
}

// Timings returns CPU timings for the frames since the last stats log line.
func (r *Renderer) Timings() FrameTimings {
	return r.stats.timings()
}

// Resized schedules recreation for the new window size. An empty extent pauses rendering until
// the window gets a usable size again.
func (r *Renderer) Resized(extent Extent) {
	r.logger.WithField("extent", extent).Debug("window resized")
	r.requestedExtent = extent
	r.paused = extent.Empty()
	r.presenter.RequestRecreation("window resized")
}

// CloseRequested stops the loop after the current iteration.
func (r *Renderer) CloseRequested() {
	r.logger.Debug("close requested")
	r.closeRequested = true
}

// DrawFrame runs one iteration of the loop. It returns nil when a frame was presented or when
// rendering is paused, an ErrSurfaceStale error when the iteration was skipped because the
// acquire found the surface out of date, and a fatal error otherwise.
func (r *Renderer) DrawFrame(ctx context.Context) error {
	if r.state == StateFailed {
		return errors.New("renderer failed earlier")
	}
	if r.paused {
		return nil
	}
	if r.presenter.RecreationPending() {
		if err := r.recreate(); err != nil {
			return r.fail(err)
		}
	}

	r.stats.begin()
	r.state.transition(StateAcquiring)

	slot, err := r.scheduler.BeginFrame(ctx)
	if err != nil {
		return r.fail(err)
	}

	imageIndex, err := r.presenter.AcquireImage(slot)
	if errors.Is(err, ErrSurfaceStale) {
		r.logger.WithFields(log.Fields{"slot": slot.Index, "frame": r.scheduler.Frame()}).Debug("skipping frame on stale surface")
		r.state.transition(StateStale)
		r.state.transition(StateIdle)
		return err
	} else if err != nil {
		return r.fail(err)
	}
	r.state.transition(StateAcquired)

	if imageIndex < 0 || imageIndex >= r.images.len() {
		return r.fail(errors.Mark(errors.Newf("surface returned image %d of %d", imageIndex, r.images.len()), ErrAcquire))
	}
	image := r.images.image(imageIndex)

	if err := r.fences.Claim(ctx, imageIndex, slot.Fence); err != nil {
		return r.fail(err)
	}
	if err := r.scheduler.Arm(slot); err != nil {
		return r.fail(err)
	}

	r.state.transition(StateRecording)
	if err := r.recorder.Record(slot.Commands, image.Target, r.images.extent); err != nil {
		return r.fail(err)
	}

	if err := r.scheduler.Submit(slot, image); err != nil {
		return r.fail(err)
	}
	r.state.transition(StateSubmitted)

	r.state.transition(StatePresenting)
	if err := r.presenter.Present(image); err != nil {
		return r.fail(err)
	}

	r.scheduler.Advance()
	r.state.transition(StateIdle)
	r.stats.end(r.scheduler.Frame())
	return nil
}

func (r *Renderer) fail(err error) error {
	r.state.transition(StateFailed)
	return err
}

// recreate rebuilds everything indexed by image. It runs only between iterations, never while
// a slot is between acquire and present.
func (r *Renderer) recreate() error {
	if err := r.device.WaitIdle(); err != nil {
		return errors.Wrap(err, "waiting for device idle before recreation")
	}

	previous := r.images.generation
	r.images.destroy()

	if err := r.surface.Recreate(r.requestedExtent); err != nil {
		return creationError(err, "recreating surface")
	}

	images, err := buildImageSet(r.device, r.surface, r.logger)
	if err != nil {
		return err
	}
	r.images = images

	if err := r.checkImageCount(); err != nil {
		return err
	}
	r.fences.Reset(r.images.len())
	r.presenter.recreated()

	r.logger.WithFields(log.Fields{
		"images":    r.images.len(),
		"extent":    r.images.extent,
		"swapchain": r.images.generation,
		"previous":  previous,
	}).Info("surface recreated")
	return nil
}

// RunLoop dispatches window events and draws frames until the window asks to close, ctx is
// canceled or a fatal error occurs. It always waits for the device to go idle before
// returning.
func (r *Renderer) RunLoop(ctx context.Context, events EventSource) error {
	events.Register(r)

	for {
		events.PollEvents()
		if r.closeRequested || ctx.Err() != nil {
			break
		}

		if r.paused {
			events.WaitEvents(r.opts.FenceTimeout)
			continue
		}

		err := r.DrawFrame(ctx)
		if err == nil || !IsFatal(err) {
			continue
		}
		if isCancellation(err) && ctx.Err() != nil {
			break
		}

		r.logger.WithError(err).Error("frame failed")
		if idleErr := r.device.WaitIdle(); idleErr != nil {
			r.logger.WithError(idleErr).Error("waiting for device idle after failure")
		}
		return err
	}

	r.logger.WithField("frame", r.scheduler.Frame()).Info("render loop stopped")
	return errors.Wrap(r.device.WaitIdle(), "waiting for device idle")
}

// Close waits for the device to go idle and releases the frame slots and image resources.
func (r *Renderer) Close() {
	if r.guards.Len() == 0 {
		return
	}
	if err := r.device.WaitIdle(); err != nil {
		r.logger.WithError(err).Error("waiting for device idle before release")
	}
	r.guards.Release()
}
