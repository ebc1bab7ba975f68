// Package window wraps an SDL2 window as the event source of the render loop.
package window

import (
	"time"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/vkngwrapper/square/framesync"
)

type Options struct {
	Title  string
	Width  int
	Height int
	Logger log.FieldLogger
}

// Window is a resizable Vulkan-capable SDL2 window. SDL must be used from the thread that
// created the window, so callers lock their goroutine to the OS thread.
type Window struct {
	handle  *sdl.Window
	handler framesync.WindowHandler
	logger  log.FieldLogger
}

func New(opts Options) (*Window, error) {
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}

	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, errors.Wrap(err, "initializing SDL")
	}

	handle, err := sdl.CreateWindow(opts.Title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(opts.Width), int32(opts.Height), sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.Quit()
		return nil, errors.Wrap(err, "creating window")
	}

	return &Window{handle: handle, logger: opts.Logger}, nil
}

// SDL exposes the underlying window for surface creation.
func (w *Window) SDL() *sdl.Window {
	return w.handle
}

// DrawableSize is the size of the Vulkan drawable in pixels, which differs from the window
// size on high-DPI displays.
func (w *Window) DrawableSize() framesync.Extent {
	width, height := w.handle.VulkanGetDrawableSize()
	return framesync.Extent{Width: int(width), Height: int(height)}
}

func (w *Window) Register(handler framesync.WindowHandler) {
	w.handler = handler
}

func (w *Window) PollEvents() {
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		w.dispatch(event)
	}
}

// WaitEvents blocks for at most timeout, then dispatches everything pending.
func (w *Window) WaitEvents(timeout time.Duration) {
	event := sdl.WaitEventTimeout(int(timeout / time.Millisecond))
	if event == nil {
		return
	}
	w.dispatch(event)
	w.PollEvents()
}

func (w *Window) dispatch(event sdl.Event) {
	if w.handler == nil {
		return
	}

	switch e := event.(type) {
	case *sdl.QuitEvent:
		w.handler.CloseRequested()
	case *sdl.WindowEvent:
		if extent, ok := w.resizeFor(e.Event); ok {
			w.logger.WithField("extent", extent).Debug("window event")
			w.handler.Resized(extent)
		}
	}
}

// resizeFor maps window events to the size the renderer should target. A minimized window has
// nothing to render to and reports an empty extent.
func (w *Window) resizeFor(event uint8) (framesync.Extent, bool) {
	switch event {
	case sdl.WINDOWEVENT_MINIMIZED:
		return framesync.Extent{}, true
	case sdl.WINDOWEVENT_RESTORED, sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED:
		if w.handle.GetFlags()&sdl.WINDOW_MINIMIZED != 0 {
			return framesync.Extent{}, true
		}
		return w.DrawableSize(), true
	}
	return framesync.Extent{}, false
}

func (w *Window) Close() {
	if w.handle != nil {
		w.handle.Destroy()
		w.handle = nil
	}
	sdl.Quit()
}
