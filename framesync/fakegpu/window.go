package fakegpu

import (
	"time"

	"github.com/vkngwrapper/square/framesync"
)

// Window implements framesync.EventSource. OnPoll runs on every PollEvents and WaitEvents call
// and may deliver events to the registered handler.
type Window struct {
	OnPoll func(poll int, handler framesync.WindowHandler)

	handler framesync.WindowHandler
	polls   int
	waits   int
}

// CloseAfter returns a window that requests close on poll n.
func CloseAfter(n int) *Window {
	return &Window{
		OnPoll: func(poll int, handler framesync.WindowHandler) {
			if poll >= n {
				handler.CloseRequested()
			}
		},
	}
}

func (w *Window) Register(handler framesync.WindowHandler) {
	w.handler = handler
}

func (w *Window) PollEvents() {
	w.polls++
	if w.OnPoll != nil && w.handler != nil {
		w.OnPoll(w.polls, w.handler)
	}
}

func (w *Window) WaitEvents(timeout time.Duration) {
	w.waits++
	w.PollEvents()
}

func (w *Window) Polls() int {
	return w.polls
}

// Waits is the number of blocking waits the loop made, one per paused iteration.
func (w *Window) Waits() int {
	return w.waits
}
