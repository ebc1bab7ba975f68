package framesync

import (
	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
)

// Presenter talks to the surface and turns its statuses into either errors or a pending
// recreation.
type Presenter struct {
	surface Surface
	logger  log.FieldLogger

	recreate bool
	reason   string
}

func NewPresenter(surface Surface, logger log.FieldLogger) *Presenter {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Presenter{surface: surface, logger: logger}
}

// AcquireImage blocks until the surface hands out an image for slot. An out of date surface
// returns ErrSurfaceStale and schedules recreation; a suboptimal one is used anyway.
func (p *Presenter) AcquireImage(slot *FrameSlot) (int, error) {
	image, status, err := p.surface.AcquireNextImage(slot.AcquireSemaphore)
	// The status is checked first: backends report out of date as both a status and an error.
	switch status {
	case StatusOutOfDate:
		p.RequestRecreation("acquire out of date")
		return -1, errors.Mark(errors.Newf("acquiring image for frame slot %d", slot.Index), ErrSurfaceStale)
	case StatusSuboptimal:
		if err == nil {
			p.RequestRecreation("acquire suboptimal")
		}
	}
	if err != nil {
		return -1, errors.Mark(errors.Wrapf(err, "acquiring image for frame slot %d", slot.Index), ErrAcquire)
	}
	return image, nil
}

// Present queues image for display. Out of date and suboptimal results only schedule
// recreation.
func (p *Presenter) Present(image *PresentableImage) error {
	status, err := p.surface.Present(image.Index, image.RenderFinished)
	switch status {
	case StatusOutOfDate:
		p.RequestRecreation("present out of date")
		return nil
	case StatusSuboptimal:
		if err == nil {
			p.RequestRecreation("present suboptimal")
		}
	}
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "presenting image %d", image.Index), ErrPresent)
	}
	return nil
}

// RequestRecreation marks the surface for recreation before the next acquire.
func (p *Presenter) RequestRecreation(reason string) {
	if !p.recreate {
		p.logger.WithField("reason", reason).Debug("surface recreation scheduled")
		p.reason = reason
	}
	p.recreate = true
}

func (p *Presenter) RecreationPending() bool {
	return p.recreate
}

func (p *Presenter) recreated() {
	p.recreate = false
	p.reason = ""
}
