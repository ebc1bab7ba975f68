package framesync

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// waitFence blocks until fence is signaled. It waits in slices of at most slice so a canceled
// context is noticed without spinning.
func waitFence(ctx context.Context, fence Fence, slice time.Duration) error {
	for {
		signaled, err := fence.Wait(slice)
		if err != nil {
			return errors.Wrap(err, "waiting for fence")
		}
		if signaled {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}
	}
}

// ImageFenceTable remembers, for every presentable image, the fence of the frame slot that last
// rendered to it. The table never owns the fences it holds.
type ImageFenceTable struct {
	fences  []Fence
	timeout time.Duration
}

func NewImageFenceTable(images int, fenceTimeout time.Duration) *ImageFenceTable {
	return &ImageFenceTable{
		fences:  make([]Fence, images),
		timeout: fenceTimeout,
	}
}

func (t *ImageFenceTable) Len() int {
	return len(t.fences)
}

// Fence returns the fence registered for image, or nil.
func (t *ImageFenceTable) Fence(image int) Fence {
	return t.fences[image]
}

// Claim waits until the slot that last rendered to image has finished, then registers fence as
// the image's new owner. Claiming with the fence that is already registered does not wait.
func (t *ImageFenceTable) Claim(ctx context.Context, image int, fence Fence) error {
	if image < 0 || image >= len(t.fences) {
		return errors.Newf("image index %d outside table of %d images", image, len(t.fences))
	}

	prior := t.fences[image]
	if prior != nil && prior != fence {
		if err := waitFence(ctx, prior, t.timeout); err != nil {
			return errors.Wrapf(err, "waiting for image %d", image)
		}
	}

	t.fences[image] = fence
	return nil
}

// Reset drops every entry and resizes the table for a new image count.
func (t *ImageFenceTable) Reset(images int) {
	t.fences = make([]Fence, images)
}
