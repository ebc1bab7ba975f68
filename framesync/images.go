package framesync

import (
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/vkngwrapper/square/teardown"
)

// PresentableImage is one image of the surface together with the resources indexed by it.
type PresentableImage struct {
	Index          int
	RenderFinished Semaphore
	Target         Target
}

// imageSet is everything that depends on the current surface images. It is thrown away and
// rebuilt whole on recreation.
type imageSet struct {
	images     []*PresentableImage
	extent     Extent
	generation uuid.UUID
	guards     teardown.Stack
}

func buildImageSet(device Device, surface Surface, logger log.FieldLogger) (*imageSet, error) {
	set := &imageSet{
		extent:     surface.Extent(),
		generation: uuid.New(),
	}
	set.guards.SetLogger(logger)

	for i, target := range surface.Targets() {
		semaphore, err := device.CreateSemaphore()
		if err != nil {
			set.destroy()
			return nil, creationError(err, "creating render-finished semaphore for image %d", i)
		}
		set.guards.Push("render-finished semaphore", semaphore.Destroy)

		set.images = append(set.images, &PresentableImage{
			Index:          i,
			RenderFinished: semaphore,
			Target:         target,
		})
	}

	return set, nil
}

func (s *imageSet) len() int {
	return len(s.images)
}

func (s *imageSet) image(index int) *PresentableImage {
	return s.images[index]
}

func (s *imageSet) destroy() {
	s.guards.Release()
	s.images = nil
}
