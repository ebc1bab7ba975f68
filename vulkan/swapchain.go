package vulkan

import (
	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"
	"github.com/vkngwrapper/extensions/khr_swapchain"

	"github.com/vkngwrapper/square/framesync"
)

type SwapchainSupportDetails struct {
	Capabilities *khr_surface.SurfaceCapabilities
	Formats      []khr_surface.SurfaceFormat
	PresentModes []khr_surface.PresentMode
}

func querySwapchainSupport(surface khr_surface.Surface, device core1_0.PhysicalDevice) (SwapchainSupportDetails, error) {
	var details SwapchainSupportDetails
	var err error

	details.Capabilities, _, err = surface.PhysicalDeviceSurfaceCapabilities(device)
	if err != nil {
		return details, err
	}

	details.Formats, _, err = surface.PhysicalDeviceSurfaceFormats(device)
	if err != nil {
		return details, err
	}

	details.PresentModes, _, err = surface.PhysicalDeviceSurfacePresentModes(device)
	return details, err
}

func chooseSwapSurfaceFormat(availableFormats []khr_surface.SurfaceFormat) khr_surface.SurfaceFormat {
	for _, format := range availableFormats {
		if format.Format == core1_0.FormatB8G8R8A8SRGB && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format
		}
	}

	return availableFormats[0]
}

// chooseSwapPresentMode picks mailbox when preferred and available. FIFO is always supported.
func chooseSwapPresentMode(availablePresentModes []khr_surface.PresentMode, preferMailbox bool) khr_surface.PresentMode {
	if !preferMailbox {
		return khr_surface.PresentModeFIFO
	}
	for _, presentMode := range availablePresentModes {
		if presentMode == khr_surface.PresentModeMailbox {
			return presentMode
		}
	}

	return khr_surface.PresentModeFIFO
}

// chooseSwapExtent uses the surface's current extent unless the platform leaves the choice to
// the application, in which case drawable is clamped to the supported range.
func chooseSwapExtent(capabilities *khr_surface.SurfaceCapabilities, drawable framesync.Extent) core1_0.Extent2D {
	if capabilities.CurrentExtent.Width != -1 {
		return capabilities.CurrentExtent
	}

	width := clamp(drawable.Width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width)
	height := clamp(drawable.Height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height)
	return core1_0.Extent2D{Width: width, Height: height}
}

func chooseImageCount(capabilities *khr_surface.SurfaceCapabilities) int {
	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && capabilities.MaxImageCount < imageCount {
		imageCount = capabilities.MaxImageCount
	}
	return imageCount
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func statusFor(res common.VkResult) framesync.Status {
	switch res {
	case khr_swapchain.VKErrorOutOfDate:
		return framesync.StatusOutOfDate
	case khr_swapchain.VKSuboptimal:
		return framesync.StatusSuboptimal
	}
	return framesync.StatusSuccess
}

// Target is a framebuffer for one swapchain image.
type Target struct {
	framebuffer core1_0.Framebuffer
	renderPass  core1_0.RenderPass
}

type SwapchainOptions struct {
	PreferMailbox bool
	Logger        log.FieldLogger
}

// Swapchain implements framesync.Surface. It owns the swapchain, its image views, the render
// pass and one framebuffer per image.
type Swapchain struct {
	ctx       *Context
	opts      SwapchainOptions
	extension khr_swapchain.Extension

	swapchain   khr_swapchain.Swapchain
	format      core1_0.Format
	extent      core1_0.Extent2D
	presentMode khr_surface.PresentMode
	images      []core1_0.Image
	views       []core1_0.ImageView
	renderPass  core1_0.RenderPass
	targets     []*Target
}

func NewSwapchain(ctx *Context, opts SwapchainOptions) (*Swapchain, error) {
	if opts.Logger == nil {
		opts.Logger = ctx.logger
	}

	s := &Swapchain{
		ctx:       ctx,
		opts:      opts,
		extension: khr_swapchain.CreateExtensionFromDevice(ctx.device),
	}
	if err := s.create(framesync.Extent{}); err != nil {
		s.Destroy()
		return nil, err
	}
	return s, nil
}

func (s *Swapchain) create(requested framesync.Extent) error {
	support, err := querySwapchainSupport(s.ctx.surface, s.ctx.physicalDevice)
	if err != nil {
		return errors.Wrap(err, "querying swapchain support")
	}

	surfaceFormat := chooseSwapSurfaceFormat(support.Formats)
	if s.format != 0 && surfaceFormat.Format != s.format {
		return errors.Newf("surface format changed from %s to %s", s.format, surfaceFormat.Format)
	}
	s.presentMode = chooseSwapPresentMode(support.PresentModes, s.opts.PreferMailbox)

	drawable := requested
	if drawable.Empty() {
		w, h := s.ctx.window.VulkanGetDrawableSize()
		drawable = framesync.Extent{Width: int(w), Height: int(h)}
	}
	extent := chooseSwapExtent(support.Capabilities, drawable)
	if extent.Width == 0 || extent.Height == 0 {
		return errors.New("surface has zero extent")
	}

	sharingMode := core1_0.SharingModeExclusive
	var queueFamilyIndices []int
	graphics, present := *s.ctx.queues.GraphicsFamily, *s.ctx.queues.PresentFamily
	if graphics != present {
		sharingMode = core1_0.SharingModeConcurrent
		queueFamilyIndices = append(queueFamilyIndices, graphics, present)
	}

	s.swapchain, _, err = s.extension.CreateSwapchain(s.ctx.device, nil, khr_swapchain.SwapchainCreateInfo{
		Surface: s.ctx.surface,

		MinImageCount:    chooseImageCount(support.Capabilities),
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: queueFamilyIndices,

		PreTransform:   support.Capabilities.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    s.presentMode,
		Clipped:        true,
	})
	if err != nil {
		return errors.Wrap(err, "creating swapchain")
	}
	s.format = surfaceFormat.Format
	s.extent = extent

	if err := s.createImageViews(); err != nil {
		return err
	}
	if err := s.createRenderPass(); err != nil {
		return err
	}
	if err := s.createFramebuffers(); err != nil {
		return err
	}

	s.opts.Logger.WithFields(log.Fields{
		"images":      len(s.images),
		"format":      s.format,
		"presentMode": s.presentMode,
		"width":       extent.Width,
		"height":      extent.Height,
	}).Debug("swapchain created")
	return nil
}

func (s *Swapchain) createImageViews() error {
	images, _, err := s.swapchain.SwapchainImages()
	if err != nil {
		return errors.Wrap(err, "listing swapchain images")
	}
	s.images = images

	for i, image := range images {
		view, _, err := s.ctx.device.CreateImageView(nil, core1_0.ImageViewCreateInfo{
			Image:    image,
			ViewType: core1_0.ImageViewType2D,
			Format:   s.format,
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:     core1_0.ImageAspectColor,
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		})
		if err != nil {
			return errors.Wrapf(err, "creating image view %d", i)
		}
		s.views = append(s.views, view)
	}
	return nil
}

func (s *Swapchain) createRenderPass() error {
	renderPass, _, err := s.ctx.device.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         s.format,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
			},
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 0,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
			},
		},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass: core1_0.SubpassExternal,
				DstSubpass: 0,

				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				SrcAccessMask: 0,

				DstStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				DstAccessMask: core1_0.AccessColorAttachmentWrite,
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "creating render pass")
	}
	s.renderPass = renderPass
	return nil
}

func (s *Swapchain) createFramebuffers() error {
	for i, view := range s.views {
		framebuffer, _, err := s.ctx.device.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
			RenderPass:  s.renderPass,
			Layers:      1,
			Attachments: []core1_0.ImageView{view},
			Width:       s.extent.Width,
			Height:      s.extent.Height,
		})
		if err != nil {
			return errors.Wrapf(err, "creating framebuffer %d", i)
		}
		s.targets = append(s.targets, &Target{framebuffer: framebuffer, renderPass: s.renderPass})
	}
	return nil
}

// RenderPass is the render pass the pipeline must be compatible with. Recreation keeps the
// format, so pipelines built against an earlier render pass stay valid.
func (s *Swapchain) RenderPass() core1_0.RenderPass {
	return s.renderPass
}

func (s *Swapchain) Targets() []framesync.Target {
	targets := make([]framesync.Target, len(s.targets))
	for i, t := range s.targets {
		targets[i] = t
	}
	return targets
}

func (s *Swapchain) Extent() framesync.Extent {
	return framesync.Extent{Width: s.extent.Width, Height: s.extent.Height}
}

func (s *Swapchain) AcquireNextImage(signal framesync.Semaphore) (int, framesync.Status, error) {
	sem, ok := signal.(*Semaphore)
	if !ok {
		return -1, framesync.StatusSuccess, errors.Newf("unexpected semaphore type %T", signal)
	}

	imageIndex, res, err := s.swapchain.AcquireNextImage(common.NoTimeout, sem.handle, nil)
	return imageIndex, statusFor(res), err
}

func (s *Swapchain) Present(image int, wait framesync.Semaphore) (framesync.Status, error) {
	sem, ok := wait.(*Semaphore)
	if !ok {
		return framesync.StatusSuccess, errors.Newf("unexpected semaphore type %T", wait)
	}

	res, err := s.extension.QueuePresent(s.ctx.presentQueue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{sem.handle},
		Swapchains:     []khr_swapchain.Swapchain{s.swapchain},
		ImageIndices:   []int{image},
	})
	return statusFor(res), err
}

// Recreate rebuilds the swapchain and everything indexed by its images. The device must be
// idle.
func (s *Swapchain) Recreate(requested framesync.Extent) error {
	s.destroyImageResources()
	return s.create(requested)
}

func (s *Swapchain) destroyImageResources() {
	for _, target := range s.targets {
		target.framebuffer.Destroy(nil)
	}
	s.targets = nil

	if s.renderPass != nil {
		s.renderPass.Destroy(nil)
		s.renderPass = nil
	}

	for _, view := range s.views {
		view.Destroy(nil)
	}
	s.views = nil
	s.images = nil

	if s.swapchain != nil {
		s.swapchain.Destroy(nil)
		s.swapchain = nil
	}
}

func (s *Swapchain) Destroy() {
	s.destroyImageResources()
}
