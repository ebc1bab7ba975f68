package vulkan

import (
	"testing"

	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"
	"github.com/vkngwrapper/extensions/khr_swapchain"

	"github.com/vkngwrapper/square/framesync"
)

func TestChooseSwapSurfaceFormat(t *testing.T) {
	srgb := khr_surface.SurfaceFormat{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear}
	other := khr_surface.SurfaceFormat{Format: core1_0.FormatR8G8B8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear}

	if got := chooseSwapSurfaceFormat([]khr_surface.SurfaceFormat{other, srgb}); got != srgb {
		t.Errorf("got %v, want sRGB", got)
	}
	if got := chooseSwapSurfaceFormat([]khr_surface.SurfaceFormat{other}); got != other {
		t.Errorf("got %v, want first format", got)
	}
}

func TestChooseSwapPresentMode(t *testing.T) {
	tests := []struct {
		name      string
		available []khr_surface.PresentMode
		mailbox   bool
		want      khr_surface.PresentMode
	}{
		{"mailbox available", []khr_surface.PresentMode{khr_surface.PresentModeFIFO, khr_surface.PresentModeMailbox}, true, khr_surface.PresentModeMailbox},
		{"mailbox missing", []khr_surface.PresentMode{khr_surface.PresentModeFIFO}, true, khr_surface.PresentModeFIFO},
		{"fifo requested", []khr_surface.PresentMode{khr_surface.PresentModeMailbox, khr_surface.PresentModeFIFO}, false, khr_surface.PresentModeFIFO},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := chooseSwapPresentMode(test.available, test.mailbox); got != test.want {
				t.Errorf("got %v, want %v", got, test.want)
			}
		})
	}
}

func TestChooseSwapExtent(t *testing.T) {
	fixed := &khr_surface.SurfaceCapabilities{
		CurrentExtent: core1_0.Extent2D{Width: 800, Height: 600},
	}
	if got := chooseSwapExtent(fixed, framesync.Extent{Width: 1024, Height: 768}); got != fixed.CurrentExtent {
		t.Errorf("current extent ignored: %v", got)
	}

	free := &khr_surface.SurfaceCapabilities{
		CurrentExtent:  core1_0.Extent2D{Width: -1, Height: -1},
		MinImageExtent: core1_0.Extent2D{Width: 16, Height: 16},
		MaxImageExtent: core1_0.Extent2D{Width: 4096, Height: 2048},
	}
	tests := []struct {
		drawable framesync.Extent
		want     core1_0.Extent2D
	}{
		{framesync.Extent{Width: 1024, Height: 768}, core1_0.Extent2D{Width: 1024, Height: 768}},
		{framesync.Extent{Width: 8, Height: 8000}, core1_0.Extent2D{Width: 16, Height: 2048}},
	}
	for _, test := range tests {
		if got := chooseSwapExtent(free, test.drawable); got != test.want {
			t.Errorf("drawable %v: got %v, want %v", test.drawable, got, test.want)
		}
	}
}

func TestChooseImageCount(t *testing.T) {
	tests := []struct {
		min, max int
		want     int
	}{
		{2, 0, 3},
		{2, 8, 3},
		{3, 3, 3},
	}
	for _, test := range tests {
		caps := &khr_surface.SurfaceCapabilities{MinImageCount: test.min, MaxImageCount: test.max}
		if got := chooseImageCount(caps); got != test.want {
			t.Errorf("min %d max %d: got %d, want %d", test.min, test.max, got, test.want)
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		res  common.VkResult
		want framesync.Status
	}{
		{common.VkResult(0), framesync.StatusSuccess},
		{khr_swapchain.VKSuboptimal, framesync.StatusSuboptimal},
		{khr_swapchain.VKErrorOutOfDate, framesync.StatusOutOfDate},
	}
	for _, test := range tests {
		if got := statusFor(test.res); got != test.want {
			t.Errorf("%v: got %s, want %s", test.res, got, test.want)
		}
	}
}
