// Package vulkan implements the framesync collaborators on top of vkngwrapper.
package vulkan

import (
	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/ext_debug_utils"
	"github.com/vkngwrapper/extensions/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/khr_portability_subset"
	"github.com/vkngwrapper/extensions/khr_surface"
	"github.com/vkngwrapper/extensions/khr_swapchain"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2"

	"github.com/vkngwrapper/square/teardown"
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}
var deviceExtensions = []string{khr_swapchain.ExtensionName}

type Options struct {
	ApplicationName string
	// Validation enables the Khronos validation layer and forwards its messages to Logger.
	Validation bool
	Logger     log.FieldLogger
}

type QueueFamilyIndices struct {
	GraphicsFamily *int
	PresentFamily  *int
}

func (i *QueueFamilyIndices) IsComplete() bool {
	return i.GraphicsFamily != nil && i.PresentFamily != nil
}

// Context owns the instance, surface and logical device, and implements framesync.Device.
type Context struct {
	window *sdl.Window
	loader core.Loader
	opts   Options
	logger log.FieldLogger

	instance       core1_0.Instance
	debugMessenger ext_debug_utils.DebugUtilsMessenger
	surface        khr_surface.Surface

	physicalDevice core1_0.PhysicalDevice
	device         core1_0.Device
	queues         QueueFamilyIndices
	graphicsQueue  core1_0.Queue
	presentQueue   core1_0.Queue
	commandPool    core1_0.CommandPool

	guards teardown.Stack
}

// NewContext brings up Vulkan for window. On failure everything created so far is released.
func NewContext(window *sdl.Window, opts Options) (*Context, error) {
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.ApplicationName == "" {
		opts.ApplicationName = "Vulkan Square"
	}

	c := &Context{window: window, opts: opts, logger: opts.Logger}
	c.guards.SetLogger(c.logger)

	steps := []struct {
		name string
		run  func() error
	}{
		{"create loader", c.createLoader},
		{"create instance", c.createInstance},
		{"set up debug messenger", c.setupDebugMessenger},
		{"create surface", c.createSurface},
		{"pick physical device", c.pickPhysicalDevice},
		{"create logical device", c.createLogicalDevice},
		{"create command pool", c.createCommandPool},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			c.guards.Release()
			return nil, errors.Wrap(err, step.name)
		}
	}

	props, err := c.physicalDevice.Properties()
	if err == nil {
		c.logger.WithFields(log.Fields{
			"device": props.DeviceName,
			"api":    props.APIVersion,
		}).Info("vulkan device ready")
	}
	return c, nil
}

func (c *Context) createLoader() error {
	var err error
	c.loader, err = core.CreateLoaderFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	return err
}

func (c *Context) createInstance() error {
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    c.opts.ApplicationName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "No Engine",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	sdlExtensions := c.window.VulkanGetInstanceExtensions()
	extensions, _, err := c.loader.AvailableExtensions()
	if err != nil {
		return err
	}

	for _, ext := range sdlExtensions {
		if _, hasExt := extensions[ext]; !hasExt {
			return errors.Newf("missing instance extension %s", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	if c.opts.Validation {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
	}

	if _, enumerationSupported := extensions[khr_portability_enumeration.ExtensionName]; enumerationSupported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if c.opts.Validation {
		layers, _, err := c.loader.AvailableLayers()
		if err != nil {
			return err
		}

		for _, layer := range validationLayers {
			if _, hasValidation := layers[layer]; !hasValidation {
				return errors.Newf("validation layer %s not available, install the LunarG Vulkan SDK", layer)
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}

		instanceOptions.Next = c.debugMessengerOptions()
	}

	c.instance, _, err = c.loader.CreateInstance(nil, instanceOptions)
	if err != nil {
		return err
	}
	c.guards.Push("instance", func() { c.instance.Destroy(nil) })
	return nil
}

func (c *Context) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    c.logDebug,
	}
}

func (c *Context) setupDebugMessenger() error {
	if !c.opts.Validation {
		return nil
	}

	var err error
	debugLoader := ext_debug_utils.CreateExtensionFromInstance(c.instance)
	c.debugMessenger, _, err = debugLoader.CreateDebugUtilsMessenger(c.instance, nil, c.debugMessengerOptions())
	if err != nil {
		return err
	}
	c.guards.Push("debug messenger", func() { c.debugMessenger.Destroy(nil) })
	return nil
}

func (c *Context) logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	entry := c.logger.WithField("type", msgType.String())
	if severity&ext_debug_utils.SeverityError != 0 {
		entry.Error(data.Message)
	} else {
		entry.Warn(data.Message)
	}
	return false
}

func (c *Context) createSurface() error {
	surfaceLoader := khr_surface.CreateExtensionFromInstance(c.instance)

	surface, err := vkng_sdl2.CreateSurface(c.instance, surfaceLoader, c.window)
	if err != nil {
		return err
	}
	c.surface = surface
	c.guards.Push("surface", func() { c.surface.Destroy(nil) })
	return nil
}

func (c *Context) pickPhysicalDevice() error {
	physicalDevices, _, err := c.instance.EnumeratePhysicalDevices()
	if err != nil {
		return err
	}

	for _, device := range physicalDevices {
		if c.isDeviceSuitable(device) {
			c.physicalDevice = device
			break
		}
	}

	if c.physicalDevice == nil {
		return errors.New("no GPU with graphics and present support")
	}
	return nil
}

func (c *Context) isDeviceSuitable(device core1_0.PhysicalDevice) bool {
	indices, err := c.findQueueFamilies(device)
	if err != nil {
		return false
	}
	if !checkDeviceExtensionSupport(device) {
		return false
	}

	support, err := querySwapchainSupport(c.surface, device)
	if err != nil {
		return false
	}
	return indices.IsComplete() && len(support.Formats) > 0 && len(support.PresentModes) > 0
}

func checkDeviceExtensionSupport(device core1_0.PhysicalDevice) bool {
	extensions, _, err := device.EnumerateDeviceExtensionProperties()
	if err != nil {
		return false
	}

	for _, extension := range deviceExtensions {
		if _, hasExtension := extensions[extension]; !hasExtension {
			return false
		}
	}
	return true
}

func (c *Context) findQueueFamilies(device core1_0.PhysicalDevice) (QueueFamilyIndices, error) {
	indices := QueueFamilyIndices{}
	queueFamilies := device.QueueFamilyProperties()

	for queueFamilyIdx, queueFamily := range queueFamilies {
		if (queueFamily.QueueFlags & core1_0.QueueGraphics) != 0 {
			indices.GraphicsFamily = new(int)
			*indices.GraphicsFamily = queueFamilyIdx
		}

		supported, _, err := c.surface.PhysicalDeviceSurfaceSupport(device, queueFamilyIdx)
		if err != nil {
			return indices, err
		}

		if supported {
			indices.PresentFamily = new(int)
			*indices.PresentFamily = queueFamilyIdx
		}

		if indices.IsComplete() {
			break
		}
	}

	return indices, nil
}

func (c *Context) createLogicalDevice() error {
	indices, err := c.findQueueFamilies(c.physicalDevice)
	if err != nil {
		return err
	}
	c.queues = indices

	uniqueQueueFamilies := []int{*indices.GraphicsFamily}
	if uniqueQueueFamilies[0] != *indices.PresentFamily {
		uniqueQueueFamilies = append(uniqueQueueFamilies, *indices.PresentFamily)
	}

	var queueFamilyOptions []core1_0.DeviceQueueCreateInfo
	for _, queueFamily := range uniqueQueueFamilies {
		queueFamilyOptions = append(queueFamilyOptions, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: queueFamily,
			QueuePriorities:  []float32{1.0},
		})
	}

	extensionNames := append([]string(nil), deviceExtensions...)

	// Required on portability implementations such as MoltenVK.
	extensions, _, err := c.physicalDevice.EnumerateDeviceExtensionProperties()
	if err != nil {
		return err
	}
	if _, supported := extensions[khr_portability_subset.ExtensionName]; supported {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	c.device, _, err = c.physicalDevice.CreateDevice(nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos:      queueFamilyOptions,
		EnabledFeatures:       &core1_0.PhysicalDeviceFeatures{},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return err
	}
	c.guards.Push("device", func() { c.device.Destroy(nil) })

	c.graphicsQueue = c.device.GetQueue(*indices.GraphicsFamily, 0)
	c.presentQueue = c.device.GetQueue(*indices.PresentFamily, 0)
	return nil
}

func (c *Context) createCommandPool() error {
	pool, _, err := c.device.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateResetBuffer,
		QueueFamilyIndex: *c.queues.GraphicsFamily,
	})
	if err != nil {
		return err
	}
	c.commandPool = pool
	c.guards.Push("command pool", func() { c.commandPool.Destroy(nil) })
	return nil
}

// Close destroys the device, surface and instance. Every object created from the context must
// be destroyed first.
func (c *Context) Close() {
	c.guards.Release()
}
