package vulkan

import (
	"fmt"
	"math"
	"sync"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

type swapchainSupport struct {
	capabilities vk.SurfaceCapabilities
	formats      []vk.SurfaceFormat
	presentModes []vk.PresentMode
}

type Swapchain struct {
	mu      sync.Mutex
	device  *Device
	desc    metadata.SwapchainDescription
	surface vk.Surface
	handle  vk.Swapchain
	format  vk.SurfaceFormat
	frames  []*Resource
	index   uint32

	acquired bool
	released bool
	// incremented on every resize, part of the frame names
	generation uint32
}

func newSwapchain(d *Device, desc metadata.SwapchainDescription) (*Swapchain, error) {
	window, ok := desc.Surface.Handle().(*glfw.Window)
	if !ok || window == nil {
		return nil, fmt.Errorf("surface handle %T is not a glfw window", desc.Surface.Handle())
	}
	sc := &Swapchain{device: d, desc: desc}

	ptr, err := window.CreateWindowSurface(d.instance.handle, nil)
	if err != nil {
		return nil, fmt.Errorf("vulkan surface creation for %s failed: %w", sc.name(), err)
	}
	sc.surface = vk.SurfaceFromPointer(ptr)

	var supported vk.Bool32
	if err := check("vkGetPhysicalDeviceSurfaceSupport", vk.GetPhysicalDeviceSurfaceSupport(d.physical, d.queueFamily, sc.surface, &supported)); err != nil {
		sc.destroy()
		return nil, err
	}
	if supported != vk.True {
		sc.destroy()
		return nil, fmt.Errorf("queue family %d cannot present to %s", d.queueFamily, sc.name())
	}
	if err := sc.create(); err != nil {
		sc.destroy()
		return nil, err
	}
	core.LogInfo("swapchain %s created: %dx%d x%d", sc.name(), sc.desc.Width, sc.desc.Height, len(sc.frames))
	return sc, nil
}

func (sc *Swapchain) name() string {
	if n, ok := sc.desc.Surface.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("swapchain-%p", sc)
}

func (sc *Swapchain) querySupport() (*swapchainSupport, error) {
	d := sc.device
	s := &swapchainSupport{}
	if err := check("vkGetPhysicalDeviceSurfaceCapabilities", vk.GetPhysicalDeviceSurfaceCapabilities(d.physical, sc.surface, &s.capabilities)); err != nil {
		return nil, err
	}
	s.capabilities.Deref()
	s.capabilities.CurrentExtent.Deref()
	s.capabilities.MinImageExtent.Deref()
	s.capabilities.MaxImageExtent.Deref()

	var count uint32
	if err := check("vkGetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(d.physical, sc.surface, &count, nil)); err != nil {
		return nil, err
	}
	s.formats = make([]vk.SurfaceFormat, count)
	if err := check("vkGetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(d.physical, sc.surface, &count, s.formats)); err != nil {
		return nil, err
	}
	for i := range s.formats {
		s.formats[i].Deref()
	}

	count = 0
	if err := check("vkGetPhysicalDeviceSurfacePresentModes", vk.GetPhysicalDeviceSurfacePresentModes(d.physical, sc.surface, &count, nil)); err != nil {
		return nil, err
	}
	s.presentModes = make([]vk.PresentMode, count)
	if err := check("vkGetPhysicalDeviceSurfacePresentModes", vk.GetPhysicalDeviceSurfacePresentModes(d.physical, sc.surface, &count, s.presentModes)); err != nil {
		return nil, err
	}
	if len(s.formats) == 0 || len(s.presentModes) == 0 {
		return nil, fmt.Errorf("surface of %s reports no formats or present modes", sc.name())
	}
	return s, nil
}

// create builds the swapchain for sc.desc, retiring the current handle if
// there is one.
func (sc *Swapchain) create() error {
	d := sc.device
	support, err := sc.querySupport()
	if err != nil {
		return err
	}

	wanted, err := toFormat(sc.desc.Format)
	if err != nil {
		return err
	}
	sc.format = support.formats[0]
	found := false
	for _, f := range support.formats {
		if f.Format == wanted && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			sc.format = f
			found = true
			break
		}
	}
	if !found {
		core.LogWarn("%s: surface does not offer %s, using vulkan format %d", sc.name(), sc.desc.Format, sc.format.Format)
	}

	presentMode := vk.PresentModeFifo
	for _, mode := range support.presentModes {
		if mode == vk.PresentModeMailbox {
			presentMode = mode
			break
		}
	}

	caps := support.capabilities
	extent := vk.Extent2D{Width: sc.desc.Width, Height: sc.desc.Height}
	if caps.CurrentExtent.Width != math.MaxUint32 {
		extent = caps.CurrentExtent
	}
	extent.Width = core.Clamp(extent.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width)
	extent.Height = core.Clamp(extent.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height)
	if extent.Width == 0 || extent.Height == 0 {
		return fmt.Errorf("%w: surface of %s is %dx%d", core.ErrInvalidExtent, sc.name(), extent.Width, extent.Height)
	}

	imageCount := sc.desc.BufferCount
	if imageCount < caps.MinImageCount {
		imageCount = caps.MinImageCount
	}
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	old := sc.handle
	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          sc.surface,
		MinImageCount:    imageCount,
		ImageFormat:      sc.format.Format,
		ImageColorSpace:  sc.format.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     old,
	}
	var handle vk.Swapchain
	if err := check("vkCreateSwapchain", vk.CreateSwapchain(d.handle, &createInfo, nil, &handle)); err != nil {
		return err
	}
	sc.releaseFrames()
	if old != vk.NullSwapchain {
		vk.DestroySwapchain(d.handle, old, nil)
	}
	sc.handle = handle
	sc.desc.Width = extent.Width
	sc.desc.Height = extent.Height

	var count uint32
	if err := check("vkGetSwapchainImages", vk.GetSwapchainImages(d.handle, sc.handle, &count, nil)); err != nil {
		return err
	}
	images := make([]vk.Image, count)
	if err := check("vkGetSwapchainImages", vk.GetSwapchainImages(d.handle, sc.handle, &count, images)); err != nil {
		return err
	}
	sc.frames = make([]*Resource, 0, count)
	for i, image := range images {
		frame, err := newFrameResource(d, metadata.ResourceDescriptor{
			Name:             fmt.Sprintf("%s/frame%d.%d", sc.name(), i, sc.generation),
			Width:            extent.Width,
			Height:           extent.Height,
			DepthOrArraySize: 1,
			MipLevels:        1,
			Samples:          1,
			Format:           sc.desc.Format,
			Dimension:        metadata.ResourceDimension2D,
			Usage:            metadata.ResourceUsageRenderTarget,
			MemoryUsage:      metadata.MemoryUsageGPUOnly,
		}, image, sc.format.Format)
		if err != nil {
			return err
		}
		sc.frames = append(sc.frames, frame)
	}
	sc.index = 0
	return nil
}

func (sc *Swapchain) releaseFrames() {
	for _, f := range sc.frames {
		f.destroy()
	}
	sc.frames = nil
}

func (sc *Swapchain) context(ctx renderer.Context) (*Context, error) {
	c, ok := ctx.(*Context)
	if !ok || c == nil || c.device != sc.device {
		return nil, fmt.Errorf("context %T does not belong to this device", ctx)
	}
	return c, nil
}

func (sc *Swapchain) Prepare(ctx renderer.Context) error {
	c, err := sc.context(ctx)
	if err != nil {
		return err
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.released {
		return core.ErrSwapchainInactive
	}
	if sc.acquired {
		return fmt.Errorf("%w: %s", core.ErrFrameInFlight, sc.name())
	}
	slot, err := c.begin()
	if err != nil {
		return err
	}

	var index uint32
	result := vk.AcquireNextImage(sc.device.handle, sc.handle, math.MaxUint64, slot.imageAvailable, vk.NullFence, &index)
	if result != vk.Success && result != vk.Suboptimal {
		c.abort()
		if result == vk.ErrorOutOfDate {
			return fmt.Errorf("%w: %s is out of date and needs a resize", core.ErrInvalidState, sc.name())
		}
		return check("vkAcquireNextImage", result)
	}
	slot.acquired = true
	sc.index = index
	sc.acquired = true
	return nil
}

func (sc *Swapchain) CurrentFrame() (renderer.Resource, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if !sc.acquired {
		return nil, fmt.Errorf("%w: %s", core.ErrNoFrameAcquired, sc.name())
	}
	return sc.frames[sc.index], nil
}

func (sc *Swapchain) Resize(width, height uint32) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.released {
		return core.ErrSwapchainInactive
	}
	if sc.acquired {
		return fmt.Errorf("%w: resize of %s", core.ErrFrameInFlight, sc.name())
	}
	if width == 0 || height == 0 {
		return fmt.Errorf("%w: %dx%d", core.ErrInvalidExtent, width, height)
	}
	if n := sc.device.inFlight(); n > 0 {
		return fmt.Errorf("%w: %d frame(s) in flight, wait before resizing %s", core.ErrInvalidState, n, sc.name())
	}
	sc.desc.Width = width
	sc.desc.Height = height
	sc.generation++
	if err := sc.create(); err != nil {
		core.LogError("%s", err)
		return err
	}
	core.LogDebug("swapchain %s resized to %dx%d", sc.name(), sc.desc.Width, sc.desc.Height)
	return nil
}

func (sc *Swapchain) Present(ctx renderer.Context) error {
	c, err := sc.context(ctx)
	if err != nil {
		return err
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if !sc.acquired {
		return fmt.Errorf("%w: present of %s", core.ErrNoFrameAcquired, sc.name())
	}
	if c.isRecording() {
		return fmt.Errorf("%w: present before end", core.ErrRecording)
	}
	frame := sc.frames[sc.index]
	if st := frame.State(); st != metadata.ResourceStatePresent {
		return fmt.Errorf("%w: %s presented in state %s", core.ErrInvalidState, frame.Name(), st)
	}
	wait, err := c.presentWait()
	if err != nil {
		return err
	}

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{wait},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.handle},
		PImageIndices:      []uint32{sc.index},
	}
	var result vk.Result
	_ = sc.device.locks.safeCall(queueManagement, func() error {
		result = vk.QueuePresent(sc.device.queue, &presentInfo)
		return nil
	})
	sc.acquired = false
	switch result {
	case vk.Success:
		return nil
	case vk.Suboptimal, vk.ErrorOutOfDate:
		// The window resize event that follows recreates the swapchain.
		core.LogDebug("%s: present returned %s", sc.name(), resultString(result))
		return nil
	}
	return check("vkQueuePresent", result)
}

func (sc *Swapchain) Description() metadata.SwapchainDescription {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.desc
}

func (sc *Swapchain) Release() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.released {
		return fmt.Errorf("%w: swapchain %s", core.ErrResourceReleased, sc.name())
	}
	if sc.acquired {
		return fmt.Errorf("%w: release of %s", core.ErrFrameInFlight, sc.name())
	}
	if n := sc.device.inFlight(); n > 0 {
		return fmt.Errorf("%w: %d frame(s) in flight, wait before releasing %s", core.ErrInvalidState, n, sc.name())
	}
	sc.destroy()
	sc.released = true
	sc.device.forgetSwapchain(sc)
	core.LogDebug("swapchain %s released", sc.name())
	return nil
}

func (sc *Swapchain) destroy() {
	d := sc.device
	sc.releaseFrames()
	if sc.handle != vk.NullSwapchain {
		vk.DestroySwapchain(d.handle, sc.handle, nil)
		sc.handle = vk.NullSwapchain
	}
	if sc.surface != vk.NullSurface {
		vk.DestroySurface(d.instance.handle, sc.surface, nil)
		sc.surface = vk.NullSurface
	}
}
