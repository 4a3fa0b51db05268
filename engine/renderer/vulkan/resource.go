package vulkan

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

// Resource is an image with its memory and a view over every subresource.
// Swapchain frames wrap images owned by the swapchain and only own the view.
type Resource struct {
	mu     sync.Mutex
	id     uuid.UUID
	device *Device
	desc   metadata.ResourceDescriptor
	state  metadata.ResourceState
	// layout the image is actually in; starts undefined whatever the state
	layout             vk.ImageLayout
	releaseImmediately bool
	released           bool
	destroyed          bool

	image  vk.Image
	memory vk.DeviceMemory
	view   vk.ImageView
	// owned by a swapchain, released with it
	swapchainOwned bool
}

func newImageResource(d *Device, desc metadata.ResourceDescriptor, state metadata.ResourceState) (*Resource, error) {
	format, err := toFormat(desc.Format)
	if err != nil {
		return nil, err
	}
	r := &Resource{
		id:     uuid.New(),
		device: d,
		desc:   desc,
		state:  state,
		layout: vk.ImageLayoutUndefined,
	}

	depth := desc.DepthOrArraySize
	if depth == 0 {
		depth = 1
	}
	mips := desc.MipLevels
	if mips == 0 {
		mips = 1
	}
	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     mips,
		ArrayLayers:   depth,
		Format:        format,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         imageUsage(desc.Usage),
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}
	if err := check("vkCreateImage", vk.CreateImage(d.handle, &imageInfo, nil, &r.image)); err != nil {
		return nil, err
	}

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.handle, r.image, &requirements)
	requirements.Deref()
	index := d.findMemoryIndex(requirements.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if index < 0 {
		r.destroy()
		return nil, fmt.Errorf("no device local memory type for %s", desc.Name)
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(index),
	}
	if err := check("vkAllocateMemory", vk.AllocateMemory(d.handle, &allocInfo, nil, &r.memory)); err != nil {
		r.destroy()
		return nil, err
	}
	if err := check("vkBindImageMemory", vk.BindImageMemory(d.handle, r.image, r.memory, 0)); err != nil {
		r.destroy()
		return nil, err
	}
	if err := r.createView(format); err != nil {
		r.destroy()
		return nil, err
	}
	return r, nil
}

// newFrameResource wraps a swapchain image.
func newFrameResource(d *Device, desc metadata.ResourceDescriptor, image vk.Image, format vk.Format) (*Resource, error) {
	r := &Resource{
		id:             uuid.New(),
		device:         d,
		desc:           desc,
		state:          metadata.ResourceStateUndefined,
		layout:         vk.ImageLayoutUndefined,
		image:          image,
		swapchainOwned: true,
	}
	if err := r.createView(format); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Resource) subresourceRange() vk.ImageSubresourceRange {
	layers := r.desc.DepthOrArraySize
	if layers == 0 {
		layers = 1
	}
	mips := r.desc.MipLevels
	if mips == 0 {
		mips = 1
	}
	return vk.ImageSubresourceRange{
		AspectMask:     aspectOf(r.desc.Format),
		BaseMipLevel:   0,
		LevelCount:     mips,
		BaseArrayLayer: 0,
		LayerCount:     layers,
	}
}

func (r *Resource) createView(format vk.Format) error {
	viewInfo := vk.ImageViewCreateInfo{
		SType:            vk.StructureTypeImageViewCreateInfo,
		Image:            r.image,
		ViewType:         vk.ImageViewType2d,
		Format:           format,
		SubresourceRange: r.subresourceRange(),
	}
	return check("vkCreateImageView", vk.CreateImageView(r.device.handle, &viewInfo, nil, &r.view))
}

// destroy frees the Vulkan objects. Safe to call more than once.
func (r *Resource) destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return
	}
	r.destroyed = true
	h := r.device.handle
	if r.view != vk.NullImageView {
		vk.DestroyImageView(h, r.view, nil)
		r.view = vk.NullImageView
	}
	if r.swapchainOwned {
		return
	}
	if r.image != vk.NullImage {
		vk.DestroyImage(h, r.image, nil)
		r.image = vk.NullImage
	}
	if r.memory != vk.NullDeviceMemory {
		vk.FreeMemory(h, r.memory, nil)
		r.memory = vk.NullDeviceMemory
	}
}

func (r *Resource) ID() uuid.UUID {
	return r.id
}

func (r *Resource) Name() string {
	return r.desc.Name
}

func (r *Resource) Descriptor() metadata.ResourceDescriptor {
	return r.desc
}

func (r *Resource) State() metadata.ResourceState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Resource) setState(s metadata.ResourceState) metadata.ResourceState {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.state
	r.state = s
	return prev
}

// moveLayout records the new layout and returns the previous one.
func (r *Resource) moveLayout(l vk.ImageLayout) vk.ImageLayout {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.layout
	r.layout = l
	return prev
}

func (r *Resource) MarkReleaseImmediately() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseImmediately = true
}

// Release destroys the image right away when marked, otherwise on the
// next Context.Wait. Frames are destroyed by their swapchain.
func (r *Resource) Release() error {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", core.ErrResourceReleased, r.desc.Name)
	}
	r.released = true
	immediate := r.releaseImmediately
	owned := r.swapchainOwned
	r.mu.Unlock()

	switch {
	case owned:
	case immediate:
		r.device.freeResource(r)
	default:
		r.device.deferRelease(r)
	}
	return nil
}

func (r *Resource) IsReleased() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}
