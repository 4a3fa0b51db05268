package vulkan

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-editor/engine/containers"
	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

const defaultFrameDepth uint32 = 2

// frameSlot holds what one in-flight frame needs. Slots are used round
// robin, so a slot is reused only after its fence has signaled.
type frameSlot struct {
	cmd            *commandBuffer
	fence          *fence
	imageAvailable vk.Semaphore
	renderComplete vk.Semaphore
	// a swapchain image was acquired with imageAvailable for this frame
	acquired bool
}

// pipelineState collects what the next pipeline is built from.
type pipelineState struct {
	stages      []vk.PipelineShaderStageCreateInfo
	vertexInput vk.PipelineVertexInputStateCreateInfo
}

type Context struct {
	mu            sync.Mutex
	device        *Device
	frameDepth    uint32
	slots         []*frameSlot
	next          int
	submitted     int
	inFlight      *containers.RingQueue[int]
	recording     bool
	frameRecorded bool
	disposed      bool

	boundProgram metadata.ShaderProgramID
	boundLayout  metadata.VertexLayoutID
	pipeline     pipelineState
}

func newContext(d *Device, depth uint32) (*Context, error) {
	c := &Context{device: d}
	if err := c.allocateSlots(depth); err != nil {
		c.destroySlots()
		return nil, err
	}
	return c, nil
}

func (c *Context) allocateSlots(depth uint32) error {
	c.slots = make([]*frameSlot, 0, depth)
	for i := uint32(0); i < depth; i++ {
		s := &frameSlot{}
		c.slots = append(c.slots, s)
		cmd, err := newCommandBuffer(c.device)
		if err != nil {
			return err
		}
		s.cmd = cmd
		// Signaled so the first wait on a fresh slot does not block.
		if s.fence, err = newFence(c.device, true); err != nil {
			return err
		}
		semaphoreInfo := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
		if err := check("vkCreateSemaphore", vk.CreateSemaphore(c.device.handle, &semaphoreInfo, nil, &s.imageAvailable)); err != nil {
			return err
		}
		if err := check("vkCreateSemaphore", vk.CreateSemaphore(c.device.handle, &semaphoreInfo, nil, &s.renderComplete)); err != nil {
			return err
		}
	}
	c.frameDepth = depth
	c.next = 0
	c.submitted = -1
	c.inFlight = containers.NewRingQueue[int](int(depth))
	return nil
}

func (c *Context) destroySlots() {
	for _, s := range c.slots {
		if s.cmd != nil {
			s.cmd.free(c.device)
		}
		if s.fence != nil {
			s.fence.destroy(c.device)
		}
		if s.imageAvailable != vk.NullSemaphore {
			vk.DestroySemaphore(c.device.handle, s.imageAvailable, nil)
		}
		if s.renderComplete != vk.NullSemaphore {
			vk.DestroySemaphore(c.device.handle, s.renderComplete, nil)
		}
	}
	c.slots = nil
}

func (c *Context) isDisposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

func (c *Context) SetFrameDepth(n uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return core.ErrNotInitialized
	}
	if n < 1 || n > 3 {
		return fmt.Errorf("frame depth %d out of range [1, 3]", n)
	}
	if c.frameRecorded {
		return fmt.Errorf("%w: frame depth must be set before the first frame", core.ErrInvalidState)
	}
	if n == c.frameDepth {
		return nil
	}
	c.destroySlots()
	if err := c.allocateSlots(n); err != nil {
		c.destroySlots()
		return err
	}
	core.LogDebug("vulkan frame depth set to %d", n)
	return nil
}

func (c *Context) FrameDepth() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frameDepth
}

func (c *Context) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight.Len()
}

// begin opens the recording for a new frame. Called by Swapchain.Prepare.
// When every slot is in flight the oldest one is waited for.
func (c *Context) begin() (*frameSlot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return nil, core.ErrNotInitialized
	}
	if c.recording {
		return nil, fmt.Errorf("%w: previous frame was not ended", core.ErrRecording)
	}
	if c.inFlight.IsFull() {
		oldest, _ := c.inFlight.Dequeue()
		if err := c.slots[oldest].fence.wait(c.device, math.MaxUint64); err != nil {
			return nil, err
		}
	}
	s := c.slots[c.next]
	if err := s.fence.wait(c.device, math.MaxUint64); err != nil {
		return nil, err
	}
	if err := s.cmd.begin(); err != nil {
		return nil, err
	}
	s.acquired = false
	c.recording = true
	c.frameRecorded = true
	return s, nil
}

// abort closes a recording whose image could not be acquired. Nothing is
// submitted and the slot is reused by the next frame.
func (c *Context) abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recording {
		return
	}
	s := c.slots[c.next]
	_ = s.cmd.end()
	s.acquired = false
	c.recording = false
}

func (c *Context) checkRecording() error {
	if c.disposed {
		return core.ErrNotInitialized
	}
	if !c.recording {
		return fmt.Errorf("%w: no open recording", core.ErrRecording)
	}
	return nil
}

func (c *Context) current() *frameSlot {
	return c.slots[c.next]
}

func asResource(r renderer.Resource) (*Resource, error) {
	res, ok := r.(*Resource)
	if !ok || res == nil {
		return nil, fmt.Errorf("resource %T does not belong to the vulkan backend", r)
	}
	if res.IsReleased() {
		return nil, fmt.Errorf("%w: %s", core.ErrResourceReleased, res.Name())
	}
	return res, nil
}

// barrier moves res to layout. Moving from undefined discards contents.
func (c *Context) barrier(res *Resource, to vk.ImageLayout) {
	from := res.moveLayout(to)
	if from == to {
		return
	}
	b := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit),
		DstAccessMask:       vk.AccessFlags(vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit),
		OldLayout:           from,
		NewLayout:           to,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               res.image,
		SubresourceRange:    res.subresourceRange(),
	}
	vk.CmdPipelineBarrier(
		c.current().cmd.handle,
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		0,
		0, nil,
		0, nil,
		1, []vk.ImageMemoryBarrier{b},
	)
}

func (c *Context) Transition(resource renderer.Resource, state metadata.ResourceState) error {
	res, err := asResource(resource)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkRecording(); err != nil {
		return err
	}
	res.setState(state)
	c.barrier(res, toLayout(state))
	return nil
}

// checkRect accepts the zero rect or one that covers the whole target.
// Transfer clears always cover the full image.
func checkRect(res *Resource, rect metadata.Rect) error {
	if rect.IsZero() {
		return nil
	}
	desc := res.Descriptor()
	if rect.X <= 0 && rect.Y <= 0 && int64(rect.X)+int64(rect.Width) >= int64(desc.Width) && int64(rect.Y)+int64(rect.Height) >= int64(desc.Height) {
		return nil
	}
	return fmt.Errorf("partial clear of %s is not supported", res.Name())
}

func (c *Context) ClearRenderTarget(resource renderer.Resource, color metadata.ClearColor, rect metadata.Rect) error {
	res, err := asResource(resource)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkRecording(); err != nil {
		return err
	}
	if st := res.State(); st != metadata.ResourceStateRenderTarget {
		return fmt.Errorf("%w: clear of %s in state %s", core.ErrInvalidState, res.Name(), st)
	}
	if err := checkRect(res, rect); err != nil {
		return err
	}

	var value vk.ClearColorValue
	floats := (*[4]float32)(unsafe.Pointer(&value))
	*floats = [4]float32(color)
	c.barrier(res, vk.ImageLayoutTransferDstOptimal)
	vk.CmdClearColorImage(c.current().cmd.handle, res.image, vk.ImageLayoutTransferDstOptimal, &value, 1, []vk.ImageSubresourceRange{res.subresourceRange()})
	c.barrier(res, toLayout(metadata.ResourceStateRenderTarget))
	return nil
}

func (c *Context) ClearDepthStencil(resource renderer.Resource, flags metadata.ClearFlags, depth float32, stencil uint8, rect metadata.Rect) error {
	res, err := asResource(resource)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkRecording(); err != nil {
		return err
	}
	format := res.Descriptor().Format
	if !format.IsDepth() {
		return fmt.Errorf("%w: %s is not a depth resource", core.ErrInvalidState, res.Name())
	}
	if st := res.State(); st != metadata.ResourceStateDepthStencilWrite {
		return fmt.Errorf("%w: depth clear of %s in state %s", core.ErrInvalidState, res.Name(), st)
	}
	if err := checkRect(res, rect); err != nil {
		return err
	}

	var aspect vk.ImageAspectFlagBits
	if flags&metadata.ClearDepth != 0 {
		aspect |= vk.ImageAspectDepthBit
	}
	if flags&metadata.ClearStencil != 0 && format.HasStencil() {
		aspect |= vk.ImageAspectStencilBit
	}
	if aspect == 0 {
		return nil
	}
	value := vk.ClearDepthStencilValue{Depth: depth, Stencil: uint32(stencil)}
	subresource := res.subresourceRange()
	subresource.AspectMask = vk.ImageAspectFlags(aspect)

	c.barrier(res, vk.ImageLayoutTransferDstOptimal)
	vk.CmdClearDepthStencilImage(c.current().cmd.handle, res.image, vk.ImageLayoutTransferDstOptimal, &value, 1, []vk.ImageSubresourceRange{subresource})
	c.barrier(res, toLayout(metadata.ResourceStateDepthStencilWrite))
	return nil
}

func (c *Context) BindShaderProgram(id metadata.ShaderProgramID, permutation uint64) error {
	var stages []vk.PipelineShaderStageCreateInfo
	err := c.device.locks.safeCall(shaderManagement, func() error {
		p, ok := c.device.programs[id]
		if !ok {
			return fmt.Errorf("%w: %d", core.ErrProgramUnavailable, id)
		}
		for _, st := range p.stages {
			stages = append(stages, st.createInfo)
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkRecording(); err != nil {
		return err
	}
	c.boundProgram = id
	c.pipeline.stages = stages
	core.LogDebug("bound program %d permutation %d", id, permutation)
	return nil
}

func (c *Context) SetInputVertexLayout(id metadata.VertexLayoutID) error {
	var input vk.PipelineVertexInputStateCreateInfo
	err := c.device.locks.safeCall(shaderManagement, func() error {
		vl, ok := c.device.layouts[id]
		if !ok {
			return fmt.Errorf("vertex layout %d not found", id)
		}
		input = vl.inputState()
		return nil
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkRecording(); err != nil {
		return err
	}
	c.boundLayout = id
	c.pipeline.vertexInput = input
	return nil
}

// End closes the recording and submits it. The submission waits for the
// acquired swapchain image and signals renderComplete for Present.
func (c *Context) End() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkRecording(); err != nil {
		return err
	}
	s := c.current()
	if err := s.cmd.end(); err != nil {
		return err
	}
	if err := s.fence.reset(c.device); err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{s.cmd.handle},
	}
	if s.acquired {
		submitInfo.WaitSemaphoreCount = 1
		submitInfo.PWaitSemaphores = []vk.Semaphore{s.imageAvailable}
		submitInfo.PWaitDstStageMask = []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)}
		submitInfo.SignalSemaphoreCount = 1
		submitInfo.PSignalSemaphores = []vk.Semaphore{s.renderComplete}
	}
	err := c.device.locks.safeCall(queueManagement, func() error {
		return check("vkQueueSubmit", vk.QueueSubmit(c.device.queue, 1, []vk.SubmitInfo{submitInfo}, s.fence.handle))
	})
	c.recording = false
	if err != nil {
		// The fence was reset but will never signal.
		s.fence.signaled = true
		core.LogError("%s", err)
		return err
	}
	s.cmd.state = commandBufferSubmitted
	_ = c.inFlight.Enqueue(c.next)
	c.submitted = c.next
	c.next = (c.next + 1) % len(c.slots)
	return nil
}

func (c *Context) isRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// presentWait hands the semaphore of the last submitted frame to Present.
func (c *Context) presentWait() (vk.Semaphore, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitted < 0 || !c.slots[c.submitted].acquired {
		return vk.NullSemaphore, errors.New("no submitted frame waits for presentation")
	}
	s := c.slots[c.submitted]
	s.acquired = false
	return s.renderComplete, nil
}

func (c *Context) Wait() error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return core.ErrNotInitialized
	}
	if c.recording {
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot wait on an open recording", core.ErrRecording)
	}
	err := c.device.locks.safeCall(queueManagement, func() error {
		return check("vkQueueWaitIdle", vk.QueueWaitIdle(c.device.queue))
	})
	for !c.inFlight.IsEmpty() {
		slot, _ := c.inFlight.Dequeue()
		if werr := c.slots[slot].fence.wait(c.device, math.MaxUint64); werr != nil {
			err = errors.Join(err, werr)
		}
	}
	c.mu.Unlock()
	if err != nil {
		core.LogError("%s", err)
		return err
	}

	c.device.flushDeferred()
	return nil
}

func (c *Context) Dispose() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return core.ErrNotInitialized
	}
	if !c.inFlight.IsEmpty() {
		return fmt.Errorf("%w: %d frame(s) still in flight, wait first", core.ErrInvalidState, c.inFlight.Len())
	}
	c.destroySlots()
	c.disposed = true
	return nil
}
