package headless

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

type Swapchain struct {
	mu       sync.Mutex
	device   *Device
	desc     metadata.SwapchainDescription
	frames   []*Resource
	index    uint32
	acquired bool
	released bool
	// incremented on every resize, part of the frame names
	generation uint32
}

func newSwapchain(d *Device, desc metadata.SwapchainDescription) *Swapchain {
	sc := &Swapchain{
		device: d,
		desc:   desc,
	}
	sc.allocateFrames()
	return sc
}

func (sc *Swapchain) name() string {
	if n, ok := sc.desc.Surface.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("swapchain-%p", sc)
}

func (sc *Swapchain) allocateFrames() {
	sc.frames = make([]*Resource, sc.desc.BufferCount)
	for i := range sc.frames {
		r := newResource(sc.device, metadata.ResourceDescriptor{
			Name:             fmt.Sprintf("%s/frame%d.%d", sc.name(), i, sc.generation),
			Width:            sc.desc.Width,
			Height:           sc.desc.Height,
			DepthOrArraySize: 1,
			MipLevels:        1,
			Samples:          1,
			Format:           sc.desc.Format,
			Dimension:        metadata.ResourceDimension2D,
			Usage:            metadata.ResourceUsageRenderTarget,
			MemoryUsage:      metadata.MemoryUsageGPUOnly,
		}, metadata.ResourceStateUndefined)
		r.swapchainOwned = true
		sc.frames[i] = r
	}
	sc.index = 0
}

func (sc *Swapchain) releaseFrames() {
	for _, f := range sc.frames {
		_ = f.Release()
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
	if err := c.begin(sc.name()); err != nil {
		return err
	}
	sc.acquired = true
	sc.device.trace.record(Op{Kind: OpPrepare, Target: sc.name(), Detail: fmt.Sprint(sc.index)})
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

// FrameIndex is the ring position the next Prepare acquires.
func (sc *Swapchain) FrameIndex() uint32 {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.index
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
	sc.releaseFrames()
	sc.desc.Width = width
	sc.desc.Height = height
	sc.generation++
	sc.allocateFrames()
	sc.device.trace.record(Op{Kind: OpResizeSwapchain, Target: sc.name(), Detail: fmt.Sprintf("%dx%d", width, height)})
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
	sc.device.trace.record(Op{Kind: OpPresent, Target: sc.name(), Detail: fmt.Sprint(sc.index)})
	sc.acquired = false
	sc.index = (sc.index + 1) % uint32(len(sc.frames))
	return nil
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
	sc.releaseFrames()
	sc.released = true
	sc.device.forgetSwapchain(sc)
	sc.device.trace.record(Op{Kind: OpReleaseSwapchain, Target: sc.name()})
	return nil
}
