package headless

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-editor/engine/containers"
	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

const defaultFrameDepth uint32 = 2

// Context simulates the GPU queue: ended frames stay in flight until the
// queue is full (Prepare then retires the oldest, as a fence wait would)
// or until Wait retires all of them.
type Context struct {
	mu            sync.Mutex
	device        *Device
	frameDepth    uint32
	inFlight      *containers.RingQueue[uint64]
	frameCounter  uint64
	recording     bool
	frameRecorded bool
	disposed      bool

	boundProgram metadata.ShaderProgramID
	boundLayout  metadata.VertexLayoutID
}

func newContext(d *Device) *Context {
	return &Context{
		device:     d,
		frameDepth: defaultFrameDepth,
		inFlight:   containers.NewRingQueue[uint64](int(defaultFrameDepth)),
	}
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
	c.frameDepth = n
	c.inFlight = containers.NewRingQueue[uint64](int(n))
	c.device.trace.record(Op{Kind: OpSetFrameDepth, Detail: fmt.Sprint(n)})
	return nil
}

func (c *Context) FrameDepth() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frameDepth
}

// InFlight reports how many ended frames the simulated GPU has not retired.
func (c *Context) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight.Len()
}

// begin opens the recording for a new frame. Called by Swapchain.Prepare.
func (c *Context) begin(target string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return core.ErrNotInitialized
	}
	if c.recording {
		return fmt.Errorf("%w: previous frame was not ended", core.ErrRecording)
	}
	// Bounded: never more than frameDepth frames in flight.
	if c.inFlight.IsFull() {
		frame, _ := c.inFlight.Dequeue()
		c.device.trace.record(Op{Kind: OpRetire, Target: target, Detail: fmt.Sprint(frame)})
	}
	c.recording = true
	c.frameRecorded = true
	return nil
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

func asResource(r renderer.Resource) (*Resource, error) {
	res, ok := r.(*Resource)
	if !ok || res == nil {
		return nil, fmt.Errorf("resource %T does not belong to the headless backend", r)
	}
	if res.IsReleased() {
		return nil, fmt.Errorf("%w: %s", core.ErrResourceReleased, res.Name())
	}
	return res, nil
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
	prev := res.setState(state)
	detail := prev.String()
	if prev == state {
		detail = "noop"
	}
	c.device.trace.record(Op{Kind: OpTransition, Target: res.Name(), State: state, Detail: detail})
	return nil
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
	res.setClearColor(color)
	c.device.trace.record(Op{Kind: OpClearRenderTarget, Target: res.Name(), Detail: fmt.Sprintf("%.2f,%.2f,%.2f,%.2f", color[0], color[1], color[2], color[3])})
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
	if !res.Descriptor().Format.IsDepth() {
		return fmt.Errorf("%w: %s is not a depth resource", core.ErrInvalidState, res.Name())
	}
	if st := res.State(); st != metadata.ResourceStateDepthStencilWrite {
		return fmt.Errorf("%w: depth clear of %s in state %s", core.ErrInvalidState, res.Name(), st)
	}
	c.device.trace.record(Op{Kind: OpClearDepthStencil, Target: res.Name(), Detail: fmt.Sprintf("flags=%d depth=%.2f stencil=%d", flags, depth, stencil)})
	return nil
}

func (c *Context) BindShaderProgram(id metadata.ShaderProgramID, permutation uint64) error {
	if !c.device.hasProgram(id) {
		return fmt.Errorf("%w: %d", core.ErrProgramUnavailable, id)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkRecording(); err != nil {
		return err
	}
	c.boundProgram = id
	c.device.trace.record(Op{Kind: OpBindProgram, Detail: fmt.Sprintf("%d/%d", id, permutation)})
	return nil
}

func (c *Context) SetInputVertexLayout(id metadata.VertexLayoutID) error {
	if !c.device.hasLayout(id) {
		return fmt.Errorf("vertex layout %d not found", id)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkRecording(); err != nil {
		return err
	}
	c.boundLayout = id
	c.device.trace.record(Op{Kind: OpSetVertexLayout, Detail: fmt.Sprint(id)})
	return nil
}

func (c *Context) End() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkRecording(); err != nil {
		return err
	}
	c.recording = false
	c.frameCounter++
	_ = c.inFlight.Enqueue(c.frameCounter)
	c.device.trace.record(Op{Kind: OpEnd, Detail: fmt.Sprint(c.frameCounter)})
	return nil
}

func (c *Context) isRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
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
	retired := 0
	for !c.inFlight.IsEmpty() {
		_, _ = c.inFlight.Dequeue()
		retired++
	}
	c.mu.Unlock()

	freed := c.device.flushDeferred()
	c.device.trace.record(Op{Kind: OpWait, Detail: fmt.Sprintf("retired=%d freed=%d", retired, freed)})
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
	c.disposed = true
	c.device.trace.record(Op{Kind: OpDisposeContext})
	return nil
}
