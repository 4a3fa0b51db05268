package headless

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

type Resource struct {
	mu                 sync.Mutex
	id                 uuid.UUID
	device             *Device
	desc               metadata.ResourceDescriptor
	state              metadata.ResourceState
	releaseImmediately bool
	released           bool
	clearColor         metadata.ClearColor
	// owned by a swapchain, released with it
	swapchainOwned bool
}

func newResource(d *Device, desc metadata.ResourceDescriptor, state metadata.ResourceState) *Resource {
	return &Resource{
		id:     uuid.New(),
		device: d,
		desc:   desc,
		state:  state,
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

// ClearColor is the color of the last render target clear.
func (r *Resource) ClearColor() metadata.ClearColor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clearColor
}

func (r *Resource) setClearColor(c metadata.ClearColor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearColor = c
}

func (r *Resource) MarkReleaseImmediately() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseImmediately = true
}

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

	if owned {
		// frames are part of the swapchain allocation
		return nil
	}
	detail := "deferred"
	if immediate {
		detail = "immediate"
		r.device.freeResource(r)
	} else {
		r.device.deferRelease(r)
	}
	r.device.trace.record(Op{Kind: OpReleaseResource, Target: r.desc.Name, Detail: detail})
	return nil
}

func (r *Resource) IsReleased() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}
