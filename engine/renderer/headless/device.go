// Package headless implements the renderer interfaces in process. It keeps
// the same ordering rules a real GPU backend enforces and records every
// call in a Trace, which makes it the backend of choice for tests and for
// running the editor without a graphics driver.
package headless

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

type Config struct {
	// Trace receives every call. A fresh one is created when nil.
	Trace *Trace
	// IntermediateCode accepted by LoadShaderProgram. Defaults to SPIR-V.
	IntermediateCode metadata.ShaderIntermediateCode
	// FailDeviceCreation makes the factory fail, as a missing driver would.
	FailDeviceCreation bool
}

func init() {
	renderer.RegisterBackend(metadata.GraphicsAPIHeadless, func(opts renderer.Options) (renderer.Device, error) {
		cfg, _ := opts.Params.(*Config)
		if cfg == nil {
			cfg = &Config{}
		}
		return NewDevice(opts.AppName, *cfg)
	})
}

type Device struct {
	mu       sync.Mutex
	name     string
	trace    *Trace
	ir       metadata.ShaderIntermediateCode
	context  *Context
	disposed bool

	programs   map[metadata.ShaderProgramID]*metadata.ShaderProgramDefinition
	layouts    map[metadata.VertexLayoutID]metadata.VertexInputLayout
	swapchains map[*Swapchain]struct{}
	resources  map[*Resource]struct{}
	// released without MarkReleaseImmediately, freed on the next Wait.
	deferred []*Resource
}

func NewDevice(appName string, cfg Config) (*Device, error) {
	if cfg.FailDeviceCreation {
		return nil, fmt.Errorf("headless device creation disabled for '%s'", appName)
	}
	if cfg.Trace == nil {
		cfg.Trace = NewTrace()
	}
	if cfg.IntermediateCode == metadata.ShaderIntermediateUnknown {
		cfg.IntermediateCode = metadata.ShaderIntermediateSPIRV
	}
	d := &Device{
		name:       appName,
		trace:      cfg.Trace,
		ir:         cfg.IntermediateCode,
		programs:   make(map[metadata.ShaderProgramID]*metadata.ShaderProgramDefinition),
		layouts:    make(map[metadata.VertexLayoutID]metadata.VertexInputLayout),
		swapchains: make(map[*Swapchain]struct{}),
		resources:  make(map[*Resource]struct{}),
	}
	d.trace.record(Op{Kind: OpCreateDevice, Target: appName, Detail: d.ir.String()})
	core.LogDebug("headless device created for '%s' (%s)", appName, d.ir)
	return d, nil
}

func (d *Device) Trace() *Trace {
	return d.trace
}

func (d *Device) API() metadata.GraphicsAPI {
	return metadata.GraphicsAPIHeadless
}

func (d *Device) IntermediateCode() metadata.ShaderIntermediateCode {
	return d.ir
}

func (d *Device) CreateContext() (renderer.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disposed {
		return nil, core.ErrNotInitialized
	}
	if d.context != nil && !d.context.isDisposed() {
		return nil, fmt.Errorf("%w: device already has a context", core.ErrAlreadyInitialized)
	}
	c := newContext(d)
	d.context = c
	d.trace.record(Op{Kind: OpCreateContext, Detail: fmt.Sprintf("depth=%d", c.frameDepth)})
	return c, nil
}

func (d *Device) CreateSwapchain(desc metadata.SwapchainDescription) (renderer.Swapchain, error) {
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidExtent, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disposed {
		return nil, core.ErrNotInitialized
	}
	sc := newSwapchain(d, desc)
	d.swapchains[sc] = struct{}{}
	d.trace.record(Op{Kind: OpCreateSwapchain, Target: sc.name(), Detail: fmt.Sprintf("%dx%d x%d %s", desc.Width, desc.Height, desc.BufferCount, desc.Format)})
	return sc, nil
}

func (d *Device) CreateResource(desc metadata.ResourceDescriptor, initialState metadata.ResourceState) (renderer.Resource, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disposed {
		return nil, core.ErrNotInitialized
	}
	r := newResource(d, desc, initialState)
	d.resources[r] = struct{}{}
	d.trace.record(Op{Kind: OpCreateResource, Target: desc.Name, Detail: fmt.Sprintf("%dx%d %s", desc.Width, desc.Height, desc.Format)})
	return r, nil
}

func (d *Device) LoadShaderProgram(def *metadata.ShaderProgramDefinition) error {
	if def == nil || len(def.Stages) == 0 {
		return fmt.Errorf("%w: empty program definition", core.ErrShaderBuild)
	}
	for _, st := range def.Stages {
		if st.IR != d.ir {
			return fmt.Errorf("%w: program %d stage %s is %s, device expects %s", core.ErrShaderBuild, def.ID, st.Stage, st.IR, d.ir)
		}
		if len(st.Code) == 0 {
			return fmt.Errorf("%w: program %d stage %s has no code", core.ErrShaderBuild, def.ID, st.Stage)
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.programs[def.ID] = def
	d.trace.record(Op{Kind: OpLoadProgram, Target: def.Name, Detail: fmt.Sprint(def.ID)})
	return nil
}

func (d *Device) UnloadShaderProgram(id metadata.ShaderProgramID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	def, ok := d.programs[id]
	if !ok {
		return fmt.Errorf("%w: %d", core.ErrProgramUnavailable, id)
	}
	delete(d.programs, id)
	d.trace.record(Op{Kind: OpUnloadProgram, Target: def.Name, Detail: fmt.Sprint(id)})
	return nil
}

func (d *Device) hasProgram(id metadata.ShaderProgramID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.programs[id]
	return ok
}

func (d *Device) MakeVertexLayout(id metadata.VertexLayoutID, layout metadata.VertexInputLayout) error {
	if len(layout.Bindings) == 0 {
		return fmt.Errorf("vertex layout %d has no bindings", id)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.layouts[id] = layout
	d.trace.record(Op{Kind: OpMakeVertexLayout, Detail: fmt.Sprint(id)})
	return nil
}

func (d *Device) DestroyVertexLayout(id metadata.VertexLayoutID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.layouts[id]; !ok {
		return fmt.Errorf("vertex layout %d not found", id)
	}
	delete(d.layouts, id)
	d.trace.record(Op{Kind: OpDestroyVertexLayout, Detail: fmt.Sprint(id)})
	return nil
}

func (d *Device) hasLayout(id metadata.VertexLayoutID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.layouts[id]
	return ok
}

// Dispose refuses to run while the context is alive. Leaked swapchains and
// resources are freed and reported.
func (d *Device) Dispose() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disposed {
		return core.ErrNotInitialized
	}
	if d.context != nil && !d.context.isDisposed() {
		return fmt.Errorf("%w: context must be disposed before the device", core.ErrInvalidState)
	}

	var errs []error
	if n := len(d.swapchains); n > 0 {
		errs = append(errs, fmt.Errorf("%d swapchain(s) still alive at device disposal", n))
	}
	live := 0
	for r := range d.resources {
		if !r.IsReleased() {
			live++
		}
	}
	if live > 0 {
		errs = append(errs, fmt.Errorf("%d resource(s) still alive at device disposal", live))
	}
	for _, err := range errs {
		core.LogWarn("%s", err)
	}

	d.programs = nil
	d.layouts = nil
	d.swapchains = nil
	d.resources = nil
	d.deferred = nil
	d.disposed = true
	d.trace.record(Op{Kind: OpDisposeDevice, Target: d.name})
	return errors.Join(errs...)
}

func (d *Device) forgetSwapchain(sc *Swapchain) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.swapchains, sc)
}

func (d *Device) deferRelease(r *Resource) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deferred = append(d.deferred, r)
}

// flushDeferred frees resources whose frames have all been retired.
func (d *Device) flushDeferred() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.deferred)
	for _, r := range d.deferred {
		delete(d.resources, r)
	}
	d.deferred = nil
	return n
}

func (d *Device) freeResource(r *Resource) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.resources, r)
}

// LiveResources counts resources that have not been released.
func (d *Device) LiveResources() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for r := range d.resources {
		if !r.IsReleased() {
			n++
		}
	}
	return n
}

func (d *Device) inFlight() int {
	d.mu.Lock()
	c := d.context
	d.mu.Unlock()
	if c == nil {
		return 0
	}
	return c.InFlight()
}
