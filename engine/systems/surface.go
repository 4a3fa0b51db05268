package systems

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-editor/engine/config"
	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

// Drawer records a view's frame. color is the acquired swapchain frame,
// depth the depth buffer serving the view. Both are owned by the
// SurfaceSystem and must not be released by the drawer.
//
// Draw runs with the SurfaceSystem lock held: it must not call back into
// the SurfaceSystem (IsSwapchainActive, DepthBuffer, Render, ...) or it
// deadlocks. Everything a frame needs is passed in.
type Drawer interface {
	Draw(ctx renderer.Context, color, depth renderer.Resource) error
}

type DrawFunc func(ctx renderer.Context, color, depth renderer.Resource) error

func (f DrawFunc) Draw(ctx renderer.Context, color, depth renderer.Resource) error {
	return f(ctx, color, depth)
}

const DepthBufferName = "DepthBuffer"

type SurfaceSystemConfig struct {
	SwapchainFormat metadata.ResourceFormat
	BufferCount     uint32
	Buffering       metadata.FrameBuffering
	DepthFormat     metadata.ResourceFormat
	DepthPolicy     config.DepthPolicy
	FrameDepth      uint32
	Debug           bool
	// BackendParams is handed to the backend factory, e.g. *headless.Config.
	BackendParams interface{}
}

// NewSurfaceSystemConfig maps the editor configuration.
func NewSurfaceSystemConfig(cfg *config.Config) (*SurfaceSystemConfig, error) {
	format, err := cfg.SwapchainFormat()
	if err != nil {
		return nil, err
	}
	buffering, err := cfg.FrameBuffering()
	if err != nil {
		return nil, err
	}
	depth, err := cfg.DepthFormat()
	if err != nil {
		return nil, err
	}
	return &SurfaceSystemConfig{
		SwapchainFormat: format,
		BufferCount:     cfg.Swapchain.BufferCount,
		Buffering:       buffering,
		DepthFormat:     depth,
		DepthPolicy:     cfg.Depth.Policy,
		FrameDepth:      cfg.FrameDepth,
		Debug:           cfg.Debug,
	}, nil
}

type viewSlot struct {
	view      View
	state     ViewState
	surface   metadata.Surface
	swapchain *SwapchainManager
	// depth is only set with the per_view policy
	depth   renderer.Resource
	metrics *core.FrameMetrics
	last    core.Tick
	ticking bool
}

/**
 * @brief Owns the device, its context and the swapchain of every view.
 * Sequences initialization, rendering, resizing and shutdown so that no
 * destructive operation runs while a frame may still be in flight.
 * Every method is serialized.
 */
type SurfaceSystem struct {
	config  *SurfaceSystemConfig
	shaders *ShaderSystem
	console *core.Console

	mu       sync.Mutex
	renderer *renderer.Renderer
	views    map[View]*viewSlot
	// shared depth buffer, sized to the most recently (re)created view
	depth renderer.Resource
}

// NewSurfaceSystem creates an uninitialized system. shaders and console
// may be nil.
func NewSurfaceSystem(cfg *SurfaceSystemConfig, shaders *ShaderSystem, console *core.Console) (*SurfaceSystem, error) {
	if cfg == nil {
		return nil, errors.New("NewSurfaceSystem - config is required")
	}
	if cfg.BufferCount == 0 {
		return nil, fmt.Errorf("NewSurfaceSystem - buffer count must be at least 1")
	}
	if !cfg.DepthFormat.IsDepth() {
		return nil, fmt.Errorf("NewSurfaceSystem - %s is not a depth format", cfg.DepthFormat)
	}
	if cfg.DepthPolicy == "" {
		cfg.DepthPolicy = config.DepthPolicyShared
	}
	s := &SurfaceSystem{
		config:  cfg,
		shaders: shaders,
		console: console,
		views:   make(map[View]*viewSlot, len(AllViews)),
	}
	s.resetViews()
	return s, nil
}

func (s *SurfaceSystem) resetViews() {
	for _, v := range AllViews {
		s.views[v] = &viewSlot{
			view:    v,
			state:   ViewStateUninitialized,
			metrics: core.NewFrameMetrics(),
		}
	}
}

/**
 * @brief Creates the device and context for api and builds the shader
 * programs. Device creation failure is fatal to the caller; shader build
 * failures only make the affected programs unavailable.
 */
func (s *SurfaceSystem) Initialize(api metadata.GraphicsAPI, appName, engineName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.renderer != nil {
		return core.ErrAlreadyInitialized
	}

	r, err := renderer.Initialize(api, renderer.Options{
		AppName:    appName,
		EngineName: engineName,
		Debug:      s.config.Debug,
		Params:     s.config.BackendParams,
	})
	if err != nil {
		return err
	}
	if err := r.Context.SetFrameDepth(s.config.FrameDepth); err != nil {
		err = fmt.Errorf("frame depth %d: %w", s.config.FrameDepth, err)
		core.LogError("%s", err)
		return errors.Join(err, r.Shutdown())
	}

	if s.shaders != nil && !s.shaders.Initialize(r.Device) {
		core.LogWarn("some shader programs are unavailable")
	}

	s.renderer = r
	s.resetViews()
	core.LogInfo("surface system initialized on %s, %d frames in flight, %s depth", api, s.config.FrameDepth, s.config.DepthPolicy)
	return nil
}

// Device is nil before Initialize and after Shutdown.
func (s *SurfaceSystem) Device() renderer.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.renderer == nil {
		return nil
	}
	return s.renderer.Device
}

// Context is nil before Initialize and after Shutdown.
func (s *SurfaceSystem) Context() renderer.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.renderer == nil {
		return nil
	}
	return s.renderer.Context
}

/**
 * @brief Releases every view, the depth buffers, the shader programs,
 * the context and the device, in that order. Keeps going past errors so
 * the order holds, and returns them joined.
 */
func (s *SurfaceSystem) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.renderer == nil {
		return nil
	}
	ctx := s.renderer.Context

	var errs []error
	if err := ctx.Wait(); err != nil {
		errs = append(errs, err)
	}
	for _, v := range AllViews {
		slot := s.views[v]
		if slot.state == ViewStateUninitialized || slot.state == ViewStateDestroyed {
			continue
		}
		s.setState(slot, ViewStateShuttingDown)
		if err := slot.swapchain.Release(); err != nil {
			errs = append(errs, err)
		}
		if err := releaseImmediately(slot.depth); err != nil {
			errs = append(errs, err)
		}
		slot.depth = nil
		s.setState(slot, ViewStateDestroyed)
	}
	if err := releaseImmediately(s.depth); err != nil {
		errs = append(errs, err)
	}
	s.depth = nil

	if s.shaders != nil {
		if err := s.shaders.CleanUp(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.renderer.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	s.renderer = nil

	err := errors.Join(errs...)
	if err != nil {
		core.LogError("surface system shutdown: %s", err)
	} else {
		core.LogInfo("surface system shut down")
	}
	return err
}

/**
 * @brief Requests a swapchain for view on surface. The swapchain and the
 * depth buffer are created by the first Render tick where the surface
 * reports ready with non-zero extents.
 */
func (s *SurfaceSystem) InitializeSwapchain(view View, surface metadata.Surface) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, err := s.slot(view)
	if err != nil {
		return err
	}
	if surface == nil {
		return fmt.Errorf("%w: %s view has no surface", core.ErrSurfaceNotReady, view)
	}
	switch slot.state {
	case ViewStateUninitialized, ViewStateDestroyed:
	case ViewStateInitializing:
		slot.surface = surface
		return nil
	default:
		return fmt.Errorf("%w: %s view is %s", core.ErrAlreadyInitialized, view, slot.state)
	}
	slot.surface = surface
	slot.swapchain = NewSwapchainManager(view, s.renderer.Device)
	slot.ticking = false
	s.setState(slot, ViewStateInitializing)
	return nil
}

/**
 * @brief Waits for the context then resizes the view's swapchain and
 * recreates its depth buffer at the surface extents.
 */
func (s *SurfaceSystem) ResizeSwapchain(view View, surface metadata.Surface) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, err := s.slot(view)
	if err != nil {
		return err
	}
	if slot.state != ViewStateActive || !slot.swapchain.IsActive() {
		err := fmt.Errorf("%w: cannot resize %s view while %s", core.ErrSwapchainInactive, view, slot.state)
		core.LogWarn("%s", err)
		return err
	}
	if surface != nil {
		slot.surface = surface
	}
	w, h := slot.surface.Size()
	return s.resize(slot, w, h)
}

// resize must be called with s.mu held and slot Active.
func (s *SurfaceSystem) resize(slot *viewSlot, width, height uint32) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("%w: %s surface is %dx%d", core.ErrInvalidExtent, slot.view, width, height)
	}
	s.setState(slot, ViewStateResizing)
	defer s.setState(slot, ViewStateActive)

	if err := s.renderer.Context.Wait(); err != nil {
		return err
	}
	if err := slot.swapchain.Resize(width, height); err != nil {
		core.LogError("resizing %s swapchain: %s", slot.view, err)
		return err
	}
	w, h := slot.swapchain.Extent()
	return s.recreateDepth(slot, w, h)
}

/**
 * @brief Waits for the context and releases the view's swapchain. The
 * shared depth buffer is released with the last active view.
 */
func (s *SurfaceSystem) ShutdownSwapchain(view View) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, err := s.slot(view)
	if err != nil {
		return err
	}
	switch slot.state {
	case ViewStateInitializing:
		// nothing was created yet
		s.setState(slot, ViewStateDestroyed)
		return nil
	case ViewStateActive:
	default:
		err := fmt.Errorf("%w: %s view is %s", core.ErrSwapchainInactive, view, slot.state)
		core.LogWarn("%s", err)
		return err
	}

	s.setState(slot, ViewStateShuttingDown)
	var errs []error
	if err := s.renderer.Context.Wait(); err != nil {
		errs = append(errs, err)
	}
	if err := slot.swapchain.Release(); err != nil {
		errs = append(errs, err)
	}
	if err := releaseImmediately(slot.depth); err != nil {
		errs = append(errs, err)
	}
	slot.depth = nil
	if s.depth != nil && !s.anyActive(slot.view) {
		if err := releaseImmediately(s.depth); err != nil {
			errs = append(errs, err)
		}
		s.depth = nil
	}
	s.setState(slot, ViewStateDestroyed)
	return errors.Join(errs...)
}

func (s *SurfaceSystem) IsSwapchainActive(view View) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.views[view]
	return ok && slot.swapchain != nil && slot.swapchain.IsActive()
}

func (s *SurfaceSystem) ViewState(view View) ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot, ok := s.views[view]; ok {
		return slot.state
	}
	return ViewStateUninitialized
}

// Views returns the views that have been requested and not shut down.
func (s *SurfaceSystem) Views() []View {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []View
	for _, v := range AllViews {
		switch s.views[v].state {
		case ViewStateUninitialized, ViewStateDestroyed:
		default:
			out = append(out, v)
		}
	}
	return out
}

// DepthBuffer returns the depth buffer serving view, nil when none exists.
func (s *SurfaceSystem) DepthBuffer(view View) renderer.Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.views[view]
	if !ok {
		return nil
	}
	return s.depthFor(slot)
}

// Metrics returns the frame timing of view.
func (s *SurfaceSystem) Metrics(view View) (fps float64, frameMS float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot, ok := s.views[view]; ok {
		return slot.metrics.Frame()
	}
	return 0, 0
}

/**
 * @brief Renders one frame of view. A view that is not active, hidden, or
 * whose surface has no extents is skipped without touching the GPU. The
 * frame is always transitioned to Present, ended and presented once
 * acquired, the drawer error is returned afterwards.
 */
func (s *SurfaceSystem) Render(view View, surface metadata.Surface, tick core.Tick, drawer Drawer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, err := s.slot(view)
	if err != nil {
		return err
	}
	if surface != nil && (slot.state == ViewStateInitializing || slot.state == ViewStateActive) {
		slot.surface = surface
	}

	if slot.state == ViewStateInitializing {
		ready, err := s.activate(slot)
		if err != nil || !ready {
			return err
		}
	}
	if slot.state != ViewStateActive || !slot.swapchain.IsActive() {
		return nil
	}
	if !slot.surface.IsVisible() {
		slot.ticking = false
		return nil
	}
	w, h := slot.surface.Size()
	if w == 0 || h == 0 {
		slot.ticking = false
		return nil
	}
	if sw, sh := slot.swapchain.Extent(); sw != w || sh != h {
		if err := s.resize(slot, w, h); err != nil {
			return err
		}
	}

	ctx := s.renderer.Context
	if s.shaders != nil && s.shaders.HasStale() {
		if err := ctx.Wait(); err != nil {
			return err
		}
		if !s.shaders.RebuildStale() {
			core.LogWarn("some shader programs failed to rebuild")
		}
	}

	s.updateMetrics(slot, tick)
	return s.renderFrame(slot, ctx, drawer)
}

// activate creates the swapchain and depth buffer once the surface is
// laid out. Must be called with s.mu held.
func (s *SurfaceSystem) activate(slot *viewSlot) (bool, error) {
	if !slot.surface.IsReady() {
		return false, nil
	}
	w, h := slot.surface.Size()
	if w == 0 || h == 0 {
		return false, nil
	}
	err := slot.swapchain.Create(slot.surface, s.config.SwapchainFormat, w, h, s.config.BufferCount, s.config.Buffering)
	if err != nil {
		core.LogError("creating %s swapchain: %s", slot.view, err)
		return false, err
	}
	if s.depthFor(slot) != nil {
		// the shared buffer may still be referenced by the other view's frames
		if err := s.renderer.Context.Wait(); err != nil {
			return false, errors.Join(err, slot.swapchain.Release())
		}
	}
	w, h = slot.swapchain.Extent()
	if err := s.recreateDepth(slot, w, h); err != nil {
		if werr := s.renderer.Context.Wait(); werr != nil {
			err = errors.Join(err, werr)
		}
		return false, errors.Join(err, slot.swapchain.Release())
	}
	s.setState(slot, ViewStateActive)
	return true, nil
}

func (s *SurfaceSystem) renderFrame(slot *viewSlot, ctx renderer.Context, drawer Drawer) error {
	if err := slot.swapchain.Prepare(ctx); err != nil {
		return fmt.Errorf("%s view: %w", slot.view, err)
	}
	color, err := slot.swapchain.CurrentFrame()
	if err != nil {
		// nothing recorded, close the frame so the ring advances
		return errors.Join(fmt.Errorf("%s view: %w", slot.view, err), ctx.End(), slot.swapchain.Present(ctx))
	}

	var drawErr error
	if drawer != nil {
		if err := drawer.Draw(ctx, color, s.depthFor(slot)); err != nil {
			drawErr = fmt.Errorf("%s view draw: %w", slot.view, err)
			core.LogWarn("%s", drawErr)
		}
	}

	var errs []error
	if err := ctx.Transition(color, metadata.ResourceStatePresent); err != nil {
		errs = append(errs, err)
	}
	if err := ctx.End(); err != nil {
		errs = append(errs, err)
	}
	if err := slot.swapchain.Present(ctx); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		err := fmt.Errorf("%s view present: %w", slot.view, errors.Join(errs...))
		core.LogError("%s", err)
		return errors.Join(drawErr, err)
	}
	return drawErr
}

func (s *SurfaceSystem) updateMetrics(slot *viewSlot, tick core.Tick) {
	delta := tick.Sub(slot.last)
	if !slot.ticking {
		delta = 0
	}
	slot.last = tick
	slot.ticking = true

	if slot.metrics.Update(delta) {
		fps, ms := slot.metrics.Frame()
		if s.console != nil {
			s.console.Printf("%s view: %.0f fps (%.2f ms)", slot.view, fps, ms)
		} else {
			core.LogDebug("%s view: %.0f fps (%.2f ms)", slot.view, fps, ms)
		}
	}
}

// recreateDepth releases the depth buffer serving slot and allocates a
// new one at width x height. The context must be idle.
func (s *SurfaceSystem) recreateDepth(slot *viewSlot, width, height uint32) error {
	name := DepthBufferName
	target := &s.depth
	if s.config.DepthPolicy == config.DepthPolicyPerView {
		name = fmt.Sprintf("%s/%s", DepthBufferName, slot.view)
		target = &slot.depth
	}

	if err := releaseImmediately(*target); err != nil {
		core.LogWarn("releasing %s: %s", name, err)
	}
	*target = nil

	depth, err := s.renderer.Device.CreateResource(metadata.ResourceDescriptor{
		Name:             name,
		Width:            width,
		Height:           height,
		DepthOrArraySize: 1,
		MipLevels:        1,
		Samples:          1,
		Format:           s.config.DepthFormat,
		Dimension:        metadata.ResourceDimension2D,
		Usage:            metadata.ResourceUsageDepthStencil | metadata.ResourceUsageShaderResource,
		MemoryUsage:      metadata.MemoryUsageGPUOnly,
	}, metadata.ResourceStateDepthStencilWrite)
	if err != nil {
		core.LogError("creating %s: %s", name, err)
		return err
	}
	*target = depth
	core.LogDebug("%s created %dx%d for the %s view", name, width, height, slot.view)
	return nil
}

func (s *SurfaceSystem) depthFor(slot *viewSlot) renderer.Resource {
	if s.config.DepthPolicy == config.DepthPolicyPerView {
		return slot.depth
	}
	return s.depth
}

func (s *SurfaceSystem) anyActive(except View) bool {
	for v, slot := range s.views {
		if v != except && slot.swapchain != nil && slot.swapchain.IsActive() {
			return true
		}
	}
	return false
}

func (s *SurfaceSystem) slot(view View) (*viewSlot, error) {
	if s.renderer == nil {
		return nil, core.ErrNotInitialized
	}
	if !view.valid() {
		return nil, fmt.Errorf("%w: unknown view %d", core.ErrInvalidState, int(view))
	}
	return s.views[view], nil
}

func (s *SurfaceSystem) setState(slot *viewSlot, state ViewState) {
	if slot.state == state {
		return
	}
	core.LogDebug("%s view: %s -> %s", slot.view, slot.state, state)
	slot.state = state
}

func releaseImmediately(r renderer.Resource) error {
	if r == nil || r.IsReleased() {
		return nil
	}
	r.MarkReleaseImmediately()
	return r.Release()
}
