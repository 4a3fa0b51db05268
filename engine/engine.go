package engine

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/anima-editor/engine/config"
	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/platform"
	"github.com/spaghettifunk/anima-editor/engine/renderer/headless"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-editor/engine/renderer/vulkan"
	"github.com/spaghettifunk/anima-editor/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

type Engine struct {
	currentStage  Stage
	config        *config.Config
	gameInstance  *Game
	isRunning     atomic.Bool
	isSuspended   bool
	events        *core.EventBus
	platform      *platform.Platform
	systemManager *systems.SystemManager
	windows       map[systems.View]*platform.Window
	clock         *core.Clock
	lastTick      core.Tick
}

func New(cfg *config.Config, g *Game) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	core.SetLogLevel(cfg.Level())
	if g.ApplicationConfig == nil {
		g.ApplicationConfig = NewApplicationConfig(cfg)
	}

	events := core.NewEventBus()
	return &Engine{
		currentStage: EngineStageUninitialized,
		config:       cfg,
		gameInstance: g,
		events:       events,
		platform:     platform.New(events),
		windows:      make(map[systems.View]*platform.Window, len(systems.AllViews)),
		clock:        core.NewClock(),
	}, nil
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

// Initialize opens a window per view, creates the device on the
// configured backend and requests a swapchain for every view.
func (e *Engine) Initialize() error {
	e.currentStage = EngineStageBooting
	if e.gameInstance.FnBoot != nil {
		if err := e.gameInstance.FnBoot(); err != nil {
			core.LogError("game boot failed: %s", err)
			return err
		}
	}
	e.currentStage = EngineStageBootComplete

	e.currentStage = EngineStageInitializing
	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.events.Register(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)
	e.events.Register(core.EVENT_CODE_RESIZED, e, e.onResized)
	e.events.Register(core.EVENT_CODE_VISIBILITY, e, e.onVisibility)

	if err := e.platform.Startup(); err != nil {
		return err
	}
	for _, view := range systems.AllViews {
		w, err := e.platform.CreateWindow(view.String(), e.gameInstance.ApplicationConfig.Windows[view])
		if err != nil {
			return err
		}
		e.windows[view] = w
	}

	// On failure the caller runs Shutdown, which stops the platform.
	params, err := e.backendParams()
	if err != nil {
		return err
	}
	sm, err := systems.NewSystemManager(e.config, params)
	if err != nil {
		return err
	}
	if err := sm.Initialize(); err != nil {
		core.LogError("failed to initialize the editor systems: %s", err)
		return errors.Join(err, sm.Shutdown())
	}
	e.systemManager = sm
	e.gameInstance.SystemManager = sm

	for _, view := range systems.AllViews {
		if err := sm.SurfaceSystem.InitializeSwapchain(view, e.windows[view]); err != nil {
			return err
		}
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			core.LogError("game initialization failed: %s", err)
			return err
		}
	}
	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) backendParams() (interface{}, error) {
	api, err := e.config.API()
	if err != nil {
		return nil, err
	}
	switch api {
	case metadata.GraphicsAPIVulkan:
		// Any window works for the instance extensions; each view gets
		// its own surface when its swapchain is created.
		handle, _ := e.windows[systems.ViewGameMode].Handle().(*glfw.Window)
		return &vulkan.Config{Window: handle, PreferDiscrete: true}, nil
	case metadata.GraphicsAPIHeadless:
		return &headless.Config{}, nil
	}
	return nil, fmt.Errorf("%w: %s", core.ErrBackendUnavailable, api)
}

// Run ticks every view until a quit event is received.
func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("%w: engine stage %d", core.ErrNotInitialized, e.currentStage)
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)

	e.clock.Start()
	e.lastTick = e.clock.Tick()

	var targetFrame time.Duration
	if fps := e.gameInstance.ApplicationConfig.TargetFPS; fps > 0 {
		targetFrame = time.Second / time.Duration(fps)
	}

	for e.isRunning.Load() {
		e.platform.PumpMessages()
		if e.windowsClosed() {
			e.isRunning.Store(false)
			break
		}
		if e.isSuspended {
			e.platform.Sleep(10 * time.Millisecond)
			continue
		}

		frameStart := time.Now()
		tick := e.clock.Tick()
		delta := tick.Sub(e.lastTick)
		e.lastTick = tick

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta.Seconds()); err != nil {
				core.LogError("game update failed, shutting down: %s", err)
				e.isRunning.Store(false)
				break
			}
		}

		for _, view := range systems.AllViews {
			var drawer systems.Drawer
			if e.gameInstance.FnDrawer != nil {
				drawer = e.gameInstance.FnDrawer(view)
			}
			if drawer == nil {
				continue
			}
			// A failed view keeps the other one rendering.
			if err := e.systemManager.SurfaceSystem.Render(view, e.windows[view], tick, drawer); err != nil {
				core.LogError("%s view: %s", view, err)
			}
		}

		if remaining := targetFrame - time.Since(frameStart); remaining > time.Millisecond {
			e.platform.Sleep(remaining - time.Millisecond)
		}
	}
	return nil
}

// Quit asks the run loop to stop. Safe to call from any goroutine.
func (e *Engine) Quit() {
	e.events.Fire(core.EVENT_CODE_APPLICATION_QUIT, nil, core.EventContext{})
}

// Shutdown releases everything Initialize acquired, including after a
// failed Initialize. Calling it again is a no-op.
func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageUninitialized {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.isRunning.Store(false)

	var errs []error
	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.systemManager != nil {
		if err := e.systemManager.Shutdown(); err != nil {
			errs = append(errs, err)
		}
		e.systemManager = nil
	}
	if err := e.platform.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	e.events.Reset()
	e.currentStage = EngineStageUninitialized
	return errors.Join(errs...)
}

func (e *Engine) windowsClosed() bool {
	for _, w := range e.windows {
		if w.ShouldClose() {
			return true
		}
	}
	return false
}

func (e *Engine) viewOf(name string) (systems.View, bool) {
	for view, w := range e.windows {
		if w.Name() == name {
			return view, true
		}
	}
	return 0, false
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listener interface{}, context core.EventContext) bool {
	if code == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning.Store(false)
		return true
	}
	return false
}

func (e *Engine) onKey(code core.SystemEventCode, sender interface{}, listener interface{}, context core.EventContext) bool {
	switch glfw.Key(context.Data.U32[0]) {
	case glfw.KeyEscape:
		// NOTE: Technically firing an event to itself, but there may be other listeners.
		e.events.Fire(core.EVENT_CODE_APPLICATION_QUIT, e, core.EventContext{})
		return true
	case glfw.KeyF2:
		e.toggleView(systems.ViewEditMode)
		return true
	}
	return false
}

// toggleView releases an active view's swapchain or requests a new one.
func (e *Engine) toggleView(view systems.View) {
	surfaces := e.systemManager.SurfaceSystem
	switch surfaces.ViewState(view) {
	case systems.ViewStateActive, systems.ViewStateInitializing:
		if err := surfaces.ShutdownSwapchain(view); err != nil {
			core.LogError("%s", err)
		}
	case systems.ViewStateDestroyed, systems.ViewStateUninitialized:
		if err := surfaces.InitializeSwapchain(view, e.windows[view]); err != nil {
			core.LogError("%s", err)
		}
	}
}

func (e *Engine) onResized(code core.SystemEventCode, sender interface{}, listener interface{}, context core.EventContext) bool {
	view, ok := e.viewOf(context.Data.C[0])
	if !ok {
		return false
	}
	width, height := context.Data.U32[0], context.Data.U32[1]
	core.LogDebug("%s window resize: %d, %d", view, width, height)

	// Minimized: the view stops rendering until it is restored.
	if width == 0 || height == 0 {
		return true
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(view, width, height); err != nil {
			core.LogError("%s", err)
		}
	}
	if e.systemManager != nil && e.systemManager.SurfaceSystem.ViewState(view) == systems.ViewStateActive {
		if err := e.systemManager.SurfaceSystem.ResizeSwapchain(view, e.windows[view]); err != nil {
			core.LogError("%s", err)
		}
	}
	return true
}

func (e *Engine) onVisibility(code core.SystemEventCode, sender interface{}, listener interface{}, context core.EventContext) bool {
	suspended := e.platform.AllIconified()
	if suspended != e.isSuspended {
		if suspended {
			core.LogInfo("All windows minimized, suspending application.")
		} else {
			core.LogInfo("Window restored, resuming application.")
		}
		e.isSuspended = suspended
	}
	return false
}
