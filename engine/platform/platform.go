package platform

import (
	"fmt"
	"runtime"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/anima-editor/engine/config"
	"github.com/spaghettifunk/anima-editor/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// Platform owns glfw and the editor windows. Window callbacks are turned
// into events on the bus during PumpMessages.
type Platform struct {
	events  *core.EventBus
	windows []*Window
	started bool
}

func New(events *core.EventBus) *Platform {
	return &Platform{
		events: events,
	}
}

func (p *Platform) Startup() error {
	if p.started {
		return core.ErrAlreadyInitialized
	}
	if err := glfw.Init(); err != nil {
		err = fmt.Errorf("failed to initialize glfw: %w", err)
		core.LogError("%s", err)
		return err
	}
	p.started = true
	return nil
}

// CreateWindow opens a window without a client API, ready for a Vulkan
// surface.
func (p *Platform) CreateWindow(name string, cfg config.WindowConfig) (*Window, error) {
	if !p.started {
		return nil, core.ErrNotInitialized
	}
	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	handle, err := glfw.CreateWindow(int(cfg.Width), int(cfg.Height), cfg.Title, nil, nil)
	if err != nil {
		err = fmt.Errorf("failed to create window %s: %w", name, err)
		core.LogError("%s", err)
		return nil, err
	}
	w := newWindow(name, handle, p.events)
	handle.SetPos(int(cfg.X), int(cfg.Y))
	handle.Show()
	w.refresh()

	p.windows = append(p.windows, w)
	core.LogInfo("window %s created (%dx%d)", name, cfg.Width, cfg.Height)
	return w, nil
}

// PumpMessages processes pending window events. Must be called from the
// main thread.
func (p *Platform) PumpMessages() {
	glfw.PollEvents()
}

// Sleep yields the main thread between frames.
func (p *Platform) Sleep(d time.Duration) {
	time.Sleep(d)
}

// AllIconified is true while no window can show a frame.
func (p *Platform) AllIconified() bool {
	for _, w := range p.windows {
		if w.IsVisible() {
			return false
		}
	}
	return len(p.windows) > 0
}

func (p *Platform) Shutdown() error {
	if !p.started {
		return nil
	}
	for _, w := range p.windows {
		w.destroy()
	}
	p.windows = nil
	glfw.Terminate()
	p.started = false
	return nil
}
