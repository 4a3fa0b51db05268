package platform

import (
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/anima-editor/engine/core"
)

// Window is a glfw window hosting one editor view. It is the surface the
// swapchain of that view presents to.
type Window struct {
	name   string
	handle *glfw.Window
	events *core.EventBus

	width     uint32
	height    uint32
	iconified bool
	shown     bool
}

func newWindow(name string, handle *glfw.Window, events *core.EventBus) *Window {
	w := &Window{
		name:   name,
		handle: handle,
		events: events,
	}
	handle.SetFramebufferSizeCallback(w.framebufferSizeCallback)
	handle.SetIconifyCallback(w.iconifyCallback)
	handle.SetCloseCallback(w.closeCallback)
	handle.SetKeyCallback(w.keyCallback)
	return w
}

func (w *Window) refresh() {
	fw, fh := w.handle.GetFramebufferSize()
	w.width = uint32(max(fw, 0))
	w.height = uint32(max(fh, 0))
	w.iconified = w.handle.GetAttrib(glfw.Iconified) == glfw.True
	w.shown = w.handle.GetAttrib(glfw.Visible) == glfw.True
}

func (w *Window) Name() string {
	return w.name
}

func (w *Window) Handle() interface{} {
	return w.handle
}

// Size is the framebuffer size in pixels.
func (w *Window) Size() (uint32, uint32) {
	return w.width, w.height
}

// IsReady is true once the window is shown and has a framebuffer.
func (w *Window) IsReady() bool {
	return w.handle != nil && w.shown && w.width > 0 && w.height > 0
}

func (w *Window) IsVisible() bool {
	return w.handle != nil && w.shown && !w.iconified
}

func (w *Window) ShouldClose() bool {
	return w.handle == nil || w.handle.ShouldClose()
}

func (w *Window) context() core.EventContext {
	var ctx core.EventContext
	ctx.Data.C[0] = w.name
	return ctx
}

func (w *Window) framebufferSizeCallback(_ *glfw.Window, width, height int) {
	w.width = uint32(max(width, 0))
	w.height = uint32(max(height, 0))
	ctx := w.context()
	ctx.Data.U32[0] = w.width
	ctx.Data.U32[1] = w.height
	w.events.Fire(core.EVENT_CODE_RESIZED, w, ctx)
}

func (w *Window) iconifyCallback(_ *glfw.Window, iconified bool) {
	w.iconified = iconified
	ctx := w.context()
	if w.IsVisible() {
		ctx.Data.U32[0] = 1
	}
	w.events.Fire(core.EVENT_CODE_VISIBILITY, w, ctx)
}

func (w *Window) closeCallback(_ *glfw.Window) {
	w.events.Fire(core.EVENT_CODE_APPLICATION_QUIT, w, w.context())
}

func (w *Window) keyCallback(_ *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	ctx := w.context()
	ctx.Data.U32[0] = uint32(key)
	switch action {
	case glfw.Press:
		w.events.Fire(core.EVENT_CODE_KEY_PRESSED, w, ctx)
	case glfw.Release:
		w.events.Fire(core.EVENT_CODE_KEY_RELEASED, w, ctx)
	}
}

func (w *Window) destroy() {
	if w.handle != nil {
		w.handle.Destroy()
		w.handle = nil
	}
	w.shown = false
}
