package testbed

import (
	"image/color"
	"math"

	"github.com/spaghettifunk/anima-editor/engine/renderer"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-editor/engine/systems"
	"golang.org/x/image/colornames"
)

// pulseColor returns base with one channel replaced by |sin(t)|.
func pulseColor(base color.RGBA, channel int, t float64) metadata.ClearColor {
	c := metadata.ClearColor{
		float32(base.R) / 255,
		float32(base.G) / 255,
		float32(base.B) / 255,
		float32(base.A) / 255,
	}
	if channel >= 0 && channel < len(c) {
		c[channel] = float32(math.Abs(math.Sin(t)))
	}
	return c
}

// viewDrawer clears the swapchain frame with a pulsing color. The edit
// view also clears the depth buffer and binds the grid program when it
// is available.
type viewDrawer struct {
	view    systems.View
	base    color.RGBA
	channel int
	phase   func() float64
	shaders *systems.ShaderSystem
}

func newViewDrawer(view systems.View, phase func() float64, shaders *systems.ShaderSystem) *viewDrawer {
	d := &viewDrawer{view: view, phase: phase, shaders: shaders}
	switch view {
	case systems.ViewEditMode:
		d.base = colornames.Red
		d.channel = 1
	default:
		d.base = colornames.Lime
		d.channel = 0
	}
	return d
}

func (d *viewDrawer) Draw(ctx renderer.Context, frame, depth renderer.Resource) error {
	if err := ctx.Transition(frame, metadata.ResourceStateRenderTarget); err != nil {
		return err
	}
	if err := ctx.ClearRenderTarget(frame, pulseColor(d.base, d.channel, d.phase()), metadata.Rect{}); err != nil {
		return err
	}
	if d.view != systems.ViewEditMode {
		return nil
	}
	if err := ctx.ClearDepthStencil(depth, metadata.ClearDepth, 0, 0, metadata.Rect{}); err != nil {
		return err
	}
	if d.shaders != nil && d.shaders.IsAvailable(systems.ShaderProgramGrid) {
		if err := d.shaders.Bind(ctx, systems.ShaderProgramGrid); err != nil {
			return err
		}
		return ctx.SetInputVertexLayout(systems.VertexLayoutPositionOnly)
	}
	return nil
}
