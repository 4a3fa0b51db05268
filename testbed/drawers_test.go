package testbed

import (
	"io"
	"testing"

	"github.com/spaghettifunk/anima-editor/engine/config"
	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer/headless"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-editor/engine/systems"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/colornames"
)

type panel struct {
	name string
}

func (p *panel) Name() string { return p.name }
func (p *panel) Handle() interface{} { return p }
func (p *panel) Size() (uint32, uint32) { return 320, 200 }
func (p *panel) IsReady() bool { return true }
func (p *panel) IsVisible() bool { return true }

func TestPulseColor(t *testing.T) {
	c := pulseColor(colornames.Red, 1, 0)
	assert.Equal(t, metadata.ClearColor{1, 0, 0, 1}, c)

	c = pulseColor(colornames.Lime, 0, 1.5707963267948966)
	assert.InDelta(t, 1.0, c[0], 1e-6)
	assert.Equal(t, float32(1), c[1])

	assert.Equal(t, metadata.ClearColor{1, 0, 0, 1}, pulseColor(colornames.Red, 7, 3))
}

func TestViewDrawersRecordClears(t *testing.T) {
	core.SetLogOutput(io.Discard)
	trace := headless.NewTrace()

	s, err := systems.NewSurfaceSystem(&systems.SurfaceSystemConfig{
		SwapchainFormat: metadata.ResourceFormatR8G8B8A8Unorm,
		BufferCount:     3,
		Buffering:       metadata.FrameBufferingTriple,
		DepthFormat:     metadata.ResourceFormatD32Float,
		DepthPolicy:     config.DepthPolicyShared,
		FrameDepth:      3,
		BackendParams:   &headless.Config{Trace: trace},
	}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Initialize(metadata.GraphicsAPIHeadless, "testbed", "anima"))
	t.Cleanup(func() { _ = s.Shutdown() })

	phase := 0.0
	clock := func() float64 { return phase }
	for _, view := range systems.AllViews {
		surface := &panel{name: view.String()}
		require.NoError(t, s.InitializeSwapchain(view, surface))
		require.NoError(t, s.Render(view, surface, 0, newViewDrawer(view, clock, nil)))
	}

	ops := trace.Ops()
	var colorClears, depthClears, binds int
	for _, op := range ops {
		switch op.Kind {
		case headless.OpClearRenderTarget:
			colorClears++
		case headless.OpClearDepthStencil:
			depthClears++
		case headless.OpBindProgram:
			binds++
		}
	}
	assert.Equal(t, 2, colorClears)
	assert.Equal(t, 1, depthClears, "only the edit view clears depth")
	assert.Zero(t, binds, "no shader database")
}

func TestTestGameDrawers(t *testing.T) {
	core.SetLogOutput(io.Discard)

	tg := NewTestGame(config.Default())
	require.NoError(t, tg.FnBoot())
	require.NoError(t, tg.FnInitialize())
	require.NoError(t, tg.FnUpdate(0.5))
	assert.InDelta(t, 0.5, tg.state().phase, 1e-9)

	for _, view := range systems.AllViews {
		assert.NotNil(t, tg.FnDrawer(view))
	}
	assert.Nil(t, tg.FnDrawer(systems.View(9)))
	assert.NoError(t, tg.FnShutdown())
}
