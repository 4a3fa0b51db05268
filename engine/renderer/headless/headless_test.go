package headless

import (
	"io"
	"testing"

	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSurface struct {
	name string
	w, h uint32
}

func (s *testSurface) Name() string { return s.name }
func (s *testSurface) Handle() interface{} { return s }
func (s *testSurface) Size() (uint32, uint32) { return s.w, s.h }
func (s *testSurface) IsReady() bool { return s.w > 0 && s.h > 0 }
func (s *testSurface) IsVisible() bool { return true }

func newTestDevice(t *testing.T) (*Device, *Context) {
	t.Helper()
	core.SetLogOutput(io.Discard)
	d, err := NewDevice("test", Config{})
	require.NoError(t, err)
	c, err := d.CreateContext()
	require.NoError(t, err)
	return d, c.(*Context)
}

func newTestSwapchain(t *testing.T, d *Device, w, h uint32) *Swapchain {
	t.Helper()
	sc, err := d.CreateSwapchain(metadata.SwapchainDescription{
		Surface:     &testSurface{name: "game", w: w, h: h},
		Format:      metadata.ResourceFormatR8G8B8A8Unorm,
		Width:       w,
		Height:      h,
		BufferCount: 3,
		Buffering:   metadata.FrameBufferingTriple,
	})
	require.NoError(t, err)
	return sc.(*Swapchain)
}

func renderOnce(t *testing.T, c *Context, sc *Swapchain) {
	t.Helper()
	require.NoError(t, sc.Prepare(c))
	frame, err := sc.CurrentFrame()
	require.NoError(t, err)
	require.NoError(t, c.Transition(frame, metadata.ResourceStateRenderTarget))
	require.NoError(t, c.ClearRenderTarget(frame, metadata.ClearColor{0, 0, 0, 1}, metadata.Rect{}))
	require.NoError(t, c.Transition(frame, metadata.ResourceStatePresent))
	require.NoError(t, c.End())
	require.NoError(t, sc.Present(c))
}

func TestRegisteredFactory(t *testing.T) {
	core.SetLogOutput(io.Discard)
	trace := NewTrace()
	r, err := renderer.Initialize(metadata.GraphicsAPIHeadless, renderer.Options{
		AppName: "app",
		Params:  &Config{Trace: trace},
	})
	require.NoError(t, err)
	assert.Equal(t, metadata.GraphicsAPIHeadless, r.Device.API())
	require.NoError(t, r.Shutdown())

	assert.Less(t, trace.Index(OpDisposeContext, ""), trace.Index(OpDisposeDevice, ""))
	assert.Nil(t, r.Device)
	assert.Nil(t, r.Context)
}

func TestFactoryFailureIsDeviceCreationError(t *testing.T) {
	core.SetLogOutput(io.Discard)
	_, err := renderer.Initialize(metadata.GraphicsAPIHeadless, renderer.Options{
		Params: &Config{FailDeviceCreation: true},
	})
	assert.ErrorIs(t, err, core.ErrDeviceCreation)
}

func TestFramesRotateAndInFlightIsBounded(t *testing.T) {
	d, c := newTestDevice(t)
	require.NoError(t, c.SetFrameDepth(2))
	sc := newTestSwapchain(t, d, 64, 32)

	for i := 0; i < 5; i++ {
		assert.Equal(t, uint32(i%3), sc.FrameIndex())
		renderOnce(t, c, sc)
		assert.LessOrEqual(t, c.InFlight(), 2)
	}
	assert.Equal(t, 3, d.Trace().Count(OpRetire))

	require.NoError(t, c.Wait())
	assert.Zero(t, c.InFlight())

	assert.Error(t, c.SetFrameDepth(3), "frame depth is fixed after the first frame")
}

func TestPrepareTwiceIsRefused(t *testing.T) {
	d, c := newTestDevice(t)
	sc := newTestSwapchain(t, d, 64, 32)

	require.NoError(t, sc.Prepare(c))
	assert.ErrorIs(t, sc.Prepare(c), core.ErrFrameInFlight)
	assert.ErrorIs(t, sc.Resize(10, 10), core.ErrFrameInFlight)
}

func TestPresentRequiresPresentState(t *testing.T) {
	d, c := newTestDevice(t)
	sc := newTestSwapchain(t, d, 64, 32)

	require.NoError(t, sc.Prepare(c))
	frame, err := sc.CurrentFrame()
	require.NoError(t, err)
	require.NoError(t, c.Transition(frame, metadata.ResourceStateRenderTarget))
	assert.ErrorIs(t, sc.Present(c), core.ErrRecording)
	require.NoError(t, c.End())
	assert.ErrorIs(t, sc.Present(c), core.ErrInvalidState)
}

func TestClearRequiresMatchingState(t *testing.T) {
	d, c := newTestDevice(t)
	sc := newTestSwapchain(t, d, 64, 32)
	depth, err := d.CreateResource(metadata.ResourceDescriptor{
		Name:   "DepthBuffer",
		Width:  64,
		Height: 32,
		Format: metadata.ResourceFormatD32Float,
		Usage:  metadata.ResourceUsageDepthStencil,
	}, metadata.ResourceStateDepthStencilWrite)
	require.NoError(t, err)

	require.NoError(t, sc.Prepare(c))
	frame, _ := sc.CurrentFrame()
	assert.ErrorIs(t, c.ClearRenderTarget(frame, metadata.ClearColor{}, metadata.Rect{}), core.ErrInvalidState)
	assert.NoError(t, c.ClearDepthStencil(depth, metadata.ClearDepth, 1, 0, metadata.Rect{}))
	assert.ErrorIs(t, c.ClearDepthStencil(frame, metadata.ClearDepth, 1, 0, metadata.Rect{}), core.ErrInvalidState)
}

func TestResizeRequiresIdleContext(t *testing.T) {
	d, c := newTestDevice(t)
	sc := newTestSwapchain(t, d, 64, 32)
	renderOnce(t, c, sc)

	require.NoError(t, sc.Prepare(c))
	old, err := sc.CurrentFrame()
	require.NoError(t, err)
	require.NoError(t, c.Transition(old, metadata.ResourceStatePresent))
	require.NoError(t, c.End())
	require.NoError(t, sc.Present(c))

	assert.ErrorIs(t, sc.Resize(128, 64), core.ErrInvalidState)
	require.NoError(t, c.Wait())
	assert.ErrorIs(t, sc.Resize(0, 64), core.ErrInvalidExtent)
	require.NoError(t, sc.Resize(128, 64))

	assert.True(t, old.IsReleased())
	assert.Equal(t, uint32(128), sc.Description().Width)
	renderOnce(t, c, sc)
}

func TestResourceReleaseOnce(t *testing.T) {
	d, c := newTestDevice(t)
	r, err := d.CreateResource(metadata.ResourceDescriptor{
		Name:   "DepthBuffer",
		Width:  8,
		Height: 8,
		Format: metadata.ResourceFormatD32Float,
		Usage:  metadata.ResourceUsageDepthStencil,
	}, metadata.ResourceStateDepthStencilWrite)
	require.NoError(t, err)
	assert.NotEqual(t, r.ID().String(), "")

	require.NoError(t, r.Release())
	assert.ErrorIs(t, r.Release(), core.ErrResourceReleased)
	assert.Zero(t, d.LiveResources())

	require.NoError(t, c.Wait())
	assert.Contains(t, d.Trace().Ops()[d.Trace().LastIndex(OpWait, "")].Detail, "freed=1")
}

func TestDisposeOrdering(t *testing.T) {
	d, c := newTestDevice(t)
	sc := newTestSwapchain(t, d, 64, 32)
	renderOnce(t, c, sc)

	assert.ErrorIs(t, d.Dispose(), core.ErrInvalidState)
	assert.ErrorIs(t, c.Dispose(), core.ErrInvalidState)
	require.NoError(t, c.Wait())
	require.NoError(t, sc.Release())
	require.NoError(t, c.Dispose())
	require.NoError(t, d.Dispose())
}

func TestLoadProgramChecksIntermediateCode(t *testing.T) {
	d, c := newTestDevice(t)
	def := &metadata.ShaderProgramDefinition{
		ID:   999,
		Name: "grid",
		Stages: []metadata.CompiledShaderStage{
			{Stage: metadata.ShaderStageVertex, IR: metadata.ShaderIntermediateDXIL, Code: []byte{1}},
		},
	}
	assert.ErrorIs(t, d.LoadShaderProgram(def), core.ErrShaderBuild)

	def.Stages[0].IR = metadata.ShaderIntermediateSPIRV
	require.NoError(t, d.LoadShaderProgram(def))

	sc := newTestSwapchain(t, d, 8, 8)
	require.NoError(t, sc.Prepare(c))
	assert.NoError(t, c.BindShaderProgram(999, 0))
	assert.ErrorIs(t, c.BindShaderProgram(998, 0), core.ErrProgramUnavailable)
}
