package systems

import (
	"io"
	"testing"

	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer"
	"github.com/spaghettifunk/anima-editor/engine/renderer/headless"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDevice(t *testing.T) (*headless.Device, renderer.Context, *headless.Trace) {
	t.Helper()
	core.SetLogOutput(io.Discard)
	trace := headless.NewTrace()
	device, err := headless.NewDevice("test", headless.Config{Trace: trace})
	require.NoError(t, err)
	ctx, err := device.CreateContext()
	require.NoError(t, err)
	return device, ctx, trace
}

func createSwapchain(t *testing.T, m *SwapchainManager, surface *fakeSurface) {
	t.Helper()
	w, h := surface.Size()
	require.NoError(t, m.Create(surface, metadata.ResourceFormatR8G8B8A8Unorm, w, h, 3, metadata.FrameBufferingTriple))
}

// presentFrame records an empty frame and presents it.
func presentFrame(t *testing.T, m *SwapchainManager, ctx renderer.Context) {
	t.Helper()
	require.NoError(t, m.Prepare(ctx))
	frame, err := m.CurrentFrame()
	require.NoError(t, err)
	require.NoError(t, ctx.Transition(frame, metadata.ResourceStatePresent))
	require.NoError(t, ctx.End())
	require.NoError(t, m.Present(ctx))
}

func TestSwapchainCreate(t *testing.T) {
	device, _, trace := newTestDevice(t)
	m := NewSwapchainManager(ViewGameMode, device)
	assert.Equal(t, ViewGameMode, m.View())
	assert.False(t, m.IsActive())

	w, h := m.Extent()
	assert.Zero(t, w)
	assert.Zero(t, h)

	surface := newFakeSurface("game", 0, 600)
	err := m.Create(surface, metadata.ResourceFormatR8G8B8A8Unorm, 0, 600, 3, metadata.FrameBufferingTriple)
	assert.ErrorIs(t, err, core.ErrInvalidExtent)
	assert.False(t, m.IsActive())

	surface.w = 800
	createSwapchain(t, m, surface)
	assert.True(t, m.IsActive())
	w, h = m.Extent()
	assert.Equal(t, uint32(800), w)
	assert.Equal(t, uint32(600), h)
	assert.Equal(t, 1, trace.Count(headless.OpCreateSwapchain))

	err = m.Create(surface, metadata.ResourceFormatR8G8B8A8Unorm, 800, 600, 3, metadata.FrameBufferingTriple)
	assert.ErrorIs(t, err, core.ErrAlreadyInitialized)
}

func TestSwapchainClampsExtent(t *testing.T) {
	device, ctx, _ := newTestDevice(t)
	m := NewSwapchainManager(ViewEditMode, device)
	createSwapchain(t, m, newFakeSurface("edit", 40000, 300))

	w, h := m.Extent()
	assert.Equal(t, MaxSwapchainExtent, w)
	assert.Equal(t, uint32(300), h)

	require.NoError(t, m.Resize(100, 50000))
	w, h = m.Extent()
	assert.Equal(t, uint32(100), w)
	assert.Equal(t, MaxSwapchainExtent, h)

	presentFrame(t, m, ctx)
}

func TestSwapchainFrameAcquisition(t *testing.T) {
	device, ctx, _ := newTestDevice(t)
	m := NewSwapchainManager(ViewGameMode, device)

	assert.ErrorIs(t, m.Prepare(ctx), core.ErrSwapchainInactive)
	_, err := m.CurrentFrame()
	assert.ErrorIs(t, err, core.ErrNoFrameAcquired)
	assert.ErrorIs(t, m.Present(ctx), core.ErrNoFrameAcquired)

	createSwapchain(t, m, newFakeSurface("game", 800, 600))
	require.NoError(t, m.Prepare(ctx))
	assert.ErrorIs(t, m.Prepare(ctx), core.ErrFrameInFlight)
	assert.ErrorIs(t, m.Resize(1024, 768), core.ErrFrameInFlight)
	assert.ErrorIs(t, m.Release(), core.ErrFrameInFlight)

	frame, err := m.CurrentFrame()
	require.NoError(t, err)
	assert.Equal(t, "game/frame0.0", frame.Name())
	require.NoError(t, ctx.Transition(frame, metadata.ResourceStatePresent))
	require.NoError(t, ctx.End())
	require.NoError(t, m.Present(ctx))

	_, err = m.CurrentFrame()
	assert.ErrorIs(t, err, core.ErrNoFrameAcquired)

	presentFrame(t, m, ctx)
	require.NoError(t, m.Prepare(ctx))
	frame, err = m.CurrentFrame()
	require.NoError(t, err)
	assert.Equal(t, "game/frame2.0", frame.Name())
}

func TestSwapchainResizeNeedsIdleContext(t *testing.T) {
	device, ctx, trace := newTestDevice(t)
	m := NewSwapchainManager(ViewGameMode, device)
	createSwapchain(t, m, newFakeSurface("game", 800, 600))
	presentFrame(t, m, ctx)

	assert.ErrorIs(t, m.Resize(1024, 768), core.ErrInvalidState)
	assert.ErrorIs(t, m.Resize(0, 768), core.ErrInvalidExtent)

	require.NoError(t, ctx.Wait())
	require.NoError(t, m.Resize(1024, 768))
	w, h := m.Extent()
	assert.Equal(t, uint32(1024), w)
	assert.Equal(t, uint32(768), h)
	assert.Equal(t, 1, trace.Count(headless.OpResizeSwapchain))

	require.NoError(t, m.Prepare(ctx))
	frame, err := m.CurrentFrame()
	require.NoError(t, err)
	assert.Equal(t, "game/frame0.1", frame.Name())
	assert.Equal(t, uint32(1024), frame.Descriptor().Width)
}

func TestSwapchainRelease(t *testing.T) {
	device, ctx, trace := newTestDevice(t)
	m := NewSwapchainManager(ViewEditMode, device)
	require.NoError(t, m.Release())
	assert.Equal(t, 0, trace.Count(headless.OpReleaseSwapchain))

	createSwapchain(t, m, newFakeSurface("edit", 640, 480))
	presentFrame(t, m, ctx)
	require.NoError(t, ctx.Wait())
	require.NoError(t, m.Release())
	assert.False(t, m.IsActive())
	assert.Equal(t, 1, trace.Count(headless.OpReleaseSwapchain))
	require.NoError(t, m.Release())

	assert.ErrorIs(t, m.Resize(640, 480), core.ErrSwapchainInactive)
	createSwapchain(t, m, newFakeSurface("edit", 640, 480))
	assert.True(t, m.IsActive())
}
