package systems

import (
	"io"
	"testing"

	"github.com/spaghettifunk/anima-editor/engine/config"
	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer/headless"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headlessConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Backend = "headless"
	cfg.Shaders.Dir = t.TempDir()
	cfg.Shaders.Watch = false
	return cfg
}

func TestSystemManagerLifecycle(t *testing.T) {
	core.SetLogOutput(io.Discard)
	trace := headless.NewTrace()

	sm, err := NewSystemManager(headlessConfig(t), &headless.Config{Trace: trace})
	require.NoError(t, err)
	require.NoError(t, sm.Initialize())
	require.NotNil(t, sm.SurfaceSystem.Device())

	game := newFakeSurface("game", 320, 240)
	require.NoError(t, sm.SurfaceSystem.InitializeSwapchain(ViewGameMode, game))
	require.NoError(t, sm.SurfaceSystem.Render(ViewGameMode, game, tick(0), DrawFunc(clearDrawer)))
	assert.Equal(t, ViewStateActive, sm.SurfaceSystem.ViewState(ViewGameMode))

	require.NoError(t, sm.Shutdown())
	assert.Nil(t, sm.SurfaceSystem.Device())

	release := trace.Index(headless.OpReleaseSwapchain, "game")
	disposeDevice := trace.Index(headless.OpDisposeDevice, "")
	require.GreaterOrEqual(t, release, 0)
	assert.Less(t, release, disposeDevice)
}

func TestSystemManagerRejectsInvalidConfig(t *testing.T) {
	core.SetLogOutput(io.Discard)

	cfg := headlessConfig(t)
	cfg.FrameDepth = 7
	_, err := NewSystemManager(cfg, nil)
	assert.Error(t, err)
}

func TestSystemManagerMissingShaderDir(t *testing.T) {
	core.SetLogOutput(io.Discard)

	cfg := headlessConfig(t)
	cfg.Shaders.Dir = cfg.Shaders.Dir + "/missing"
	sm, err := NewSystemManager(cfg, &headless.Config{})
	require.NoError(t, err)
	assert.Error(t, sm.Initialize())
	assert.NoError(t, sm.Shutdown())
}
