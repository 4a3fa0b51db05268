package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	api, err := cfg.API()
	require.NoError(t, err)
	assert.Equal(t, metadata.GraphicsAPIVulkan, api)

	f, err := cfg.SwapchainFormat()
	require.NoError(t, err)
	assert.Equal(t, metadata.ResourceFormatR8G8B8A8Unorm, f)

	b, err := cfg.FrameBuffering()
	require.NoError(t, err)
	assert.Equal(t, metadata.FrameBufferingTriple, b)
	assert.Equal(t, uint32(3), cfg.FrameDepth)
	assert.Equal(t, 128, cfg.Console.Capacity)
	assert.Equal(t, DepthPolicyShared, cfg.Depth.Policy)
}

func TestParseOverlaysDefaults(t *testing.T) {
	cfg := Default()
	err := Parse([]byte(`
backend = "headless"
log_level = "warn"
frame_depth = 2

[swapchain]
buffering = "double"
buffer_count = 2

[depth]
policy = "per_view"

[windows.edit]
width = 1024
`), cfg)
	require.NoError(t, err)

	api, _ := cfg.API()
	assert.Equal(t, metadata.GraphicsAPIHeadless, api)
	assert.Equal(t, core.WarnLevel, cfg.Level())
	assert.Equal(t, uint32(2), cfg.FrameDepth)
	assert.Equal(t, DepthPolicyPerView, cfg.Depth.Policy)
	assert.Equal(t, uint32(1024), cfg.Windows.Edit.Width)
	assert.Equal(t, uint32(600), cfg.Windows.Edit.Height)
	assert.Equal(t, "R8G8B8A8_Unorm", cfg.Swapchain.Format)
}

func TestParseRejectsInvalidValues(t *testing.T) {
	cfg := Default()
	err := Parse([]byte(`
backend = "metal"
frame_depth = 5

[depth]
format = "R8G8B8A8_Unorm"
`), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metal")
	assert.Contains(t, err.Error(), "frame_depth")
	assert.Contains(t, err.Error(), "depth.format")
}

func TestParseReportsSyntaxPosition(t *testing.T) {
	err := Parse([]byte("backend = \n"), Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestLoad(t *testing.T) {
	core.SetLogOutput(io.Discard)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	path := filepath.Join(t.TempDir(), "editor.toml")
	require.NoError(t, os.WriteFile(path, []byte("app_name = \"Test\"\n"), 0o644))
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Test", cfg.AppName)
}
