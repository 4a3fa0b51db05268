package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSurface struct{ w, h uint32 }

func (s fixedSurface) Handle() interface{} { return nil }
func (s fixedSurface) Size() (uint32, uint32) { return s.w, s.h }
func (s fixedSurface) IsReady() bool { return true }
func (s fixedSurface) IsVisible() bool { return true }

func TestParseResourceFormat(t *testing.T) {
	f, err := ParseResourceFormat("r8g8b8a8_unorm")
	require.NoError(t, err)
	assert.Equal(t, ResourceFormatR8G8B8A8Unorm, f)

	f, err = ParseResourceFormat("D32_Float")
	require.NoError(t, err)
	assert.True(t, f.IsDepth())
	assert.Equal(t, uint32(4), f.SizeBytes())

	_, err = ParseResourceFormat("R9G9B9")
	assert.Error(t, err)
}

func TestResourceDescriptorValidate(t *testing.T) {
	d := ResourceDescriptor{
		Name:   "DepthBuffer",
		Width:  800,
		Height: 600,
		Format: ResourceFormatD32Float,
		Usage:  ResourceUsageDepthStencil | ResourceUsageShaderResource,
	}
	assert.NoError(t, d.Validate())

	d.Width = 0
	assert.Error(t, d.Validate())

	d.Width = 800
	d.Format = ResourceFormatR8G8B8A8Unorm
	assert.Error(t, d.Validate())
}

func TestSwapchainDescriptionValidate(t *testing.T) {
	d := SwapchainDescription{
		Surface:     fixedSurface{800, 600},
		Format:      ResourceFormatR8G8B8A8Unorm,
		Width:       800,
		Height:      600,
		BufferCount: 3,
		Buffering:   FrameBufferingTriple,
	}
	require.NoError(t, d.Validate())

	d.Height = 0
	assert.Error(t, d.Validate())

	d.Height = 600
	d.Format = ResourceFormatD32Float
	assert.Error(t, d.Validate())
}

func TestFrameBuffering(t *testing.T) {
	b, err := ParseFrameBuffering("Double")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), b.FrameCount())
	assert.Equal(t, uint32(3), FrameBufferingTriple.FrameCount())
	assert.Equal(t, uint32(1), FrameBufferingSingle.FrameCount())

	_, err = ParseFrameBuffering("quad")
	assert.Error(t, err)
}

func TestParseGraphicsAPI(t *testing.T) {
	api, err := ParseGraphicsAPI("Headless")
	require.NoError(t, err)
	assert.Equal(t, GraphicsAPIHeadless, api)
	assert.Equal(t, "vulkan", GraphicsAPIVulkan.String())

	_, err = ParseGraphicsAPI("metal")
	assert.Error(t, err)
}
