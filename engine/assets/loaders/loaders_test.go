package loaders

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShaderLoader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vertex.wgsl")
	require.NoError(t, os.WriteFile(path, []byte("@vertex fn vs_main() {}"), 0o644))

	l := &ShaderLoader{}
	asset, err := l.Load(path, metadata.ResourceTypeShader, map[string]string{"name": "grid"})
	require.NoError(t, err)
	assert.Equal(t, "grid", asset.Name)
	assert.Equal(t, uint64(len("@vertex fn vs_main() {}")), asset.DataSize)

	require.NoError(t, l.Unload(asset))
	assert.Nil(t, asset.Data)

	empty := filepath.Join(dir, "pixel.wgsl")
	require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0o644))
	_, err = l.Load(empty, metadata.ResourceTypeShader, nil)
	assert.Error(t, err)

	_, err = l.Load(path, metadata.ResourceTypeBinary, nil)
	assert.Error(t, err)
}

func TestBytesToBytecode(t *testing.T) {
	words, err := BytesToBytecode([]byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []uint32{SPIRVMagic, 0x00010000}, words)

	_, err = BytesToBytecode([]byte{1, 2, 3})
	assert.Error(t, err)
	_, err = BytesToBytecode([]byte{1, 2, 3, 4})
	assert.Error(t, err)
}

func TestBinaryLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vertex.spv")
	require.NoError(t, os.WriteFile(path, []byte{0x03, 0x02, 0x23, 0x07}, 0o644))

	asset, err := (&BinaryLoader{}).Load(path, metadata.ResourceTypeBinary, nil)
	require.NoError(t, err)
	assert.Equal(t, "vertex.spv", asset.Name)
	assert.Equal(t, uint64(4), asset.DataSize)
}
