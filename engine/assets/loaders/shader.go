package loaders

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

// ShaderLoader reads shader stage source text.
type ShaderLoader struct{}

func (sl *ShaderLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Asset, error) {
	if assetType != metadata.ResourceTypeShader && assetType != metadata.ResourceTypeText {
		return nil, fmt.Errorf("shader loader cannot load asset type %d", assetType)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("shader source '%s' is empty", path)
	}
	return &metadata.Asset{
		Name:     assetName(path, params),
		FullPath: path,
		DataSize: uint64(len(data)),
		Data:     data,
	}, nil
}

func (sl *ShaderLoader) Unload(asset *metadata.Asset) error {
	return unload(asset)
}

// assetName returns params["name"] when present, the file name otherwise.
func assetName(path string, params interface{}) string {
	if p, ok := params.(map[string]string); ok && p["name"] != "" {
		return p["name"]
	}
	return filepath.Base(path)
}

func unload(asset *metadata.Asset) error {
	if asset == nil {
		return fmt.Errorf("unload called with nil asset")
	}
	asset.Data = nil
	asset.DataSize = 0
	return nil
}
