package assets

import "github.com/spaghettifunk/anima-editor/engine/renderer/metadata"

type Loader interface {
	Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Asset, error)
	Unload(*metadata.Asset) error
}
