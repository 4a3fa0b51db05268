package loaders

import (
	"fmt"
	"io"
	"os"

	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

// BinaryLoader reads precompiled blobs such as .spv or .dxil files.
type BinaryLoader struct{}

func (bl *BinaryLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Asset, error) {
	if assetType != metadata.ResourceTypeBinary {
		return nil, fmt.Errorf("binary loader cannot load asset type %d", assetType)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if len(buf) == 0 {
		return nil, fmt.Errorf("binary '%s' is empty", path)
	}

	return &metadata.Asset{
		Name:     assetName(path, params),
		FullPath: path,
		DataSize: uint64(len(buf)),
		Data:     buf,
	}, nil
}

func (bl *BinaryLoader) Unload(asset *metadata.Asset) error {
	return unload(asset)
}

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic uint32 = 0x07230203

// BytesToBytecode converts little endian bytes into 32 bit words. The
// length must be a multiple of four and the first word the SPIR-V magic.
func BytesToBytecode(b []byte) ([]uint32, error) {
	if len(b) < 4 || len(b)%4 != 0 {
		return nil, fmt.Errorf("SPIR-V size %d is not a positive multiple of 4", len(b))
	}
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = uint32(b[byteIndex]) |
			uint32(b[byteIndex+1])<<8 |
			uint32(b[byteIndex+2])<<16 |
			uint32(b[byteIndex+3])<<24
	}
	if byteCode[0] != SPIRVMagic {
		return nil, fmt.Errorf("invalid SPIR-V magic 0x%08X", byteCode[0])
	}
	return byteCode, nil
}
