package loaders

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/foveal/engine/core"
	"github.com/spaghettifunk/foveal/engine/renderer/metadata"
)

// SpirvMagic is the first word of every SPIR-V module.
const SpirvMagic uint32 = 0x07230203

// BinaryLoader reads compiled SPIR-V modules.
type BinaryLoader struct{}

func (bl *BinaryLoader) Load(path string, params interface{}) (*metadata.Resource, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, core.Wrapf(err, "reading %s", path)
	}

	words, err := BytesToBytecode(buf)
	if err != nil {
		return nil, core.Wrapf(err, "shader module %s", path)
	}

	return &metadata.Resource{
		Name:     strings.TrimSuffix(filepath.Base(path), ".spv"),
		Type:     metadata.ResourceTypeBinary,
		FullPath: path,
		DataSize: uint64(len(buf)),
		Data:     words,
	}, nil
}

// BytesToBytecode converts little endian SPIR-V bytes into words.
func BytesToBytecode(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, core.Errorf("invalid SPIR-V size %d, must be a non zero multiple of 4", len(b))
	}
	byteCode := make([]uint32, len(b)/4)
	for i := range byteCode {
		byteCode[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	if byteCode[0] != SpirvMagic {
		return nil, core.Errorf("invalid SPIR-V magic 0x%08x", byteCode[0])
	}
	return byteCode, nil
}
