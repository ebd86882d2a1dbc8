// Package assets loads what the renderer consumes from disk: SPIR-V shader
// bytecode and images decoded to tightly packed RGBA8.
package assets

import (
	"os"

	"github.com/cockroachdb/errors"
)

const spirvMagic = 0x07230203

// LoadShader reads a compiled SPIR-V shader. A missing file is an error; the
// renderer cannot start without both shaders.
func LoadShader(path string) ([]uint32, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read shader %s", path)
	}

	code, err := bytesToBytecode(b)
	if err != nil {
		return nil, errors.Wrapf(err, "shader %s", path)
	}
	return code, nil
}

// bytesToBytecode reinterprets little-endian SPIR-V bytes as 32-bit words.
func bytesToBytecode(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errors.Newf("bytecode length %d is not a positive multiple of 4", len(b))
	}

	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	if byteCode[0] != spirvMagic {
		return nil, errors.Newf("bad SPIR-V magic number %#08x", byteCode[0])
	}

	return byteCode, nil
}
