package service

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// maxDumpBytes bounds the decompressed size of a restored dump.
const maxDumpBytes = 1 << 32

// zstd.Encoder and zstd.Decoder are safe for concurrent EncodeAll and
// DecodeAll calls.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("service: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil,
		zstd.WithDecoderMaxMemory(maxDumpBytes),
	)
	if err != nil {
		panic("service: zstd decoder initialization failed: " + err.Error())
	}
}

// compressDump frames a serialized filter for the wire. Sparse filters
// are mostly zero words and shrink well.
func compressDump(data []byte) []byte {
	return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/4))
}

func decompressDump(compressed []byte) ([]byte, error) {
	data, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return data, nil
}
