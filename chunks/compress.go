package chunks

import (
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/nickyhof/TreeDB/core"
)

type Compression int

const (
	NoCompression Compression = iota
	ZstdCompression
)

func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return NoCompression, nil
	case "zstd":
		return ZstdCompression, nil
	default:
		return 0, fmt.Errorf("%w: unknown compression %q", core.ErrInvalidArgument, name)
	}
}

// Stored payloads carry one leading codec byte.
const (
	codecRaw  byte = 0
	codecZstd byte = 1
)

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil)
)

func encodePayload(data []byte, c Compression) []byte {
	if c == ZstdCompression {
		out := make([]byte, 1, len(data)/2+8)
		out[0] = codecZstd
		return encoder.EncodeAll(data, out)
	}
	out := make([]byte, 0, len(data)+1)
	out = append(out, codecRaw)
	return append(out, data...)
}

func decodePayload(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty chunk payload", core.ErrCorruption)
	}
	switch payload[0] {
	case codecRaw:
		return payload[1:], nil
	case codecZstd:
		data, err := decoder.DecodeAll(payload[1:], nil)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", core.ErrCorruption, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: unknown chunk codec %d", core.ErrCorruption, payload[0])
	}
}
