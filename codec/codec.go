// Package codec encodes Call and Result envelopes.
//
// Two envelope formats share one wire schema: JSON (the canonical, readable
// form) and Binary (length-prefixed fields). The codec type travels in every
// frame header, so a server always answers in the codec the client chose.
package codec

import "github.com/pkg/errors"

type CodecType byte

const (
	CodecTypeJSON   CodecType = 0
	CodecTypeBinary CodecType = 1
)

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType // 0=JSON, 1=Binary
}

var (
	jsonCodec   = &JSONCodec{}
	binaryCodec = &BinaryCodec{}
)

// GetCodec returns the codec for codecType. Both codecs are stateless and shared.
func GetCodec(codecType CodecType) (Codec, error) {
	switch codecType {
	case CodecTypeJSON:
		return jsonCodec, nil
	case CodecTypeBinary:
		return binaryCodec, nil
	}
	return nil, errors.Errorf("unsupported codec type: %d", codecType)
}

// ParseCodecType maps a configuration name to a codec type.
func ParseCodecType(name string) (CodecType, error) {
	switch name {
	case "json", "":
		return CodecTypeJSON, nil
	case "binary":
		return CodecTypeBinary, nil
	}
	return 0, errors.Errorf("unknown codec %q", name)
}

func (t CodecType) String() string {
	switch t {
	case CodecTypeJSON:
		return "json"
	case CodecTypeBinary:
		return "binary"
	}
	return "unknown"
}
