package codec

import (
	"encoding/json"

	"contract-rpc/rpcerr"
)

// JSONCodec encodes envelopes with the wire schema's field names.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, rpcerr.Serialization(err, "json encode %T", v)
	}
	return data, nil
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return rpcerr.Serialization(err, "json decode %T", v)
	}
	return nil
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
