package codec

import (
	"encoding/binary"
	"encoding/json"
	"math"

	"contract-rpc/message"
	"contract-rpc/rpcerr"
)

// BinaryCodec writes the wire schema as length-prefixed fields, big-endian.
//
//	Call:   id(u16) contract(u16) method(u16) n(u16) n×[descriptor(u16) value(u32)]
//	Result: id(u16) error(u32) value(u32)
//
// A zero-length value decodes as absent.
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	var w binWriter
	switch msg := v.(type) {
	case *message.Call:
		if len(msg.ParameterTypeDescriptors) != len(msg.ParameterValues) {
			return nil, rpcerr.Serialization(nil, "BinaryCodec: %d descriptors, %d values",
				len(msg.ParameterTypeDescriptors), len(msg.ParameterValues))
		}
		w.str16(msg.RequestID)
		w.str16(msg.ContractName)
		w.str16(msg.MethodName)
		w.u16(len(msg.ParameterValues))
		for i, val := range msg.ParameterValues {
			w.str16(msg.ParameterTypeDescriptors[i])
			w.bytes32(val)
		}
	case *message.Result:
		w.str16(msg.RequestID)
		w.bytes32([]byte(msg.ErrorMessage))
		w.bytes32(msg.ResultValue)
	default:
		return nil, rpcerr.Serialization(nil, "BinaryCodec: cannot encode %T", v)
	}
	if w.err != nil {
		return nil, w.err
	}
	return w.buf, nil
}

func (c *BinaryCodec) Decode(data []byte, v any) error {
	r := binReader{data: data}
	switch msg := v.(type) {
	case *message.Call:
		msg.RequestID = r.str16()
		msg.ContractName = r.str16()
		msg.MethodName = r.str16()
		n := r.u16()
		msg.ParameterTypeDescriptors, msg.ParameterValues = []string{}, []json.RawMessage{}
		for i := 0; i < n && r.err == nil; i++ {
			msg.ParameterTypeDescriptors = append(msg.ParameterTypeDescriptors, r.str16())
			msg.ParameterValues = append(msg.ParameterValues, json.RawMessage(r.bytes32()))
		}
	case *message.Result:
		msg.RequestID = r.str16()
		msg.ErrorMessage = string(r.bytes32())
		if val := r.bytes32(); len(val) > 0 {
			msg.ResultValue = json.RawMessage(val)
		} else {
			msg.ResultValue = nil
		}
	default:
		return rpcerr.Serialization(nil, "BinaryCodec: cannot decode into %T", v)
	}
	if r.err != nil {
		return r.err
	}
	if r.off != len(data) {
		return rpcerr.Serialization(nil, "BinaryCodec: %d trailing bytes", len(data)-r.off)
	}
	return nil
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}

type binWriter struct {
	buf []byte
	err error
}

func (w *binWriter) u16(n int) {
	if n > math.MaxUint16 {
		w.fail(n)
		return
	}
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(n))
}

func (w *binWriter) str16(s string) {
	w.u16(len(s))
	w.buf = append(w.buf, s...)
}

func (w *binWriter) bytes32(b []byte) {
	if uint64(len(b)) > math.MaxUint32 {
		w.fail(len(b))
		return
	}
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *binWriter) fail(n int) {
	if w.err == nil {
		w.err = rpcerr.Serialization(nil, "BinaryCodec: field of %d bytes too long", n)
	}
}

// binReader stops at the first short read; later calls return zero values.
type binReader struct {
	data []byte
	off  int
	err  error
}

func (r *binReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.data)-r.off < n {
		r.err = rpcerr.Serialization(nil, "BinaryCodec: truncated at offset %d", r.off)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *binReader) u16() int {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return int(binary.BigEndian.Uint16(b))
}

func (r *binReader) str16() string {
	return string(r.take(r.u16()))
}

func (r *binReader) bytes32() []byte {
	b := r.take(4)
	if b == nil {
		return nil
	}
	n := binary.BigEndian.Uint32(b)
	if uint64(n) > uint64(len(r.data)-r.off) {
		r.err = rpcerr.Serialization(nil, "BinaryCodec: field of %d bytes overruns body", n)
		return nil
	}
	out := make([]byte, n)
	copy(out, r.take(int(n)))
	return out
}
