package codec

import (
	"encoding/json"
	"errors"
	"testing"

	"contract-rpc/message"
	"contract-rpc/rpcerr"

	"github.com/google/go-cmp/cmp"
)

func sampleCalls() []*message.Call {
	return []*message.Call{
		{
			RequestID:                "7f1c",
			ContractName:             "contract-rpc/userservice.UserService",
			MethodName:               "getById",
			ParameterTypeDescriptors: []string{"int"},
			ParameterValues:          []json.RawMessage{json.RawMessage(`1`)},
		},
		{
			RequestID:                "8a2d",
			ContractName:             "UserService",
			MethodName:               "save",
			ParameterTypeDescriptors: []string{"*contract-rpc/userservice.User", "bool"},
			ParameterValues:          []json.RawMessage{json.RawMessage(`{"id":3,"name":"Carol"}`), json.RawMessage(`true`)},
		},
		{
			RequestID:                "9b3e",
			ContractName:             "UserService",
			MethodName:               "list",
			ParameterTypeDescriptors: []string{},
			ParameterValues:          []json.RawMessage{},
		},
	}
}

func sampleResults() []*message.Result {
	return []*message.Result{
		{RequestID: "7f1c", ResultValue: json.RawMessage(`{"id":1,"name":"Alice"}`)},
		{RequestID: "8a2d"},
		{RequestID: "9b3e", ErrorMessage: "user 99 not found"},
	}
}

func TestRoundTrip(t *testing.T) {
	for _, ct := range []CodecType{CodecTypeJSON, CodecTypeBinary} {
		cdc, err := GetCodec(ct)
		if err != nil {
			t.Fatal(err)
		}

		for _, call := range sampleCalls() {
			data, err := cdc.Encode(call)
			if err != nil {
				t.Fatalf("%s Encode failed: %v", ct, err)
			}
			var decoded message.Call
			if err := cdc.Decode(data, &decoded); err != nil {
				t.Fatalf("%s Decode failed: %v", ct, err)
			}
			if diff := cmp.Diff(call, &decoded); diff != "" {
				t.Errorf("%s call mismatch (-want +got):\n%s", ct, diff)
			}
		}

		for _, res := range sampleResults() {
			data, err := cdc.Encode(res)
			if err != nil {
				t.Fatalf("%s Encode failed: %v", ct, err)
			}
			var decoded message.Result
			if err := cdc.Decode(data, &decoded); err != nil {
				t.Fatalf("%s Decode failed: %v", ct, err)
			}
			if diff := cmp.Diff(res, &decoded); diff != "" {
				t.Errorf("%s result mismatch (-want +got):\n%s", ct, diff)
			}
		}
	}
}

func TestAbsentParametersDecodeEmpty(t *testing.T) {
	call := &message.Call{RequestID: "9b3e", ContractName: "UserService", MethodName: "list"}
	want := &message.Call{
		RequestID:                "9b3e",
		ContractName:             "UserService",
		MethodName:               "list",
		ParameterTypeDescriptors: []string{},
		ParameterValues:          []json.RawMessage{},
	}

	for _, ct := range []CodecType{CodecTypeJSON, CodecTypeBinary} {
		cdc, _ := GetCodec(ct)
		data, err := cdc.Encode(call)
		if err != nil {
			t.Fatalf("%s Encode failed: %v", ct, err)
		}
		var decoded message.Call
		if err := cdc.Decode(data, &decoded); err != nil {
			t.Fatalf("%s Decode failed: %v", ct, err)
		}
		if diff := cmp.Diff(want, &decoded); diff != "" {
			t.Errorf("%s call mismatch (-want +got):\n%s", ct, diff)
		}
	}

	// A peer sending explicit nulls gets the same Call.
	var decoded message.Call
	raw := `{"requestId":"9b3e","contractName":"UserService","methodName":"list",` +
		`"parameterTypeDescriptors":null,"parameterValues":null}`
	if err := (&JSONCodec{}).Decode([]byte(raw), &decoded); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, &decoded); diff != "" {
		t.Errorf("null lists mismatch (-want +got):\n%s", diff)
	}
}

func TestBinaryCodecTruncated(t *testing.T) {
	cdc := &BinaryCodec{}
	data, err := cdc.Encode(sampleCalls()[1])
	if err != nil {
		t.Fatal(err)
	}

	for _, cut := range []int{1, 5, len(data) / 2, len(data) - 1} {
		var decoded message.Call
		err := cdc.Decode(data[:cut], &decoded)
		if !errors.Is(err, rpcerr.ErrSerialization) {
			t.Fatalf("cut at %d: expect serialization error, got %v", cut, err)
		}
	}
}

func TestBinaryCodecTrailingBytes(t *testing.T) {
	cdc := &BinaryCodec{}
	data, err := cdc.Encode(sampleResults()[0])
	if err != nil {
		t.Fatal(err)
	}
	var decoded message.Result
	if err := cdc.Decode(append(data, 0xff), &decoded); !errors.Is(err, rpcerr.ErrSerialization) {
		t.Fatalf("expect trailing garbage to be rejected, got %v", err)
	}
}

func TestBinaryCodecRejectsSkewedCall(t *testing.T) {
	call := sampleCalls()[0]
	call.ParameterValues = nil
	if _, err := (&BinaryCodec{}).Encode(call); !errors.Is(err, rpcerr.ErrSerialization) {
		t.Fatalf("expect skewed call to be rejected, got %v", err)
	}
}

func TestJSONCodecMalformed(t *testing.T) {
	var decoded message.Call
	err := (&JSONCodec{}).Decode([]byte(`{"requestId":`), &decoded)
	if !errors.Is(err, rpcerr.ErrSerialization) {
		t.Fatalf("expect serialization error, got %v", err)
	}
}

func TestGetCodec(t *testing.T) {
	if _, err := GetCodec(CodecType(9)); err == nil {
		t.Fatal("expect error for unknown codec type")
	}
	ct, err := ParseCodecType("binary")
	if err != nil || ct != CodecTypeBinary {
		t.Fatalf("expect binary codec, got %v (%v)", ct, err)
	}
	if _, err := ParseCodecType("gob"); err == nil {
		t.Fatal("expect error for unknown codec name")
	}
}
