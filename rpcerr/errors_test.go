package rpcerr

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
)

func TestRemoteInvocationErrorMessage(t *testing.T) {
	err := Remote("user 99 not found")
	if err.Error() != "user 99 not found" {
		t.Fatalf("expect message to be forwarded verbatim, got %q", err.Error())
	}
	if !IsRemote(errors.Wrap(err, "GetByID")) {
		t.Fatal("expect wrapped remote error to be recognized")
	}
	if errors.Is(err, ErrServiceNotFound) || errors.Is(err, ErrMethodNotFound) {
		t.Fatal("business error must not match resolution sentinels")
	}
}

func TestRemoteResolutionSentinels(t *testing.T) {
	if !errors.Is(Remote(MsgServiceNotFound), ErrServiceNotFound) {
		t.Fatal("expect service not found to unwrap to ErrServiceNotFound")
	}
	if !errors.Is(Remote(MsgMethodNotFound), ErrMethodNotFound) {
		t.Fatal("expect method not found to unwrap to ErrMethodNotFound")
	}
}

func TestSerializationKeepsCause(t *testing.T) {
	var target *json.SyntaxError
	cause := json.Unmarshal([]byte("{"), &struct{}{})
	err := Serialization(cause, "decode call")

	if !errors.Is(err, ErrSerialization) {
		t.Fatalf("expect ErrSerialization, got %v", err)
	}
	if !errors.As(err, &target) {
		t.Fatalf("expect json cause to survive wrapping, got %v", err)
	}
	if !errors.Is(Serialization(nil, "empty body"), ErrSerialization) {
		t.Fatal("expect nil cause to still be a serialization error")
	}
}

func TestRegistration(t *testing.T) {
	err := Registration("%T implements no contract", 42)
	if !errors.Is(err, ErrRegistration) {
		t.Fatalf("expect ErrRegistration, got %v", err)
	}
}
