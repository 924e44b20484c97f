// Package message defines the two records exchanged between client and server.
//
// A Call travels client → server and names the contract, method and arguments
// of one remote invocation. A Result travels back and is matched to its Call
// only through RequestID; nothing about the order of Results is assumed.
//
// Argument and return values are always JSON documents, whichever codec frames
// the envelope itself.
package message

import (
	"bytes"
	"encoding/json"

	"contract-rpc/rpcerr"
)

// Call carries the data for a single remote method invocation.
type Call struct {
	RequestID                string            `json:"requestId"`
	ContractName             string            `json:"contractName"`
	MethodName               string            `json:"methodName"`
	ParameterTypeDescriptors []string          `json:"parameterTypeDescriptors"`
	ParameterValues          []json.RawMessage `json:"parameterValues"`
}

// MarshalJSON writes absent parameter lists as empty arrays, never null.
func (c Call) MarshalJSON() ([]byte, error) {
	type wire Call
	c.normalize()
	return json.Marshal(wire(c))
}

// UnmarshalJSON decodes a Call with its parameter lists never nil. Fields
// decoded before an error, the requestId among them, are kept.
func (c *Call) UnmarshalJSON(data []byte) error {
	type wire Call
	var w wire
	err := json.Unmarshal(data, &w)
	*c = Call(w)
	c.normalize()
	return err
}

func (c *Call) normalize() {
	if c.ParameterTypeDescriptors == nil {
		c.ParameterTypeDescriptors = []string{}
	}
	if c.ParameterValues == nil {
		c.ParameterValues = []json.RawMessage{}
	}
}

// Validate checks that a decoded Call is well formed.
func (c *Call) Validate() error {
	switch {
	case c.RequestID == "":
		return rpcerr.Serialization(nil, "call without requestId")
	case c.ContractName == "":
		return rpcerr.Serialization(nil, "call %s without contractName", c.RequestID)
	case c.MethodName == "":
		return rpcerr.Serialization(nil, "call %s without methodName", c.RequestID)
	case len(c.ParameterTypeDescriptors) != len(c.ParameterValues):
		return rpcerr.Serialization(nil, "call %s has %d descriptors but %d values",
			c.RequestID, len(c.ParameterTypeDescriptors), len(c.ParameterValues))
	}
	return nil
}

// Result carries the outcome of one Call.
//
//   - On success: ErrorMessage is empty, ResultValue holds the serialized return
//     value, or is nil when the method is void or returned nothing.
//   - On failure: ErrorMessage holds the remote error text and ResultValue is nil.
type Result struct {
	RequestID    string          `json:"requestId"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	ResultValue  json.RawMessage `json:"resultValue,omitempty"`
}

// Failed reports whether the remote invocation failed.
func (r *Result) Failed() bool {
	return r.ErrorMessage != ""
}

// HasValue reports whether the Result carries a non-null return value.
func (r *Result) HasValue() bool {
	v := bytes.TrimSpace(r.ResultValue)
	return len(v) > 0 && !bytes.Equal(v, []byte("null"))
}

// Failure builds a failed Result for requestID.
func Failure(requestID, errMsg string) *Result {
	return &Result{RequestID: requestID, ErrorMessage: errMsg}
}
