package server

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"contract-rpc/message"
	"contract-rpc/rpcerr"

	"go.uber.org/zap"
)

// Dispatcher resolves a Call against the Registry and invokes it.
//
// Process always returns a Result and never panics: every failure, including a
// panic in the business method, becomes the Result's errorMessage. A Result
// carries either an error or a value, never both.
type Dispatcher struct {
	registry *Registry
	logger   *zap.Logger
}

func NewDispatcher(registry *Registry, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{registry: registry, logger: logger}
}

// Process executes call and builds its Result. It has the middleware.HandlerFunc shape.
func (d *Dispatcher) Process(ctx context.Context, call *message.Call) (res *message.Result) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic in remote method",
				zap.String("contract", call.ContractName),
				zap.String("method", call.MethodName),
				zap.Any("panic", r),
				zap.Stack("stack"))
			res = message.Failure(call.RequestID, fmt.Sprintf("panic: %v", r))
		}
	}()

	if err := call.Validate(); err != nil {
		return message.Failure(call.RequestID, err.Error())
	}

	svc, ok := d.registry.lookup(call.ContractName)
	if !ok {
		return message.Failure(call.RequestID, rpcerr.MsgServiceNotFound)
	}
	mt, ok := svc.method[message.MethodKey(call.MethodName, call.ParameterTypeDescriptors)]
	if !ok {
		return message.Failure(call.RequestID, rpcerr.MsgMethodNotFound)
	}

	args := make([]reflect.Value, len(mt.desc.ParamTypes))
	for i, pt := range mt.desc.ParamTypes {
		v := reflect.New(pt)
		if err := json.Unmarshal(call.ParameterValues[i], v.Interface()); err != nil {
			return message.Failure(call.RequestID,
				rpcerr.Serialization(err, "parameter %d of %s", i, mt.desc.Key()).Error())
		}
		args[i] = v.Elem()
	}

	if ctx == nil {
		ctx = context.Background()
	}
	out, err := svc.call(ctx, mt, args)
	if err != nil {
		return message.Failure(call.RequestID, errorText(err))
	}

	value, err := encodeValue(out)
	if err != nil {
		return message.Failure(call.RequestID,
			rpcerr.Serialization(err, "result of %s", mt.desc.Key()).Error())
	}
	return &message.Result{RequestID: call.RequestID, ResultValue: value}
}

// encodeValue serializes a return value. Void methods and nil returns have no value.
func encodeValue(out reflect.Value) (json.RawMessage, error) {
	if !out.IsValid() {
		return nil, nil
	}
	switch out.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		if out.IsNil() {
			return nil, nil
		}
	}
	raw, err := json.Marshal(out.Interface())
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return nil, nil
	}
	return raw, nil
}

// errorText is what the caller sees of err. An empty message would read as
// success on the wire, so it is replaced.
func errorText(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fmt.Sprintf("remote error %T", err)
}
