package client

import (
	"context"
	"encoding/json"
	"reflect"
	"time"

	"contract-rpc/contract"
	"contract-rpc/message"
	"contract-rpc/rpcerr"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Proxy is the client-side stand-in for one contract. Typed stubs call
// Invoke; it can also be used directly when no stub exists.
type Proxy struct {
	client *Client
	desc   *contract.Descriptor
}

var _ contract.Invoker = (*Proxy)(nil)

// Contract returns the descriptor the proxy is bound to.
func (p *Proxy) Contract() *contract.Descriptor {
	return p.desc
}

// Invoke calls method remotely with args and decodes the return value into reply.
//
// reply must be a pointer to the method's return type, or nil for void
// methods. When the remote method returns nothing (nil pointer, nil slice),
// reply is left untouched.
func (p *Proxy) Invoke(ctx context.Context, method string, reply any, args ...any) (err error) {
	md, err := p.desc.Match(method, args)
	if err != nil {
		return errors.Wrap(rpcerr.ErrMethodNotFound, err.Error())
	}
	if err := checkReply(md, reply); err != nil {
		return err
	}

	ctx, span := p.client.tracer.Start(ctx, p.desc.Name+"/"+md.Name, trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	call, err := p.buildCall(md, args)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("rpc.request_id", call.RequestID))

	res, err := p.roundTrip(ctx, call)
	if err != nil {
		return err
	}
	if res.Failed() {
		return rpcerr.Remote(res.ErrorMessage)
	}
	if reply == nil || !res.HasValue() {
		return nil
	}
	if err := json.Unmarshal(res.ResultValue, reply); err != nil {
		return rpcerr.Serialization(err, "decode result of %s.%s", p.desc.Name, md.Name)
	}
	return nil
}

func (p *Proxy) buildCall(md *contract.MethodDescriptor, args []any) (*message.Call, error) {
	call := &message.Call{
		RequestID:                uuid.NewString(),
		ContractName:             p.desc.Name,
		MethodName:               md.Name,
		ParameterTypeDescriptors: append([]string{}, md.ParamDescriptors...),
		ParameterValues:          make([]json.RawMessage, len(args)),
	}
	for i, arg := range args {
		v, err := json.Marshal(arg)
		if err != nil {
			return nil, rpcerr.Serialization(err, "encode argument %d of %s.%s", i, p.desc.Name, md.Name)
		}
		call.ParameterValues[i] = v
	}
	return call, nil
}

// roundTrip registers the slot, sends the Call and waits for its outcome.
// The slot is registered before sending: the Result may arrive before Send returns.
func (p *Proxy) roundTrip(ctx context.Context, call *message.Call) (*message.Result, error) {
	pending := p.client.pending
	slot, err := pending.Register(call.RequestID)
	if err != nil {
		return nil, err
	}

	if err := p.client.send(call); err != nil {
		pending.Remove(slot.id)
		select {
		case <-p.client.conn.Done():
			return nil, errClosed(err)
		default:
			return nil, err
		}
	}

	var timeout <-chan time.Time
	if d := p.client.opts.callTimeout; d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case o := <-slot.ch:
		return o.result, o.err
	case <-timeout:
		pending.Remove(slot.id)
		return nil, errors.Wrapf(rpcerr.ErrCallTimeout, "%s.%s after %s",
			call.ContractName, call.MethodName, p.client.opts.callTimeout)
	case <-ctx.Done():
		pending.Remove(slot.id)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.Wrapf(rpcerr.ErrCallTimeout, "%s.%s: %v", call.ContractName, call.MethodName, ctx.Err())
		}
		return nil, ctx.Err()
	}
}

func checkReply(md *contract.MethodDescriptor, reply any) error {
	if reply == nil {
		return nil
	}
	rv := reflect.ValueOf(reply)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.Errorf("%s: reply must be a non-nil pointer, got %T", md.Name, reply)
	}
	if md.ReturnType == nil {
		return errors.Errorf("%s returns nothing, reply must be nil", md.Name)
	}
	if !md.ReturnType.AssignableTo(rv.Elem().Type()) {
		return errors.Errorf("%s returns %v, cannot decode into %T", md.Name, md.ReturnType, reply)
	}
	return nil
}
