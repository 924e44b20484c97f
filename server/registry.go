package server

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"

	"contract-rpc/contract"
	"contract-rpc/rpcerr"
)

// methodType is one entry of a service's dispatch table.
type methodType struct {
	desc *contract.MethodDescriptor
	fn   reflect.Value // Method value bound to the receiver
}

// service is an exposed implementation and its dispatch table.
type service struct {
	name   string
	desc   *contract.Descriptor
	impl   any
	method map[string]*methodType // MethodKey → method
}

func newService(name string, desc *contract.Descriptor, impl any) (*service, error) {
	if desc == nil {
		return nil, rpcerr.Registration("%s: nil contract", name)
	}
	if impl == nil {
		return nil, rpcerr.Registration("%s: nil implementation", name)
	}
	rv := reflect.ValueOf(impl)
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil, rpcerr.Registration("%s: nil %T", name, impl)
	}
	if !desc.ImplementedBy(impl) {
		return nil, rpcerr.Registration("%T does not implement %s", impl, desc.Name)
	}

	svc := &service{
		name:   name,
		desc:   desc,
		impl:   impl,
		method: make(map[string]*methodType, len(desc.Methods)),
	}
	for _, md := range desc.Methods {
		// MethodByName sees promoted methods of embedded types too.
		fn := rv.MethodByName(md.GoName)
		if !fn.IsValid() {
			return nil, rpcerr.Registration("%T has no method %s", impl, md.GoName)
		}
		svc.method[md.Key()] = &methodType{desc: md, fn: fn}
	}
	return svc, nil
}

// call invokes mt with already decoded arguments. out is invalid for void methods.
func (s *service) call(ctx context.Context, mt *methodType, args []reflect.Value) (out reflect.Value, err error) {
	in := make([]reflect.Value, 0, len(args)+1)
	if mt.desc.HasContext {
		in = append(in, reflect.ValueOf(&ctx).Elem())
	}
	in = append(in, args...)

	results := mt.fn.Call(in)
	if errv := results[len(results)-1]; !errv.IsNil() {
		err = errv.Interface().(error)
	}
	if len(results) == 2 {
		out = results[0]
	}
	return out, err
}

// Registry maps contract names to exposed implementations.
//
// Registration happens during startup. Freeze, called by Serve, ends it: after
// that the map is never written again and Lookup reads it without locking.
type Registry struct {
	mu       sync.RWMutex
	frozen   atomic.Bool
	services map[string]*service
}

func NewRegistry() *Registry {
	return &Registry{services: make(map[string]*service)}
}

// Register exposes impl under the contract's own name.
func (r *Registry) Register(desc *contract.Descriptor, impl any) error {
	if desc == nil {
		return rpcerr.Registration("nil contract")
	}
	return r.RegisterName(desc.Name, desc, impl)
}

// RegisterName exposes impl as contract desc under name.
func (r *Registry) RegisterName(name string, desc *contract.Descriptor, impl any) error {
	if name == "" {
		return rpcerr.Registration("empty contract name")
	}
	svc, err := newService(name, desc, impl)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Load() {
		return rpcerr.Registration("%s: registry is frozen", name)
	}
	if _, dup := r.services[name]; dup {
		return rpcerr.Registration("%s: already registered", name)
	}
	r.services[name] = svc
	return nil
}

// Expose registers impl under the first of candidates it implements, and
// returns that contract's name. It fails when impl implements none of them.
func (r *Registry) Expose(impl any, candidates ...*contract.Descriptor) (string, error) {
	for _, desc := range candidates {
		if desc != nil && desc.ImplementedBy(impl) {
			return desc.Name, r.Register(desc, impl)
		}
	}
	return "", rpcerr.Registration("%T implements none of %d candidate contracts", impl, len(candidates))
}

// Lookup returns the implementation registered under name.
func (r *Registry) Lookup(name string) (any, bool) {
	svc, ok := r.lookup(name)
	if !ok {
		return nil, false
	}
	return svc.impl, true
}

func (r *Registry) lookup(name string) (*service, bool) {
	if r.frozen.Load() {
		svc, ok := r.services[name]
		return svc, ok
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[name]
	return svc, ok
}

// Names returns the registered contract names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Freeze ends registration.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen.Store(true)
	r.mu.Unlock()
}
