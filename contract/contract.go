// Package contract describes the interfaces that can be called remotely.
//
// A contract is an ordinary Go interface. Define reflects over it once and
// records, for every method, the wire name and the ordered parameter type
// descriptors that identify it. Both sides use the same descriptor: the client
// to build Calls and pick overloads, the server to build its dispatch table.
//
// Accepted method shapes:
//
//	Method(ctx context.Context, a A, b B) (R, error)
//	Method(a A) error
//
// The leading context is optional and never sent. Every other parameter and
// the return value must be JSON-serializable.
//
// Go has no method overloading, but a contract may still expose overloads on
// the wire: WithMethodName can give several Go methods the same wire name, and
// their parameter descriptors tell them apart.
package contract

import (
	"context"
	"reflect"

	"contract-rpc/message"

	"github.com/pkg/errors"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Invoker performs one remote call by descriptor. reply must be a pointer to
// the method's return type, or nil for void methods.
type Invoker interface {
	Invoke(ctx context.Context, method string, reply any, args ...any) error
}

// MethodDescriptor identifies one callable method.
type MethodDescriptor struct {
	Name             string         // Wire name
	GoName           string         // Interface method name
	ParamTypes       []reflect.Type // Declared parameter types, context excluded
	ParamDescriptors []string
	ReturnType       reflect.Type // nil for void
	HasContext       bool
}

// Key returns the dispatch key, e.g. "lookup(int)".
func (m *MethodDescriptor) Key() string {
	return message.MethodKey(m.Name, m.ParamDescriptors)
}

// Descriptor describes a contract interface.
type Descriptor struct {
	Name    string
	Type    reflect.Type // The interface type
	Methods []*MethodDescriptor

	byKey  map[string]*MethodDescriptor
	byName map[string][]*MethodDescriptor
}

// Resolve finds the method with the given wire name and parameter descriptors.
func (d *Descriptor) Resolve(name string, descriptors []string) (*MethodDescriptor, bool) {
	m, ok := d.byKey[message.MethodKey(name, descriptors)]
	return m, ok
}

// Overloads returns every method exposed under wire name.
func (d *Descriptor) Overloads(name string) []*MethodDescriptor {
	return d.byName[name]
}

// Match picks the overload of name whose parameters accept args.
// Candidates are tried in Go method name order; the first match wins.
func (d *Descriptor) Match(name string, args []any) (*MethodDescriptor, error) {
	candidates := d.byName[name]
	if len(candidates) == 0 {
		return nil, errors.Errorf("%s has no method %q", d.Name, name)
	}
	for _, m := range candidates {
		if accepts(m.ParamTypes, args) {
			return m, nil
		}
	}
	return nil, errors.Errorf("%s: no overload of %q accepts %d argument(s) %s",
		d.Name, name, len(args), describeArgs(args))
}

// ImplementedBy reports whether impl satisfies the contract interface.
func (d *Descriptor) ImplementedBy(impl any) bool {
	if impl == nil {
		return false
	}
	return reflect.TypeOf(impl).Implements(d.Type)
}

// Contract couples a descriptor with the constructor of its typed stand-in.
type Contract[T any] struct {
	*Descriptor
	stub func(Invoker) T
}

// Stub builds the typed stand-in that routes every method through inv.
func (c *Contract[T]) Stub(inv Invoker) T {
	return c.stub(inv)
}

// Option adjusts a contract definition.
type Option func(*options)

type options struct {
	name   string
	rename map[string]string
}

// WithName overrides the contract name, which defaults to "<import path>.<Interface>".
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithMethodName exposes Go method goName under wireName.
func WithMethodName(goName, wireName string) Option {
	return func(o *options) {
		o.rename[goName] = wireName
	}
}

// Define builds the contract for interface type T. stub constructs the typed
// stand-in clients receive; it may be nil for server-only use.
func Define[T any](stub func(Invoker) T, opts ...Option) (*Contract[T], error) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	desc, err := Describe(typ, opts...)
	if err != nil {
		return nil, err
	}
	if stub == nil {
		stub = func(Invoker) T {
			panic("contract: " + desc.Name + " has no client stub")
		}
	}
	return &Contract[T]{Descriptor: desc, stub: stub}, nil
}

// MustDefine is like Define but panics on error. Intended for package-level vars.
func MustDefine[T any](stub func(Invoker) T, opts ...Option) *Contract[T] {
	c, err := Define(stub, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Describe builds a descriptor from an interface type.
func Describe(typ reflect.Type, opts ...Option) (*Descriptor, error) {
	if typ == nil || typ.Kind() != reflect.Interface {
		return nil, errors.Errorf("contract: %v is not an interface type", typ)
	}
	if typ.NumMethod() == 0 {
		return nil, errors.Errorf("contract: %v declares no methods", typ)
	}

	o := &options{rename: make(map[string]string)}
	for _, opt := range opts {
		opt(o)
	}

	d := &Descriptor{
		Name:   o.name,
		Type:   typ,
		byKey:  make(map[string]*MethodDescriptor),
		byName: make(map[string][]*MethodDescriptor),
	}
	if d.Name == "" {
		d.Name = message.TypeDescriptor(typ)
	}

	for goName := range o.rename {
		if _, ok := typ.MethodByName(goName); !ok {
			return nil, errors.Errorf("contract: %s has no method %s to rename", d.Name, goName)
		}
	}

	for i := 0; i < typ.NumMethod(); i++ {
		m := typ.Method(i)
		md, err := describeMethod(m, o.rename[m.Name])
		if err != nil {
			return nil, errors.WithMessagef(err, "contract %s", d.Name)
		}
		key := md.Key()
		if prev, dup := d.byKey[key]; dup {
			return nil, errors.Errorf("contract %s: %s and %s both resolve to %s",
				d.Name, prev.GoName, md.GoName, key)
		}
		d.byKey[key] = md
		d.byName[md.Name] = append(d.byName[md.Name], md)
		d.Methods = append(d.Methods, md)
	}
	return d, nil
}

func describeMethod(m reflect.Method, wireName string) (*MethodDescriptor, error) {
	ft := m.Type
	md := &MethodDescriptor{Name: wireName, GoName: m.Name}
	if md.Name == "" {
		md.Name = m.Name
	}

	if ft.IsVariadic() {
		return nil, errors.Errorf("method %s: variadic parameters are not supported", m.Name)
	}

	first := 0
	if ft.NumIn() > 0 && ft.In(0) == contextType {
		md.HasContext = true
		first = 1
	}
	for i := first; i < ft.NumIn(); i++ {
		pt := ft.In(i)
		if !serializable(pt) {
			return nil, errors.Errorf("method %s: parameter %d of type %v cannot be serialized", m.Name, i, pt)
		}
		md.ParamTypes = append(md.ParamTypes, pt)
	}
	md.ParamDescriptors = message.TypeDescriptors(md.ParamTypes)

	switch ft.NumOut() {
	case 1:
		if ft.Out(0) != errorType {
			return nil, errors.Errorf("method %s: last result must be error", m.Name)
		}
	case 2:
		if ft.Out(1) != errorType {
			return nil, errors.Errorf("method %s: last result must be error", m.Name)
		}
		if !serializable(ft.Out(0)) {
			return nil, errors.Errorf("method %s: result type %v cannot be serialized", m.Name, ft.Out(0))
		}
		md.ReturnType = ft.Out(0)
	default:
		return nil, errors.Errorf("method %s: must return (R, error) or error", m.Name)
	}
	return md, nil
}

func serializable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Chan, reflect.Func, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return false
	case reflect.Pointer, reflect.Slice, reflect.Array:
		return serializable(t.Elem())
	case reflect.Map:
		return serializable(t.Key()) && serializable(t.Elem())
	}
	return true
}

func accepts(params []reflect.Type, args []any) bool {
	if len(params) != len(args) {
		return false
	}
	for i, arg := range args {
		pt := params[i]
		if arg == nil {
			switch pt.Kind() {
			case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
				continue
			}
			return false
		}
		if !reflect.TypeOf(arg).AssignableTo(pt) {
			return false
		}
	}
	return true
}

func describeArgs(args []any) string {
	types := make([]reflect.Type, len(args))
	for i, a := range args {
		types[i] = reflect.TypeOf(a)
	}
	return message.MethodKey("", message.TypeDescriptors(types))
}
