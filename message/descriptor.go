package message

import (
	"reflect"
	"strconv"
	"strings"
)

// TypeDescriptor returns the parameter type tag used on the wire for t.
//
// Named types are qualified by import path so that two packages declaring a
// User type never collide; composite types are described structurally.
func TypeDescriptor(t reflect.Type) string {
	if t == nil {
		return "nil"
	}
	if t.Name() != "" {
		if t.PkgPath() == "" {
			return t.Name()
		}
		return t.PkgPath() + "." + t.Name()
	}
	switch t.Kind() {
	case reflect.Pointer:
		return "*" + TypeDescriptor(t.Elem())
	case reflect.Slice:
		return "[]" + TypeDescriptor(t.Elem())
	case reflect.Array:
		return "[" + strconv.Itoa(t.Len()) + "]" + TypeDescriptor(t.Elem())
	case reflect.Map:
		return "map[" + TypeDescriptor(t.Key()) + "]" + TypeDescriptor(t.Elem())
	}
	// Unnamed structs, funcs, channels and interface literals.
	return t.String()
}

// TypeDescriptors describes each type in order.
func TypeDescriptors(types []reflect.Type) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = TypeDescriptor(t)
	}
	return out
}

// MethodKey identifies a method by wire name and ordered parameter descriptors,
// e.g. "lookup(int)". It is the key of every dispatch table.
func MethodKey(name string, descriptors []string) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('(')
	b.WriteString(strings.Join(descriptors, ","))
	b.WriteByte(')')
	return b.String()
}
