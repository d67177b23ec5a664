// Package port implements typed node ports and the connection protocol that
// moves specs and objects from producers to consumers.
package port

import (
	"reflect"
	"sync"
)

// Spec describes what an out-port will deliver once its node executes.
type Spec interface {
	Summary() string
}

// Object is the data an out-port delivers after execution.
type Object interface {
	Summary() string
}

// Releaser is implemented by objects whose storage is managed by the node
// that produced them. Release frees the storage when owner matches the
// producing node and is a no-op otherwise.
type Releaser interface {
	Release(owner any)
}

// Type pairs a spec type with an object type. Instances are interned, so two
// Types are equal exactly when they are the same pointer.
type Type struct {
	spec   reflect.Type
	object reflect.Type
}

type typeKey struct {
	spec   reflect.Type
	object reflect.Type
}

var registry sync.Map // typeKey -> *Type

// TypeOf returns the interned Type for the spec type S and object type O.
func TypeOf[S Spec, O Object]() *Type {
	key := typeKey{spec: reflect.TypeFor[S](), object: reflect.TypeFor[O]()}
	if t, ok := registry.Load(key); ok {
		return t.(*Type)
	}
	t, _ := registry.LoadOrStore(key, &Type{spec: key.spec, object: key.object})
	return t.(*Type)
}

// Any accepts every spec and object.
var Any = TypeOf[Spec, Object]()

// SpecType returns the declared spec type.
func (t *Type) SpecType() reflect.Type { return t.spec }

// ObjectType returns the declared object type.
func (t *Type) ObjectType() reflect.Type { return t.object }

// Accepts reports whether an out-port of type out may feed an in-port of
// type t.
func (t *Type) Accepts(out *Type) bool {
	if t == nil || out == nil {
		return false
	}
	if t == out {
		return true
	}
	return out.spec.AssignableTo(t.spec) && out.object.AssignableTo(t.object)
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	return t.object.String()
}
