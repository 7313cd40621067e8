// Package host models the values of the dynamic, prototype-based runtime
// the compiled program interoperates with.
//
// Host values are plain Go values: Undefined, Null, bool, float64, string,
// *Object, *Function and *Array. Objects carry ordered own properties, a
// prototype link and a set of internal slots that host code cannot see;
// the bridge uses internal slots for type tags, pairing records and
// cached callables.
package host

import (
	"fmt"
	"sort"
	"sync"
)

// Value is any host value.
type Value = any

type undefinedValue struct{}

func (undefinedValue) String() string { return "undefined" }

type nullValue struct{}

func (nullValue) String() string { return "null" }

var (
	// Undefined is the host "absent" value.
	Undefined Value = undefinedValue{}
	// Null is the host null sentinel.
	Null Value = nullValue{}
)

// IsUndefined reports whether v is the host absent value. A Go nil counts
// as absent.
func IsUndefined(v Value) bool {
	return v == nil || v == Undefined
}

// IsNullish reports whether v is undefined or null.
func IsNullish(v Value) bool {
	return IsUndefined(v) || v == Null
}

// TypeOf returns the host-side type name of v.
func TypeOf(v Value) string {
	switch v.(type) {
	case nil, undefinedValue:
		return "undefined"
	case nullValue:
		return "object"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case *Function:
		return "function"
	case *Object, *Array:
		return "object"
	}
	return "native"
}

// Slot names an internal slot.
type Slot uint8

const (
	// SlotTypeTag holds the native type a Merged value was tagged with.
	SlotTypeTag Slot = iota
	// SlotPairing holds the native wrapper a Shared/HostOnly value is paired with.
	SlotPairing
	// SlotKey holds the identity key when no key property is configured.
	SlotKey
	// SlotCallable holds native callables created from a host function.
	SlotCallable
	// SlotNative holds the native callable a host function was exported from.
	SlotNative
)

// Object is a host object.
type Object struct {
	Proto    *Object
	props    map[string]Value
	internal map[Slot]any
	keys     []string
	mu       sync.RWMutex
}

// NewObject creates an empty object with the given prototype.
func NewObject(proto *Object) *Object {
	return &Object{Proto: proto, props: make(map[string]Value)}
}

// GetOwn looks up a direct (own) property.
func (o *Object) GetOwn(name string) (Value, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.props[name]
	return v, ok
}

// Get looks up a property along the prototype chain.
func (o *Object) Get(name string) (Value, bool) {
	for cur := o; cur != nil; cur = cur.Proto {
		if v, ok := cur.GetOwn(name); ok {
			return v, true
		}
	}
	return Undefined, false
}

// Set assigns an own property, appending new names to the key order.
func (o *Object) Set(name string, v Value) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.props == nil {
		o.props = make(map[string]Value)
	}
	if _, exists := o.props[name]; !exists {
		o.keys = append(o.keys, name)
	}
	o.props[name] = v
}

// Delete removes an own property.
func (o *Object) Delete(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.props[name]; !exists {
		return false
	}
	delete(o.props, name)
	for i, k := range o.keys {
		if k == name {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns own property names in insertion order.
func (o *Object) Keys() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Internal reads an internal slot.
func (o *Object) Internal(slot Slot) (any, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.internal[slot]
	return v, ok
}

// SetInternal writes an internal slot.
func (o *Object) SetInternal(slot Slot, v any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.internal == nil {
		o.internal = make(map[Slot]any)
	}
	o.internal[slot] = v
}

// ClaimInternal stores v in slot only if the slot is empty. It returns the
// value the slot holds afterwards and whether v was stored.
func (o *Object) ClaimInternal(slot Slot, v any) (any, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cur, ok := o.internal[slot]; ok {
		return cur, false
	}
	if o.internal == nil {
		o.internal = make(map[Slot]any)
	}
	o.internal[slot] = v
	return v, true
}

func (o *Object) String() string {
	return fmt.Sprintf("[object %d keys]", len(o.Keys()))
}

// Function is a callable host object.
type Function struct {
	Impl  func(this Value, args []Value) (Value, error)
	Name  string
	Object
	Arity int
}

// NewFunction creates a host function.
func NewFunction(name string, arity int, impl func(this Value, args []Value) (Value, error)) *Function {
	return &Function{Name: name, Arity: arity, Impl: impl, Object: Object{props: make(map[string]Value)}}
}

// Call invokes the function.
func (f *Function) Call(this Value, args ...Value) (Value, error) {
	if f.Impl == nil {
		return Undefined, fmt.Errorf("host function %q has no body", f.Name)
	}
	return f.Impl(this, args)
}

func (f *Function) String() string {
	return "function " + f.Name
}

// Array is a host array.
type Array struct {
	Elems []Value
}

// NewArray creates an array holding elems.
func NewArray(elems ...Value) *Array {
	return &Array{Elems: elems}
}

// Snapshot converts an object into nested maps for expression
// evaluation. Nested objects are expanded up to depth levels; cycles are
// cut at the first revisit.
func Snapshot(o *Object, depth int) map[string]any {
	return snapshot(o, depth, make(map[*Object]bool))
}

func snapshot(o *Object, depth int, seen map[*Object]bool) map[string]any {
	out := make(map[string]any)
	if o == nil || seen[o] {
		return out
	}
	seen[o] = true
	defer delete(seen, o)

	var names []string
	for cur := o; cur != nil; cur = cur.Proto {
		names = append(names, cur.Keys()...)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, done := out[name]; done {
			continue
		}
		v, _ := o.Get(name)
		out[name] = snapshotValue(v, depth, seen)
	}
	return out
}

func snapshotValue(v Value, depth int, seen map[*Object]bool) any {
	switch x := v.(type) {
	case *Object:
		if depth <= 0 {
			return nil
		}
		return snapshot(x, depth-1, seen)
	case *Array:
		if depth <= 0 {
			return nil
		}
		out := make([]any, len(x.Elems))
		for i, e := range x.Elems {
			out[i] = snapshotValue(e, depth-1, seen)
		}
		return out
	case undefinedValue, nullValue:
		return nil
	}
	return v
}
