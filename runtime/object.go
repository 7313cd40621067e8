package runtime

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/wippyai/hostbridge/host"
)

// Method is the calling convention of every native member body.
type Method func(this any, args []any) (any, error)

// Object is the native wrapper record.
type Object struct {
	Type   *TypeRecord
	fields map[string]any
	host   atomic.Pointer[host.Object]
	// methods caches bound callables per slot.
	methods sync.Map
	mu      sync.RWMutex
	id      atomic.Uint64
	// Undefined marks a wrapper standing in for the host absent value.
	Undefined bool
}

// NewObject allocates a wrapper of rec with its fields at their defaults.
func NewObject(rec *TypeRecord) *Object {
	o := &Object{Type: rec, fields: make(map[string]any)}
	for _, r := range rec.Chain() {
		for name, def := range r.Fields {
			if _, exists := o.fields[name]; !exists {
				o.fields[name] = def
			}
		}
	}
	return o
}

// ID returns the object's identity id, allocating it on first use.
func (o *Object) ID() uint64 {
	if id := o.id.Load(); id != 0 {
		return id
	}
	next := o.Type.loader.nextObjectID()
	if o.id.CompareAndSwap(0, next) {
		return next
	}
	return o.id.Load()
}

// Get reads a field.
func (o *Object) Get(name string) (any, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.fields[name]
	return v, ok
}

// Set writes a field.
func (o *Object) Set(name string, v any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fields[name] = v
}

// Fields returns a copy of the field values.
func (o *Object) Fields() map[string]any {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[string]any, len(o.fields))
	for k, v := range o.fields {
		out[k] = v
	}
	return out
}

// Host returns the host value the wrapper is paired with, or nil.
func (o *Object) Host() *host.Object {
	return o.host.Load()
}

// Pair pairs the wrapper with h unless it is already paired. It returns
// the host object paired afterwards and whether h was stored.
func (o *Object) Pair(h *host.Object) (*host.Object, bool) {
	if o.host.CompareAndSwap(nil, h) {
		return h, true
	}
	return o.host.Load(), false
}

// Method returns the callable bound to this object for slot, cached per
// instance.
func (o *Object) Method(slot string) (*Callable, error) {
	if c, ok := o.methods.Load(slot); ok {
		return c.(*Callable), nil
	}
	owner, fn, err := o.Type.resolveSlot(slot)
	if err != nil {
		return nil, err
	}
	c := &Callable{
		Target: o,
		Code:   CodePointer{Type: owner, Slot: slot, Arity: -1},
		Func:   fn,
	}
	actual, _ := o.methods.LoadOrStore(slot, c)
	return actual.(*Callable), nil
}

// Invoke calls the implementation of slot with o as receiver.
func (o *Object) Invoke(slot string, args ...any) (any, error) {
	c, err := o.Method(slot)
	if err != nil {
		return nil, err
	}
	return c.Invoke(args...)
}

func (o *Object) String() string {
	return fmt.Sprintf("%s#%d", o.Type.Name, o.ID())
}

// CodePointer describes the code a callable runs.
type CodePointer struct {
	// Type is the type whose shape defines the slot.
	Type *TypeRecord
	Slot string
	// TypeArgs are method-bound generic arguments.
	TypeArgs []*TypeRecord
	// Arity is the declared parameter count, or -1 when unknown.
	Arity int
}

// Callable is a delegate value: a single target and code pointer, or an
// ordered composite of single callables.
type Callable struct {
	Target any
	Func   Method
	Parts  []*Callable
	Code   CodePointer
	// host caches the host function this callable was exported as.
	host atomic.Pointer[host.Function]
}

// NewCallable creates a single callable.
func NewCallable(target any, code CodePointer, fn Method) *Callable {
	return &Callable{Target: target, Code: code, Func: fn}
}

// Composite reports whether c is a multicast callable.
func (c *Callable) Composite() bool {
	return len(c.Parts) > 0
}

// Invoke calls the callable. A composite invokes its parts in order and
// returns the last result; the first error stops the sequence.
func (c *Callable) Invoke(args ...any) (any, error) {
	if c.Composite() {
		var out any
		for _, p := range c.Parts {
			var err error
			if out, err = p.Invoke(args...); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	if c.Func == nil {
		return nil, fmt.Errorf("callable %s has no body", c.Code.Slot)
	}
	if c.Code.Arity >= 0 && len(args) != c.Code.Arity {
		return nil, fmt.Errorf("callable %s expects %d arguments, got %d", c.Code.Slot, c.Code.Arity, len(args))
	}
	return c.Func(c.Target, args)
}

// Singles returns the single callables c is made of.
func (c *Callable) Singles() []*Callable {
	if c == nil {
		return nil
	}
	if c.Composite() {
		return c.Parts
	}
	return []*Callable{c}
}

// Equal reports whether two callables invoke the same targets and code in
// the same order.
func (c *Callable) Equal(other *Callable) bool {
	if c == other {
		return true
	}
	if c == nil || other == nil {
		return false
	}
	a, b := c.Singles(), other.Singles()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Target != b[i].Target || a[i].Code.Type != b[i].Code.Type || a[i].Code.Slot != b[i].Code.Slot {
			return false
		}
		if a[i].Code.Slot == "" && a[i] != b[i] {
			return false
		}
	}
	return true
}

// Combine appends b's singles after a's. Either side may be nil.
func Combine(a, b *Callable) *Callable {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	parts := append(append([]*Callable(nil), a.Singles()...), b.Singles()...)
	return &Callable{Parts: parts}
}

// Remove drops the last occurrence of part's singles sequence from c.
func Remove(c, part *Callable) *Callable {
	if c == nil || part == nil {
		return c
	}
	all, sub := c.Singles(), part.Singles()
	for i := len(all) - len(sub); i >= 0; i-- {
		match := true
		for j := range sub {
			if !all[i+j].Equal(sub[j]) {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		rest := append(append([]*Callable(nil), all[:i]...), all[i+len(sub):]...)
		switch len(rest) {
		case 0:
			return nil
		case 1:
			return rest[0]
		}
		return &Callable{Parts: rest}
	}
	return c
}

// HostFunction returns the host function c was exported as, if any.
func (c *Callable) HostFunction() *host.Function {
	return c.host.Load()
}

// SetHostFunction caches f as c's host form unless one is cached already.
// It returns the cached function.
func (c *Callable) SetHostFunction(f *host.Function) *host.Function {
	if c.host.CompareAndSwap(nil, f) {
		return f
	}
	return c.host.Load()
}
