package runtime

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/host"
	"github.com/wippyai/hostbridge/lazy"
	"github.com/wippyai/hostbridge/typegraph"
)

// Handle identifies a type record in a loader's arena. Zero is invalid.
type Handle uint32

// ExportBinding names a member bound onto every exported host object.
type ExportBinding struct {
	// Args converts host arguments to native ones. Nil passes them through.
	Args func(args []host.Value) ([]any, error)
	// Result converts the native result. Nil passes it through.
	Result func(v any) (host.Value, error)
	// Name is the host property name.
	Name string
	// Slot is the dispatch slot implementing it.
	Slot  string
	Arity int
}

// TypeRecord is the runtime record of one type. Fields other than Name,
// Handle and Phase are valid from PhaseShape on.
type TypeRecord struct {
	loader *Loader
	frag   *TypeFragment

	// Base, GenericDef and TypeArgs are requested at Shape; Interfaces at Id.
	Base       *TypeRecord
	GenericDef *TypeRecord
	Root       *TypeRecord
	TypeArgs   []*TypeRecord
	Interfaces []*TypeRecord

	// Fields holds default values of the instance fields declared here.
	Fields map[string]any
	// Statics holds static field values.
	Statics sync.Map

	// Boundary functions installed during Shape.
	Construct func(args ...any) (*Object, error)
	Clone     func(o *Object) *Object
	Box       func(v any) any
	Unbox     func(v any) (any, error)
	Default   func() any
	Import    func(v host.Value) (any, error)
	Export    func(v any) (host.Value, error)

	// KeyGet and KeySet access the identity key on a host value. Set on
	// the Shared root only.
	KeyGet func(h *host.Object) (any, bool, error)
	KeySet func(h *host.Object, key any) error
	// Pairings is the key to wrapper table, owned by the Shared root.
	Pairings *PairingTable
	// Classify lists candidate subtype names for a host value. Root only.
	Classify func(v host.Value) ([]string, error)
	// ImportCtor initializes a wrapper paired with a host value.
	ImportCtor func(o *Object, ctx *host.Object, args []any) error

	slots   map[string]*slotCell
	initErr error

	Name     string
	Assembly string
	Exports  []ExportBinding

	slotsMu sync.RWMutex
	init    lazy.Claim
	shaping atomic.Bool
	phase   atomic.Uint32
	Handle  Handle

	State               typegraph.InstanceState
	UndefinedIsDistinct bool
}

// Phase returns the record's current phase.
func (r *TypeRecord) Phase() Phase {
	return Phase(r.phase.Load())
}

// Loader returns the loader that owns the record.
func (r *TypeRecord) Loader() *Loader {
	return r.loader
}

// advance moves the record to next. Moving backwards or skipping a phase
// is an internal invariant violation.
func (r *TypeRecord) advance(next Phase) {
	cur := r.Phase()
	if next != cur+1 || !r.phase.CompareAndSwap(uint32(cur), uint32(next)) {
		errors.Invariant("record %s: phase %s cannot follow %s", r.Name, next, cur)
	}
	Logger().Debug("phase advanced",
		zap.String("type", r.Name),
		zap.Stringer("from", cur),
		zap.Stringer("to", next))
	r.loader.obs.notify(PhaseEvent{Record: r, From: cur, To: next})
}

// IsSubtypeOf reports whether r is other or derives from it. Interfaces
// that were only mentioned at Id are shaped on first query.
func (r *TypeRecord) IsSubtypeOf(other *TypeRecord) bool {
	if r == other {
		return true
	}
	if r.Phase() < PhaseShape {
		errors.Invariant("record %s: supertypes read at phase %s", r.Name, r.Phase())
	}
	if r.Base != nil && r.Base.IsSubtypeOf(other) {
		return true
	}
	for _, iface := range r.Interfaces {
		if iface == other {
			return true
		}
		if iface.Phase() < PhaseShape {
			if _, err := r.loader.RequireShape(iface.Name); err != nil {
				continue
			}
		}
		if iface.IsSubtypeOf(other) {
			return true
		}
	}
	return false
}

// Chain returns r followed by its bases, nearest first.
func (r *TypeRecord) Chain() []*TypeRecord {
	var out []*TypeRecord
	for cur := r; cur != nil; cur = cur.Base {
		out = append(out, cur)
	}
	return out
}

// RootRecord returns the record owning the key table and classifier.
func (r *TypeRecord) RootRecord() *TypeRecord {
	if r.Root != nil {
		return r.Root
	}
	return r
}

// New allocates a wrapper and runs the native constructor when one is
// installed.
func (r *TypeRecord) New(args ...any) (*Object, error) {
	if r.Construct != nil {
		return r.Construct(args...)
	}
	return NewObject(r), nil
}

// Static reads a static field.
func (r *TypeRecord) Static(name string) (any, bool) {
	return r.Statics.Load(name)
}

// SetStatic writes a static field.
func (r *TypeRecord) SetStatic(name string, v any) {
	r.Statics.Store(name, v)
}

type slotCell struct {
	direct atomic.Pointer[Method]
	cell   *lazy.Cell[Method]
}

func (s *slotCell) get() (Method, error) {
	if m := s.direct.Load(); m != nil {
		return *m, nil
	}
	m, err := s.cell.Get()
	if err != nil {
		return nil, err
	}
	s.direct.Store(&m)
	return m, nil
}

// SetSlot binds slot directly to m.
func (r *TypeRecord) SetSlot(slot string, m Method) {
	c := &slotCell{cell: lazy.Of(m)}
	c.direct.Store(&m)
	r.putSlot(slot, c)
}

// SetSlotLazy binds slot to a redirector: the first call resolves the
// implementation and every later call goes straight to it.
func (r *TypeRecord) SetSlotLazy(slot string, resolve func() (Method, error)) {
	r.putSlot(slot, &slotCell{cell: lazy.New(resolve)})
}

func (r *TypeRecord) putSlot(slot string, c *slotCell) {
	r.slotsMu.Lock()
	defer r.slotsMu.Unlock()
	if r.slots == nil {
		r.slots = make(map[string]*slotCell)
	}
	r.slots[slot] = c
}

// HasOwnSlot reports whether slot is bound on r itself.
func (r *TypeRecord) HasOwnSlot(slot string) bool {
	r.slotsMu.RLock()
	defer r.slotsMu.RUnlock()
	_, ok := r.slots[slot]
	return ok
}

// SlotPatched reports whether the slot has been resolved to a direct
// implementation.
func (r *TypeRecord) SlotPatched(slot string) bool {
	r.slotsMu.RLock()
	c, ok := r.slots[slot]
	r.slotsMu.RUnlock()
	return ok && c.direct.Load() != nil
}

// Slot returns the implementation of slot, searching up the base chain.
func (r *TypeRecord) Slot(slot string) (Method, error) {
	_, m, err := r.resolveSlot(slot)
	return m, err
}

func (r *TypeRecord) resolveSlot(slot string) (*TypeRecord, Method, error) {
	for cur := r; cur != nil; cur = cur.Base {
		cur.slotsMu.RLock()
		c, ok := cur.slots[slot]
		cur.slotsMu.RUnlock()
		if ok {
			m, err := c.get()
			return cur, m, err
		}
	}
	return nil, nil, errors.New(errors.PhaseDispatch, errors.KindNotFound).
		Type(r.Name).
		Member(slot).
		Detail("no implementation bound for slot").
		Build()
}

// Invoke calls slot with this as receiver.
func (r *TypeRecord) Invoke(this any, slot string, args ...any) (any, error) {
	m, err := r.Slot(slot)
	if err != nil {
		return nil, err
	}
	return m(this, args)
}
