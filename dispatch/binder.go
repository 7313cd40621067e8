package dispatch

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/classify"
	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/typegraph"
)

// Member names with hard-coded call-site handling.
const (
	MemberInvoke        = "Invoke"
	MemberBeginInvoke   = "BeginInvoke"
	MemberEndInvoke     = "EndInvoke"
	MemberGetEnumerator = "GetEnumerator"
)

// Binder plans slot bindings. Plans are cached per type.
type Binder struct {
	c     *classify.Classifier
	prog  *typegraph.Program
	slots *Slots
	cache sync.Map // typegraph.TypeID -> []Binding
}

// New creates a binder. Missing interface implementations are reported
// to the classifier's diagnostics.
func New(c *classify.Classifier, slots *Slots) *Binder {
	if slots == nil {
		slots = NewSlots(c.Program())
	}
	return &Binder{c: c, prog: c.Program(), slots: slots}
}

// Slots returns the binder's slot allocator.
func (b *Binder) Slots() *Slots {
	return b.slots
}

// Bind returns the bindings for every slot type id defines.
func (b *Binder) Bind(id typegraph.TypeID) []Binding {
	if cached, ok := b.cache.Load(id); ok {
		return cached.([]Binding)
	}
	t := b.prog.Type(id)
	if t == nil {
		errors.Invariant("dispatch: unknown type id %d", id)
	}
	out := b.bind(t)
	actual, _ := b.cache.LoadOrStore(id, out)

	Logger().Debug("slots bound",
		zap.String("type", t.Name),
		zap.Int("bindings", len(out)))
	return actual.([]Binding)
}

func (b *Binder) bind(t *typegraph.Type) []Binding {
	if t.Style == typegraph.StyleDelegate {
		return b.delegateBindings(t)
	}
	if t.Style.Builtin() || t.Style == typegraph.StyleInterface {
		return nil
	}
	// Merged instances are the host values themselves; their members are
	// imported or inlined and have no native dispatch identity.
	if b.c.Classify(t.ID).State == typegraph.StateMerged {
		return nil
	}

	var introduced, out []Binding
	for _, m := range t.Members {
		if m.Kind != typegraph.MemberMethod || m.Static || m.Abstract {
			continue
		}
		part := Binding{Kind: KindSelfPatching, Member: m.Name, Target: b.slots.Of(m)}
		if !m.Virtual {
			part.Slot = part.Target
			out = append(out, part)
			continue
		}
		part.Slot = b.slots.Virtual(m)
		if b.slots.Introducer(m) == m {
			introduced = append(introduced, part)
			continue
		}
		out = append(out, part)
	}

	switch len(introduced) {
	case 0:
	case 1:
		out = append(introduced, out...)
	default:
		out = append([]Binding{{Kind: KindBatch, Parts: introduced}}, out...)
	}

	for _, iface := range b.interfaces(t) {
		out = append(out, b.interfaceBindings(t, iface)...)
	}
	return out
}

// interfaces returns t's declared interfaces and the interfaces they
// extend, each once.
func (b *Binder) interfaces(t *typegraph.Type) []*typegraph.Type {
	seen := make(map[typegraph.TypeID]bool)
	var out []*typegraph.Type
	var walk func(ids []typegraph.TypeID)
	walk = func(ids []typegraph.TypeID) {
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			iface := b.prog.Type(id)
			if iface == nil {
				continue
			}
			out = append(out, iface)
			walk(iface.Interfaces)
		}
	}
	walk(t.Interfaces)
	return out
}

func (b *Binder) interfaceBindings(t, iface *typegraph.Type) []Binding {
	var out []Binding
	for _, im := range iface.Members {
		if im.Kind != typegraph.MemberMethod || im.Static {
			continue
		}
		slot := b.slots.Of(im)
		impl := b.implementation(t, iface, im)
		if impl == nil {
			if !t.Abstract {
				b.c.Diagnostics().Report(errors.New(errors.PhaseDispatch, errors.KindNotFound).
					Type(t.Name).
					Member(im.Name).
					Detail("no implementation of %s.%s", iface.Name, im.Name).
					Build())
			}
			continue
		}
		if impl.Virtual {
			out = append(out, Binding{
				Kind:   KindIntroducing,
				Slot:   slot,
				Target: b.slots.Virtual(impl),
				Member: impl.Name,
			})
			continue
		}
		out = append(out, Binding{
			Kind:   KindCrossType,
			Slot:   slot,
			Target: b.slots.Of(impl),
			Owner:  b.prog.Type(impl.Owner).Name,
			Member: impl.Name,
		})
	}
	return out
}

// implementation finds the member of t's chain implementing im. Explicit
// implementations win over a public method matched by name.
func (b *Binder) implementation(t, iface *typegraph.Type, im *typegraph.Member) *typegraph.Member {
	chain := b.prog.Chain(t)
	for _, cur := range chain {
		for _, m := range cur.Members {
			for _, ref := range m.Implements {
				if ref.Interface == iface.ID && ref.Name == im.Name {
					return m
				}
			}
		}
	}
	for _, cur := range chain {
		for _, m := range cur.Members {
			if m.Kind == typegraph.MemberMethod && m.Public && !m.Static && !m.Abstract &&
				m.Name == im.Name && len(m.Params) == len(im.Params) {
				return m
			}
		}
	}
	return nil
}

func (b *Binder) delegateBindings(t *typegraph.Type) []Binding {
	var out []Binding
	for _, m := range t.Members {
		if kind, ok := delegateKind(m.Name); ok && m.Kind == typegraph.MemberMethod {
			out = append(out, Binding{Kind: kind, Slot: b.slots.Of(m), Member: m.Name})
		}
	}
	return out
}

func delegateKind(member string) (Kind, bool) {
	switch member {
	case MemberInvoke:
		return KindDelegateInvoke, true
	case MemberBeginInvoke:
		return KindAsyncBegin, true
	case MemberEndInvoke:
		return KindAsyncEnd, true
	}
	return 0, false
}

// CallSite plans a call of member on a receiver statically typed recv.
// Delegate calls and enumerator acquisition on arrays and sequences get
// their dedicated kinds; every other call dispatches through the
// receiver's slot. It reports false when recv has no such member.
func (b *Binder) CallSite(recv typegraph.TypeID, member string) (Binding, bool) {
	t := b.prog.Type(recv)
	if t == nil {
		return Binding{}, false
	}

	switch {
	case t.Style == typegraph.StyleDelegate:
		if kind, ok := delegateKind(member); ok {
			bd := Binding{Kind: kind, Slot: member, Member: member}
			if m := t.Member(member); m != nil {
				bd.Slot = b.slots.Of(m)
			}
			return bd, true
		}
	case member == MemberGetEnumerator && t.Style == typegraph.StyleArray:
		return Binding{Kind: KindArrayEnumerator, Elem: b.name(t.Elem), Member: member}, true
	case member == MemberGetEnumerator && b.prog.IsSequence(t):
		bd := Binding{Kind: KindSequenceEnumerator, Member: member}
		if len(t.TypeArgs) > 0 {
			bd.Elem = b.name(t.TypeArgs[0])
		}
		if m := t.Member(member); m != nil {
			bd.Slot = b.slots.Of(m)
		}
		return bd, true
	}

	for _, cur := range b.prog.Chain(t) {
		m := cur.Member(member)
		if m == nil || m.Kind != typegraph.MemberMethod {
			continue
		}
		if m.Virtual {
			return Binding{Kind: KindSelfPatching, Slot: b.slots.Virtual(m), Member: member}, true
		}
		return Binding{Kind: KindSelfPatching, Slot: b.slots.Of(m), Member: member}, true
	}
	return Binding{}, false
}

func (b *Binder) name(id typegraph.TypeID) string {
	if t := b.prog.Type(id); t != nil {
		return t.Name
	}
	return typegraph.BuiltinObject
}
