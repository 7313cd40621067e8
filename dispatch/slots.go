package dispatch

import (
	"strconv"
	"sync"

	"github.com/wippyai/hostbridge/typegraph"
)

// Slots allocates slot names. Names are cached per member for the
// lifetime of one compilation.
type Slots struct {
	prog  *typegraph.Program
	cache sync.Map // *typegraph.Member -> string
}

// NewSlots creates an allocator for prog.
func NewSlots(prog *typegraph.Program) *Slots {
	return &Slots{prog: prog}
}

// Of returns the name of the member's own slot, which is also the name of
// its method fragment: "assembly:Type.Member", with "`n" appended for the
// n-th overload of the same name.
func (s *Slots) Of(m *typegraph.Member) string {
	if name, ok := s.cache.Load(m); ok {
		return name.(string)
	}
	t := s.prog.Type(m.Owner)
	name := m.Name
	if t != nil {
		name = t.Assembly + ":" + t.Name + "." + m.Name
		if n := overload(t, m); n > 0 {
			name += "`" + strconv.Itoa(n)
		}
	}
	actual, _ := s.cache.LoadOrStore(m, name)
	return actual.(string)
}

func overload(t *typegraph.Type, m *typegraph.Member) int {
	n := 0
	for _, other := range t.Members {
		if other == m {
			return n
		}
		if other.Name == m.Name {
			n++
		}
	}
	return n
}

// Virtual returns the slot a virtual member dispatches through: the slot
// of the member that first introduced it.
func (s *Slots) Virtual(m *typegraph.Member) string {
	return s.Of(s.Introducer(m))
}

// Introducer walks overrides up the base chain to the virtual member
// that introduced the slot. A member that overrides nothing introduces
// its own slot.
func (s *Slots) Introducer(m *typegraph.Member) *typegraph.Member {
	cur := m
	for cur.Override {
		owner := s.prog.Type(cur.Owner)
		if owner == nil {
			break
		}
		next := findVirtual(s.prog, s.prog.Base(owner), cur)
		if next == nil {
			break
		}
		cur = next
	}
	return cur
}

// findVirtual looks for the nearest virtual member matching m by name and
// parameter count, starting at t and walking up.
func findVirtual(prog *typegraph.Program, t *typegraph.Type, m *typegraph.Member) *typegraph.Member {
	for cur := t; cur != nil; cur = prog.Base(cur) {
		for _, cand := range cur.Members {
			if cand.Kind == typegraph.MemberMethod && cand.Virtual &&
				cand.Name == m.Name && len(cand.Params) == len(m.Params) {
				return cand
			}
		}
	}
	return nil
}
