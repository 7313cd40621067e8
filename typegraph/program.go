// Package typegraph is the read-only view of a program's type graph
// consumed by the interop passes.
//
// Types live in an arena indexed by TypeID. A type may only name a base,
// interface, element or type argument that was added before it, so the
// "extends" relation is acyclic by construction and every walk up a
// supertype chain terminates.
package typegraph

import (
	"fmt"
	"strings"
)

// Names of the built-in types every Program starts with.
const (
	BuiltinObject   = "object"
	BuiltinNumber   = "number"
	BuiltinString   = "string"
	BuiltinBool     = "bool"
	BuiltinVoid     = "void"
	BuiltinSequence = "Sequence`1"
)

// Program is an arena of types.
type Program struct {
	byName map[string]TypeID
	types  []*Type
}

// New creates a program holding only the built-in types.
func New() *Program {
	p := &Program{byName: make(map[string]TypeID)}
	for _, b := range []struct {
		name  string
		style Style
	}{
		{BuiltinObject, StyleObject},
		{BuiltinNumber, StyleNumber},
		{BuiltinString, StyleString},
		{BuiltinBool, StyleBool},
		{BuiltinVoid, StyleVoid},
	} {
		p.mustAdd(&Type{Name: b.name, Style: b.style})
	}

	seq := p.mustAdd(&Type{Name: BuiltinSequence, Style: StyleInterface, GenericArity: 1})
	p.Type(seq).Members = []*Member{{
		Name:    "GetEnumerator",
		Kind:    MemberMethod,
		Public:  true,
		Virtual: true,
		Result:  p.MustLookup(BuiltinObject).ID,
		Owner:   seq,
	}}
	return p
}

func (p *Program) mustAdd(t *Type) TypeID {
	id, err := p.Add(t)
	if err != nil {
		panic(err)
	}
	return id
}

// Add registers t and assigns its ID. Every type t refers to must already
// be registered.
func (p *Program) Add(t *Type) (TypeID, error) {
	if t.Name == "" {
		return NoType, fmt.Errorf("type name is empty")
	}
	if _, exists := p.byName[t.Name]; exists {
		return NoType, fmt.Errorf("type %q already exists", t.Name)
	}

	next := TypeID(len(p.types) + 1)
	refs := []TypeID{t.Base, t.Elem, t.GenericDef}
	refs = append(refs, t.Interfaces...)
	refs = append(refs, t.TypeArgs...)
	for _, ref := range refs {
		if ref != NoType && ref >= next {
			return NoType, fmt.Errorf("type %q refers to unregistered type %d", t.Name, ref)
		}
	}

	t.ID = next
	for _, m := range t.Members {
		m.Owner = next
	}
	p.types = append(p.types, t)
	p.byName[t.Name] = next
	return next, nil
}

// Type returns the type with the given ID, or nil.
func (p *Program) Type(id TypeID) *Type {
	if !id.IsValid() || int(id) > len(p.types) {
		return nil
	}
	return p.types[id-1]
}

// Lookup finds a type by name.
func (p *Program) Lookup(name string) (*Type, bool) {
	id, ok := p.byName[name]
	if !ok {
		return nil, false
	}
	return p.types[id-1], true
}

// MustLookup is Lookup for names known to exist.
func (p *Program) MustLookup(name string) *Type {
	t, ok := p.Lookup(name)
	if !ok {
		panic(fmt.Sprintf("typegraph: type %q not registered", name))
	}
	return t
}

// Len returns the number of registered types, built-ins included.
func (p *Program) Len() int {
	return len(p.types)
}

// Types returns every registered type in registration order.
func (p *Program) Types() []*Type {
	out := make([]*Type, len(p.types))
	copy(out, p.types)
	return out
}

// Base returns t's base type, or nil.
func (p *Program) Base(t *Type) *Type {
	return p.Type(t.Base)
}

// Chain returns t followed by its supertypes, nearest first.
func (p *Program) Chain(t *Type) []*Type {
	var out []*Type
	for cur := t; cur != nil; cur = p.Base(cur) {
		out = append(out, cur)
	}
	return out
}

// IsSubtype reports whether t equals of, extends it, or implements it.
func (p *Program) IsSubtype(t, of TypeID) bool {
	if t == of {
		return true
	}
	for _, cur := range p.Chain(p.Type(t)) {
		if cur.ID == of {
			return true
		}
		for _, iface := range cur.Interfaces {
			if p.IsSubtype(iface, of) {
				return true
			}
		}
	}
	return false
}

// Equivalent reports whether two types are interchangeable for parameter
// matching: the same type, or element-wise equivalent composite types.
func (p *Program) Equivalent(a, b TypeID) bool {
	if a == b {
		return true
	}
	ta, tb := p.Type(a), p.Type(b)
	if ta == nil || tb == nil || ta.Style != tb.Style {
		return false
	}
	switch ta.Style {
	case StyleArray, StyleNullable, StylePointer:
		return p.Equivalent(ta.Elem, tb.Elem)
	}
	return false
}

// ArrayOf returns the array type with the given element, creating it on
// first use.
func (p *Program) ArrayOf(elem TypeID) TypeID {
	return p.composite(elem, StyleArray, "[]")
}

// NullableOf returns the nullable type with the given element.
func (p *Program) NullableOf(elem TypeID) TypeID {
	return p.composite(elem, StyleNullable, "?")
}

// PointerOf returns the pointer type with the given element.
func (p *Program) PointerOf(elem TypeID) TypeID {
	return p.composite(elem, StylePointer, "*")
}

func (p *Program) composite(elem TypeID, style Style, suffix string) TypeID {
	et := p.Type(elem)
	if et == nil {
		panic(fmt.Sprintf("typegraph: composite of invalid type %d", elem))
	}
	name := et.Name + suffix
	if id, ok := p.byName[name]; ok {
		return id
	}
	return p.mustAdd(&Type{Name: name, Style: style, Elem: elem, Assembly: et.Assembly})
}

// Instantiate returns the closed instantiation of a generic definition.
func (p *Program) Instantiate(def TypeID, args ...TypeID) (TypeID, error) {
	dt := p.Type(def)
	if dt == nil || !dt.IsGenericDefinition() {
		return NoType, fmt.Errorf("type %d is not a generic definition", def)
	}
	if len(args) != dt.GenericArity {
		return NoType, fmt.Errorf("%s expects %d type arguments, got %d", dt.Name, dt.GenericArity, len(args))
	}

	names := make([]string, len(args))
	for i, a := range args {
		at := p.Type(a)
		if at == nil {
			return NoType, fmt.Errorf("invalid type argument %d", a)
		}
		names[i] = at.Name
	}
	base := strings.SplitN(dt.Name, "`", 2)[0]
	name := base + "<" + strings.Join(names, ",") + ">"
	if id, ok := p.byName[name]; ok {
		return id, nil
	}

	inst := &Type{
		Name:       name,
		Assembly:   dt.Assembly,
		Style:      dt.Style,
		Base:       dt.Base,
		Interfaces: dt.Interfaces,
		GenericDef: def,
		TypeArgs:   append([]TypeID(nil), args...),
		Sealed:     dt.Sealed,
		Abstract:   dt.Abstract,
		Config:     dt.Config,
	}
	for _, m := range dt.Members {
		cp := *m
		inst.Members = append(inst.Members, &cp)
	}
	return p.Add(inst)
}

// IsSequence reports whether t is an instantiation of the built-in
// generic sequence interface.
func (p *Program) IsSequence(t *Type) bool {
	def := p.Type(t.GenericDef)
	return def != nil && def.Name == BuiltinSequence
}
