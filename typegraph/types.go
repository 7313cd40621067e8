package typegraph

// TypeID identifies a type within a Program. Zero is the invalid sentinel.
type TypeID uint32

// NoType is the invalid TypeID.
const NoType TypeID = 0

// IsValid returns true if the ID is valid (non-zero).
func (id TypeID) IsValid() bool { return id != NoType }

// MaxInlineSize is the largest body, in target instructions, that still
// counts as small enough to inline at every call site.
const MaxInlineSize = 8

// TypeConfig is the declarative per-type interop configuration.
type TypeConfig struct {
	// ClassifierFunc guesses candidate subtype names for an incoming host
	// value. It takes precedence over Classifier.
	ClassifierFunc func(v any) []string
	// DefaultKey is a fallback identity-key expression for Shared types.
	DefaultKey string
	// Classifier is an expression over {this, type} yielding one or more
	// candidate type names, most specific first.
	Classifier string
	// State is an explicit representation override.
	State InstanceState
	// UndefinedIsDistinct keeps host "undefined" apart from null for HostOnly types.
	UndefinedIsDistinct bool
	// IsRuntimePrimitive excludes the type's own imports and exports from
	// state inference.
	IsRuntimePrimitive bool
}

// MemberConfig is the declarative per-member interop configuration.
type MemberConfig struct {
	// Import is the host path the member is imported from.
	Import string
	// Export is the host name the member is exported under.
	Export  string
	Binding Binding
	Inline  Inline
	// Key designates the member as the identity-key bearer.
	Key bool
}

// Imported reports whether the member is implemented by the host.
func (c MemberConfig) Imported() bool { return c.Import != "" }

// Exported reports whether the member is visible to the host.
func (c MemberConfig) Exported() bool { return c.Export != "" }

// Param is a single method or constructor parameter.
type Param struct {
	Name string
	Type TypeID
}

// SlotRef names an interface member implemented by a class member.
type SlotRef struct {
	Interface TypeID
	Name      string
}

// Member is a field, method, constructor, property or event.
type Member struct {
	Name       string
	Params     []Param
	Implements []SlotRef
	Config     MemberConfig
	Owner      TypeID
	Result     TypeID
	BodySize   int
	Kind       MemberKind
	Static     bool
	Public     bool
	Virtual    bool
	Abstract   bool
	Override   bool
}

// IsInstance reports whether the member belongs to instances rather than
// to the type itself. Constructors are never instance members.
func (m *Member) IsInstance() bool {
	return !m.Static && m.Kind != MemberConstructor
}

// ExportedToInstance reports whether the member is exported and bound to
// each instance.
func (m *Member) ExportedToInstance() bool {
	return m.Config.Exported() && m.IsInstance() && m.Config.Binding != BindingStatic
}

// Inlinable reports whether every call to the member can be replaced by
// its body, so no native dispatch identity is needed.
func (m *Member) Inlinable() bool {
	switch m.Config.Inline {
	case InlineAlways:
		return true
	case InlineNever:
		return false
	}
	return m.Config.Imported() && m.BodySize <= MaxInlineSize && !m.Virtual
}

// Type is a declared or built-in type.
type Type struct {
	Name         string
	Assembly     string
	Members      []*Member
	Interfaces   []TypeID
	TypeArgs     []TypeID
	Config       TypeConfig
	ID           TypeID
	Base         TypeID
	Elem         TypeID
	GenericDef   TypeID
	GenericArity int
	Style        Style
	Sealed       bool
	Abstract     bool
}

// IsGenericDefinition reports whether the type can be instantiated more
// than once with different type arguments.
func (t *Type) IsGenericDefinition() bool {
	return t.GenericArity > 0 && !t.GenericDef.IsValid()
}

// IsInstantiation reports whether the type is a closed generic instantiation.
func (t *Type) IsInstantiation() bool {
	return t.GenericDef.IsValid()
}

// IsStatic reports whether the type is sealed and abstract, i.e. purely static.
func (t *Type) IsStatic() bool {
	return t.Sealed && t.Abstract
}

// Member returns the first member with the given name.
func (t *Type) Member(name string) *Member {
	for _, m := range t.Members {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// MembersOf returns the members of the given kind in declaration order.
func (t *Type) MembersOf(kind MemberKind) []*Member {
	var out []*Member
	for _, m := range t.Members {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

// Constructors returns the instance constructors.
func (t *Type) Constructors() []*Member {
	var out []*Member
	for _, m := range t.Members {
		if m.Kind == MemberConstructor && !m.Static {
			out = append(out, m)
		}
	}
	return out
}

// InstanceFields returns the number of native instance fields declared
// directly on the type.
func (t *Type) InstanceFields() int {
	n := 0
	for _, m := range t.Members {
		if m.Kind == MemberField && !m.Static && !m.Config.Imported() {
			n++
		}
	}
	return n
}
