package typegraph

import "fmt"

// Style is the closed set of type shapes known to the compiler.
type Style uint8

const (
	StyleClass Style = iota
	StyleStruct
	StyleInterface
	StyleObject
	StyleArray
	StyleDelegate
	StyleNullable
	StylePointer
	StyleEnum
	StyleNumber
	StyleString
	StyleBool
	StyleVoid
)

var styleNames = [...]string{
	StyleClass:     "class",
	StyleStruct:    "struct",
	StyleInterface: "interface",
	StyleObject:    "object",
	StyleArray:     "array",
	StyleDelegate:  "delegate",
	StyleNullable:  "nullable",
	StylePointer:   "pointer",
	StyleEnum:      "enum",
	StyleNumber:    "number",
	StyleString:    "string",
	StyleBool:      "bool",
	StyleVoid:      "void",
}

func (s Style) String() string {
	if int(s) < len(styleNames) {
		return styleNames[s]
	}
	return fmt.Sprintf("style(%d)", uint8(s))
}

// ParseStyle converts a style name to its Style.
func ParseStyle(name string) (Style, error) {
	for i, n := range styleNames {
		if n == name {
			return Style(i), nil
		}
	}
	return 0, fmt.Errorf("unknown style %q", name)
}

// Builtin reports whether instances of the style have a fixed, hard-wired
// representation. Only classes, structs and interfaces are classified.
func (s Style) Builtin() bool {
	switch s {
	case StyleClass, StyleStruct, StyleInterface:
		return false
	case StyleObject, StyleArray, StyleDelegate, StyleNullable, StylePointer,
		StyleEnum, StyleNumber, StyleString, StyleBool, StyleVoid:
		return true
	}
	panic(fmt.Sprintf("typegraph: unhandled style %d", uint8(s)))
}

// InstanceState describes how instances of a type exist relative to the
// host boundary. StateInferred only appears in configuration and means no
// explicit declaration was made.
type InstanceState uint8

const (
	StateInferred InstanceState = iota
	StateNativeOnly
	StateShared
	StateHostOnly
	StateMerged
)

var stateNames = [...]string{
	StateInferred:   "inferred",
	StateNativeOnly: "NativeOnly",
	StateShared:     "Shared",
	StateHostOnly:   "HostOnly",
	StateMerged:     "Merged",
}

func (s InstanceState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// ParseState accepts the canonical names as well as lower-case and
// kebab-case spellings ("native-only", "hostonly").
func ParseState(name string) (InstanceState, error) {
	switch name {
	case "", "inferred":
		return StateInferred, nil
	case "NativeOnly", "nativeonly", "native-only", "native":
		return StateNativeOnly, nil
	case "Shared", "shared":
		return StateShared, nil
	case "HostOnly", "hostonly", "host-only", "host":
		return StateHostOnly, nil
	case "Merged", "merged":
		return StateMerged, nil
	}
	return 0, fmt.Errorf("unknown instance state %q", name)
}

// MemberKind identifies the kind of a type member.
type MemberKind uint8

const (
	MemberField MemberKind = iota
	MemberMethod
	MemberConstructor
	MemberProperty
	MemberEvent
)

var memberKindNames = [...]string{
	MemberField:       "field",
	MemberMethod:      "method",
	MemberConstructor: "constructor",
	MemberProperty:    "property",
	MemberEvent:       "event",
}

func (k MemberKind) String() string {
	if int(k) < len(memberKindNames) {
		return memberKindNames[k]
	}
	return fmt.Sprintf("member(%d)", uint8(k))
}

// ParseMemberKind converts a member kind name to its MemberKind.
func ParseMemberKind(name string) (MemberKind, error) {
	for i, n := range memberKindNames {
		if n == name {
			return MemberKind(i), nil
		}
	}
	if name == "ctor" {
		return MemberConstructor, nil
	}
	return 0, fmt.Errorf("unknown member kind %q", name)
}

// Binding tells whether an exported member is bound to each instance or
// exported once in static-like form.
type Binding uint8

const (
	BindingDefault Binding = iota
	BindingInstance
	BindingStatic
)

// Inline is a per-member inlining override.
type Inline uint8

const (
	InlineDefault Inline = iota
	InlineAlways
	InlineNever
)
