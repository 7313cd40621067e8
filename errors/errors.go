package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseConfig    Phase = "config"    // program description loading
	PhaseClassify  Phase = "classify"  // representation inference and validation
	PhaseConstruct Phase = "construct" // importing constructor matching
	PhaseDispatch  Phase = "dispatch"  // virtual slot binding
	PhaseSetup     Phase = "setup"     // interop setup pass as a whole
	PhaseImport    Phase = "import"    // host to native
	PhaseExport    Phase = "export"    // native to host
	PhaseLoad      Phase = "load"      // runtime fragment loading
)

// Kind categorizes the error
type Kind string

const (
	KindStateMismatch       Kind = "state_mismatch"
	KindInstanceFields      Kind = "instance_fields"
	KindNotInlinable        Kind = "not_inlinable"
	KindNotImported         Kind = "not_imported"
	KindDuplicateKey        Kind = "duplicate_key"
	KindGenericExport       Kind = "generic_export"
	KindStaticType          Kind = "static_type"
	KindNoConstructor       Kind = "no_importing_constructor"
	KindAmbiguous           Kind = "ambiguous_constructor"
	KindInaccessible        Kind = "inaccessible"
	KindInvalidExpr         Kind = "invalid_expression"
	KindTypeMismatch        Kind = "type_mismatch"
	KindNotAssignable       Kind = "not_assignable"
	KindAlreadyPaired       Kind = "already_paired"
	KindKeyNotAssignable    Kind = "key_not_assignable"
	KindNotFound            Kind = "not_found"
	KindInvalidInput        Kind = "invalid_input"
	KindUnsupported         Kind = "unsupported"
	KindInitialization      Kind = "initialization"
	KindPhaseOrder          Kind = "phase_order"
	KindDefinitionsRejected Kind = "definitions_rejected"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Type   string
	Member string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Type != "" {
		b.WriteString(" in ")
		b.WriteString(e.Type)
		if e.Member != "" {
			b.WriteString("::")
			b.WriteString(e.Member)
		}
	}

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the value path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Type sets the offending type name
func (b *Builder) Type(name string) *Builder {
	b.err.Type = name
	return b
}

// Member sets the offending member name
func (b *Builder) Member(name string) *Builder {
	b.err.Member = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// StateMismatch reports a derived type whose state disagrees with its base
func StateMismatch(typeName, derived, base string) *Error {
	return &Error{
		Phase:  PhaseClassify,
		Kind:   KindStateMismatch,
		Type:   typeName,
		Detail: fmt.Sprintf("state %s conflicts with base state %s", derived, base),
	}
}

// InstanceFields reports native instance fields on a type whose state forbids them
func InstanceFields(typeName, state string, count int) *Error {
	return &Error{
		Phase:  PhaseClassify,
		Kind:   KindInstanceFields,
		Type:   typeName,
		Value:  count,
		Detail: fmt.Sprintf("%s types cannot have native instance fields, found %d in supertype chain", state, count),
	}
}

// DuplicateKey reports a second identity-key declaration
func DuplicateKey(typeName, member, first string) *Error {
	return &Error{
		Phase:  PhaseClassify,
		Kind:   KindDuplicateKey,
		Type:   typeName,
		Member: member,
		Detail: fmt.Sprintf("identity key already declared by %s", first),
	}
}

// NoConstructor reports a missing importing constructor
func NoConstructor(typeName string) *Error {
	return &Error{
		Phase:  PhaseConstruct,
		Kind:   KindNoConstructor,
		Type:   typeName,
		Detail: "no importing constructor",
	}
}

// TypeMismatch creates a type mismatch error for a marshaled value
func TypeMismatch(phase Phase, path []string, typeName string, value any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Path:   path,
		Type:   typeName,
		Value:  value,
		Detail: fmt.Sprintf("cannot marshal %s", describe(value)),
	}
}

// NotAssignable reports a value whose runtime type is not assignable to the target
func NotAssignable(phase Phase, typeName, actual string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotAssignable,
		Type:   typeName,
		Detail: fmt.Sprintf("%s is not assignable to %s", actual, typeName),
	}
}

// AlreadyPaired reports a value already paired under another strategy
func AlreadyPaired(phase Phase, typeName, strategy string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAlreadyPaired,
		Type:   typeName,
		Detail: fmt.Sprintf("value is already paired under %s", strategy),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Load creates a fragment loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindNotFound,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed creates a program description error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindInvalidInput,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}

func describe(v any) string {
	if v == nil {
		return "nil"
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", v)
}
