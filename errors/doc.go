// Package errors provides structured error types for the host bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the offending type and member names, a value path for
// marshaling failures, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseClassify, errors.KindStateMismatch).
//		Type("Widget").
//		Detail("state %s conflicts with base state %s", "Merged", "Shared").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NoConstructor("Widget")
//	err := errors.TypeMismatch(errors.PhaseImport, path, "number", v)
//
// Errors surface in three tiers. Per-definition errors are collected by
// Diagnostics so a whole program is checked in one pass. A non-empty
// collection becomes a SetupError that stops code generation. Internal
// invariant violations panic with InvariantError.
package errors
