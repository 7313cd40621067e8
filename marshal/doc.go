// Package marshal converts values across the host boundary.
//
// Class, struct and interface values follow the strategy of their root
// type's representation:
//
//	NativeOnly  import checks the native tag, export is identity
//	Shared      host values carry an identity key paired with one wrapper
//	HostOnly    every import allocates a fresh wrapper, no key
//	Merged      the host value is the native value
//
// Strategies are installed on runtime type records during Shape. Nullable,
// pointer, array, primitive and delegate types do not use strategies; the
// Compiler builds per-type marshalers for them that recurse into their
// element types and hand class values to the record's strategy.
package marshal
