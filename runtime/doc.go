// Package runtime is the support library the emitted code cooperates with
// at run time: type records, object and callable records, and the lazy
// loader that brings types, methods and assemblies into existence on
// demand.
//
// # Type Phases
//
// Every type record advances through
//
//	Unloaded -> Id -> Shape -> Constructed
//
// and never regresses. A record at Id is only a named placeholder, which
// is what lets arbitrary mutual references resolve. Shape fills in the
// supertype set, the member slots and the boundary functions. Constructed
// runs the static initializer exactly once.
//
//	loader := runtime.NewLoader(src, runtime.DefaultOptions())
//	rec, err := loader.RequireConstructed("Point")
//
// Code that only needs to mention a type requests Id. Code that must
// manufacture a value or touch a static member requests Constructed.
// Shape of a record is built from its base at Shape and every other peer
// at Id, so no request ever waits on itself.
//
// # Methods and Assemblies
//
// MethodRef and AssemblyRef follow a two-stage Unbound -> Bound
// lifecycle. The first mention binds the reference to a lazy loader, the
// first call fetches and evaluates the fragment, and later calls go
// straight to the loaded function.
//
// # Collection Mode
//
// With Options.CollectOnly the loader records every symbol requested into
// a manifest instead of loading it. Preload replays a manifest.
//
// # Thread Safety
//
// Exactly-once transitions use atomic claims, so records and references
// may be read from several goroutines. The loader itself is meant to be
// driven by one goroutine at a time: re-entrant requests from fragment
// code are expected and handled. Two goroutines shaping the same record
// trip the shape-cycle invariant, and a concurrent RequireConstructed may
// return a record still at Shape.
package runtime
