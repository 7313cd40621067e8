// Package dispatch binds virtual and interface call slots to their
// implementations.
//
// A Binder inspects the type graph and produces Bindings, the plan for
// every slot a type defines. Install applies that plan to a runtime
// TypeRecord. Call sites that bypass slot dispatch entirely (delegate
// invocation, asynchronous begin/end, enumerator acquisition on arrays and
// sequences) are planned by Binder.CallSite and run by Call.
//
// Slot names are stable strings derived from the assembly, type and member
// that introduced the slot, so generated code and the runtime agree on them
// without sharing tables.
package dispatch
