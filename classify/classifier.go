// Package classify decides, per declared type, how its instances are
// represented at the host boundary.
//
// Classification is memoized for the lifetime of a Classifier, which the
// compilation session owns. It recurses over the acyclic "extends"
// relation, so a base type is always classified before any of its
// descendants. Validation failures are reported to the session's
// Diagnostics and mark the type invalid; classification itself always
// produces a best-effort Representation so every error in a program
// surfaces in a single pass.
package classify

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/lazy"
	"github.com/wippyai/hostbridge/typegraph"
)

// Representation is the classification result for one type. It is
// immutable once returned.
type Representation struct {
	// KeyAccessor is set only on the Shared root type.
	KeyAccessor *KeyAccessor
	// DynamicClassifier is set only on Shared or HostOnly root types.
	DynamicClassifier *DynamicClassifier
	// ExportsBoundToInstance counts instance-bound exports from the root down.
	ExportsBoundToInstance int
	// StepsToRootType counts supertype hops to the type that introduced State.
	StepsToRootType int
	// InstanceFields counts native instance fields across the supertype chain.
	InstanceFields int
	// ImportedMembers counts the type's own imported instance members.
	ImportedMembers int
	// Root is the type that introduced State.
	Root  typegraph.TypeID
	State typegraph.InstanceState
	// Inherited is true when State was taken from the base without an
	// explicit declaration on this type.
	Inherited                   bool
	UndefinedIsDistinctFromNull bool
}

// Classifier is the session-scoped classification cache.
type Classifier struct {
	prog  *typegraph.Program
	diags *errors.Diagnostics
	cache sync.Map // typegraph.TypeID -> *lazy.Cell[*Representation]
}

// New creates a classifier over prog reporting into diags.
func New(prog *typegraph.Program, diags *errors.Diagnostics) *Classifier {
	if diags == nil {
		diags = errors.NewDiagnostics()
	}
	return &Classifier{prog: prog, diags: diags}
}

// Program returns the classified program.
func (c *Classifier) Program() *typegraph.Program {
	return c.prog
}

// Diagnostics returns the collector validation errors are reported to.
func (c *Classifier) Diagnostics() *errors.Diagnostics {
	return c.diags
}

// Classify returns the memoized representation of the type.
func (c *Classifier) Classify(id typegraph.TypeID) *Representation {
	t := c.prog.Type(id)
	if t == nil {
		errors.Invariant("classify: unknown type id %d", id)
	}

	cell, _ := c.cache.LoadOrStore(id, lazy.New(func() (*Representation, error) {
		return c.classify(t), nil
	}))
	rep, _ := cell.(*lazy.Cell[*Representation]).Get()
	return rep
}

// Valid reports whether the type and its supertypes classified without
// errors.
func (c *Classifier) Valid(id typegraph.TypeID) bool {
	for _, t := range c.prog.Chain(c.prog.Type(id)) {
		c.Classify(t.ID)
		if c.diags.Invalid(t.Name) {
			return false
		}
	}
	return true
}

// RootType returns the type that owns the key table and dynamic
// classifier for id.
func (c *Classifier) RootType(id typegraph.TypeID) *typegraph.Type {
	return c.prog.Type(c.Classify(id).Root)
}

func (c *Classifier) classify(t *typegraph.Type) *Representation {
	if t.Style.Builtin() {
		return &Representation{State: typegraph.StateNativeOnly, Root: t.ID}
	}

	var base *Representation
	if bt := c.prog.Base(t); bt != nil {
		base = c.Classify(bt.ID)
	}

	v := &validator{c: c, t: t}
	rep := &Representation{Root: t.ID}

	boundary, exports := 0, 0
	for _, m := range t.Members {
		if !m.IsInstance() {
			continue
		}
		if m.ExportedToInstance() {
			exports++
		}
		if t.Config.IsRuntimePrimitive {
			continue
		}
		if m.Config.Imported() {
			rep.ImportedMembers++
			boundary++
		} else if m.ExportedToInstance() {
			boundary++
		}
	}
	for _, st := range c.prog.Chain(t) {
		rep.InstanceFields += st.InstanceFields()
	}

	switch {
	case t.Config.State != typegraph.StateInferred:
		rep.State = t.Config.State
	case base != nil && base.State != typegraph.StateNativeOnly:
		rep.State = base.State
		rep.Inherited = true
	case boundary == 0:
		rep.State = typegraph.StateNativeOnly
	case rep.InstanceFields == 0:
		rep.State = typegraph.StateHostOnly
	default:
		rep.State = typegraph.StateShared
	}

	if base != nil && base.State != typegraph.StateNativeOnly && base.State == rep.State {
		rep.StepsToRootType = base.StepsToRootType + 1
		rep.Root = base.Root
		rep.ExportsBoundToInstance = base.ExportsBoundToInstance + exports
		rep.UndefinedIsDistinctFromNull = base.UndefinedIsDistinctFromNull
	} else {
		rep.ExportsBoundToInstance = exports
		rep.UndefinedIsDistinctFromNull = rep.State == typegraph.StateHostOnly && t.Config.UndefinedIsDistinct
	}

	v.checkGeneric()
	v.checkStatic(rep)
	v.checkBase(rep, base)
	v.checkFields(rep)
	v.checkMerged(rep)
	v.attachKey(rep)
	v.attachClassifier(rep)

	Logger().Debug("classified type",
		zap.String("type", t.Name),
		zap.Stringer("state", rep.State),
		zap.Int("steps", rep.StepsToRootType),
		zap.Int("exports", rep.ExportsBoundToInstance),
		zap.Bool("inherited", rep.Inherited))
	return rep
}
