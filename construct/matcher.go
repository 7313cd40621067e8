// Package construct pairs a representation with the native constructor
// that initializes a wrapper for a host-originated value.
package construct

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/classify"
	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/typegraph"
)

// Ranks of a constructor candidate. Higher wins.
const (
	RankNone    = 0
	RankDefault = 1
	RankExact   = 2
)

// Pairing is the resolved importing constructor for a type.
type Pairing struct {
	// Ctor is nil when the pairing uses the implicit parameterless
	// constructor of a type that declares none.
	Ctor *typegraph.Member
	// Owner is the type Ctor belongs to. It differs from the requested type
	// when the pairing was implied from a base.
	Owner typegraph.TypeID
	Rank  int
	// Context is true when the constructor takes the host value as its
	// first explicit parameter.
	Context bool
	Implied bool
}

// Required reports whether the representation needs an importing
// constructor at all.
func Required(rep *classify.Representation) bool {
	switch rep.State {
	case typegraph.StateShared, typegraph.StateHostOnly:
		return true
	case typegraph.StateNativeOnly, typegraph.StateMerged:
		return false
	}
	errors.Invariant("construct: unclassified state %v", rep.State)
	return false
}

// Matcher resolves importing constructors against one classifier.
type Matcher struct {
	c     *classify.Classifier
	cache sync.Map // typegraph.TypeID -> *result
}

type result struct {
	pairing *Pairing
	err     *errors.Error
}

// New creates a matcher.
func New(c *classify.Classifier) *Matcher {
	return &Matcher{c: c}
}

// BestForType returns the default importing constructor of a type: the one
// run when a host value is imported without an explicit host-side
// construction.
func (m *Matcher) BestForType(id typegraph.TypeID) (*Pairing, error) {
	if r, ok := m.cache.Load(id); ok {
		return r.(*result).unpack()
	}
	p, err := m.best(id, nil)
	r, _ := m.cache.LoadOrStore(id, &result{pairing: p, err: err})
	return r.(*result).unpack()
}

// Best returns the constructor paired with the imported constructor
// imported. A nil imported behaves like BestForType.
func (m *Matcher) Best(id typegraph.TypeID, imported *typegraph.Member) (*Pairing, error) {
	if imported == nil {
		return m.BestForType(id)
	}
	p, err := m.best(id, imported)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *result) unpack() (*Pairing, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.pairing, nil
}

type candidate struct {
	ctor *typegraph.Member
	rank int
}

func (m *Matcher) best(id typegraph.TypeID, imported *typegraph.Member) (*Pairing, *errors.Error) {
	prog := m.c.Program()
	t := prog.Type(id)
	rep := m.c.Classify(id)
	withCtx := rep.State == typegraph.StateShared || rep.State == typegraph.StateHostOnly

	var top []candidate
	declared := 0
	for _, ctor := range t.Constructors() {
		if ctor.Config.Imported() {
			continue
		}
		declared++
		rank := m.rank(ctor, imported, withCtx)
		switch {
		case rank == RankNone:
		case len(top) == 0 || rank > top[0].rank:
			top = []candidate{{ctor, rank}}
		case rank == top[0].rank:
			top = append(top, candidate{ctor, rank})
		}
	}

	if len(top) > 0 {
		return m.pick(t, top, withCtx)
	}

	if declared == 0 && !withCtx {
		return &Pairing{Owner: id, Rank: RankDefault, Implied: true}, nil
	}

	if rep.Inherited {
		if base := prog.Base(t); base != nil {
			p, err := m.BestForType(base.ID)
			if err != nil {
				Logger().Debug("implied base pairing failed",
					zap.String("type", t.Name),
					zap.String("base", base.Name))
				return nil, errors.NoConstructor(t.Name)
			}
			implied := *p
			implied.Implied = true
			Logger().Debug("implied importing constructor",
				zap.String("type", t.Name),
				zap.String("owner", prog.Type(p.Owner).Name))
			return &implied, nil
		}
	}

	return nil, errors.NoConstructor(t.Name)
}

// rank scores ctor against the imported constructor. The host context
// parameter, when required, is the first explicit parameter and must be
// of the host object type.
func (m *Matcher) rank(ctor, imported *typegraph.Member, withCtx bool) int {
	prog := m.c.Program()
	params := ctor.Params
	if withCtx {
		if len(params) == 0 {
			return RankNone
		}
		if ct := prog.Type(params[0].Type); ct == nil || ct.Style != typegraph.StyleObject {
			return RankNone
		}
		params = params[1:]
	}

	if imported != nil && len(params) == len(imported.Params) && len(params) > 0 {
		for i, p := range params {
			if !prog.Equivalent(p.Type, imported.Params[i].Type) {
				return m.defaultRank(params)
			}
		}
		return RankExact
	}
	return m.defaultRank(params)
}

func (m *Matcher) defaultRank(rest []typegraph.Param) int {
	if len(rest) == 0 {
		return RankDefault
	}
	return RankNone
}

func (m *Matcher) pick(t *typegraph.Type, top []candidate, withCtx bool) (*Pairing, *errors.Error) {
	var public []candidate
	for _, c := range top {
		if c.ctor.Public {
			public = append(public, c)
		}
	}

	switch len(public) {
	case 0:
		return nil, errors.New(errors.PhaseConstruct, errors.KindInaccessible).
			Type(t.Name).
			Member(top[0].ctor.Name).
			Detail("importing constructor must be public").
			Build()
	case 1:
		c := public[0]
		Logger().Debug("importing constructor",
			zap.String("type", t.Name),
			zap.String("ctor", c.ctor.Name),
			zap.Int("rank", c.rank))
		return &Pairing{Ctor: c.ctor, Owner: t.ID, Rank: c.rank, Context: withCtx}, nil
	}

	return nil, errors.New(errors.PhaseConstruct, errors.KindAmbiguous).
		Type(t.Name).
		Member(public[0].ctor.Name).
		Value(len(public)).
		Detail("%d public constructors at rank %d", len(public), public[0].rank).
		Build()
}

// Check resolves every importing constructor a type needs and reports
// failures to the classifier's diagnostics. It returns the default
// pairing, or nil when none is needed or resolution failed.
func (m *Matcher) Check(id typegraph.TypeID) *Pairing {
	rep := m.c.Classify(id)
	if !Required(rep) {
		return nil
	}
	diags := m.c.Diagnostics()
	t := m.c.Program().Type(id)

	var def *Pairing
	if p, err := m.BestForType(id); err != nil {
		diags.Report(err.(*errors.Error))
	} else {
		def = p
	}
	for _, ctor := range t.Constructors() {
		if !ctor.Config.Imported() {
			continue
		}
		if _, err := m.Best(id, ctor); err != nil {
			e := err.(*errors.Error)
			if e.Member == "" {
				e.Member = ctor.Name
			}
			diags.Report(e)
		}
	}
	return def
}
