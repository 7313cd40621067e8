// Package session runs the interop setup pass over a program and emits the
// runtime fragments that implement it.
//
// A Session owns every cache whose lifetime is one compilation: the
// classifier, the constructor matcher, the slot allocator and the
// diagnostics. Setup classifies, matches and binds every declared type and
// refuses to produce a Plan if any definition was rejected. Emit turns a
// Plan into a runtime.Source whose type fragments install marshaling
// strategies and dispatch slots on the records they shape.
package session

import (
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/classify"
	"github.com/wippyai/hostbridge/construct"
	"github.com/wippyai/hostbridge/dispatch"
	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/marshal"
	"github.com/wippyai/hostbridge/typegraph"
)

// Options configures a session.
type Options struct {
	// KeyFormat selects minted identity keys: "counter" or "uuid".
	KeyFormat string
	// CollectOnly emits a loader that records requested symbols into a
	// manifest instead of loading them.
	CollectOnly bool
	// StrictKeys rejects read-only identity-key expressions during setup
	// instead of failing the first export.
	StrictKeys bool
}

// DefaultOptions returns the default session options.
func DefaultOptions() Options {
	return Options{KeyFormat: marshal.KeyFormatCounter}
}

// Session is the compilation context of one program.
type Session struct {
	prog       *typegraph.Program
	diags      *errors.Diagnostics
	classifier *classify.Classifier
	matcher    *construct.Matcher
	binder     *dispatch.Binder
	opts       Options
}

// New creates a session over prog.
func New(prog *typegraph.Program, opts Options) *Session {
	diags := errors.NewDiagnostics()
	c := classify.New(prog, diags)
	return &Session{
		prog:       prog,
		diags:      diags,
		classifier: c,
		matcher:    construct.New(c),
		binder:     dispatch.New(c, dispatch.NewSlots(prog)),
		opts:       opts,
	}
}

// Program returns the session's program.
func (s *Session) Program() *typegraph.Program { return s.prog }

// Classifier returns the session's classifier.
func (s *Session) Classifier() *classify.Classifier { return s.classifier }

// Matcher returns the session's constructor matcher.
func (s *Session) Matcher() *construct.Matcher { return s.matcher }

// Binder returns the session's slot binder.
func (s *Session) Binder() *dispatch.Binder { return s.binder }

// Diagnostics returns the errors recorded so far.
func (s *Session) Diagnostics() *errors.Diagnostics { return s.diags }

// TypePlan is the setup result for one declared type.
type TypePlan struct {
	Type *typegraph.Type
	Rep  *classify.Representation
	// Pairing is nil when the state needs no importing constructor.
	Pairing  *construct.Pairing
	Bindings []dispatch.Binding
}

// Plan is the result of a successful setup pass.
type Plan struct {
	Types  []*TypePlan
	byName map[string]*TypePlan
}

// Lookup returns the plan of the named type.
func (p *Plan) Lookup(name string) (*TypePlan, bool) {
	tp, ok := p.byName[name]
	return tp, ok
}

// planned reports whether setup covers t. Built-in styles other than
// delegates have no record of their own.
func planned(t *typegraph.Type) bool {
	return !t.Style.Builtin() || t.Style == typegraph.StyleDelegate
}

// Setup runs the interop setup pass. Every definition is visited even
// after a failure so all errors surface together; any error yields a
// *errors.SetupError and no plan.
func (s *Session) Setup() (*Plan, error) {
	plan := &Plan{byName: make(map[string]*TypePlan)}
	for _, t := range s.prog.Types() {
		if !planned(t) {
			continue
		}
		tp := &TypePlan{Type: t, Rep: s.classifier.Classify(t.ID)}
		if t.Style != typegraph.StyleInterface {
			tp.Pairing = s.matcher.Check(t.ID)
		}
		if s.opts.StrictKeys {
			s.checkKey(tp)
		}
		tp.Bindings = s.binder.Bind(t.ID)
		plan.Types = append(plan.Types, tp)
		plan.byName[t.Name] = tp
	}

	if err := s.diags.Err(); err != nil {
		for _, e := range s.diags.Errors() {
			Logger().Warn("definition rejected",
				zap.String("type", e.Type),
				zap.String("member", e.Member),
				zap.String("kind", string(e.Kind)),
				zap.String("detail", e.Detail))
		}
		return nil, err
	}

	Logger().Info("interop setup complete", zap.Int("types", len(plan.Types)))
	return plan, nil
}

func (s *Session) checkKey(tp *TypePlan) {
	key := tp.Rep.KeyAccessor
	if key == nil || key.Assignable() {
		return
	}
	s.diags.Report(errors.New(errors.PhaseClassify, errors.KindKeyNotAssignable).
		Type(tp.Type.Name).
		Detail("identity key expression %q cannot store minted keys", key.Source).
		Build())
}
