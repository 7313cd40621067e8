package classify

import (
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/typegraph"
)

type validator struct {
	c *Classifier
	t *typegraph.Type
}

func (v *validator) report(err *errors.Error) {
	Logger().Warn("invalid interop definition",
		zap.String("type", v.t.Name),
		zap.String("kind", string(err.Kind)),
		zap.String("detail", err.Detail))
	v.c.diags.Report(err)
}

func (v *validator) build(kind errors.Kind) *errors.Builder {
	return errors.New(errors.PhaseClassify, kind).Type(v.t.Name)
}

// checkGeneric enforces the export arity rule for generic definitions:
// no exported static members and only parameterless exported
// constructors, since every instantiation shares one host-side name.
func (v *validator) checkGeneric() {
	if !v.t.IsGenericDefinition() {
		return
	}
	for _, m := range v.t.Members {
		if !m.Config.Exported() {
			continue
		}
		switch {
		case m.Kind == typegraph.MemberConstructor && len(m.Params) > 0:
			v.report(v.build(errors.KindGenericExport).
				Member(m.Name).
				Detail("generic type may only export parameterless constructors, %s takes %d", m.Name, len(m.Params)).
				Build())
		case m.Static && m.Kind != typegraph.MemberConstructor:
			v.report(v.build(errors.KindGenericExport).
				Member(m.Name).
				Detail("generic type cannot export static member").
				Build())
		}
	}
}

func (v *validator) checkStatic(rep *Representation) {
	if v.t.IsStatic() && rep.State != typegraph.StateNativeOnly {
		v.report(v.build(errors.KindStaticType).
			Detail("static type must be NativeOnly, declared %s", rep.State).
			Build())
	}
}

func (v *validator) checkBase(rep, base *Representation) {
	if base == nil || base.State == typegraph.StateNativeOnly || base.State == rep.State {
		return
	}
	v.report(errors.StateMismatch(v.t.Name, rep.State.String(), base.State.String()))
}

func (v *validator) checkFields(rep *Representation) {
	switch rep.State {
	case typegraph.StateHostOnly, typegraph.StateMerged:
		if rep.InstanceFields > 0 {
			v.report(errors.InstanceFields(v.t.Name, rep.State.String(), rep.InstanceFields))
		}
	}
}

// checkMerged requires a Merged type to have no native identity to
// dispatch through: constructors come from the host and every instance
// method disappears at its call sites.
func (v *validator) checkMerged(rep *Representation) {
	if rep.State != typegraph.StateMerged {
		return
	}
	for _, m := range v.t.Members {
		switch {
		case m.Kind == typegraph.MemberConstructor && !m.Static:
			if !m.Config.Imported() {
				v.report(v.build(errors.KindNotImported).
					Member(m.Name).
					Detail("constructors of Merged types must be imported").
					Build())
			}
		case m.Kind == typegraph.MemberMethod && m.IsInstance():
			if !m.Inlinable() {
				v.report(v.build(errors.KindNotInlinable).
					Member(m.Name).
					Detail("Merged values have no native identity to dispatch %s through", m.Name).
					Build())
			}
		}
	}
}

// attachKey resolves the identity-key accessor. Only the Shared root owns
// one; a key declared anywhere below the root is a duplicate.
func (v *validator) attachKey(rep *Representation) {
	var keys []*typegraph.Member
	for _, m := range v.t.Members {
		if m.Config.Key {
			keys = append(keys, m)
		}
	}
	for _, extra := range keys[min(len(keys), 1):] {
		v.report(errors.DuplicateKey(v.t.Name, extra.Name, keys[0].Name))
	}

	if rep.State != typegraph.StateShared {
		if len(keys) > 0 {
			v.report(v.build(errors.KindInvalidInput).
				Member(keys[0].Name).
				Detail("identity key declared on %s type", rep.State).
				Build())
		}
		return
	}

	if rep.StepsToRootType > 0 {
		if len(keys) > 0 {
			root := v.c.prog.Type(rep.Root)
			first := "the root default key"
			if rk := root.Config; rk.DefaultKey != "" {
				first = rk.DefaultKey
			}
			for _, m := range root.Members {
				if m.Config.Key {
					first = m.Name
					break
				}
			}
			v.report(errors.New(errors.PhaseClassify, errors.KindDuplicateKey).
				Type(v.t.Name).
				Member(keys[0].Name).
				Detail("identity key already owned by root type %s (%s)", root.Name, first).
				Build())
		}
		return
	}

	switch {
	case len(keys) > 0:
		path := keys[0].Config.Import
		if path == "" {
			path = keys[0].Name
		}
		rep.KeyAccessor = PathKey(path)
	case v.t.Config.DefaultKey != "":
		src := v.t.Config.DefaultKey
		if !strings.Contains(src, "this") {
			src = "this." + src
		}
		acc, err := CompileKey(src)
		if err != nil {
			v.report(v.build(errors.KindInvalidExpr).Cause(err).Detail("default key %q", v.t.Config.DefaultKey).Build())
			rep.KeyAccessor = InternalKey()
			return
		}
		rep.KeyAccessor = acc
	default:
		rep.KeyAccessor = InternalKey()
	}
}

func (v *validator) attachClassifier(rep *Representation) {
	cfg := v.t.Config
	declared := cfg.ClassifierFunc != nil || cfg.Classifier != ""
	if !declared {
		return
	}
	if rep.StepsToRootType > 0 || (rep.State != typegraph.StateShared && rep.State != typegraph.StateHostOnly) {
		Logger().Warn("dynamic classifier ignored on non-root type",
			zap.String("type", v.t.Name),
			zap.Stringer("state", rep.State))
		return
	}
	if cfg.ClassifierFunc != nil {
		rep.DynamicClassifier = FuncClassifier(v.t.Name, cfg.ClassifierFunc)
		return
	}
	dc, err := CompileClassifier(v.t.Name, cfg.Classifier)
	if err != nil {
		v.report(v.build(errors.KindInvalidExpr).Cause(err).Detail("classifier %q", cfg.Classifier).Build())
		return
	}
	rep.DynamicClassifier = dc
}
