package session

import (
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/dispatch"
	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/host"
	"github.com/wippyai/hostbridge/marshal"
	"github.com/wippyai/hostbridge/runtime"
	"github.com/wippyai/hostbridge/typegraph"
)

// Bodies maps method fragment names (slot names from dispatch.Slots.Of)
// to native implementations.
type Bodies map[string]runtime.Method

// Runtime is an emitted program ready to load.
type Runtime struct {
	Loader   *runtime.Loader
	Source   *runtime.MapSource
	Library  *marshal.Library
	Compiler *marshal.Compiler
	prog     *typegraph.Program
}

// Import converts a host value to the native form of the named type.
func (rt *Runtime) Import(typeName string, v host.Value) (any, error) {
	t, ok := rt.prog.Lookup(typeName)
	if !ok {
		return nil, errors.NotFound(errors.PhaseImport, "type", typeName)
	}
	return rt.Compiler.Import(t.ID, v)
}

// Export converts a native value to the host form of the named type.
func (rt *Runtime) Export(typeName string, v any) (host.Value, error) {
	t, ok := rt.prog.Lookup(typeName)
	if !ok {
		return nil, errors.NotFound(errors.PhaseExport, "type", typeName)
	}
	return rt.Compiler.Export(t.ID, v)
}

// New constructs a native instance of the named type.
func (rt *Runtime) New(typeName string, args ...any) (*runtime.Object, error) {
	rec, err := rt.Loader.RequireConstructed(typeName)
	if err != nil {
		return nil, err
	}
	return rec.New(args...)
}

type emitter struct {
	s        *Session
	src      *runtime.MapSource
	loader   *runtime.Loader
	compiler *marshal.Compiler
	lib      *marshal.Library
}

// Emit produces the runtime fragments of plan. Bodies supplies native
// method implementations; bodies for imported instance methods are
// generated and call the paired host value. Each assembly fragment binds
// the names of the types it declares.
func (s *Session) Emit(plan *Plan, bodies Bodies) (*Runtime, error) {
	keys, err := marshal.NewKeyMinter(s.opts.KeyFormat)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "key format")
	}

	src := runtime.NewMapSource()
	loader := runtime.NewLoader(src, runtime.Options{CollectOnly: s.opts.CollectOnly})
	e := &emitter{
		s:        s,
		src:      src,
		loader:   loader,
		compiler: marshal.NewCompiler(s.prog, loader),
		lib:      marshal.NewLibrary(loader, keys),
	}

	assemblies := make(map[string][]string)
	for _, tp := range plan.Types {
		src.AddType(tp.Type.Name, e.fragment(tp))
		e.importedBodies(tp)
		if asm := tp.Type.Assembly; asm != "" {
			assemblies[asm] = append(assemblies[asm], tp.Type.Name)
		}
	}
	for name, body := range bodies {
		src.AddMethod(name, body)
	}
	for asm, names := range assemblies {
		names := names
		src.AddAssembly(asm, func(l *runtime.Loader) error {
			for _, name := range names {
				if _, err := l.RequireID(name); err != nil {
					return err
				}
			}
			return nil
		})
	}

	Logger().Debug("runtime emitted",
		zap.Int("types", len(plan.Types)),
		zap.Int("bodies", len(bodies)),
		zap.Int("assemblies", len(assemblies)))
	return &Runtime{Loader: loader, Source: src, Library: e.lib, Compiler: e.compiler, prog: s.prog}, nil
}

func (e *emitter) name(id typegraph.TypeID) string {
	if t := e.s.prog.Type(id); t != nil {
		return t.Name
	}
	return ""
}

func (e *emitter) fragment(tp *TypePlan) *runtime.TypeFragment {
	t := tp.Type
	f := &runtime.TypeFragment{
		Base:     e.name(t.Base),
		Assembly: t.Assembly,
		Shape:    func(l *runtime.Loader, r *runtime.TypeRecord) error { return e.shape(tp, l, r) },
	}
	if t.IsInstantiation() {
		f.GenericDef = e.name(t.GenericDef)
		for _, arg := range t.TypeArgs {
			f.TypeArgs = append(f.TypeArgs, e.name(arg))
		}
	}
	for _, iface := range t.Interfaces {
		f.Interfaces = append(f.Interfaces, e.name(iface))
	}
	for _, m := range t.Members {
		if m.Kind == typegraph.MemberConstructor && m.Static {
			ref := e.s.binder.Slots().Of(m)
			f.Init = func(l *runtime.Loader, _ *runtime.TypeRecord) error {
				_, err := l.Method(ref).Call(nil)
				return err
			}
			break
		}
	}
	return f
}

func (e *emitter) shape(tp *TypePlan, l *runtime.Loader, r *runtime.TypeRecord) error {
	t, rep := tp.Type, tp.Rep
	r.State = rep.State
	r.UndefinedIsDistinct = rep.UndefinedIsDistinctFromNull

	if rep.Root != t.ID && rep.Root.IsValid() {
		root, err := l.RequireShape(e.name(rep.Root))
		if err != nil {
			return err
		}
		r.Root = root
	} else {
		if key := rep.KeyAccessor; key != nil {
			r.Pairings = runtime.NewPairingTable()
			r.KeyGet = key.Get
			r.KeySet = key.Set
		}
		if dc := rep.DynamicClassifier; dc != nil {
			r.Classify = dc.Candidates
		}
	}

	r.Fields = fieldDefaults(e.s.prog, t)
	if t.Style == typegraph.StyleStruct {
		installValueFunctions(r)
	}
	r.ImportCtor = e.importCtor(tp)
	r.Construct = e.construct(tp, l, r)
	r.Exports = e.exports(t)

	e.lib.Install(r)
	dispatch.Install(l, r, tp.Bindings)
	return nil
}

// fieldDefaults returns the default value of each native instance field
// declared on t.
func fieldDefaults(prog *typegraph.Program, t *typegraph.Type) map[string]any {
	out := make(map[string]any)
	for _, m := range t.Members {
		if m.Kind != typegraph.MemberField || m.Static || m.Config.Imported() {
			continue
		}
		out[m.Name] = zeroValue(prog.Type(m.Result))
	}
	return out
}

func zeroValue(t *typegraph.Type) any {
	if t == nil {
		return nil
	}
	switch t.Style {
	case typegraph.StyleNumber, typegraph.StyleEnum:
		return 0.0
	case typegraph.StyleString:
		return ""
	case typegraph.StyleBool:
		return false
	}
	return nil
}

// installValueFunctions gives struct records copy semantics.
func installValueFunctions(r *runtime.TypeRecord) {
	r.Clone = func(o *runtime.Object) *runtime.Object {
		cp := runtime.NewObject(r)
		for k, v := range o.Fields() {
			cp.Set(k, v)
		}
		return cp
	}
	r.Default = func() any { return runtime.NewObject(r) }
	r.Box = func(v any) any {
		if o, ok := v.(*runtime.Object); ok {
			return r.Clone(o)
		}
		return v
	}
	r.Unbox = func(v any) (any, error) {
		o, ok := v.(*runtime.Object)
		if !ok || !o.Type.IsSubtypeOf(r) {
			return nil, errors.TypeMismatch(errors.PhaseImport, nil, r.Name, v)
		}
		return r.Clone(o), nil
	}
}

// importCtor runs the matched importing constructor. The host value is
// passed first when the constructor takes it.
func (e *emitter) importCtor(tp *TypePlan) func(o *runtime.Object, ctx *host.Object, args []any) error {
	p := tp.Pairing
	if p == nil || p.Ctor == nil {
		return nil
	}
	ref := e.loader.Method(e.s.binder.Slots().Of(p.Ctor))
	withCtx := p.Context
	return func(o *runtime.Object, ctx *host.Object, args []any) error {
		if withCtx {
			args = append([]any{ctx}, args...)
		}
		_, err := ref.Call(o, args...)
		return err
	}
}

// construct runs the declared constructor whose arity matches the call.
// The importing constructor only serves host values; a type with no other
// constructor allocates with field defaults.
func (e *emitter) construct(tp *TypePlan, l *runtime.Loader, r *runtime.TypeRecord) func(args ...any) (*runtime.Object, error) {
	var ctors []*typegraph.Member
	for _, m := range tp.Type.Constructors() {
		if m.Config.Imported() || (tp.Pairing != nil && m == tp.Pairing.Ctor) {
			continue
		}
		ctors = append(ctors, m)
	}
	if len(ctors) == 0 {
		return nil
	}
	slots := e.s.binder.Slots()
	return func(args ...any) (*runtime.Object, error) {
		for _, m := range ctors {
			if len(m.Params) != len(args) {
				continue
			}
			o := runtime.NewObject(r)
			if _, err := l.Method(slots.Of(m)).Call(o, args...); err != nil {
				return nil, err
			}
			return o, nil
		}
		return nil, errors.New(errors.PhaseConstruct, errors.KindNotFound).
			Type(r.Name).
			Value(len(args)).
			Detail("no constructor takes %d argument(s)", len(args)).
			Build()
	}
}

// exports lists t's own instance-bound exported methods with marshaling
// for their parameters and result.
func (e *emitter) exports(t *typegraph.Type) []runtime.ExportBinding {
	slots := e.s.binder.Slots()
	var out []runtime.ExportBinding
	for _, m := range t.Members {
		if m.Kind != typegraph.MemberMethod || !m.ExportedToInstance() {
			continue
		}
		slot := slots.Of(m)
		if m.Virtual {
			slot = slots.Virtual(m)
		}
		params := m.Params
		result := m.Result
		b := runtime.ExportBinding{
			Name:  m.Config.Export,
			Slot:  slot,
			Arity: len(params),
			Args: func(args []host.Value) ([]any, error) {
				in := make([]any, len(params))
				for i, p := range params {
					var v host.Value = host.Undefined
					if i < len(args) {
						v = args[i]
					}
					x, err := e.compiler.Import(p.Type, v)
					if err != nil {
						return nil, err
					}
					in[i] = x
				}
				return in, nil
			},
		}
		if result.IsValid() {
			b.Result = func(v any) (host.Value, error) { return e.compiler.Export(result, v) }
		}
		out = append(out, b)
	}
	return out
}

// importedBodies generates the bodies of t's imported instance methods:
// each calls the same-named function on the receiver's host value.
func (e *emitter) importedBodies(tp *TypePlan) {
	t := tp.Type
	slots := e.s.binder.Slots()
	for _, m := range t.Members {
		if m.Kind != typegraph.MemberMethod || !m.Config.Imported() || !m.IsInstance() {
			continue
		}
		e.src.AddMethod(slots.Of(m), e.importedBody(t, m))
	}
}

func (e *emitter) importedBody(t *typegraph.Type, m *typegraph.Member) runtime.Method {
	path := m.Config.Import
	return func(this any, args []any) (any, error) {
		h := hostValue(this)
		if h == nil {
			return nil, errors.New(errors.PhaseExport, errors.KindUnsupported).
				Type(t.Name).
				Member(m.Name).
				Detail("receiver is not paired with a host value").
				Build()
		}
		fv, _ := h.Get(path)
		fn, ok := fv.(*host.Function)
		if !ok {
			return nil, errors.New(errors.PhaseImport, errors.KindNotFound).
				Type(t.Name).
				Member(m.Name).
				Detail("host value has no function %q", path).
				Build()
		}
		in := make([]host.Value, len(args))
		for i, a := range args {
			if i >= len(m.Params) {
				in[i] = a
				continue
			}
			x, err := e.compiler.Export(m.Params[i].Type, a)
			if err != nil {
				return nil, err
			}
			in[i] = x
		}
		out, err := fn.Call(h, in...)
		if err != nil {
			return nil, err
		}
		if !m.Result.IsValid() {
			return out, nil
		}
		return e.compiler.Import(m.Result, out)
	}
}

func hostValue(this any) *host.Object {
	switch v := this.(type) {
	case *runtime.Object:
		return v.Host()
	case *host.Object:
		return v
	}
	return nil
}
