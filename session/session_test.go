package session

import (
	stderrors "errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/host"
	"github.com/wippyai/hostbridge/manifest"
	"github.com/wippyai/hostbridge/program"
	"github.com/wippyai/hostbridge/runtime"
	"github.com/wippyai/hostbridge/typegraph"
)

const demo = `
assembly: demo
types:
  - name: Component
    style: class
  - name: Shape
    style: class
    state: native-only
  - name: Widget
    base: Component
    members:
      - name: .ctor
        kind: constructor
        public: true
        params: [{name: ctx, type: object}]
      - {name: render, kind: method, export: render, public: true, type: string}
  - name: Point
    base: Component
    state: shared
    members:
      - {name: Id, kind: property, type: string, key: true, import: id, public: true}
      - {name: x, kind: field, type: number}
      - name: .ctor
        kind: constructor
        public: true
        params: [{name: ctx, type: object}]
      - {name: .ctor, kind: constructor, public: true}
      - {name: norm, kind: method, import: norm, public: true, type: number}
`

func load(t *testing.T, src string) *typegraph.Program {
	t.Helper()
	prog, err := program.Load([]byte(src), program.FormatYAML)
	if err != nil {
		t.Fatal(err)
	}
	return prog
}

func slot(s *Session, typeName, member string) string {
	return s.Binder().Slots().Of(s.Program().MustLookup(typeName).Member(member))
}

func nativeCtor(s *Session, typeName string) string {
	for _, m := range s.Program().MustLookup(typeName).Constructors() {
		if len(m.Params) == 0 {
			return s.Binder().Slots().Of(m)
		}
	}
	return ""
}

type demoRun struct {
	s         *Session
	plan      *Plan
	rt        *Runtime
	ctorCalls map[string]int
}

func newDemo(t *testing.T, opts Options) *demoRun {
	t.Helper()
	s := New(load(t, demo), opts)
	plan, err := s.Setup()
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	d := &demoRun{s: s, plan: plan, ctorCalls: make(map[string]int)}
	ctor := func(name string) runtime.Method {
		return func(this any, args []any) (any, error) {
			d.ctorCalls[name]++
			this.(*runtime.Object).Set("ctx", args[0])
			return nil, nil
		}
	}
	rt, err := s.Emit(plan, Bodies{
		slot(s, "Widget", "render"): func(this any, _ []any) (any, error) {
			return "<" + this.(*runtime.Object).Type.Name + ">", nil
		},
		slot(s, "Widget", ".ctor"): ctor("Widget"),
		slot(s, "Point", ".ctor"):  ctor("Point"),
		nativeCtor(s, "Point"): func(this any, _ []any) (any, error) {
			d.ctorCalls["Point.new"]++
			this.(*runtime.Object).Set("created", true)
			return nil, nil
		},
	})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	d.rt = rt
	return d
}

func TestSetup_Representations(t *testing.T) {
	d := newDemo(t, DefaultOptions())

	tests := []struct {
		name    string
		state   typegraph.InstanceState
		exports int
		steps   int
	}{
		{"Shape", typegraph.StateNativeOnly, 0, 0},
		{"Widget", typegraph.StateHostOnly, 1, 0},
		{"Point", typegraph.StateShared, 0, 0},
	}
	for _, tt := range tests {
		tp, ok := d.plan.Lookup(tt.name)
		if !ok {
			t.Fatalf("%s missing from plan", tt.name)
		}
		rep := tp.Rep
		if rep.State != tt.state || rep.ExportsBoundToInstance != tt.exports || rep.StepsToRootType != tt.steps {
			t.Errorf("%s = {%v, %d exports, %d steps}, want {%v, %d, %d}",
				tt.name, rep.State, rep.ExportsBoundToInstance, rep.StepsToRootType, tt.state, tt.exports, tt.steps)
		}
	}

	point, _ := d.plan.Lookup("Point")
	if point.Pairing == nil || !point.Pairing.Context {
		t.Errorf("Point pairing = %+v, want the context constructor", point.Pairing)
	}
	if shape, _ := d.plan.Lookup("Shape"); shape.Pairing != nil {
		t.Error("NativeOnly types need no importing constructor")
	}
}

func TestWidgetScenario(t *testing.T) {
	d := newDemo(t, DefaultOptions())
	rt := d.rt

	w, err := rt.New("Widget")
	if err != nil {
		t.Fatal(err)
	}
	out, err := rt.Export("Widget", w)
	if err != nil {
		t.Fatal(err)
	}
	h := out.(*host.Object)
	if diff := cmp.Diff([]string{"render"}, h.Keys()); diff != "" {
		t.Errorf("exported properties mismatch (-want +got):\n%s", diff)
	}
	fn, _ := h.GetOwn("render")
	res, err := fn.(*host.Function).Call(h)
	if err != nil || res != "<Widget>" {
		t.Errorf("render() = %v, %v", res, err)
	}

	a, err := rt.Import("Widget", h)
	if err != nil {
		t.Fatal(err)
	}
	b, err := rt.Import("Widget", h)
	if err != nil {
		t.Fatal(err)
	}
	if a == w || b == w || a == b {
		t.Error("each HostOnly import should produce a fresh wrapper")
	}
	if d.ctorCalls["Widget"] != 2 {
		t.Errorf("importing constructor ran %d times, want 2", d.ctorCalls["Widget"])
	}
	if ctx, _ := a.(*runtime.Object).Get("ctx"); ctx != h {
		t.Error("importing constructor should receive the host value")
	}
}

func TestPointScenario(t *testing.T) {
	d := newDemo(t, DefaultOptions())
	rt := d.rt

	p, err := rt.New("Point")
	if err != nil {
		t.Fatal(err)
	}
	if x, _ := p.Get("x"); x != 0.0 {
		t.Errorf("x default = %v, want 0", x)
	}
	if created, _ := p.Get("created"); created != true || d.ctorCalls["Point.new"] != 1 {
		t.Errorf("native constructor ran %d times (created=%v), want once", d.ctorCalls["Point.new"], created)
	}
	out, err := rt.Export("Point", p)
	if err != nil {
		t.Fatal(err)
	}
	h := out.(*host.Object)
	if id, _ := h.GetOwn("id"); id != 1.0 {
		t.Errorf("minted key = %v, want 1", id)
	}
	back, err := rt.Import("Point", h)
	if err != nil {
		t.Fatal(err)
	}
	if back != p {
		t.Error("importing an exported Point should return the same instance")
	}
	if d.ctorCalls["Point"] != 0 {
		t.Error("re-importing a paired value must not run the constructor")
	}

	hp := host.NewObject(nil)
	hp.Set("norm", host.NewFunction("norm", 0, func(host.Value, []host.Value) (host.Value, error) {
		return 5.0, nil
	}))
	v, err := rt.Import("Point", hp)
	if err != nil {
		t.Fatal(err)
	}
	w := v.(*runtime.Object)
	if id, _ := hp.GetOwn("id"); id != 2.0 {
		t.Errorf("key of host-originated point = %v, want 2", id)
	}
	norm, err := w.Invoke(slot(d.s, "Point", "norm"))
	if err != nil || norm != 5.0 {
		t.Errorf("norm() = %v, %v", norm, err)
	}
}

func TestRuntimeNew_ConstructorArity(t *testing.T) {
	d := newDemo(t, DefaultOptions())

	w, err := d.rt.New("Widget")
	if err != nil {
		t.Fatalf("New(Widget): %v", err)
	}
	if d.ctorCalls["Widget"] != 0 {
		t.Error("native construction must not run the importing constructor")
	}
	if w.Host() != nil {
		t.Error("a fresh wrapper is not paired")
	}

	_, err = d.rt.New("Point", 1.0, 2.0)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseConstruct, Kind: errors.KindNotFound}) {
		t.Errorf("err = %v, want construct/not_found", err)
	}
	if d.ctorCalls["Point.new"] != 0 {
		t.Error("no constructor should run on an arity mismatch")
	}
}

func TestShapeScenario(t *testing.T) {
	d := newDemo(t, DefaultOptions())
	rt := d.rt

	s, _ := rt.New("Shape")
	got, err := rt.Import("Shape", s)
	if err != nil || got != s {
		t.Errorf("Import = %v, %v; want the wrapper itself", got, err)
	}
	w, _ := rt.New("Widget")
	_, err = rt.Import("Shape", w)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseImport, Kind: errors.KindNotAssignable}) {
		t.Errorf("err = %v, want import/not_assignable", err)
	}
}

func TestSetup_RejectsWholeBatch(t *testing.T) {
	s := New(load(t, `
assembly: bad
types:
  - name: Base
    state: shared
    members:
      - name: .ctor
        kind: constructor
        public: true
        params: [{name: ctx, type: object}]
  - name: Derived
    base: Base
    state: merged
  - name: Gadget
    state: host-only
    members:
      - {name: count, kind: field, type: number}
`), DefaultOptions())

	plan, err := s.Setup()
	if plan != nil {
		t.Error("a rejected setup must not produce a plan")
	}
	var setupErr *errors.SetupError
	if !stderrors.As(err, &setupErr) {
		t.Fatalf("err = %v, want *SetupError", err)
	}
	if len(setupErr.Errors) < 2 {
		t.Errorf("got %d errors, want every definition reported", len(setupErr.Errors))
	}
	diags := s.Diagnostics()
	if !diags.Invalid("Derived") || !diags.Invalid("Gadget") || diags.Invalid("Base") {
		t.Errorf("invalid flags: Derived=%v Gadget=%v Base=%v",
			diags.Invalid("Derived"), diags.Invalid("Gadget"), diags.Invalid("Base"))
	}
}

func TestSetup_StrictKeys(t *testing.T) {
	src := `
assembly: keys
types:
  - name: Pair
    state: shared
    default_key: "this.a + this.b"
    members:
      - name: .ctor
        kind: constructor
        public: true
        params: [{name: ctx, type: object}]
`
	if _, err := New(load(t, src), DefaultOptions()).Setup(); err != nil {
		t.Fatalf("lenient setup: %v", err)
	}

	opts := DefaultOptions()
	opts.StrictKeys = true
	_, err := New(load(t, src), opts).Setup()
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseSetup, Kind: errors.KindDefinitionsRejected}) {
		t.Fatalf("err = %v, want a setup error", err)
	}
	e := err.(*errors.SetupError).Errors[0]
	if e.Kind != errors.KindKeyNotAssignable || e.Type != "Pair" {
		t.Errorf("error = %v", e)
	}
}

func TestCollectAndPreload(t *testing.T) {
	opts := DefaultOptions()
	opts.CollectOnly = true
	collect := newDemo(t, opts)

	if _, err := collect.rt.Loader.RequireConstructed("Point"); err != nil {
		t.Fatal(err)
	}
	if n := collect.rt.Source.Fetches("Point"); n != 0 {
		t.Errorf("collection fetched Point %d times", n)
	}

	data, err := collect.rt.Loader.Manifest().Encode()
	if err != nil {
		t.Fatal(err)
	}
	m, err := manifest.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	want := []manifest.TypeEntry{{Name: "Point", Phase: manifest.PhaseConstructed}}
	if diff := cmp.Diff(want, m.Types()); diff != "" {
		t.Errorf("manifest types mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"demo"}, m.Assemblies()); diff != "" {
		t.Errorf("manifest assemblies mismatch (-want +got):\n%s", diff)
	}

	run := newDemo(t, DefaultOptions())
	if err := run.rt.Loader.Preload(m); err != nil {
		t.Fatal(err)
	}
	rec, ok := run.rt.Loader.Lookup("Point")
	if !ok || rec.Phase() != runtime.PhaseConstructed {
		t.Errorf("Point after preload: %v", rec)
	}
	if !run.rt.Loader.Assembly("demo").Loaded() {
		t.Error("preloading should load the recorded assembly")
	}
	if w, ok := run.rt.Loader.Lookup("Widget"); !ok || w.Phase() != runtime.PhaseID {
		t.Errorf("Widget after preload: %v, want bound at Id by its assembly", w)
	}
}

func TestEmit_UnknownKeyFormat(t *testing.T) {
	s := New(load(t, demo), Options{KeyFormat: "sequential"})
	plan, err := s.Setup()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Emit(plan, nil); err == nil {
		t.Error("unknown key format should fail")
	}
}

func TestRuntime_UnknownType(t *testing.T) {
	d := newDemo(t, DefaultOptions())
	if _, err := d.rt.Import("Nope", host.Null); err == nil {
		t.Error("importing as an unknown type should fail")
	}
}
