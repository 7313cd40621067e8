package runtime

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/manifest"
)

type phaseLog struct {
	seen map[string][]Phase
}

func (p *phaseLog) OnPhase(e PhaseEvent) {
	if p.seen == nil {
		p.seen = make(map[string][]Phase)
	}
	p.seen[e.Record.Name] = append(p.seen[e.Record.Name], e.To)
}

func TestRequireID_BreaksCycles(t *testing.T) {
	src := NewMapSource()
	src.AddType("Node", &TypeFragment{
		Shape: func(l *Loader, r *TypeRecord) error {
			// Node refers to Edge and Edge back to Node; both only need Id.
			if _, err := l.RequireID("Edge"); err != nil {
				return err
			}
			r.Fields = map[string]any{"edges": nil}
			return nil
		},
	})
	src.AddType("Edge", &TypeFragment{
		Shape: func(l *Loader, r *TypeRecord) error {
			_, err := l.RequireID("Node")
			return err
		},
	})

	l := NewLoader(src, DefaultOptions())
	node, err := l.RequireShape("Node")
	if err != nil {
		t.Fatal(err)
	}
	edge, err := l.RequireShape("Edge")
	if err != nil {
		t.Fatal(err)
	}
	if node.Phase() != PhaseShape || edge.Phase() != PhaseShape {
		t.Errorf("phases = %v/%v, want Shape/Shape", node.Phase(), edge.Phase())
	}
	if got, _ := l.Lookup("Edge"); got != edge {
		t.Error("Lookup should return the same record")
	}
	if l.Record(node.Handle) != node {
		t.Error("Record(handle) should return the record")
	}
}

func TestPhases_MonotonicAndComplete(t *testing.T) {
	src := NewMapSource()
	src.AddType("Base", &TypeFragment{})
	src.AddType("Derived", &TypeFragment{Base: "Base"})
	src.AddType("Leaf", &TypeFragment{Base: "Derived"})

	l := NewLoader(src, DefaultOptions())
	log := &phaseLog{}
	l.Subscribe(log)

	if _, err := l.RequireID("Leaf"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.RequireConstructed("Leaf"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.RequireConstructed("Leaf"); err != nil {
		t.Fatal(err)
	}

	want := []Phase{PhaseID, PhaseShape, PhaseConstructed}
	for _, name := range []string{"Base", "Derived", "Leaf"} {
		if diff := cmp.Diff(want, log.seen[name]); diff != "" {
			t.Errorf("%s phases (-want +got):\n%s", name, diff)
		}
	}
}

func TestRequireShape_DoesNotConstructBase(t *testing.T) {
	src := NewMapSource()
	inits := 0
	src.AddType("Base", &TypeFragment{Init: func(*Loader, *TypeRecord) error {
		inits++
		return nil
	}})
	src.AddType("Derived", &TypeFragment{Base: "Base"})

	l := NewLoader(src, DefaultOptions())
	d, err := l.RequireShape("Derived")
	if err != nil {
		t.Fatal(err)
	}
	if d.Base.Phase() != PhaseShape || inits != 0 {
		t.Errorf("base phase %v with %d inits, want Shape with 0", d.Base.Phase(), inits)
	}
	if !d.IsSubtypeOf(d.Base) || d.Base.IsSubtypeOf(d) {
		t.Error("subtype relation wrong")
	}
}

func TestRequireConstructed_StaticInitOnceUnderReentrancy(t *testing.T) {
	for _, n := range []int{0, 1, 5} {
		t.Run(fmt.Sprintf("reentrant=%d", n), func(t *testing.T) {
			src := NewMapSource()
			runs := 0
			src.AddType("Config", &TypeFragment{
				Init: func(l *Loader, r *TypeRecord) error {
					runs++
					for i := 0; i < n; i++ {
						got, err := l.RequireConstructed("Config")
						if err != nil {
							return err
						}
						if got.Phase() != PhaseShape {
							return fmt.Errorf("re-entrant request saw phase %s", got.Phase())
						}
					}
					r.SetStatic("ready", true)
					return nil
				},
			})

			l := NewLoader(src, DefaultOptions())
			rec, err := l.RequireConstructed("Config")
			if err != nil {
				t.Fatal(err)
			}
			if _, err := l.RequireConstructed("Config"); err != nil {
				t.Fatal(err)
			}
			if runs != 1 {
				t.Errorf("initializer ran %d times, want 1", runs)
			}
			if v, _ := rec.Static("ready"); v != true {
				t.Error("static state not set")
			}
		})
	}
}

func TestRequireConstructed_InitErrorIsSticky(t *testing.T) {
	src := NewMapSource()
	runs := 0
	src.AddType("Broken", &TypeFragment{Init: func(*Loader, *TypeRecord) error {
		runs++
		return fmt.Errorf("boom")
	}})
	l := NewLoader(src, DefaultOptions())

	for i := 0; i < 2; i++ {
		rec, err := l.RequireConstructed("Broken")
		if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseLoad, Kind: errors.KindInitialization}) {
			t.Fatalf("got %v, want initialization error", err)
		}
		if rec.Phase() != PhaseShape {
			t.Errorf("phase = %v, want Shape", rec.Phase())
		}
	}
	if runs != 1 {
		t.Errorf("initializer ran %d times, want 1", runs)
	}
}

func TestRequireConstructed_ConstructsBaseAndTypeArgs(t *testing.T) {
	src := NewMapSource()
	var order []string
	record := func(name string) func(*Loader, *TypeRecord) error {
		return func(*Loader, *TypeRecord) error {
			order = append(order, name)
			return nil
		}
	}
	src.AddType("Item", &TypeFragment{Init: record("Item")})
	src.AddType("List`1", &TypeFragment{
		Shape: func(l *Loader, r *TypeRecord) error {
			r.SetSlot("Count", func(this any, args []any) (any, error) { return 0, nil })
			return nil
		},
		Init: record("List"),
	})
	src.AddType("Base", &TypeFragment{Init: record("Base")})
	src.AddType("List<Item>", &TypeFragment{Base: "Base", GenericDef: "List`1", TypeArgs: []string{"Item"}})

	l := NewLoader(src, DefaultOptions())
	inst, err := l.RequireConstructed("List<Item>")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Base", "Item", "List"}, order); diff != "" {
		t.Errorf("init order (-want +got):\n%s", diff)
	}
	if inst.GenericDef == nil || inst.GenericDef.Name != "List`1" {
		t.Fatalf("GenericDef = %v", inst.GenericDef)
	}
	if !inst.HasOwnSlot("Count") {
		t.Error("instantiation should be shaped by its definition")
	}
	if def := inst.GenericDef; def.Phase() != PhaseShape {
		t.Errorf("definition phase = %v, want Shape", def.Phase())
	}
}

func TestShapeCycle_PanicsWithInvariant(t *testing.T) {
	src := NewMapSource()
	src.AddType("A", &TypeFragment{Shape: func(l *Loader, r *TypeRecord) error {
		_, err := l.RequireShape("B")
		return err
	}})
	src.AddType("B", &TypeFragment{Shape: func(l *Loader, r *TypeRecord) error {
		_, err := l.RequireShape("A")
		return err
	}})

	defer func() {
		if _, ok := recover().(*errors.InvariantError); !ok {
			t.Fatal("expected invariant panic")
		}
	}()
	l := NewLoader(src, DefaultOptions())
	_, _ = l.RequireShape("A")
}

func TestRequireID_UnknownType(t *testing.T) {
	l := NewLoader(NewMapSource(), DefaultOptions())
	_, err := l.RequireID("Ghost")
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseLoad, Kind: errors.KindNotFound}) {
		t.Errorf("got %v, want load/not_found", err)
	}
	if _, ok := l.Lookup("Ghost"); ok {
		t.Error("failed request should not allocate a record")
	}
}

func TestShapeError_LeavesRecordAtID(t *testing.T) {
	src := NewMapSource()
	src.AddType("Bad", &TypeFragment{Base: "Missing"})
	l := NewLoader(src, DefaultOptions())
	rec, err := l.RequireShape("Bad")
	if err == nil || !strings.Contains(err.Error(), "base Missing") {
		t.Fatalf("got %v, want base error", err)
	}
	if rec.Phase() != PhaseID {
		t.Errorf("phase = %v, want Id", rec.Phase())
	}
}

func TestMethodRef_SelfPatching(t *testing.T) {
	src := NewMapSource()
	src.AddMethod("Math.Twice", func(this any, args []any) (any, error) {
		return args[0].(float64) * 2, nil
	})
	l := NewLoader(src, DefaultOptions())

	ref := l.Method("Math.Twice")
	if ref != l.Method("Math.Twice") {
		t.Error("mentions should share one reference")
	}
	if ref.Loaded() {
		t.Error("reference should start unloaded")
	}
	for i := 0; i < 3; i++ {
		out, err := ref.Call(nil, 21.0)
		if err != nil {
			t.Fatal(err)
		}
		if out != 42.0 {
			t.Errorf("Call = %v, want 42", out)
		}
	}
	if !ref.Loaded() {
		t.Error("reference should be patched after first call")
	}
	if got := src.Fetches("Math.Twice"); got != 1 {
		t.Errorf("fragment fetched %d times, want 1", got)
	}
}

func TestAssemblyRef_LoadsOnce(t *testing.T) {
	src := NewMapSource()
	evals := 0
	src.AddType("Lib.Util", &TypeFragment{})
	src.AddAssembly("lib", func(l *Loader) error {
		evals++
		_, err := l.RequireID("Lib.Util")
		return err
	})
	l := NewLoader(src, DefaultOptions())
	for i := 0; i < 3; i++ {
		if err := l.Assembly("lib").Load(); err != nil {
			t.Fatal(err)
		}
	}
	if evals != 1 || !l.Assembly("lib").Loaded() {
		t.Errorf("evaluated %d times, want 1", evals)
	}
	if err := l.Assembly("missing").Load(); err == nil {
		t.Error("expected error for unknown assembly")
	}
}

func TestAssemblyRef_MutualReferences(t *testing.T) {
	src := NewMapSource()
	evals := map[string]int{}
	src.AddAssembly("A", func(l *Loader) error {
		evals["A"]++
		return l.Assembly("B").Load()
	})
	src.AddAssembly("B", func(l *Loader) error {
		evals["B"]++
		return l.Assembly("A").Load()
	})
	l := NewLoader(src, DefaultOptions())

	if err := l.Assembly("A").Load(); err != nil {
		t.Fatal(err)
	}
	if err := l.Assembly("B").Load(); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]int{"A": 1, "B": 1}, evals); diff != "" {
		t.Errorf("evaluations (-want +got):\n%s", diff)
	}
	if !l.Assembly("A").Loaded() || !l.Assembly("B").Loaded() {
		t.Error("both assemblies should be loaded")
	}
}

func TestRequireID_LoadsDeclaringAssembly(t *testing.T) {
	src := NewMapSource()
	evals := 0
	src.AddType("Lib.List", &TypeFragment{Assembly: "lib"})
	src.AddType("Lib.Node", &TypeFragment{Assembly: "lib"})
	src.AddType("App.Main", &TypeFragment{Assembly: "app"})
	src.AddAssembly("lib", func(l *Loader) error {
		evals++
		for _, name := range []string{"Lib.List", "Lib.Node"} {
			if _, err := l.RequireID(name); err != nil {
				return err
			}
		}
		return nil
	})
	src.AddAssembly("app", func(l *Loader) error {
		_, err := l.RequireID("Lib.List")
		return err
	})
	l := NewLoader(src, DefaultOptions())

	app, err := l.RequireID("App.Main")
	if err != nil {
		t.Fatal(err)
	}
	if app.Phase() != PhaseID {
		t.Errorf("phase = %v, want Id", app.Phase())
	}
	if _, err := l.RequireShape("Lib.Node"); err != nil {
		t.Fatal(err)
	}
	if evals != 1 || !l.Assembly("lib").Loaded() || !l.Assembly("app").Loaded() {
		t.Errorf("lib evaluated %d times, want 1 and both loaded", evals)
	}
	if src.Fetches("lib") != 1 {
		t.Errorf("lib fetched %d times, want 1", src.Fetches("lib"))
	}
}

func TestRequireID_AssemblyFailureKeepsRecord(t *testing.T) {
	src := NewMapSource()
	src.AddType("Orphan", &TypeFragment{Assembly: "gone"})
	l := NewLoader(src, DefaultOptions())

	r, err := l.RequireID("Orphan")
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseLoad, Kind: errors.KindNotFound}) {
		t.Fatalf("got %v, want load/not_found", err)
	}
	if r == nil || r.Phase() != PhaseID {
		t.Errorf("record %v should stay at Id", r)
	}
}

func TestCollectOnly_RecordsDeclaringAssembly(t *testing.T) {
	src := NewMapSource()
	src.AddType("Point", &TypeFragment{Assembly: "demo"})
	src.AddAssembly("demo", func(*Loader) error {
		t.Error("collection mode must not evaluate assemblies")
		return nil
	})
	opts := DefaultOptions()
	opts.CollectOnly = true
	l := NewLoader(src, opts)

	if _, err := l.RequireShape("Point"); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"demo"}, l.Manifest().Assemblies()); diff != "" {
		t.Errorf("manifest assemblies (-want +got):\n%s", diff)
	}
	if src.Fetches("Point") != 0 || src.Fetches("demo") != 0 {
		t.Error("collection mode fetched a fragment")
	}
}

func TestCollectOnly_RecordsWithoutLoading(t *testing.T) {
	src := NewMapSource()
	src.AddType("Point", &TypeFragment{Init: func(*Loader, *TypeRecord) error {
		t.Error("collection mode must not run initializers")
		return nil
	}})
	src.AddMethod("Point.Len", func(any, []any) (any, error) {
		t.Error("collection mode must not call methods")
		return nil, nil
	})

	opts := DefaultOptions()
	opts.CollectOnly = true
	l := NewLoader(src, opts)

	rec, err := l.RequireConstructed("Point")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Phase() != PhaseID {
		t.Errorf("phase = %v, want Id", rec.Phase())
	}
	if _, err := l.RequireID("Unknown"); err != nil {
		t.Errorf("collection mode should not fetch fragments: %v", err)
	}
	if _, err := l.Method("Point.Len").Call(nil); err != nil {
		t.Fatal(err)
	}
	if err := l.Assembly("demo").Load(); err != nil {
		t.Fatal(err)
	}

	m := l.Manifest()
	want := []manifest.TypeEntry{
		{Name: "Point", Phase: manifest.PhaseConstructed},
		{Name: "Unknown", Phase: manifest.PhaseID},
	}
	if diff := cmp.Diff(want, m.Types()); diff != "" {
		t.Errorf("manifest types (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Point.Len"}, m.Methods()); diff != "" {
		t.Errorf("manifest methods (-want +got):\n%s", diff)
	}
	if src.Fetches("Point") != 0 {
		t.Error("collection mode fetched a fragment")
	}
}

func TestPreload(t *testing.T) {
	src := NewMapSource()
	inits := 0
	src.AddType("Point", &TypeFragment{Init: func(*Loader, *TypeRecord) error {
		inits++
		return nil
	}})
	src.AddType("Shape", &TypeFragment{})
	src.AddMethod("Point.Len", func(any, []any) (any, error) { return 1.0, nil })
	src.AddAssembly("demo", func(*Loader) error { return nil })

	m := manifest.New()
	m.RecordType("Point", manifest.PhaseConstructed)
	m.RecordType("Shape", manifest.PhaseShape)
	m.RecordMethod("Point.Len")
	m.RecordAssembly("demo")

	l := NewLoader(src, DefaultOptions())
	if err := l.Preload(m); err != nil {
		t.Fatal(err)
	}
	p, _ := l.Lookup("Point")
	s, _ := l.Lookup("Shape")
	if p.Phase() != PhaseConstructed || s.Phase() != PhaseShape || inits != 1 {
		t.Errorf("phases %v/%v inits %d", p.Phase(), s.Phase(), inits)
	}
	if !l.Method("Point.Len").Loaded() || !l.Assembly("demo").Loaded() {
		t.Error("methods and assemblies should be loaded")
	}

	m.RecordType("Ghost", manifest.PhaseID)
	m.RecordMethod("Ghost.Run")
	err := NewLoader(src, DefaultOptions()).Preload(m)
	if err == nil || !strings.Contains(err.Error(), "Ghost") {
		t.Errorf("expected combined error naming Ghost, got %v", err)
	}
}
