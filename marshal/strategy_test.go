package marshal

import (
	stderrors "errors"
	"testing"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/host"
	"github.com/wippyai/hostbridge/runtime"
	"github.com/wippyai/hostbridge/typegraph"
)

type fixture struct {
	src    *runtime.MapSource
	loader *runtime.Loader
	lib    *Library
}

func newFixture(keys KeyMinter) *fixture {
	src := runtime.NewMapSource()
	l := runtime.NewLoader(src, runtime.DefaultOptions())
	return &fixture{src: src, loader: l, lib: NewLibrary(l, keys)}
}

// add registers a type whose Shape installs the strategy for state. A
// derived type of the same state shares its base's root.
func (f *fixture) add(name, base string, state typegraph.InstanceState, extra func(r *runtime.TypeRecord)) {
	f.src.AddType(name, &runtime.TypeFragment{
		Base: base,
		Shape: func(_ *runtime.Loader, r *runtime.TypeRecord) error {
			r.State = state
			if r.Base != nil && r.Base.State == state {
				r.Root = r.Base.RootRecord()
			}
			if extra != nil {
				extra(r)
			}
			f.lib.Install(r)
			return nil
		},
	})
}

func (f *fixture) record(t *testing.T, name string) *runtime.TypeRecord {
	t.Helper()
	r, err := f.loader.RequireConstructed(name)
	if err != nil {
		t.Fatalf("RequireConstructed(%s): %v", name, err)
	}
	return r
}

func keyProperty(prop string) func(r *runtime.TypeRecord) {
	return func(r *runtime.TypeRecord) {
		r.Pairings = runtime.NewPairingTable()
		r.KeyGet = func(h *host.Object) (any, bool, error) {
			v, ok := h.GetOwn(prop)
			if !ok || host.IsUndefined(v) {
				return nil, false, nil
			}
			return v, true, nil
		}
		r.KeySet = func(h *host.Object, key any) error {
			h.Set(prop, key)
			return nil
		}
	}
}

func isKind(err error, phase errors.Phase, kind errors.Kind) bool {
	return stderrors.Is(err, &errors.Error{Phase: phase, Kind: kind})
}

func TestShared_ExportThenImportReturnsSameWrapper(t *testing.T) {
	f := newFixture(nil)
	f.add("Point", "", typegraph.StateShared, keyProperty("id"))
	rec := f.record(t, "Point")

	w, err := rec.New()
	if err != nil {
		t.Fatal(err)
	}
	out, err := rec.Export(w)
	if err != nil {
		t.Fatal(err)
	}
	h := out.(*host.Object)
	if key, _ := h.GetOwn("id"); key != float64(1) {
		t.Errorf("key = %v, want 1", key)
	}

	again, err := rec.Export(w)
	if err != nil {
		t.Fatal(err)
	}
	if again != h {
		t.Error("second export should return the paired host value")
	}

	back, err := rec.Import(h)
	if err != nil {
		t.Fatal(err)
	}
	if back != w {
		t.Errorf("Import(Export(w)) = %v, want %v", back, w)
	}
	if rec.Pairings.Len() != 1 {
		t.Errorf("pairings = %d, want 1", rec.Pairings.Len())
	}
	if paired, _ := h.Internal(host.SlotPairing); paired != w {
		t.Error("host value should reference its wrapper")
	}
}

func TestShared_ImportMintsKeyOnce(t *testing.T) {
	f := newFixture(nil)
	ctorCalls := 0
	f.add("Point", "", typegraph.StateShared, func(r *runtime.TypeRecord) {
		keyProperty("id")(r)
		r.ImportCtor = func(o *runtime.Object, ctx *host.Object, _ []any) error {
			ctorCalls++
			x, _ := ctx.GetOwn("x")
			o.Set("x", x)
			return nil
		}
	})
	rec := f.record(t, "Point")

	h := host.NewObject(nil)
	h.Set("x", 3.0)

	first, err := rec.Import(h)
	if err != nil {
		t.Fatal(err)
	}
	second, err := rec.Import(h)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("importing the same host value twice should return the same wrapper")
	}
	if ctorCalls != 1 {
		t.Errorf("importing constructor ran %d times, want 1", ctorCalls)
	}
	if _, ok := h.GetOwn("id"); !ok {
		t.Error("import should store a key on the host value")
	}
	if x, _ := first.(*runtime.Object).Get("x"); x != 3.0 {
		t.Errorf("x = %v, want 3", x)
	}

	out, err := rec.Export(first)
	if err != nil {
		t.Fatal(err)
	}
	if out != h {
		t.Error("exporting an imported wrapper should return the original host value")
	}
}

func TestShared_ImportAdoptsHostKey(t *testing.T) {
	f := newFixture(nil)
	ctorCalls := 0
	f.add("Point", "", typegraph.StateShared, func(r *runtime.TypeRecord) {
		keyProperty("id")(r)
		r.ImportCtor = func(*runtime.Object, *host.Object, []any) error {
			ctorCalls++
			return nil
		}
	})
	rec := f.record(t, "Point")

	h := host.NewObject(nil)
	h.Set("id", "host-42")
	w, err := rec.Import(h)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if ctorCalls != 1 {
		t.Errorf("importing constructor ran %d times, want 1", ctorCalls)
	}
	if key, _ := h.GetOwn("id"); key != "host-42" {
		t.Errorf("key = %v, want the host's own key", key)
	}
	if got, ok := rec.Pairings.Get("host-42"); !ok || got != w {
		t.Error("wrapper should be paired under the host's key")
	}

	again, err := rec.Import(h)
	if err != nil || again != w {
		t.Errorf("second Import = %v, %v; want the same wrapper", again, err)
	}
	out, err := rec.Export(w)
	if err != nil {
		t.Fatal(err)
	}
	if out != h {
		t.Error("Export(Import(h)) should return h")
	}
	if key, _ := out.(*host.Object).GetOwn("id"); key != "host-42" {
		t.Errorf("exported key = %v, want host-42", key)
	}
	if ctorCalls != 1 {
		t.Errorf("importing constructor ran %d times in total, want 1", ctorCalls)
	}
}

func TestShared_ImportRejectsForeignPairing(t *testing.T) {
	f := newFixture(nil)
	f.add("Point", "", typegraph.StateShared, keyProperty("id"))
	f.add("Widget", "", typegraph.StateHostOnly, nil)
	point := f.record(t, "Point")
	widget := f.record(t, "Widget")

	h := host.NewObject(nil)
	if _, err := widget.Import(h); err != nil {
		t.Fatal(err)
	}
	if _, err := point.Import(h); !isKind(err, errors.PhaseImport, errors.KindAlreadyPaired) {
		t.Fatalf("err = %v, want import/already_paired", err)
	}
	if _, ok := h.GetOwn("id"); ok {
		t.Error("a rejected import should not store a key")
	}
	if point.Pairings.Len() != 0 {
		t.Errorf("pairings = %d, want 0", point.Pairings.Len())
	}
}

func TestShared_DynamicClassifierAndAssignability(t *testing.T) {
	f := newFixture(nil)
	f.add("Shape", "", typegraph.StateShared, func(r *runtime.TypeRecord) {
		keyProperty("key")(r)
		r.Classify = func(v host.Value) ([]string, error) {
			if _, ok := v.(*host.Object).GetOwn("radius"); ok {
				return []string{"Circle"}, nil
			}
			return nil, nil
		}
	})
	f.add("Circle", "Shape", typegraph.StateShared, nil)
	shape := f.record(t, "Shape")
	circle := f.record(t, "Circle")

	round := host.NewObject(nil)
	round.Set("radius", 2.0)
	w, err := shape.Import(round)
	if err != nil {
		t.Fatal(err)
	}
	if got := w.(*runtime.Object).Type; got != circle {
		t.Errorf("wrapper type = %s, want Circle", got.Name)
	}

	plain := host.NewObject(nil)
	if _, err := shape.Import(plain); err != nil {
		t.Fatal(err)
	}
	_, err = circle.Import(plain)
	if !isKind(err, errors.PhaseImport, errors.KindNotAssignable) {
		t.Fatalf("err = %v, want import/not_assignable", err)
	}

	// Same key table for the whole hierarchy.
	if circle.RootRecord() != shape || shape.Pairings.Len() != 2 {
		t.Errorf("root = %s, pairings = %d", circle.RootRecord().Name, shape.Pairings.Len())
	}
}

func TestHostOnly_FreshWrapperAndBoundExports(t *testing.T) {
	f := newFixture(nil)
	f.add("Widget", "", typegraph.StateHostOnly, func(r *runtime.TypeRecord) {
		r.SetSlot("Draw", func(this any, _ []any) (any, error) {
			return "drawn " + this.(*runtime.Object).Type.Name, nil
		})
		r.Exports = []runtime.ExportBinding{{Name: "draw", Slot: "Draw"}}
	})
	rec := f.record(t, "Widget")

	h := host.NewObject(nil)
	a, err := rec.Import(h)
	if err != nil {
		t.Fatal(err)
	}
	b, err := rec.Import(h)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("HostOnly imports should not deduplicate wrappers")
	}

	w, _ := rec.New()
	out, err := rec.Export(w)
	if err != nil {
		t.Fatal(err)
	}
	again, _ := rec.Export(w)
	if out != again {
		t.Error("exporting the same wrapper twice should return one host value")
	}

	fn, ok := out.(*host.Object).GetOwn("draw")
	if !ok {
		t.Fatal("exported value should have the bound draw method")
	}
	res, err := fn.(*host.Function).Call(out)
	if err != nil {
		t.Fatal(err)
	}
	if res != "drawn Widget" {
		t.Errorf("draw() = %v", res)
	}
}

func TestHostOnly_UndefinedIsDistinct(t *testing.T) {
	f := newFixture(nil)
	f.add("Maybe", "", typegraph.StateHostOnly, func(r *runtime.TypeRecord) {
		r.UndefinedIsDistinct = true
	})
	rec := f.record(t, "Maybe")

	u, err := rec.Import(host.Undefined)
	if err != nil {
		t.Fatal(err)
	}
	w, ok := u.(*runtime.Object)
	if !ok || !w.Undefined {
		t.Fatalf("Import(undefined) = %v, want an undefined wrapper", u)
	}
	back, _ := rec.Export(w)
	if back != host.Undefined {
		t.Errorf("Export = %v, want undefined", back)
	}

	n, err := rec.Import(host.Null)
	if err != nil || n != nil {
		t.Errorf("Import(null) = %v, %v; want nil", n, err)
	}
}

func TestMerged_IdentityAndPairingConflicts(t *testing.T) {
	f := newFixture(nil)
	f.add("Blob", "", typegraph.StateMerged, nil)
	f.add("Widget", "", typegraph.StateHostOnly, nil)
	blob := f.record(t, "Blob")
	widget := f.record(t, "Widget")

	h := host.NewObject(nil)
	got, err := blob.Import(h)
	if err != nil {
		t.Fatal(err)
	}
	if got != h {
		t.Error("Merged import should return the host value itself")
	}
	if tag, _ := h.Internal(host.SlotTypeTag); tag != blob {
		t.Error("Merged import should tag the host value")
	}
	out, err := blob.Export(h)
	if err != nil || out != h {
		t.Errorf("Export = %v, %v; want the same value", out, err)
	}

	paired := host.NewObject(nil)
	if _, err := widget.Import(paired); err != nil {
		t.Fatal(err)
	}
	if _, err := blob.Import(paired); !isKind(err, errors.PhaseImport, errors.KindAlreadyPaired) {
		t.Errorf("import of paired value: err = %v, want already_paired", err)
	}
	if _, err := blob.Export(paired); !isKind(err, errors.PhaseExport, errors.KindAlreadyPaired) {
		t.Errorf("export of paired value: err = %v, want already_paired", err)
	}

	w, _ := widget.New()
	if _, err := blob.Export(w); !isKind(err, errors.PhaseExport, errors.KindAlreadyPaired) {
		t.Errorf("export of native wrapper: err = %v, want already_paired", err)
	}
}

func TestNativeOnly_PassesWrappers(t *testing.T) {
	f := newFixture(nil)
	f.add("Engine", "", typegraph.StateNativeOnly, nil)
	f.add("Widget", "", typegraph.StateHostOnly, nil)
	rec := f.record(t, "Engine")
	widget := f.record(t, "Widget")

	w, _ := rec.New()
	out, err := rec.Export(w)
	if err != nil || out != w {
		t.Fatalf("Export = %v, %v; want the wrapper", out, err)
	}
	in, err := rec.Import(out)
	if err != nil || in != w {
		t.Fatalf("Import = %v, %v; want the wrapper", in, err)
	}

	other, _ := widget.New()
	if _, err := rec.Import(other); !isKind(err, errors.PhaseImport, errors.KindNotAssignable) {
		t.Errorf("err = %v, want not_assignable", err)
	}

	paired, _ := rec.New()
	paired.Pair(host.NewObject(nil))
	if _, err := rec.Export(paired); !isKind(err, errors.PhaseExport, errors.KindAlreadyPaired) {
		t.Errorf("err = %v, want already_paired", err)
	}
}

func TestLibrary_UnknownStatePanics(t *testing.T) {
	defer func() {
		if _, ok := recover().(*errors.InvariantError); !ok {
			t.Error("expected an invariant panic")
		}
	}()
	NewLibrary(nil, nil).Strategy(typegraph.StateInferred)
}

func TestKeyMinters(t *testing.T) {
	c, err := NewKeyMinter("")
	if err != nil {
		t.Fatal(err)
	}
	if a, b := c.Mint(), c.Mint(); a != float64(1) || b != float64(2) {
		t.Errorf("counter keys = %v, %v", a, b)
	}

	u, err := NewKeyMinter(KeyFormatUUID)
	if err != nil {
		t.Fatal(err)
	}
	a, b := u.Mint().(string), u.Mint().(string)
	if len(a) != 36 || a == b {
		t.Errorf("uuid keys = %q, %q", a, b)
	}

	if _, err := NewKeyMinter("sequential"); err == nil {
		t.Error("unknown format should fail")
	}
}

func TestShared_UUIDKeys(t *testing.T) {
	f := newFixture(UUIDKeys{})
	f.add("Point", "", typegraph.StateShared, keyProperty("id"))
	rec := f.record(t, "Point")

	w, _ := rec.New()
	out, err := rec.Export(w)
	if err != nil {
		t.Fatal(err)
	}
	key, _ := out.(*host.Object).GetOwn("id")
	if _, ok := key.(string); !ok {
		t.Fatalf("key = %T, want string", key)
	}
	if got, _ := rec.Pairings.Get(key); got != w {
		t.Error("pairing table should map the uuid key to the wrapper")
	}
}
