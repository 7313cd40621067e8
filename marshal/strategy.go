package marshal

import (
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/host"
	"github.com/wippyai/hostbridge/runtime"
	"github.com/wippyai/hostbridge/typegraph"
)

// Strategy converts values of one representation state.
type Strategy interface {
	State() typegraph.InstanceState
	Import(rec *runtime.TypeRecord, v host.Value) (any, error)
	Export(rec *runtime.TypeRecord, v any) (host.Value, error)
}

// Library holds the strategies of one run.
type Library struct {
	loader *runtime.Loader
	keys   KeyMinter
}

// NewLibrary creates the strategy library. A nil minter selects counter
// keys.
func NewLibrary(loader *runtime.Loader, keys KeyMinter) *Library {
	if keys == nil {
		keys = &CounterKeys{}
	}
	return &Library{loader: loader, keys: keys}
}

// Strategy returns the strategy for a representation state.
func (lib *Library) Strategy(state typegraph.InstanceState) Strategy {
	switch state {
	case typegraph.StateNativeOnly:
		return nativeOnly{}
	case typegraph.StateShared:
		return &shared{lib: lib}
	case typegraph.StateHostOnly:
		return &hostOnly{lib: lib}
	case typegraph.StateMerged:
		return merged{}
	}
	errors.Invariant("marshal: no strategy for state %v", state)
	return nil
}

// Install sets rec's Import and Export to the strategy of its state.
func (lib *Library) Install(rec *runtime.TypeRecord) {
	s := lib.Strategy(rec.State)
	rec.Import = func(v host.Value) (any, error) { return s.Import(rec, v) }
	rec.Export = func(v any) (host.Value, error) { return s.Export(rec, v) }
}

// pick returns the most specific record a host value should be wrapped
// as. Candidates from the root's dynamic classifier are tried in order;
// the first one that loads and is assignable to rec wins.
func (lib *Library) pick(rec *runtime.TypeRecord, v host.Value) *runtime.TypeRecord {
	root := rec.RootRecord()
	if root.Classify == nil {
		return rec
	}
	names, err := root.Classify(v)
	if err != nil {
		Logger().Warn("dynamic classifier failed",
			zap.String("type", root.Name),
			zap.Error(err))
		return rec
	}
	for _, name := range names {
		cand, err := lib.loader.RequireConstructed(name)
		if err != nil {
			Logger().Debug("classifier candidate rejected",
				zap.String("candidate", name),
				zap.Error(err))
			continue
		}
		if cand.IsSubtypeOf(rec) {
			return cand
		}
	}
	return rec
}

// wrap allocates a wrapper of target paired with h and runs its importing
// constructor.
func wrap(target *runtime.TypeRecord, h *host.Object) (*runtime.Object, error) {
	w := runtime.NewObject(target)
	w.Pair(h)
	if target.ImportCtor != nil {
		if err := target.ImportCtor(w, h, nil); err != nil {
			return nil, errors.New(errors.PhaseImport, errors.KindInitialization).
				Type(target.Name).
				Cause(err).
				Detail("importing constructor").
				Build()
		}
	}
	return w, nil
}

// bindExports defines every instance-bound export of w's type chain on h.
// Bindings of derived types replace those of their bases.
func bindExports(w *runtime.Object, h *host.Object) error {
	chain := w.Type.Chain()
	for i := len(chain) - 1; i >= 0; i-- {
		for _, b := range chain[i].Exports {
			c, err := w.Method(b.Slot)
			if err != nil {
				return err
			}
			h.Set(b.Name, exportMethod(c, b))
		}
	}
	return nil
}

func exportMethod(c *runtime.Callable, b runtime.ExportBinding) *host.Function {
	return host.NewFunction(b.Name, b.Arity, func(this host.Value, args []host.Value) (host.Value, error) {
		in := make([]any, len(args))
		copy(in, args)
		if b.Args != nil {
			var err error
			if in, err = b.Args(args); err != nil {
				return nil, err
			}
		}
		out, err := c.Invoke(in...)
		if err != nil {
			return nil, err
		}
		if b.Result != nil {
			return b.Result(out)
		}
		if out == nil {
			return host.Undefined, nil
		}
		return out, nil
	})
}

func asWrapper(phase errors.Phase, rec *runtime.TypeRecord, v any) (*runtime.Object, error) {
	w, ok := v.(*runtime.Object)
	if !ok {
		return nil, errors.TypeMismatch(phase, nil, rec.Name, v)
	}
	return w, nil
}

func asHostObject(phase errors.Phase, rec *runtime.TypeRecord, v host.Value) (*host.Object, error) {
	h, ok := v.(*host.Object)
	if !ok {
		return nil, errors.TypeMismatch(phase, nil, rec.Name, v)
	}
	return h, nil
}

func checkAssignable(phase errors.Phase, got, want *runtime.TypeRecord) error {
	if got.IsSubtypeOf(want) {
		return nil
	}
	return errors.NotAssignable(phase, want.Name, got.Name)
}

type nativeOnly struct{}

func (nativeOnly) State() typegraph.InstanceState { return typegraph.StateNativeOnly }

func (nativeOnly) Import(rec *runtime.TypeRecord, v host.Value) (any, error) {
	if host.IsNullish(v) {
		return nil, nil
	}
	w, err := asWrapper(errors.PhaseImport, rec, v)
	if err != nil {
		return nil, err
	}
	if err := checkAssignable(errors.PhaseImport, w.Type, rec); err != nil {
		return nil, err
	}
	return w, nil
}

func (nativeOnly) Export(rec *runtime.TypeRecord, v any) (host.Value, error) {
	if v == nil {
		return host.Null, nil
	}
	w, err := asWrapper(errors.PhaseExport, rec, v)
	if err != nil {
		return nil, err
	}
	if w.Host() != nil {
		return nil, errors.AlreadyPaired(errors.PhaseExport, rec.Name, w.Type.RootRecord().State.String())
	}
	return w, nil
}

type shared struct {
	lib *Library
}

func (*shared) State() typegraph.InstanceState { return typegraph.StateShared }

func (s *shared) Import(rec *runtime.TypeRecord, v host.Value) (any, error) {
	if host.IsNullish(v) {
		return nil, nil
	}
	h, err := asHostObject(errors.PhaseImport, rec, v)
	if err != nil {
		return nil, err
	}
	root := rec.RootRecord()

	key, ok, err := root.KeyGet(h)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseImport, errors.KindInvalidExpr, err, "read identity key of "+rec.Name)
	}
	if ok {
		if w, found := root.Pairings.Get(key); found {
			if err := checkAssignable(errors.PhaseImport, w.Type, rec); err != nil {
				return nil, err
			}
			return w, nil
		}
	}
	if claimed, paired := h.Internal(host.SlotPairing); paired {
		w := claimed.(*runtime.Object)
		if w.Type.RootRecord() != root {
			return nil, errors.AlreadyPaired(errors.PhaseImport, rec.Name, w.Type.RootRecord().State.String())
		}
		if err := checkAssignable(errors.PhaseImport, w.Type, rec); err != nil {
			return nil, err
		}
		return w, nil
	}

	// A key the host assigned itself is adopted; an unkeyed value gets a
	// minted one.
	target := s.lib.pick(rec, h)
	w, err := wrap(target, h)
	if err != nil {
		return nil, err
	}
	if !ok {
		key = s.lib.keys.Mint()
		if err := root.KeySet(h, key); err != nil {
			return nil, errors.Wrap(errors.PhaseImport, errors.KindKeyNotAssignable, err, "store identity key on "+rec.Name)
		}
	}
	if actual, inserted := root.Pairings.Insert(key, w); !inserted {
		return actual, nil
	}
	h.ClaimInternal(host.SlotPairing, w)

	Logger().Debug("paired imported host value",
		zap.String("type", target.Name),
		zap.Any("key", key),
		zap.Bool("minted", !ok))
	return w, nil
}

func (s *shared) Export(rec *runtime.TypeRecord, v any) (host.Value, error) {
	if v == nil {
		return host.Null, nil
	}
	w, err := asWrapper(errors.PhaseExport, rec, v)
	if err != nil {
		return nil, err
	}
	if h := w.Host(); h != nil {
		return h, nil
	}

	root := w.Type.RootRecord()
	h := host.NewObject(nil)
	key := s.lib.keys.Mint()
	if err := root.KeySet(h, key); err != nil {
		return nil, errors.New(errors.PhaseExport, errors.KindKeyNotAssignable).
			Type(rec.Name).
			Cause(err).
			Detail("identity key cannot be stored on a new host value").
			Build()
	}
	if actual, stored := w.Pair(h); !stored {
		return actual, nil
	}
	root.Pairings.Insert(key, w)
	h.ClaimInternal(host.SlotPairing, w)
	if err := bindExports(w, h); err != nil {
		return nil, err
	}

	Logger().Debug("exported wrapper",
		zap.String("type", w.Type.Name),
		zap.Any("key", key))
	return h, nil
}

type hostOnly struct {
	lib *Library
}

func (*hostOnly) State() typegraph.InstanceState { return typegraph.StateHostOnly }

func (s *hostOnly) Import(rec *runtime.TypeRecord, v host.Value) (any, error) {
	if host.IsUndefined(v) && rec.RootRecord().UndefinedIsDistinct {
		w := runtime.NewObject(rec)
		w.Undefined = true
		return w, nil
	}
	if host.IsNullish(v) {
		return nil, nil
	}
	h, err := asHostObject(errors.PhaseImport, rec, v)
	if err != nil {
		return nil, err
	}
	w, err := wrap(s.lib.pick(rec, h), h)
	if err != nil {
		return nil, err
	}
	h.ClaimInternal(host.SlotPairing, w)
	return w, nil
}

func (s *hostOnly) Export(rec *runtime.TypeRecord, v any) (host.Value, error) {
	if v == nil {
		return host.Null, nil
	}
	w, err := asWrapper(errors.PhaseExport, rec, v)
	if err != nil {
		return nil, err
	}
	if w.Undefined {
		return host.Undefined, nil
	}
	if h := w.Host(); h != nil {
		return h, nil
	}

	h := host.NewObject(nil)
	if actual, stored := w.Pair(h); !stored {
		return actual, nil
	}
	h.ClaimInternal(host.SlotPairing, w)
	if err := bindExports(w, h); err != nil {
		return nil, err
	}
	return h, nil
}

type merged struct{}

func (merged) State() typegraph.InstanceState { return typegraph.StateMerged }

func (merged) Import(rec *runtime.TypeRecord, v host.Value) (any, error) {
	if host.IsNullish(v) {
		return nil, nil
	}
	h, err := asHostObject(errors.PhaseImport, rec, v)
	if err != nil {
		return nil, err
	}
	if w, paired := h.Internal(host.SlotPairing); paired {
		return nil, errors.AlreadyPaired(errors.PhaseImport, rec.Name, w.(*runtime.Object).Type.RootRecord().State.String())
	}
	tag, _ := h.ClaimInternal(host.SlotTypeTag, rec)
	if err := checkAssignable(errors.PhaseImport, tag.(*runtime.TypeRecord), rec); err != nil {
		return nil, err
	}
	return h, nil
}

func (merged) Export(rec *runtime.TypeRecord, v any) (host.Value, error) {
	if v == nil {
		return host.Null, nil
	}
	h, ok := v.(*host.Object)
	if !ok {
		if _, wrapped := v.(*runtime.Object); wrapped {
			return nil, errors.AlreadyPaired(errors.PhaseExport, rec.Name, "a native wrapper")
		}
		return nil, errors.TypeMismatch(errors.PhaseExport, nil, rec.Name, v)
	}
	if w, paired := h.Internal(host.SlotPairing); paired {
		return nil, errors.AlreadyPaired(errors.PhaseExport, rec.Name, w.(*runtime.Object).Type.RootRecord().State.String())
	}
	return h, nil
}
