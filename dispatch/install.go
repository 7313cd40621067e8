package dispatch

import (
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/host"
	"github.com/wippyai/hostbridge/lazy"
	"github.com/wippyai/hostbridge/runtime"
)

// Install binds rec's slots. Method bodies are fetched through l when a
// slot is first called; in collection mode the call is only recorded.
func Install(l *runtime.Loader, rec *runtime.TypeRecord, bindings []Binding) {
	for _, b := range bindings {
		install(l, rec, b)
	}
}

func install(l *runtime.Loader, rec *runtime.TypeRecord, b Binding) {
	switch b.Kind {
	case KindSelfPatching:
		bindFragment(l, rec, b)

	case KindBatch:
		installBatch(l, rec, b)

	case KindIntroducing:
		target := b.Target
		rec.SetSlot(b.Slot, func(this any, args []any) (any, error) {
			return receiver(rec, this).Invoke(this, target, args...)
		})

	case KindCrossType:
		owner, target := b.Owner, b.Target
		rec.SetSlotLazy(b.Slot, func() (runtime.Method, error) {
			impl, err := l.RequireShape(owner)
			if err != nil {
				return nil, err
			}
			return impl.Slot(target)
		})

	case KindDelegateInvoke, KindAsyncBegin, KindAsyncEnd, KindArrayEnumerator, KindSequenceEnumerator:
		rec.SetSlot(b.Slot, builtin(b))

	default:
		errors.Invariant("dispatch: unhandled binding kind %v", b.Kind)
	}
}

func bindFragment(l *runtime.Loader, rec *runtime.TypeRecord, b Binding) {
	ref := l.Method(b.Target)
	if l.CollectOnly() {
		rec.SetSlot(b.Slot, func(this any, args []any) (any, error) {
			return ref.Call(this, args...)
		})
		return
	}
	rec.SetSlotLazy(b.Slot, func() (runtime.Method, error) {
		m, err := ref.Resolve()
		if err == nil {
			Logger().Debug("slot patched",
				zap.String("type", rec.Name),
				zap.String("slot", b.Slot))
		}
		return m, err
	})
}

type resolved struct {
	m   runtime.Method
	err error
}

// installBatch fetches every part's body together on the first call of
// any part. A failed part does not affect the others.
func installBatch(l *runtime.Loader, rec *runtime.TypeRecord, b Binding) {
	if l.CollectOnly() {
		for _, p := range b.Parts {
			bindFragment(l, rec, p)
		}
		return
	}
	parts := b.Parts
	all := lazy.New(func() ([]resolved, error) {
		out := make([]resolved, len(parts))
		for i, p := range parts {
			out[i].m, out[i].err = l.Method(p.Target).Resolve()
		}
		Logger().Debug("batch patched",
			zap.String("type", rec.Name),
			zap.Int("slots", len(parts)))
		return out, nil
	})
	for i, p := range parts {
		i := i
		rec.SetSlotLazy(p.Slot, func() (runtime.Method, error) {
			res, _ := all.Get()
			return res[i].m, res[i].err
		})
	}
}

func receiver(rec *runtime.TypeRecord, this any) *runtime.TypeRecord {
	if o, ok := this.(*runtime.Object); ok {
		return o.Type
	}
	return rec
}

// Call runs a planned call site.
func Call(b Binding, this any, args ...any) (any, error) {
	switch b.Kind {
	case KindDelegateInvoke, KindAsyncBegin, KindAsyncEnd, KindArrayEnumerator, KindSequenceEnumerator:
		return builtin(b)(this, args)
	case KindSelfPatching, KindIntroducing:
		o, ok := this.(*runtime.Object)
		if !ok || o == nil {
			return nil, errors.TypeMismatch(errors.PhaseDispatch, nil, b.Member, this)
		}
		return o.Type.Invoke(this, b.Slot, args...)
	}
	errors.Invariant("dispatch: %v is not a call-site binding", b.Kind)
	return nil, nil
}

func builtin(b Binding) runtime.Method {
	switch b.Kind {
	case KindDelegateInvoke:
		return func(this any, args []any) (any, error) {
			cb, err := callable(this)
			if err != nil {
				return nil, err
			}
			return cb.Invoke(args...)
		}
	case KindAsyncBegin:
		return func(this any, args []any) (any, error) {
			cb, err := callable(this)
			if err != nil {
				return nil, err
			}
			return BeginInvoke(cb, args...), nil
		}
	case KindAsyncEnd:
		return func(_ any, args []any) (any, error) {
			if len(args) == 0 {
				return nil, errors.InvalidInput(errors.PhaseDispatch, "EndInvoke needs an async result")
			}
			r, ok := args[0].(*AsyncResult)
			if !ok {
				return nil, errors.TypeMismatch(errors.PhaseDispatch, nil, "AsyncResult", args[0])
			}
			return r.Wait()
		}
	case KindArrayEnumerator:
		return func(this any, _ []any) (any, error) {
			if items, elem, ok := sliceOf(this); ok {
				return NewEnumerator(elem, items), nil
			}
			return fallbackEnumerator(b, this)
		}
	case KindSequenceEnumerator:
		return func(this any, _ []any) (any, error) {
			if items, _, ok := sliceOf(this); ok {
				return NewEnumerator(b.Elem, items), nil
			}
			return fallbackEnumerator(b, this)
		}
	}
	errors.Invariant("dispatch: %v has no built-in implementation", b.Kind)
	return nil
}

func callable(this any) (*runtime.Callable, error) {
	cb, ok := this.(*runtime.Callable)
	if !ok || cb == nil {
		return nil, errors.TypeMismatch(errors.PhaseDispatch, nil, "delegate", this)
	}
	return cb, nil
}

// fallbackEnumerator handles receivers that are not native slices: host
// arrays enumerate their elements, native objects their own slot.
func fallbackEnumerator(b Binding, this any) (any, error) {
	switch v := this.(type) {
	case *host.Array:
		return NewEnumerator(b.Elem, v.Elems), nil
	case *runtime.Object:
		if b.Slot != "" {
			return v.Type.Invoke(v, b.Slot)
		}
	}
	return nil, errors.New(errors.PhaseDispatch, errors.KindUnsupported).
		Member(MemberGetEnumerator).
		Value(this).
		Detail("receiver cannot be enumerated").
		Build()
}
