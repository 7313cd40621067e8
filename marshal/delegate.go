package marshal

import (
	"strconv"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/host"
	"github.com/wippyai/hostbridge/runtime"
	"github.com/wippyai/hostbridge/typegraph"
)

// signature is the parameter and result types of a delegate's Invoke member.
type signature struct {
	params []typegraph.TypeID
	result typegraph.TypeID
	known  bool
}

func (s signature) arity() int {
	if !s.known {
		return -1
	}
	return len(s.params)
}

func (c *Compiler) signature(t *typegraph.Type) signature {
	var sig signature
	inv := t.Member("Invoke")
	if inv == nil {
		return sig
	}
	for _, p := range inv.Params {
		sig.params = append(sig.params, p.Type)
	}
	sig.result = inv.Result
	sig.known = true
	return sig
}

// compileDelegate converts between host functions and native callables.
// Each side remembers the other so a value crossing back returns the
// original: a callable made from a host function exports as that function,
// a host function made from a callable imports as that callable.
func (c *Compiler) compileDelegate(m *Marshaler) {
	sig := c.signature(m.Type)
	name := m.Type.Name

	m.imp = func(v host.Value, path []string) (any, error) {
		if host.IsNullish(v) {
			return (*runtime.Callable)(nil), nil
		}
		f, ok := v.(*host.Function)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseImport, path, name, v)
		}
		if native, ok := f.Internal(host.SlotNative); ok {
			return native.(*runtime.Callable), nil
		}
		if cached, ok := f.Internal(host.SlotCallable); ok {
			return cached.(*runtime.Callable), nil
		}
		cb := runtime.NewCallable(f, runtime.CodePointer{Slot: "Invoke", Arity: sig.arity()},
			func(_ any, args []any) (any, error) {
				in := make([]host.Value, len(args))
				for i, a := range args {
					x, err := c.exportOptional(sig.params, i, a, name)
					if err != nil {
						return nil, err
					}
					in[i] = x
				}
				out, err := f.Call(host.Undefined, in...)
				if err != nil {
					return nil, err
				}
				if !sig.result.IsValid() {
					return out, nil
				}
				return c.Compile(sig.result).imp(out, []string{name, "result"})
			})
		cb.SetHostFunction(f)
		stored, _ := f.ClaimInternal(host.SlotCallable, cb)
		return stored.(*runtime.Callable), nil
	}

	m.exp = func(v any, path []string) (host.Value, error) {
		cb, ok := v.(*runtime.Callable)
		if !ok {
			if v == nil {
				return host.Null, nil
			}
			return nil, errors.TypeMismatch(errors.PhaseExport, path, name, v)
		}
		if cb == nil {
			return host.Null, nil
		}
		if f := cb.HostFunction(); f != nil {
			return f, nil
		}
		f := host.NewFunction(name, sig.arity(), func(_ host.Value, args []host.Value) (host.Value, error) {
			in := make([]any, len(args))
			for i, a := range args {
				x, err := c.importOptional(sig.params, i, a, name)
				if err != nil {
					return nil, err
				}
				in[i] = x
			}
			out, err := cb.Invoke(in...)
			if err != nil {
				return nil, err
			}
			if !sig.result.IsValid() {
				if out == nil {
					return host.Undefined, nil
				}
				return out, nil
			}
			return c.Compile(sig.result).exp(out, []string{name, "result"})
		})
		f.SetInternal(host.SlotNative, cb)
		return cb.SetHostFunction(f), nil
	}
}

func (c *Compiler) importOptional(params []typegraph.TypeID, i int, v host.Value, owner string) (any, error) {
	if i >= len(params) {
		return v, nil
	}
	return c.Compile(params[i]).imp(v, []string{owner, "arg" + strconv.Itoa(i)})
}

func (c *Compiler) exportOptional(params []typegraph.TypeID, i int, v any, owner string) (host.Value, error) {
	if i >= len(params) {
		return v, nil
	}
	return c.Compile(params[i]).exp(v, []string{owner, "arg" + strconv.Itoa(i)})
}
