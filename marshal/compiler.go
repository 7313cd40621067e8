package marshal

import (
	"strconv"
	"sync"

	"go.uber.org/multierr"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/host"
	"github.com/wippyai/hostbridge/runtime"
	"github.com/wippyai/hostbridge/typegraph"
)

// Ref is the native form of a pointer value.
type Ref struct {
	Value any
}

// Marshaler converts values of one type.
type Marshaler struct {
	Type *typegraph.Type
	imp  func(v host.Value, path []string) (any, error)
	exp  func(v any, path []string) (host.Value, error)
}

// Import converts a host value to its native form.
func (m *Marshaler) Import(v host.Value) (any, error) {
	return m.imp(v, nil)
}

// Export converts a native value to its host form.
func (m *Marshaler) Export(v any) (host.Value, error) {
	return m.exp(v, nil)
}

// Compiler builds and caches marshalers per type.
type Compiler struct {
	prog   *typegraph.Program
	loader *runtime.Loader
	cache  sync.Map // typegraph.TypeID -> *Marshaler
}

// NewCompiler creates a compiler for prog whose class values are resolved
// through loader.
func NewCompiler(prog *typegraph.Program, loader *runtime.Loader) *Compiler {
	return &Compiler{prog: prog, loader: loader}
}

// Compile returns the marshaler for a type. Element marshalers are looked
// up when first used, so recursive type references compile.
func (c *Compiler) Compile(id typegraph.TypeID) *Marshaler {
	if m, ok := c.cache.Load(id); ok {
		return m.(*Marshaler)
	}
	t := c.prog.Type(id)
	if t == nil {
		errors.Invariant("marshal: unknown type id %d", id)
	}
	m, _ := c.cache.LoadOrStore(id, c.compile(t))
	return m.(*Marshaler)
}

// Import converts v to the native form of type id.
func (c *Compiler) Import(id typegraph.TypeID, v host.Value) (any, error) {
	return c.Compile(id).Import(v)
}

// Export converts v to the host form of type id.
func (c *Compiler) Export(id typegraph.TypeID, v any) (host.Value, error) {
	return c.Compile(id).Export(v)
}

func (c *Compiler) compile(t *typegraph.Type) *Marshaler {
	m := &Marshaler{Type: t}
	switch t.Style {
	case typegraph.StyleNumber, typegraph.StyleEnum:
		m.imp, m.exp = importNumber(t), exportNumber(t)
	case typegraph.StyleString:
		m.imp = importPrimitive[string](t)
		m.exp = exportPrimitive[string](t)
	case typegraph.StyleBool:
		m.imp = importPrimitive[bool](t)
		m.exp = exportPrimitive[bool](t)
	case typegraph.StyleVoid:
		m.imp = func(host.Value, []string) (any, error) { return nil, nil }
		m.exp = func(any, []string) (host.Value, error) { return host.Undefined, nil }
	case typegraph.StyleObject:
		m.imp = func(v host.Value, _ []string) (any, error) { return v, nil }
		m.exp = func(v any, _ []string) (host.Value, error) {
			if v == nil {
				return host.Null, nil
			}
			return v, nil
		}
	case typegraph.StyleNullable:
		c.compileNullable(m)
	case typegraph.StylePointer:
		c.compilePointer(m)
	case typegraph.StyleArray:
		c.compileArray(m)
	case typegraph.StyleDelegate:
		c.compileDelegate(m)
	case typegraph.StyleClass, typegraph.StyleStruct, typegraph.StyleInterface:
		c.compileRecord(m)
	default:
		errors.Invariant("marshal: unhandled style %v", t.Style)
	}
	return m
}

func importNumber(t *typegraph.Type) func(host.Value, []string) (any, error) {
	return func(v host.Value, path []string) (any, error) {
		f, ok := v.(float64)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseImport, path, t.Name, v)
		}
		return f, nil
	}
}

func exportNumber(t *typegraph.Type) func(any, []string) (host.Value, error) {
	return func(v any, path []string) (host.Value, error) {
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int32:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case uint32:
			return float64(n), nil
		case uint64:
			return float64(n), nil
		}
		return nil, errors.TypeMismatch(errors.PhaseExport, path, t.Name, v)
	}
}

func importPrimitive[T any](t *typegraph.Type) func(host.Value, []string) (any, error) {
	return func(v host.Value, path []string) (any, error) {
		x, ok := v.(T)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseImport, path, t.Name, v)
		}
		return x, nil
	}
}

func exportPrimitive[T any](t *typegraph.Type) func(any, []string) (host.Value, error) {
	return func(v any, path []string) (host.Value, error) {
		x, ok := v.(T)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseExport, path, t.Name, v)
		}
		return x, nil
	}
}

// compileNullable maps host null and undefined to native nil in both
// directions; present values marshal as the element type.
func (c *Compiler) compileNullable(m *Marshaler) {
	elem := m.Type.Elem
	m.imp = func(v host.Value, path []string) (any, error) {
		if host.IsNullish(v) {
			return nil, nil
		}
		return c.Compile(elem).imp(v, path)
	}
	m.exp = func(v any, path []string) (host.Value, error) {
		if v == nil {
			return host.Null, nil
		}
		return c.Compile(elem).exp(v, path)
	}
}

func (c *Compiler) compilePointer(m *Marshaler) {
	elem := m.Type.Elem
	m.imp = func(v host.Value, path []string) (any, error) {
		if host.IsNullish(v) {
			return (*Ref)(nil), nil
		}
		x, err := c.Compile(elem).imp(v, path)
		if err != nil {
			return nil, err
		}
		return &Ref{Value: x}, nil
	}
	m.exp = func(v any, path []string) (host.Value, error) {
		r, ok := v.(*Ref)
		if !ok {
			if v == nil {
				return host.Null, nil
			}
			return nil, errors.TypeMismatch(errors.PhaseExport, path, m.Type.Name, v)
		}
		if r == nil {
			return host.Null, nil
		}
		return c.Compile(elem).exp(r.Value, path)
	}
}

// compileArray copies element by element into a fresh array so nothing is
// aliased across the boundary. Every element failure is reported.
func (c *Compiler) compileArray(m *Marshaler) {
	elem := m.Type.Elem
	m.imp = func(v host.Value, path []string) (any, error) {
		if host.IsNullish(v) {
			return []any(nil), nil
		}
		arr, ok := v.(*host.Array)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseImport, path, m.Type.Name, v)
		}
		em := c.Compile(elem)
		out := make([]any, len(arr.Elems))
		var errs error
		for i, e := range arr.Elems {
			x, err := em.imp(e, elemPath(path, i))
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			out[i] = x
		}
		if errs != nil {
			return nil, errs
		}
		return out, nil
	}
	m.exp = func(v any, path []string) (host.Value, error) {
		if v == nil {
			return host.Null, nil
		}
		src, ok := v.([]any)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseExport, path, m.Type.Name, v)
		}
		if src == nil {
			return host.Null, nil
		}
		em := c.Compile(elem)
		out := make([]host.Value, len(src))
		var errs error
		for i, e := range src {
			x, err := em.exp(e, elemPath(path, i))
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			out[i] = x
		}
		if errs != nil {
			return nil, errs
		}
		return host.NewArray(out...), nil
	}
}

func elemPath(path []string, i int) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, "["+strconv.Itoa(i)+"]")
}

// compileRecord hands values to the strategy installed on the type's
// runtime record. Manufacturing a value needs the record Constructed.
func (c *Compiler) compileRecord(m *Marshaler) {
	name := m.Type.Name
	record := func(phase errors.Phase, path []string) (*runtime.TypeRecord, error) {
		rec, err := c.loader.RequireConstructed(name)
		if err != nil {
			return nil, err
		}
		if rec.Import == nil || rec.Export == nil {
			return nil, errors.New(phase, errors.KindUnsupported).
				Type(name).
				Path(path...).
				Detail("no marshaling strategy installed").
				Build()
		}
		return rec, nil
	}
	m.imp = func(v host.Value, path []string) (any, error) {
		rec, err := record(errors.PhaseImport, path)
		if err != nil {
			return nil, err
		}
		out, err := rec.Import(v)
		return out, withPath(err, path)
	}
	m.exp = func(v any, path []string) (host.Value, error) {
		rec, err := record(errors.PhaseExport, path)
		if err != nil {
			return nil, err
		}
		out, err := rec.Export(v)
		return out, withPath(err, path)
	}
}

func withPath(err error, path []string) error {
	if err == nil || len(path) == 0 {
		return err
	}
	if e, ok := err.(*errors.Error); ok && len(e.Path) == 0 {
		cp := *e
		cp.Path = path
		return &cp
	}
	return err
}
