package runtime

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/lazy"
)

// MethodRef is a call site bound to a lazily loaded method.
type MethodRef struct {
	loader *Loader
	cell   *lazy.Cell[Method]
	direct atomic.Pointer[Method]
	Name   string
}

// Method binds name to a lazy loader on first mention and returns the
// same reference on every later mention.
func (l *Loader) Method(name string) *MethodRef {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ref, ok := l.methods[name]; ok {
		return ref
	}
	ref := &MethodRef{Name: name, loader: l}
	ref.cell = lazy.New(func() (Method, error) {
		m, err := l.src.MethodFragment(name)
		if err != nil {
			return nil, errors.New(errors.PhaseLoad, errors.KindNotFound).
				Member(name).
				Cause(err).
				Detail("fetch method fragment").
				Build()
		}
		Logger().Debug("method loaded", zap.String("method", name))
		return m, nil
	})
	l.methods[name] = ref
	return ref
}

// Loaded reports whether the call site has been patched to the loaded
// method.
func (m *MethodRef) Loaded() bool {
	return m.direct.Load() != nil
}

// Resolve loads the method if needed and patches the reference.
func (m *MethodRef) Resolve() (Method, error) {
	if d := m.direct.Load(); d != nil {
		return *d, nil
	}
	fn, err := m.cell.Get()
	if err != nil {
		return nil, err
	}
	m.direct.Store(&fn)
	return fn, nil
}

// Call invokes the method. In collection mode the call is only recorded
// and returns nil.
func (m *MethodRef) Call(this any, args ...any) (any, error) {
	if d := m.direct.Load(); d != nil {
		return (*d)(this, args)
	}
	if m.loader.collect {
		m.loader.manifest.RecordMethod(m.Name)
		return nil, nil
	}
	fn, err := m.Resolve()
	if err != nil {
		return nil, err
	}
	return fn(this, args)
}

// AssemblyRef is a lazily evaluated compilation unit.
type AssemblyRef struct {
	loader *Loader
	claim  lazy.Claim
	err    error
	Name   string
}

// Assembly binds name to a lazy loader on first mention.
func (l *Loader) Assembly(name string) *AssemblyRef {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ref, ok := l.assemblies[name]; ok {
		return ref
	}
	ref := &AssemblyRef{Name: name, loader: l}
	l.assemblies[name] = ref
	return ref
}

// Load fetches and evaluates the assembly at most once. A Load made while
// the assembly is being evaluated returns nil at once: the unit is already
// bound, which is what lets units reference each other. In collection
// mode it only records the request.
func (a *AssemblyRef) Load() error {
	if a.loader.collect {
		a.loader.manifest.RecordAssembly(a.Name)
		return nil
	}
	a.claim.Run(a.evaluate)
	if !a.claim.Done() {
		return nil
	}
	return a.err
}

func (a *AssemblyRef) evaluate() error {
	l := a.loader
	fn, err := l.src.AssemblyFragment(a.Name)
	if err != nil {
		a.err = errors.Load("fetch assembly fragment "+a.Name, err)
		return a.err
	}
	if err := fn(l); err != nil {
		a.err = errors.Wrap(errors.PhaseLoad, errors.KindInitialization, err, "evaluate assembly "+a.Name)
		return a.err
	}
	Logger().Debug("assembly loaded", zap.String("assembly", a.Name))
	return nil
}

// Loaded reports whether the assembly has been evaluated.
func (a *AssemblyRef) Loaded() bool {
	return a.claim.Done()
}
