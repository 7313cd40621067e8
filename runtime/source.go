package runtime

import (
	"sync"

	"github.com/wippyai/hostbridge/errors"
)

// TypeFragment is the deferred code of one type.
type TypeFragment struct {
	// Shape fills in the record's members and boundary functions. Base,
	// GenericDef, TypeArgs and Interfaces are already set when it runs.
	Shape func(l *Loader, r *TypeRecord) error
	// Init is the static initializer.
	Init func(l *Loader, r *TypeRecord) error

	Base       string
	GenericDef string
	Assembly   string
	TypeArgs   []string
	Interfaces []string
}

// AssemblyFunc evaluates a compilation unit.
type AssemblyFunc func(l *Loader) error

// Source supplies deferred fragments on demand.
type Source interface {
	TypeFragment(name string) (*TypeFragment, error)
	MethodFragment(name string) (Method, error)
	AssemblyFragment(name string) (AssemblyFunc, error)
}

// AssemblyIndex is implemented by sources that can name the assembly of
// a type without fetching its fragment.
type AssemblyIndex interface {
	AssemblyOf(typeName string) (string, bool)
}

// MapSource is an in-memory Source. Fetch counts are tracked per symbol.
type MapSource struct {
	types      map[string]*TypeFragment
	methods    map[string]Method
	assemblies map[string]AssemblyFunc
	fetches    map[string]int
	mu         sync.Mutex
}

// NewMapSource creates an empty source.
func NewMapSource() *MapSource {
	return &MapSource{
		types:      make(map[string]*TypeFragment),
		methods:    make(map[string]Method),
		assemblies: make(map[string]AssemblyFunc),
		fetches:    make(map[string]int),
	}
}

// AddType registers a type fragment.
func (s *MapSource) AddType(name string, f *TypeFragment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types[name] = f
}

// AddMethod registers a method fragment.
func (s *MapSource) AddMethod(name string, m Method) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods[name] = m
}

// AddAssembly registers an assembly fragment.
func (s *MapSource) AddAssembly(name string, f AssemblyFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assemblies[name] = f
}

// TypeNames returns the registered type names.
func (s *MapSource) TypeNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.types))
	for name := range s.types {
		out = append(out, name)
	}
	return out
}

// Fetches returns how often the named symbol was fetched.
func (s *MapSource) Fetches(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[name]
}

// TypeFragment implements Source.
func (s *MapSource) TypeFragment(name string) (*TypeFragment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.types[name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseLoad, "type fragment", name)
	}
	s.fetches[name]++
	return f, nil
}

// MethodFragment implements Source.
func (s *MapSource) MethodFragment(name string) (Method, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.methods[name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseLoad, "method fragment", name)
	}
	s.fetches[name]++
	return m, nil
}

// AssemblyFragment implements Source.
func (s *MapSource) AssemblyFragment(name string) (AssemblyFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.assemblies[name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseLoad, "assembly fragment", name)
	}
	s.fetches[name]++
	return f, nil
}

// AssemblyOf implements AssemblyIndex. It does not count as a fetch.
func (s *MapSource) AssemblyOf(typeName string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.types[typeName]
	if !ok {
		return "", false
	}
	return f.Assembly, true
}
