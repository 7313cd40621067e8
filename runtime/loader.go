package runtime

import (
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/manifest"
)

// Options configures a Loader.
type Options struct {
	// Manifest receives requested symbols in collection mode. A fresh
	// manifest is created when nil.
	Manifest *manifest.Manifest
	// CollectOnly records requested symbols without loading them.
	CollectOnly bool
}

// DefaultOptions returns options for a loading run.
func DefaultOptions() Options {
	return Options{}
}

// Loader is the arena of type records and the registry of method and
// assembly references for one run.
type Loader struct {
	src        Source
	manifest   *manifest.Manifest
	byName     map[string]*TypeRecord
	methods    map[string]*MethodRef
	assemblies map[string]*AssemblyRef
	records    []*TypeRecord
	obs        observers
	objectIDs  atomic.Uint64
	mu         sync.Mutex
	collect    bool
}

// NewLoader creates a loader drawing fragments from src.
func NewLoader(src Source, opts Options) *Loader {
	m := opts.Manifest
	if m == nil {
		m = manifest.New()
	}
	return &Loader{
		src:        src,
		manifest:   m,
		collect:    opts.CollectOnly,
		byName:     make(map[string]*TypeRecord),
		methods:    make(map[string]*MethodRef),
		assemblies: make(map[string]*AssemblyRef),
	}
}

// Subscribe registers an observer of phase transitions and returns a
// function that removes it.
func (l *Loader) Subscribe(o Observer) func() {
	return l.obs.add(o)
}

// Manifest returns the manifest collection mode records into.
func (l *Loader) Manifest() *manifest.Manifest {
	return l.manifest
}

// CollectOnly reports whether the loader only records requests.
func (l *Loader) CollectOnly() bool {
	return l.collect
}

// Lookup returns the record for name if it has reached Id.
func (l *Loader) Lookup(name string) (*TypeRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.byName[name]
	return r, ok
}

// Record returns the record with the given handle, or nil.
func (l *Loader) Record(h Handle) *TypeRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h == 0 || int(h) > len(l.records) {
		return nil
	}
	return l.records[h-1]
}

// Records returns every record in allocation order.
func (l *Loader) Records() []*TypeRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*TypeRecord, len(l.records))
	copy(out, l.records)
	return out
}

func (l *Loader) nextObjectID() uint64 {
	return l.objectIDs.Add(1)
}

// RequireID brings name to at least Id: a named placeholder record. The
// first request for a type also loads the assembly that declares it; an
// assembly failure is returned with the record, which stays at Id.
func (l *Loader) RequireID(name string) (*TypeRecord, error) {
	if l.collect {
		l.manifest.RecordType(name, manifest.PhaseID)
	}
	if r, ok := l.Lookup(name); ok {
		return r, nil
	}

	var frag *TypeFragment
	if !l.collect {
		f, err := l.src.TypeFragment(name)
		if err != nil {
			return nil, errors.New(errors.PhaseLoad, errors.KindNotFound).
				Type(name).
				Cause(err).
				Detail("fetch type fragment").
				Build()
		}
		frag = f
	}

	l.mu.Lock()
	if r, ok := l.byName[name]; ok {
		l.mu.Unlock()
		return r, nil
	}
	r := &TypeRecord{Name: name, loader: l, frag: frag, Handle: Handle(len(l.records) + 1)}
	l.records = append(l.records, r)
	l.byName[name] = r
	l.mu.Unlock()

	r.advance(PhaseID)

	if asm := l.assemblyOf(name, frag); asm != "" {
		if err := l.Assembly(asm).Load(); err != nil {
			return r, err
		}
	}
	return r, nil
}

// assemblyOf names the compilation unit a newly bound type belongs to.
// Collection mode never fetches, so it asks the source's index instead.
func (l *Loader) assemblyOf(name string, frag *TypeFragment) string {
	if frag != nil {
		return frag.Assembly
	}
	if idx, ok := l.src.(AssemblyIndex); ok {
		asm, _ := idx.AssemblyOf(name)
		return asm
	}
	return ""
}

// RequireShape brings name to at least Shape.
func (l *Loader) RequireShape(name string) (*TypeRecord, error) {
	r, err := l.RequireID(name)
	if err != nil {
		return nil, err
	}
	if l.collect {
		l.manifest.RecordType(name, manifest.PhaseShape)
		return r, nil
	}
	if err := l.shape(r); err != nil {
		return r, err
	}
	return r, nil
}

func (l *Loader) shape(r *TypeRecord) error {
	if r.Phase() >= PhaseShape {
		return nil
	}
	if !r.shaping.CompareAndSwap(false, true) {
		errors.Invariant("record %s: shape requested while its own shape is under construction", r.Name)
	}
	defer r.shaping.Store(false)

	f := r.frag
	r.Assembly = f.Assembly

	// Base to Shape, never Constructed: static initialization must not
	// run in the middle of shape construction.
	if f.Base != "" {
		base, err := l.RequireShape(f.Base)
		if err != nil {
			return l.shapeError(r, err, "base "+f.Base)
		}
		r.Base = base
	}

	shapeFn := f.Shape
	if f.GenericDef != "" {
		def, err := l.RequireShape(f.GenericDef)
		if err != nil {
			return l.shapeError(r, err, "generic definition "+f.GenericDef)
		}
		r.GenericDef = def
		if shapeFn == nil {
			shapeFn = def.frag.Shape
		}
		r.TypeArgs = r.TypeArgs[:0]
		for _, name := range f.TypeArgs {
			arg, err := l.RequireID(name)
			if err != nil {
				return l.shapeError(r, err, "type argument "+name)
			}
			r.TypeArgs = append(r.TypeArgs, arg)
		}
	}

	r.Interfaces = r.Interfaces[:0]
	for _, name := range f.Interfaces {
		iface, err := l.RequireID(name)
		if err != nil {
			return l.shapeError(r, err, "interface "+name)
		}
		r.Interfaces = append(r.Interfaces, iface)
	}

	if shapeFn != nil {
		if err := shapeFn(l, r); err != nil {
			return l.shapeError(r, err, "shape")
		}
	}
	if r.Root == nil {
		r.Root = r
	}

	r.advance(PhaseShape)
	return nil
}

func (l *Loader) shapeError(r *TypeRecord, err error, what string) error {
	Logger().Warn("shape construction failed",
		zap.String("type", r.Name),
		zap.String("step", what),
		zap.Error(err))
	return errors.New(errors.PhaseLoad, errors.KindInitialization).
		Type(r.Name).
		Cause(err).
		Detail("%s", what).
		Build()
}

// RequireConstructed brings name to Constructed, running its static
// initializer exactly once. A request made while that initializer is
// running returns the record at Shape without running it again.
func (l *Loader) RequireConstructed(name string) (*TypeRecord, error) {
	r, err := l.RequireShape(name)
	if err != nil {
		return nil, err
	}
	if l.collect {
		l.manifest.RecordType(name, manifest.PhaseConstructed)
		return r, nil
	}
	if r.Phase() == PhaseConstructed {
		return r, nil
	}

	if r.Base != nil {
		if _, err := l.RequireConstructed(r.Base.Name); err != nil {
			return r, err
		}
	}
	for _, arg := range r.TypeArgs {
		if _, err := l.RequireConstructed(arg.Name); err != nil {
			return r, err
		}
	}

	r.init.Run(func() error {
		initFn := r.frag.Init
		if initFn == nil && r.GenericDef != nil {
			initFn = r.GenericDef.frag.Init
		}
		if initFn != nil {
			if err := initFn(l, r); err != nil {
				Logger().Warn("static initialization failed", zap.String("type", r.Name), zap.Error(err))
				r.initErr = errors.New(errors.PhaseLoad, errors.KindInitialization).
					Type(r.Name).
					Cause(err).
					Detail("static initializer").
					Build()
				return r.initErr
			}
		}
		r.advance(PhaseConstructed)
		return nil
	})
	if r.init.Done() && r.initErr != nil {
		return r, r.initErr
	}
	return r, nil
}

// Require brings name to the given phase.
func (l *Loader) Require(name string, phase Phase) (*TypeRecord, error) {
	switch phase {
	case PhaseID:
		return l.RequireID(name)
	case PhaseShape:
		return l.RequireShape(name)
	case PhaseConstructed:
		return l.RequireConstructed(name)
	}
	return nil, errors.InvalidInput(errors.PhaseLoad, "cannot require phase "+phase.String())
}

// Preload loads every symbol recorded in m. All failures are returned
// together.
func (l *Loader) Preload(m *manifest.Manifest) error {
	var errs error
	for _, t := range m.Types() {
		if _, err := l.Require(t.Name, Phase(t.Phase)); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	for _, name := range m.Assemblies() {
		if err := l.Assembly(name).Load(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	for _, name := range m.Methods() {
		if _, err := l.Method(name).Resolve(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	Logger().Debug("manifest preloaded",
		zap.Int("types", len(m.Types())),
		zap.Int("errors", len(multierr.Errors(errs))))
	return errs
}
