// Package manifest records the minimal set of symbols a run needed so a
// later run can load exactly those and nothing else.
package manifest

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Version is the manifest format version written by Encode.
const Version = 1

// Phase levels recorded for types. They mirror the loader's phases.
const (
	PhaseID          uint8 = 1
	PhaseShape       uint8 = 2
	PhaseConstructed uint8 = 3
)

// TypeEntry is one required type and the highest phase requested for it.
type TypeEntry struct {
	Name  string `cbor:"1,keyasint"`
	Phase uint8  `cbor:"2,keyasint"`
}

// Manifest is the minimal-load manifest.
type Manifest struct {
	types      map[string]uint8
	methods    map[string]struct{}
	assemblies map[string]struct{}
	mu         sync.Mutex
}

type wire struct {
	Types      []TypeEntry `cbor:"2,keyasint"`
	Methods    []string    `cbor:"3,keyasint"`
	Assemblies []string    `cbor:"4,keyasint"`
	Version    int         `cbor:"1,keyasint"`
}

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("manifest: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// New creates an empty manifest.
func New() *Manifest {
	return &Manifest{
		types:      make(map[string]uint8),
		methods:    make(map[string]struct{}),
		assemblies: make(map[string]struct{}),
	}
}

// RecordType notes that name was requested at phase. Lower phases than
// one already recorded are ignored.
func (m *Manifest) RecordType(name string, phase uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if phase > m.types[name] {
		m.types[name] = phase
	}
}

// RecordMethod notes that a method was called.
func (m *Manifest) RecordMethod(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.methods[name] = struct{}{}
}

// RecordAssembly notes that an assembly was loaded.
func (m *Manifest) RecordAssembly(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assemblies[name] = struct{}{}
}

// Types returns the recorded types sorted by name.
func (m *Manifest) Types() []TypeEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TypeEntry, 0, len(m.types))
	for name, phase := range m.types {
		out = append(out, TypeEntry{Name: name, Phase: phase})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Methods returns the recorded methods sorted by name.
func (m *Manifest) Methods() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedKeys(m.methods)
}

// Assemblies returns the recorded assemblies sorted by name.
func (m *Manifest) Assemblies() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedKeys(m.assemblies)
}

// Len returns the total number of recorded symbols.
func (m *Manifest) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.types) + len(m.methods) + len(m.assemblies)
}

// Encode serializes the manifest in canonical CBOR.
func (m *Manifest) Encode() ([]byte, error) {
	w := wire{
		Version:    Version,
		Types:      m.Types(),
		Methods:    m.Methods(),
		Assemblies: m.Assemblies(),
	}
	return encMode.Marshal(&w)
}

// Decode parses a manifest produced by Encode.
func Decode(data []byte) (*Manifest, error) {
	var w wire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("manifest: unmarshal: %w", err)
	}
	if w.Version != Version {
		return nil, fmt.Errorf("manifest: unsupported version %d", w.Version)
	}

	m := New()
	for _, t := range w.Types {
		if t.Phase < PhaseID || t.Phase > PhaseConstructed {
			return nil, fmt.Errorf("manifest: type %q has invalid phase %d", t.Name, t.Phase)
		}
		m.RecordType(t.Name, t.Phase)
	}
	for _, name := range w.Methods {
		m.RecordMethod(name)
	}
	for _, name := range w.Assemblies {
		m.RecordAssembly(name)
	}
	return m, nil
}

// WriteFile encodes the manifest to path.
func (m *Manifest) WriteFile(path string) error {
	data, err := m.Encode()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadFile decodes the manifest stored at path.
func ReadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	return Decode(data)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
