package errors

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/multierr"
)

// Diagnostics collects per-definition errors for one setup pass.
// Recording never stops the pass; Err turns the collection into a
// SetupError once all definitions have been visited.
type Diagnostics struct {
	errs    []*Error
	invalid map[string]bool
	mu      sync.Mutex
}

// NewDiagnostics creates an empty collector
func NewDiagnostics() *Diagnostics {
	return &Diagnostics{invalid: make(map[string]bool)}
}

// Report records err and marks its type invalid.
func (d *Diagnostics) Report(err *Error) {
	if err == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs = append(d.errs, err)
	if err.Type != "" {
		d.invalid[err.Type] = true
	}
}

// Invalid reports whether any error was recorded against typeName.
func (d *Diagnostics) Invalid(typeName string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.invalid[typeName]
}

// Len returns the number of recorded errors.
func (d *Diagnostics) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.errs)
}

// Errors returns a copy of the recorded errors in report order.
func (d *Diagnostics) Errors() []*Error {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Error, len(d.errs))
	copy(out, d.errs)
	return out
}

// Err returns nil when nothing was reported, otherwise a *SetupError.
func (d *Diagnostics) Err() error {
	errs := d.Errors()
	if len(errs) == 0 {
		return nil
	}
	return &SetupError{Errors: errs}
}

// SetupError is returned when the interop setup pass refuses to proceed
// to code generation because one or more definitions were rejected.
type SetupError struct {
	Errors []*Error
}

// Combined returns the individual errors as a single multierr value.
func (e *SetupError) Combined() error {
	var err error
	for _, d := range e.Errors {
		err = multierr.Append(err, d)
	}
	return err
}

func (e *SetupError) Error() string {
	if len(e.Errors) == 0 {
		return "[setup] definitions_rejected: no errors recorded"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%d definition error(s):\n", len(e.Errors)))

	// Group by type for cleaner output
	byType := make(map[string][]*Error)
	var order []string
	for _, d := range e.Errors {
		owner := d.Type
		if owner == "" {
			owner = "<program>"
		}
		if _, exists := byType[owner]; !exists {
			order = append(order, owner)
		}
		byType[owner] = append(byType[owner], d)
	}

	for _, owner := range order {
		b.WriteString("\n  ")
		b.WriteString(owner)
		b.WriteString(":\n")
		for _, d := range byType[owner] {
			b.WriteString("    - ")
			b.WriteString(string(d.Phase))
			b.WriteByte('/')
			b.WriteString(string(d.Kind))
			if d.Member != "" {
				b.WriteString(" (")
				b.WriteString(d.Member)
				b.WriteByte(')')
			}
			if d.Detail != "" {
				b.WriteString(": ")
				b.WriteString(d.Detail)
			}
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *SetupError) Is(target error) bool {
	if _, ok := target.(*SetupError); ok {
		return true
	}
	if t, ok := target.(*Error); ok {
		return t.Phase == PhaseSetup && t.Kind == KindDefinitionsRejected
	}
	return false
}

// InvariantError signals a defect in the classifier or loader ordering
// logic itself. It is raised with panic and never returned.
type InvariantError struct {
	Detail string
}

func (e *InvariantError) Error() string {
	return "internal invariant violated: " + e.Detail
}

// Invariant panics with an *InvariantError.
func Invariant(format string, args ...any) {
	panic(&InvariantError{Detail: fmt.Sprintf(format, args...)})
}
