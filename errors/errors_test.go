package errors

import (
	"errors"
	"strings"
	"testing"

	"go.uber.org/multierr"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseClassify,
				Kind:   KindNotInlinable,
				Type:   "Widget",
				Member: "Draw",
				Path:   []string{"members", "3"},
				Detail: "merged types cannot dispatch",
			},
			contains: []string{"[classify]", "not_inlinable", "Widget::Draw", "members.3", "merged types cannot dispatch"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseImport,
				Kind:  KindTypeMismatch,
			},
			contains: []string{"[import]", "type_mismatch"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseLoad,
				Kind:   KindNotFound,
				Detail: "fetch fragment",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[load]", "not_found", "fetch fragment", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseExport,
		Kind:  KindAlreadyPaired,
		Cause: cause,
	}

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseExport,
		Kind:  KindAlreadyPaired,
		Type:  "Point",
	}

	if !errors.Is(err, &Error{Phase: PhaseExport, Kind: KindAlreadyPaired}) {
		t.Error("errors.Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseImport, Kind: KindAlreadyPaired}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseExport, Kind: KindTypeMismatch}) {
		t.Error("Is should not match different kind")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseConstruct, KindAmbiguous).
		Type("Point").
		Member(".ctor").
		Path("ctor", "1").
		Value(2).
		Cause(cause).
		Detail("%d candidates at rank %d", 2, 2).
		Build()

	if err.Phase != PhaseConstruct {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseConstruct)
	}
	if err.Kind != KindAmbiguous {
		t.Errorf("Kind = %v, want %v", err.Kind, KindAmbiguous)
	}
	if err.Type != "Point" || err.Member != ".ctor" {
		t.Errorf("Type/Member = %q/%q, want Point/.ctor", err.Type, err.Member)
	}
	if len(err.Path) != 2 {
		t.Errorf("Path = %v, want 2 elements", err.Path)
	}
	if err.Value != 2 {
		t.Errorf("Value = %v, want 2", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "2 candidates at rank 2" {
		t.Errorf("Detail = %q", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("StateMismatch", func(t *testing.T) {
		err := StateMismatch("Derived", "Merged", "Shared")
		if err.Kind != KindStateMismatch || err.Type != "Derived" {
			t.Errorf("got %v", err)
		}
	})

	t.Run("InstanceFields", func(t *testing.T) {
		err := InstanceFields("Widget", "HostOnly", 2)
		if err.Kind != KindInstanceFields {
			t.Errorf("Kind = %v, want %v", err.Kind, KindInstanceFields)
		}
		if err.Value != 2 {
			t.Errorf("Value = %v, want 2", err.Value)
		}
	})

	t.Run("DuplicateKey", func(t *testing.T) {
		err := DuplicateKey("Point", "Other", "Id")
		if err.Kind != KindDuplicateKey || err.Member != "Other" {
			t.Errorf("got %v", err)
		}
	})

	t.Run("NoConstructor", func(t *testing.T) {
		err := NoConstructor("Point")
		if err.Phase != PhaseConstruct || err.Kind != KindNoConstructor {
			t.Errorf("got %v", err)
		}
	})

	t.Run("TypeMismatch", func(t *testing.T) {
		err := TypeMismatch(PhaseImport, []string{"[2]"}, "number", "abc")
		if err.Kind != KindTypeMismatch {
			t.Errorf("Kind = %v, want %v", err.Kind, KindTypeMismatch)
		}
		if !strings.Contains(err.Error(), "string") {
			t.Errorf("message should describe the value type: %s", err.Error())
		}
	})

	t.Run("AlreadyPaired", func(t *testing.T) {
		err := AlreadyPaired(PhaseExport, "Blob", "Shared")
		if err.Kind != KindAlreadyPaired {
			t.Errorf("Kind = %v, want %v", err.Kind, KindAlreadyPaired)
		}
	})
}

func TestDiagnostics(t *testing.T) {
	d := NewDiagnostics()
	if d.Err() != nil {
		t.Fatal("empty diagnostics should not produce an error")
	}

	d.Report(StateMismatch("Derived", "Merged", "Shared"))
	d.Report(NoConstructor("Point"))
	d.Report(New(PhaseClassify, KindNotInlinable).Type("Derived").Member("Run").Build())
	d.Report(nil)

	if d.Len() != 3 {
		t.Fatalf("Len = %d, want 3", d.Len())
	}
	if !d.Invalid("Derived") || !d.Invalid("Point") {
		t.Error("reported types should be marked invalid")
	}
	if d.Invalid("Widget") {
		t.Error("unreported type should stay valid")
	}

	err := d.Err()
	var setupErr *SetupError
	if !errors.As(err, &setupErr) {
		t.Fatalf("Err() = %T, want *SetupError", err)
	}
	if !errors.Is(err, &Error{Phase: PhaseSetup, Kind: KindDefinitionsRejected}) {
		t.Error("SetupError should match setup/definitions_rejected")
	}

	msg := err.Error()
	if !strings.Contains(msg, "3 definition error(s)") {
		t.Errorf("message should contain count: %s", msg)
	}
	if strings.Count(msg, "Derived:") != 1 {
		t.Errorf("errors should be grouped by type: %s", msg)
	}
	if !strings.Contains(msg, "(Run)") {
		t.Errorf("message should name the member: %s", msg)
	}

	if got := len(multierr.Errors(setupErr.Combined())); got != 3 {
		t.Errorf("Combined has %d errors, want 3", got)
	}
}

func TestInvariant(t *testing.T) {
	defer func() {
		r := recover()
		ie, ok := r.(*InvariantError)
		if !ok {
			t.Fatalf("recovered %T, want *InvariantError", r)
		}
		if !strings.Contains(ie.Error(), "phase") {
			t.Errorf("message = %q", ie.Error())
		}
	}()
	Invariant("phase %s requested before %s", "Shape", "Id")
}
