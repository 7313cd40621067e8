package dispatch

import "fmt"

// Kind selects how a slot reaches its implementation.
type Kind uint8

const (
	// KindSelfPatching resolves the implementation on first call and
	// calls it directly afterwards.
	KindSelfPatching Kind = iota
	// KindIntroducing forwards an interface slot to the virtual slot that
	// first introduced the implementing method.
	KindIntroducing
	// KindCrossType forwards an interface slot to a non-virtual method of
	// the implementing type.
	KindCrossType
	// KindBatch binds the virtual slots a type introduces in one step.
	KindBatch
	// KindDelegateInvoke calls a delegate directly.
	KindDelegateInvoke
	// KindAsyncBegin starts an asynchronous delegate invocation.
	KindAsyncBegin
	// KindAsyncEnd waits for an asynchronous delegate invocation.
	KindAsyncEnd
	// KindArrayEnumerator enumerates a built-in array by its runtime
	// element type.
	KindArrayEnumerator
	// KindSequenceEnumerator enumerates a sequence by its statically
	// requested element type.
	KindSequenceEnumerator
)

var kindNames = [...]string{
	KindSelfPatching:       "self-patching",
	KindIntroducing:        "introducing",
	KindCrossType:          "cross-type",
	KindBatch:              "batch",
	KindDelegateInvoke:     "delegate-invoke",
	KindAsyncBegin:         "async-begin",
	KindAsyncEnd:           "async-end",
	KindArrayEnumerator:    "array-enumerator",
	KindSequenceEnumerator: "sequence-enumerator",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Binding is the plan for one slot.
type Binding struct {
	// Slot is the slot being bound.
	Slot string
	// Target is the method fragment (self-patching, batch parts) or the
	// slot forwarded to (introducing, cross-type).
	Target string
	// Owner names the implementing type of a cross-type binding.
	Owner string
	// Elem names the element type of an enumerator.
	Elem string
	// Member is the source member name, for diagnostics.
	Member string
	// Parts are the bindings combined by a batch.
	Parts []Binding
	Kind  Kind
}

func (b Binding) String() string {
	switch b.Kind {
	case KindBatch:
		return fmt.Sprintf("batch(%d)", len(b.Parts))
	case KindCrossType:
		return fmt.Sprintf("%s -> %s::%s", b.Slot, b.Owner, b.Target)
	case KindArrayEnumerator, KindSequenceEnumerator:
		return fmt.Sprintf("%s<%s>", b.Kind, b.Elem)
	}
	if b.Target == "" {
		return fmt.Sprintf("%s [%s]", b.Slot, b.Kind)
	}
	return fmt.Sprintf("%s -> %s [%s]", b.Slot, b.Target, b.Kind)
}

// Slots returns every slot b binds, expanding batches.
func (b Binding) Slots() []string {
	if b.Kind != KindBatch {
		return []string{b.Slot}
	}
	out := make([]string, 0, len(b.Parts))
	for _, p := range b.Parts {
		out = append(out, p.Slot)
	}
	return out
}
