package dispatch

import (
	"context"
	"reflect"

	"github.com/wippyai/hostbridge/runtime"
	"github.com/wippyai/hostbridge/typegraph"
)

// Enumerator walks a snapshot of a sequence. Elem names the element type
// it was created for.
type Enumerator struct {
	Elem  string
	items []any
	pos   int
}

// NewEnumerator creates an enumerator positioned before the first item.
func NewEnumerator(elem string, items []any) *Enumerator {
	return &Enumerator{Elem: elem, items: items, pos: -1}
}

// MoveNext advances to the next item.
func (e *Enumerator) MoveNext() bool {
	if e.pos+1 >= len(e.items) {
		e.pos = len(e.items)
		return false
	}
	e.pos++
	return true
}

// Current returns the item at the current position.
func (e *Enumerator) Current() any {
	if e.pos < 0 || e.pos >= len(e.items) {
		return nil
	}
	return e.items[e.pos]
}

// Reset moves back before the first item.
func (e *Enumerator) Reset() {
	e.pos = -1
}

// sliceOf returns the items and runtime element type name of a native
// slice.
func sliceOf(v any) ([]any, string, bool) {
	if items, ok := v.([]any); ok {
		return items, typegraph.BuiltinObject, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, "", false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, elementName(rv.Type().Elem()), true
}

func elementName(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Float32, reflect.Float64,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return typegraph.BuiltinNumber
	case reflect.String:
		return typegraph.BuiltinString
	case reflect.Bool:
		return typegraph.BuiltinBool
	}
	return t.String()
}

// AsyncResult is the pending outcome of BeginInvoke.
type AsyncResult struct {
	done chan struct{}
	val  any
	err  error
}

// BeginInvoke starts cb on its own goroutine.
func BeginInvoke(cb *runtime.Callable, args ...any) *AsyncResult {
	r := &AsyncResult{done: make(chan struct{})}
	go func() {
		defer close(r.done)
		r.val, r.err = cb.Invoke(args...)
	}()
	return r
}

// Completed reports whether the invocation has finished.
func (r *AsyncResult) Completed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the invocation finishes.
func (r *AsyncResult) Wait() (any, error) {
	return r.WaitContext(context.Background())
}

// WaitContext is Wait bounded by ctx.
func (r *AsyncResult) WaitContext(ctx context.Context) (any, error) {
	select {
	case <-r.done:
		return r.val, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
