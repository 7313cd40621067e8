package classify

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"

	"github.com/wippyai/hostbridge/host"
)

// snapshotDepth bounds how far nested host objects are expanded when an
// expression reads them.
const snapshotDepth = 4

// KeyAccessor reads and writes the identity key stored on a host value.
// Keys are strings or numbers; any other value reads as absent.
type KeyAccessor struct {
	program *vm.Program
	// Source is the expression the accessor was built from. Empty for the
	// hidden internal slot.
	Source string
	// Path is the member chain below `this` when the accessor is assignable.
	Path []string
}

// InternalKey returns the accessor that keeps the key in a hidden slot.
func InternalKey() *KeyAccessor {
	return &KeyAccessor{}
}

// PathKey builds an assignable accessor for a dotted host path.
func PathKey(path string) *KeyAccessor {
	parts := strings.Split(path, ".")
	return &KeyAccessor{Source: "this." + path, Path: parts}
}

// CompileKey builds an accessor from an expression over `this`. Pure member
// chains such as `this.meta.id` are assignable; anything else is read-only.
func CompileKey(source string) (*KeyAccessor, error) {
	tree, err := parser.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parse key expression: %w", err)
	}
	if path, ok := memberPath(tree.Node); ok {
		return &KeyAccessor{Source: source, Path: path}, nil
	}

	prog, err := expr.Compile(source, expr.Env(exprEnv(nil, "")), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compile key expression: %w", err)
	}
	return &KeyAccessor{Source: source, program: prog}, nil
}

// memberPath recognizes `this.a.b` and `this["a"].b`.
func memberPath(node ast.Node) ([]string, bool) {
	switch n := node.(type) {
	case *ast.IdentifierNode:
		return nil, n.Value == "this"
	case *ast.MemberNode:
		prop, ok := n.Property.(*ast.StringNode)
		if !ok || n.Optional || n.Method {
			return nil, false
		}
		head, ok := memberPath(n.Node)
		if !ok {
			return nil, false
		}
		return append(head, prop.Value), true
	}
	return nil, false
}

// Internal reports whether the key lives in the hidden internal slot.
func (k *KeyAccessor) Internal() bool {
	return k.Source == ""
}

// Assignable reports whether Set can store a key.
func (k *KeyAccessor) Assignable() bool {
	return k.Internal() || len(k.Path) > 0
}

// Get reads the key from obj.
func (k *KeyAccessor) Get(obj *host.Object) (any, bool, error) {
	if obj == nil {
		return nil, false, nil
	}
	var raw any
	switch {
	case k.Internal():
		v, ok := obj.Internal(host.SlotKey)
		if !ok {
			return nil, false, nil
		}
		raw = v
	case len(k.Path) > 0:
		var cur host.Value = obj
		for _, name := range k.Path {
			o, ok := cur.(*host.Object)
			if !ok {
				return nil, false, nil
			}
			cur, _ = o.Get(name)
		}
		raw = cur
	default:
		out, err := expr.Run(k.program, exprEnv(obj, ""))
		if err != nil {
			return nil, false, fmt.Errorf("evaluate key expression %q: %w", k.Source, err)
		}
		raw = out
	}
	key, ok := NormalizeKey(raw)
	return key, ok, nil
}

// Set stores key on obj, creating intermediate objects along the path.
func (k *KeyAccessor) Set(obj *host.Object, key any) error {
	if k.Internal() {
		obj.SetInternal(host.SlotKey, key)
		return nil
	}
	if len(k.Path) == 0 {
		return fmt.Errorf("key expression %q is not assignable", k.Source)
	}
	cur := obj
	for _, name := range k.Path[:len(k.Path)-1] {
		next, _ := cur.Get(name)
		o, ok := next.(*host.Object)
		if !ok {
			o = host.NewObject(nil)
			cur.Set(name, o)
		}
		cur = o
	}
	cur.Set(k.Path[len(k.Path)-1], key)
	return nil
}

// NormalizeKey maps a raw host value to a table key. Numbers become
// float64; strings stay strings; everything else is absent.
func NormalizeKey(v any) (any, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	}
	return nil, false
}

// DynamicClassifier guesses the most specific native subtype of an
// incoming host value as an ordered list of candidate type names.
type DynamicClassifier struct {
	fn      func(v any) []string
	program *vm.Program
	Source  string
	Root    string
}

// FuncClassifier wraps a Go function.
func FuncClassifier(root string, fn func(v any) []string) *DynamicClassifier {
	return &DynamicClassifier{Root: root, fn: fn}
}

// CompileClassifier compiles an expression over {this, type, typeof}
// that yields a type name, a list of names, or nil.
func CompileClassifier(root, source string) (*DynamicClassifier, error) {
	prog, err := expr.Compile(source, expr.Env(exprEnv(nil, root)), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compile classifier: %w", err)
	}
	return &DynamicClassifier{Root: root, Source: source, program: prog}, nil
}

// Candidates returns candidate names, most specific first.
func (d *DynamicClassifier) Candidates(v host.Value) ([]string, error) {
	if d.fn != nil {
		return d.fn(v), nil
	}
	obj, _ := v.(*host.Object)
	env := exprEnv(obj, d.Root)
	env["typeof"] = host.TypeOf(v)
	out, err := expr.Run(d.program, env)
	if err != nil {
		return nil, fmt.Errorf("evaluate classifier for %s: %w", d.Root, err)
	}

	switch x := out.(type) {
	case nil:
		return nil, nil
	case string:
		if x == "" {
			return nil, nil
		}
		return []string{x}, nil
	case []string:
		return x, nil
	case []any:
		names := make([]string, 0, len(x))
		for _, e := range x {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("classifier for %s returned %T in candidate list", d.Root, e)
			}
			names = append(names, s)
		}
		return names, nil
	}
	return nil, fmt.Errorf("classifier for %s returned %T", d.Root, out)
}

func exprEnv(obj *host.Object, root string) map[string]any {
	this := map[string]any{}
	if obj != nil {
		this = host.Snapshot(obj, snapshotDepth)
	}
	return map[string]any{
		"this":   this,
		"type":   root,
		"typeof": "",
	}
}
