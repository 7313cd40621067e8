package program

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/typegraph"
)

type visitState uint8

const (
	unvisited visitState = iota
	visiting
	declared
)

type builder struct {
	doc   *Document
	prog  *typegraph.Program
	docs  map[string]*TypeDoc
	state map[string]visitState
}

// Build turns a decoded document into a program. Types are registered
// supertypes first regardless of their order in the document; cyclic
// inheritance is rejected.
func Build(doc *Document) (*typegraph.Program, error) {
	b := &builder{
		doc:   doc,
		prog:  typegraph.New(),
		docs:  make(map[string]*TypeDoc, len(doc.Types)),
		state: make(map[string]visitState, len(doc.Types)),
	}

	for i := range doc.Types {
		td := &doc.Types[i]
		if _, exists := b.docs[td.Name]; exists {
			return nil, configError(td.Name, "", "type declared twice")
		}
		b.docs[td.Name] = td
	}

	for i := range doc.Types {
		if err := b.declare(doc.Types[i].Name); err != nil {
			return nil, err
		}
	}

	for i := range doc.Types {
		if err := b.members(&doc.Types[i]); err != nil {
			return nil, err
		}
	}

	// Instantiations created while declaring supertypes were copied
	// before their definition had members.
	for _, t := range b.prog.Types() {
		if t.IsInstantiation() && len(t.Members) == 0 {
			def := b.prog.Type(t.GenericDef)
			for _, m := range def.Members {
				cp := *m
				cp.Owner = t.ID
				t.Members = append(t.Members, &cp)
			}
		}
	}

	return b.prog, nil
}

func (b *builder) declare(name string) error {
	switch b.state[name] {
	case declared:
		return nil
	case visiting:
		return configError(name, "", "cyclic inheritance")
	}
	td, ok := b.docs[name]
	if !ok {
		return nil
	}
	b.state[name] = visiting

	deps := append([]string{td.Base}, td.Interfaces...)
	for _, dep := range deps {
		if dep == "" {
			continue
		}
		for _, core := range coreNames(dep) {
			if err := b.declare(core); err != nil {
				return err
			}
		}
	}

	style := typegraph.StyleClass
	if td.Style != "" {
		s, err := typegraph.ParseStyle(td.Style)
		if err != nil {
			return configError(name, "", err.Error())
		}
		style = s
	}
	state, err := typegraph.ParseState(td.State)
	if err != nil {
		return configError(name, "", err.Error())
	}

	t := &typegraph.Type{
		Name:         td.Name,
		Assembly:     td.Assembly,
		Style:        style,
		GenericArity: td.GenericArity,
		Sealed:       td.Sealed,
		Abstract:     td.Abstract,
		Config: typegraph.TypeConfig{
			State:               state,
			DefaultKey:          td.DefaultKey,
			Classifier:          td.Classifier,
			UndefinedIsDistinct: td.UndefinedIsDistinct,
			IsRuntimePrimitive:  td.RuntimePrimitive,
		},
	}
	if t.Assembly == "" {
		t.Assembly = b.doc.Assembly
	}
	if td.Base != "" {
		if t.Base, err = b.resolve(td.Base); err != nil {
			return configError(name, "", err.Error())
		}
	}
	for _, iface := range td.Interfaces {
		id, err := b.resolve(iface)
		if err != nil {
			return configError(name, "", err.Error())
		}
		t.Interfaces = append(t.Interfaces, id)
	}

	if _, err := b.prog.Add(t); err != nil {
		return configError(name, "", err.Error())
	}
	b.state[name] = declared
	return nil
}

func (b *builder) members(td *TypeDoc) error {
	t := b.prog.MustLookup(td.Name)
	for _, md := range td.Members {
		m, err := b.member(t, md)
		if err != nil {
			return err
		}
		t.Members = append(t.Members, m)
	}
	return nil
}

func (b *builder) member(t *typegraph.Type, md MemberDoc) (*typegraph.Member, error) {
	kind, err := typegraph.ParseMemberKind(md.Kind)
	if err != nil {
		return nil, configError(t.Name, md.Name, err.Error())
	}

	m := &typegraph.Member{
		Name:     md.Name,
		Kind:     kind,
		Owner:    t.ID,
		Static:   md.Static,
		Public:   md.Public,
		Virtual:  md.Virtual || md.Abstract || md.Override,
		Abstract: md.Abstract,
		Override: md.Override,
		BodySize: md.BodySize,
		Config: typegraph.MemberConfig{
			Import: md.Import,
			Export: md.Export,
			Key:    md.Key,
		},
	}

	switch md.Binding {
	case "":
	case "instance":
		m.Config.Binding = typegraph.BindingInstance
	case "static":
		m.Config.Binding = typegraph.BindingStatic
	default:
		return nil, configError(t.Name, md.Name, fmt.Sprintf("unknown binding %q", md.Binding))
	}

	switch md.Inline {
	case "":
	case "always":
		m.Config.Inline = typegraph.InlineAlways
	case "never":
		m.Config.Inline = typegraph.InlineNever
	default:
		return nil, configError(t.Name, md.Name, fmt.Sprintf("unknown inline mode %q", md.Inline))
	}

	if md.Type != "" {
		if m.Result, err = b.resolve(md.Type); err != nil {
			return nil, configError(t.Name, md.Name, err.Error())
		}
	}
	for _, pd := range md.Params {
		id, err := b.resolve(pd.Type)
		if err != nil {
			return nil, configError(t.Name, md.Name, err.Error())
		}
		m.Params = append(m.Params, typegraph.Param{Name: pd.Name, Type: id})
	}
	for _, ref := range md.Implements {
		dot := strings.LastIndexByte(ref, '.')
		if dot <= 0 {
			return nil, configError(t.Name, md.Name, fmt.Sprintf("implements %q is not Interface.Member", ref))
		}
		id, err := b.resolve(ref[:dot])
		if err != nil {
			return nil, configError(t.Name, md.Name, err.Error())
		}
		m.Implements = append(m.Implements, typegraph.SlotRef{Interface: id, Name: ref[dot+1:]})
	}
	return m, nil
}

// resolve maps a type reference ("Point", "Point[]", "Point?", "*Point",
// "List<number>") to a TypeID, creating composite types on demand.
func (b *builder) resolve(ref string) (typegraph.TypeID, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return typegraph.NoType, fmt.Errorf("empty type reference")
	case strings.HasPrefix(ref, "*"):
		elem, err := b.resolve(ref[1:])
		if err != nil {
			return typegraph.NoType, err
		}
		return b.prog.PointerOf(elem), nil
	case strings.HasSuffix(ref, "[]"):
		elem, err := b.resolve(ref[:len(ref)-2])
		if err != nil {
			return typegraph.NoType, err
		}
		return b.prog.ArrayOf(elem), nil
	case strings.HasSuffix(ref, "?"):
		elem, err := b.resolve(ref[:len(ref)-1])
		if err != nil {
			return typegraph.NoType, err
		}
		return b.prog.NullableOf(elem), nil
	}

	if open := strings.IndexByte(ref, '<'); open > 0 && strings.HasSuffix(ref, ">") {
		args := splitArgs(ref[open+1 : len(ref)-1])
		defName := ref[:open] + "`" + strconv.Itoa(len(args))
		def, ok := b.prog.Lookup(defName)
		if !ok {
			return typegraph.NoType, fmt.Errorf("unknown generic type %q", defName)
		}
		ids := make([]typegraph.TypeID, len(args))
		for i, a := range args {
			id, err := b.resolve(a)
			if err != nil {
				return typegraph.NoType, err
			}
			ids[i] = id
		}
		return b.prog.Instantiate(def.ID, ids...)
	}

	t, ok := b.prog.Lookup(ref)
	if !ok {
		return typegraph.NoType, fmt.Errorf("unknown type %q", ref)
	}
	return t.ID, nil
}

// coreNames returns the declared type names a reference depends on.
func coreNames(ref string) []string {
	ref = strings.TrimSpace(ref)
	ref = strings.TrimPrefix(ref, "*")
	ref = strings.TrimSuffix(strings.TrimSuffix(ref, "[]"), "?")
	open := strings.IndexByte(ref, '<')
	if open <= 0 || !strings.HasSuffix(ref, ">") {
		return []string{ref}
	}
	args := splitArgs(ref[open+1 : len(ref)-1])
	out := []string{ref[:open] + "`" + strconv.Itoa(len(args))}
	for _, a := range args {
		out = append(out, coreNames(a)...)
	}
	return out
}

func splitArgs(s string) []string {
	var out []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(out, strings.TrimSpace(s[start:]))
}

func configError(typeName, member, detail string) *errors.Error {
	return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
		Type(typeName).
		Member(member).
		Detail("%s", detail).
		Build()
}
