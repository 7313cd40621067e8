package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/hostbridge/construct"
	"github.com/wippyai/hostbridge/session"
	"github.com/wippyai/hostbridge/typegraph"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

var stateColors = map[typegraph.InstanceState]lipgloss.Color{
	typegraph.StateNativeOnly: "#AAAAAA",
	typegraph.StateShared:     "#FFD700",
	typegraph.StateHostOnly:   "#87CEEB",
	typegraph.StateMerged:     "#FF9F43",
}

type report struct {
	prog   *typegraph.Program
	styled bool
}

func newReport(prog *typegraph.Program, styled bool) *report {
	return &report{prog: prog, styled: styled}
}

func (r *report) style(s lipgloss.Style, text string) string {
	if !r.styled {
		return text
	}
	return s.Render(text)
}

func (r *report) render(file string, plan *session.Plan) string {
	var b strings.Builder
	b.WriteString(r.style(titleStyle, "Interop Plan"))
	b.WriteString(" ")
	b.WriteString(file)
	b.WriteString("\n")
	for _, tp := range plan.Types {
		b.WriteString("\n")
		b.WriteString(r.summary(tp))
		b.WriteString("\n")
		for _, l := range r.details(tp) {
			b.WriteString("    ")
			b.WriteString(l)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (r *report) state(s typegraph.InstanceState) string {
	return r.style(lipgloss.NewStyle().Foreground(stateColors[s]), s.String())
}

// summary is the one-line form used in lists.
func (r *report) summary(tp *session.TypePlan) string {
	t := tp.Type
	return fmt.Sprintf("%s %s %s", r.style(nameStyle, t.Name), r.style(labelStyle, t.Style.String()), r.state(tp.Rep.State))
}

func (r *report) details(tp *session.TypePlan) []string {
	rep := tp.Rep
	var lines []string
	field := func(label, value string) {
		lines = append(lines, r.style(labelStyle, label+":")+" "+value)
	}

	if rep.StepsToRootType > 0 {
		field("root", fmt.Sprintf("%s (%d steps)", r.prog.Type(rep.Root).Name, rep.StepsToRootType))
	}
	if rep.Inherited {
		field("inherited", "yes")
	}
	field("exports", fmt.Sprint(rep.ExportsBoundToInstance))
	if rep.InstanceFields > 0 {
		field("fields", fmt.Sprint(rep.InstanceFields))
	}
	if rep.ImportedMembers > 0 {
		field("imports", fmt.Sprint(rep.ImportedMembers))
	}
	if rep.KeyAccessor != nil {
		key := rep.KeyAccessor.Source
		if key == "" {
			key = "<internal>"
		}
		field("key", key)
	}
	if rep.DynamicClassifier != nil {
		field("classifier", "dynamic")
	}
	if rep.UndefinedIsDistinctFromNull {
		field("undefined", "distinct from null")
	}
	if tp.Pairing != nil {
		field("ctor", r.pairing(tp.Pairing))
	}
	for _, bd := range tp.Bindings {
		field("slot", bd.String())
	}
	return lines
}

func (r *report) pairing(p *construct.Pairing) string {
	name := "<implicit>"
	if p.Ctor != nil {
		name = p.Ctor.Name
		if n := len(p.Ctor.Params); n > 0 {
			params := make([]string, n)
			for i, prm := range p.Ctor.Params {
				params[i] = r.prog.Type(prm.Type).Name
			}
			name += "(" + strings.Join(params, ", ") + ")"
		}
	}
	var notes []string
	if owner := r.prog.Type(p.Owner); owner != nil {
		notes = append(notes, owner.Name)
	}
	if p.Context {
		notes = append(notes, "context")
	}
	if p.Implied {
		notes = append(notes, "implied")
	}
	return fmt.Sprintf("%s [%s]", name, strings.Join(notes, ", "))
}
