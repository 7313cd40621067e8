package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	bridgeerrors "github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/session"
)

type interactiveModel struct {
	err      error
	report   *report
	plan     *session.Plan
	filename string
	opts     session.Options
	visible  []*session.TypePlan
	filter   textinput.Model
	selected int
	state    modelState
}

type modelState int

const (
	stateSelectType modelState = iota
	stateFilter
	stateShowType
)

func newInteractiveModel(filename string, opts session.Options) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = "type name"
	ti.Prompt = "filter: "
	ti.Width = 40
	return &interactiveModel{
		filename: filename,
		opts:     opts,
		filter:   ti,
		state:    stateSelectType,
	}
}

type loadedMsg struct {
	err    error
	report *report
	plan   *session.Plan
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadProgram
}

func (m *interactiveModel) loadProgram() tea.Msg {
	s, plan, err := setup(m.filename, m.opts)
	if err != nil {
		return loadedMsg{err: err}
	}
	return loadedMsg{plan: plan, report: newReport(s.Program(), true)}
}

func (m *interactiveModel) applyFilter() {
	m.visible = m.visible[:0]
	if m.plan == nil {
		return
	}
	q := strings.ToLower(m.filter.Value())
	for _, tp := range m.plan.Types {
		if q == "" || strings.Contains(strings.ToLower(tp.Type.Name), q) {
			m.visible = append(m.visible, tp)
		}
	}
	if m.selected >= len(m.visible) {
		m.selected = max(len(m.visible)-1, 0)
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == stateFilter {
			return m.updateFilter(msg)
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectType && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectType && m.selected < len(m.visible)-1 {
				m.selected++
			}

		case "/":
			if m.state == stateSelectType && m.plan != nil {
				m.state = stateFilter
				return m, m.filter.Focus()
			}

		case "enter":
			switch m.state {
			case stateSelectType:
				if len(m.visible) > 0 {
					m.state = stateShowType
				}
			case stateShowType:
				m.state = stateSelectType
			}

		case "esc":
			if m.state == stateShowType {
				m.state = stateSelectType
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.plan = msg.plan
		m.report = msg.report
		m.applyFilter()
	}

	return m, nil
}

func (m *interactiveModel) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "enter", "esc":
		if msg.String() == "esc" {
			m.filter.SetValue("")
			m.applyFilter()
		}
		m.filter.Blur()
		m.state = stateSelectType
		return m, nil
	}
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.applyFilter()
	return m, cmd
}

func (m *interactiveModel) View() string {
	if m.err != nil {
		return m.errorView()
	}

	if m.plan == nil {
		return "Loading program..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Interop Plan"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectType, stateFilter:
		if m.state == stateFilter || m.filter.Value() != "" {
			b.WriteString(m.filter.View())
			b.WriteString("\n\n")
		}
		if len(m.visible) == 0 {
			b.WriteString(helpStyle.Render("no matching types"))
			b.WriteString("\n")
		}
		for i, tp := range m.visible {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + tp.Type.Name))
				b.WriteString(" ")
				b.WriteString(m.report.state(tp.Rep.State))
			} else {
				b.WriteString("  " + m.report.summary(tp))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		if m.state == stateFilter {
			b.WriteString(helpStyle.Render("enter apply • esc clear"))
		} else {
			b.WriteString(helpStyle.Render("↑/↓ select • enter details • / filter • q quit"))
		}

	case stateShowType:
		tp := m.visible[m.selected]
		b.WriteString(m.report.summary(tp))
		b.WriteString("\n\n")
		for _, l := range m.report.details(tp) {
			b.WriteString("  ")
			b.WriteString(l)
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter/esc back • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) errorView() string {
	var b strings.Builder
	var setupErr *bridgeerrors.SetupError
	if errors.As(m.err, &setupErr) {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Setup rejected %d definition(s)", len(setupErr.Errors))))
		b.WriteString("\n\n")
		for _, e := range setupErr.Errors {
			b.WriteString("  ")
			b.WriteString(errorStyle.Render(e.Error()))
			b.WriteString("\n")
		}
	} else {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("q quit"))
	return b.String()
}

func runInteractive(filename string, opts session.Options) error {
	p := tea.NewProgram(newInteractiveModel(filename, opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
