package installer

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// InputStep collects one free-text value. A step whose key resolves to ""
// for the current state is skipped.
type InputStep struct {
	title    string
	keyFunc  func(state *InstallState) string
	optional bool
	input    textinput.Model
}

type inputOption func(*InputStep)

func secret() inputOption {
	return func(s *InputStep) {
		s.input.EchoMode = textinput.EchoPassword
		s.input.EchoCharacter = '•'
	}
}

func optional() inputOption {
	return func(s *InputStep) { s.optional = true }
}

func placeholder(p string) inputOption {
	return func(s *InputStep) { s.input.Placeholder = p }
}

func NewInputStep(title string, keyFunc func(state *InstallState) string, opts ...inputOption) Step {
	ti := textinput.New()
	ti.Focus()
	ti.CharLimit = 255
	ti.Width = 50

	s := &InputStep{title: title, keyFunc: keyFunc, input: ti}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// when keys a step on a condition over the answers given so far.
func when(key string, cond func(state *InstallState) bool) func(state *InstallState) string {
	return func(state *InstallState) string {
		if cond(state) {
			return key
		}
		return ""
	}
}

func always(key string) func(state *InstallState) string {
	return func(*InstallState) string { return key }
}

func (s *InputStep) Init() tea.Cmd {
	return textinput.Blink
}

func (s *InputStep) Update(msg tea.Msg, state *InstallState, width, height int) (Step, tea.Cmd) {
	key := s.keyFunc(state)
	if key == "" {
		return nil, nil
	}

	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)

	if k, ok := msg.(tea.KeyMsg); ok && k.String() == "enter" {
		val := strings.TrimSpace(s.input.Value())
		if val == "" && !s.optional {
			return s, cmd
		}
		state.EnvVars[key] = val
		return nil, nil
	}
	return s, cmd
}

func (s *InputStep) View(state *InstallState) string {
	hint := "(press enter to confirm)"
	if s.optional {
		hint = "(optional, press enter to skip)"
	}
	return s.title + ":\n\n" + s.input.View() + "\n\n" + hint + "\n"
}
