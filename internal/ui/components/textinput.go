package components

import (
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/studylog/internal/ui/theme"
)

// TextInput wraps bubbles/textinput for free-text session notes.
type TextInput struct {
	Model textinput.Model
	// Warn, when non-empty, is shown under the input.
	Warn string
}

func NewTextInput(placeholder string, limit int) TextInput {
	ti := textinput.New()
	ti.Placeholder = placeholder
	if limit > 0 {
		ti.CharLimit = limit
	}
	ti.Focus()
	return TextInput{Model: ti}
}

func (t TextInput) Update(msg tea.Msg) (TextInput, tea.Cmd) {
	var cmd tea.Cmd
	t.Model, cmd = t.Model.Update(msg)
	return t, cmd
}

func (t TextInput) View() string {
	view := t.Model.View()
	if t.Warn != "" {
		view += "\n" + lipgloss.NewStyle().Foreground(theme.Warning).Render(t.Warn)
	}
	return view
}

func (t TextInput) Value() string {
	return t.Model.Value()
}
