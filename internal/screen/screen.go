package screen

import (
	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/studylog/internal/ui/layout"
)

// Screen is one page of the study TUI. The app frame draws the header and
// footer around it.
type Screen interface {
	Init() tea.Cmd
	Update(msg tea.Msg) (Screen, tea.Cmd)
	// View renders the content area only.
	View(width, height int) string
	Title() string
}

// KeyHintProvider lets a screen replace the default footer hints.
type KeyHintProvider interface {
	KeyHints() []layout.KeyHint
}

// EscapeCapturer is implemented by screens that consume Esc themselves
// while CapturesEscape reports true, for example to cancel an input.
type EscapeCapturer interface {
	CapturesEscape() bool
}
