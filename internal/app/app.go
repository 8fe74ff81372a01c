package app

import (
	"context"
	"fmt"

	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/studylog/internal/router"
	"github.com/abhisek/studylog/internal/screen"
	"github.com/abhisek/studylog/internal/screens/studytimer"
	"github.com/abhisek/studylog/internal/screens/subjects"
	"github.com/abhisek/studylog/internal/ui/layout"
)

// AppModel is the root Bubble Tea model.
type AppModel struct {
	cfg    studytimer.Config
	router *router.Router
	width  int
	height int
}

// newAppModel opens on the subject list, or straight on the timer when a
// session is already running.
func newAppModel(cfg studytimer.Config) AppModel {
	m := AppModel{cfg: cfg, router: router.New(subjects.New(cfg))}
	if a := cfg.Study.ActiveSession(); a != nil {
		for _, sub := range cfg.Study.Subjects() {
			if sub.ID == a.SubjectID {
				m.router.Push(studytimer.New(cfg, sub))
				break
			}
		}
	}
	return m
}

func (m AppModel) Init() tea.Cmd {
	return m.router.Active().Init()
}

func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			if ec, ok := m.router.Active().(screen.EscapeCapturer); ok && ec.CapturesEscape() {
				break
			}
			if m.router.Depth() > 1 {
				return m, func() tea.Msg { return router.PopScreenMsg{} }
			}
			return m, nil
		}
	}

	cmd := m.router.Update(msg)
	return m, cmd
}

func (m AppModel) View() tea.View {
	v := tea.NewView("")
	v.AltScreen = true

	if m.width == 0 || m.height == 0 {
		return v
	}
	if layout.IsTooSmall(m.width, m.height) {
		v.SetContent(layout.RenderMinSizeMessage(m.width, m.height))
		return v
	}

	active := m.router.Active()
	header := layout.RenderHeader(active.Title(),
		m.cfg.Study.TodayStats().TotalMinutes, m.cfg.Study.DailyTargetHours(), m.width)

	hints := []layout.KeyHint{{Key: "Esc", Description: "Back"}, {Key: "Ctrl+C", Description: "Quit"}}
	if hp, ok := active.(screen.KeyHintProvider); ok {
		hints = hp.KeyHints()
	}
	footer := layout.RenderFooter(hints, m.width)

	contentHeight := max(0, m.height-3-3)
	content := m.router.View(m.width, contentHeight)
	v.SetContent(layout.RenderFrame(header, content, footer, m.width, m.height))
	return v
}

// Run starts the study TUI and blocks until it exits.
func Run(ctx context.Context, cfg studytimer.Config) error {
	cfg.Ctx = ctx
	p := tea.NewProgram(newAppModel(cfg), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run study tui: %w", err)
	}
	return nil
}
