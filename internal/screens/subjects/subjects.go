// Package subjects is the home screen: the subject list with hours and
// marks progress, from which a study session is started.
package subjects

import (
	"fmt"
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/studylog/internal/router"
	"github.com/abhisek/studylog/internal/screen"
	"github.com/abhisek/studylog/internal/screens/studytimer"
	"github.com/abhisek/studylog/internal/study"
	"github.com/abhisek/studylog/internal/ui/components"
	"github.com/abhisek/studylog/internal/ui/layout"
	"github.com/abhisek/studylog/internal/ui/theme"
)

type Screen struct {
	cfg  studytimer.Config
	menu components.Menu
}

var (
	_ screen.Screen          = (*Screen)(nil)
	_ screen.KeyHintProvider = (*Screen)(nil)
)

func New(cfg studytimer.Config) *Screen {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Screen{cfg: cfg}
	s.rebuild()
	return s
}

func (s *Screen) Title() string { return "Subjects" }

func (s *Screen) Init() tea.Cmd { return nil }

// Refresh rebuilds the list after a session changes the hours.
func (s *Screen) Refresh() tea.Cmd {
	s.rebuild()
	return nil
}

func (s *Screen) rebuild() {
	selected := s.menu.Selected
	subjects := s.cfg.Study.Subjects()
	items := make([]components.MenuItem, 0, len(subjects))
	for _, sub := range subjects {
		items = append(items, components.MenuItem{
			Label:  sub.Name,
			Detail: detail(sub, s.cfg.Study.OverallProgress(sub.ID)),
			Action: func() tea.Cmd {
				return func() tea.Msg {
					return router.PushScreenMsg{Screen: studytimer.New(s.cfg, sub)}
				}
			},
		})
	}
	s.menu = components.NewMenu(items, 0)
	s.menu.Selected = min(selected, max(0, len(items)-1))
}

func detail(sub study.Subject, p study.Progress) string {
	d := fmt.Sprintf("%.1f/%gh", sub.CompletedHours, sub.TargetHours)
	if sub.AverageMarks != nil {
		d += fmt.Sprintf("  avg %.0f%%", *sub.AverageMarks)
	}
	return d + fmt.Sprintf("  overall %d%%", p.OverallProgress)
}

func (s *Screen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	var cmd tea.Cmd
	s.menu, cmd = s.menu.Update(msg)
	return s, cmd
}

func (s *Screen) KeyHints() []layout.KeyHint {
	return []layout.KeyHint{
		{Key: "↑↓", Description: "Navigate"},
		{Key: "Enter", Description: "Study"},
		{Key: "Ctrl+C", Description: "Quit"},
	}
}

func (s *Screen) View(width, height int) string {
	var b strings.Builder
	b.WriteString("\n" + lipgloss.NewStyle().Width(width).Render(theme.Title.Render("  Pick a subject")) + "\n\n")

	if a := s.cfg.Study.ActiveSession(); a != nil {
		b.WriteString(theme.Paused.Render(fmt.Sprintf("  A session for %s is still open. Pick it to continue.", a.SubjectID)) + "\n\n")
	}
	for _, c := range s.cfg.Study.ExamCountdown(s.cfg.Now()) {
		b.WriteString(theme.Hint.Render(fmt.Sprintf("  %s in %d days", c.Exam, c.DaysLeft)) + "\n")
	}

	s.menu.Height = max(3, height-8)
	b.WriteString("\n" + s.menu.View())
	return b.String()
}
