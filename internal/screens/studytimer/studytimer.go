// Package studytimer is the live study-session screen. It drives the
// study service's Start/Pause/Resume/End and, when a pomodoro length is
// set, the background timer alongside it.
package studytimer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/studylog/internal/router"
	"github.com/abhisek/studylog/internal/screen"
	"github.com/abhisek/studylog/internal/study"
	"github.com/abhisek/studylog/internal/timer"
	"github.com/abhisek/studylog/internal/ui/components"
	"github.com/abhisek/studylog/internal/ui/layout"
	"github.com/abhisek/studylog/internal/ui/theme"
)

type tickMsg time.Time

type phase int

const (
	phaseRunning phase = iota
	phaseNotes
	phaseDone
)

// Config wires the screen to its collaborators. Timer may be nil, and a
// zero Pomodoro means count-up only.
type Config struct {
	Ctx      context.Context
	Study    *study.Service
	Timer    *timer.Timer
	Pomodoro time.Duration
	Now      func() time.Time
}

type Screen struct {
	cfg     Config
	subject study.Subject

	phase    phase
	notes    components.TextInput
	recorded *study.StudySession
	pomoDone bool
	errMsg   string
}

var (
	_ screen.Screen          = (*Screen)(nil)
	_ screen.KeyHintProvider = (*Screen)(nil)
	_ screen.EscapeCapturer  = (*Screen)(nil)
)

func New(cfg Config, subject study.Subject) *Screen {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Ctx == nil {
		cfg.Ctx = context.Background()
	}
	return &Screen{cfg: cfg, subject: subject}
}

func (s *Screen) Title() string { return s.subject.Name }

// Init starts a session for the subject unless one for it is already
// running, which is then resumed in place.
func (s *Screen) Init() tea.Cmd {
	a := s.cfg.Study.ActiveSession()
	if a == nil || a.SubjectID != s.subject.ID {
		if _, err := s.cfg.Study.Start(s.cfg.Ctx, s.subject.ID); err != nil {
			s.errMsg = err.Error()
			return nil
		}
		if s.cfg.Timer != nil && s.cfg.Pomodoro > 0 {
			err := s.cfg.Timer.Start(s.cfg.Ctx, timer.State{
				Mode:      timer.Pomodoro,
				TotalTime: int64(s.cfg.Pomodoro / time.Second),
				SubjectID: s.subject.ID,
			})
			if err != nil {
				s.errMsg = err.Error()
			}
		}
	}
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (s *Screen) CapturesEscape() bool { return s.phase == phaseNotes }

func (s *Screen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if s.phase != phaseRunning {
			return s, nil
		}
		s.checkPomodoro()
		return s, tickCmd()
	case tea.KeyPressMsg:
		return s.handleKey(msg)
	}
	if s.phase == phaseNotes {
		var cmd tea.Cmd
		s.notes, cmd = s.notes.Update(msg)
		return s, cmd
	}
	return s, nil
}

func (s *Screen) checkPomodoro() {
	if s.cfg.Timer == nil || s.pomoDone {
		return
	}
	p, err := s.cfg.Timer.Progress(s.cfg.Ctx)
	if err == nil && p.Completed {
		s.pomoDone = true
	}
}

func pop() tea.Msg { return router.PopScreenMsg{} }

func (s *Screen) handleKey(msg tea.KeyPressMsg) (screen.Screen, tea.Cmd) {
	key := msg.String()
	if s.errMsg != "" && s.phase != phaseRunning {
		return s, pop
	}

	switch s.phase {
	case phaseDone:
		if key == "enter" || key == "q" {
			return s, pop
		}
		return s, nil

	case phaseNotes:
		switch key {
		case "esc":
			s.phase = phaseRunning
			return s, tickCmd()
		case "enter":
			s.finish()
			return s, nil
		}
		var cmd tea.Cmd
		s.notes, cmd = s.notes.Update(msg)
		s.notes.Warn = ""
		if study.IsBreakNote(s.notes.Value()) {
			s.notes.Warn = "Notes mentioning a break or rest are not recorded"
		}
		return s, cmd
	}

	switch key {
	case "space", " ", "p":
		s.togglePause()
	case "e":
		s.phase = phaseNotes
		s.notes = components.NewTextInput("What did you cover? (optional)", 200)
	case "d":
		if err := s.cfg.Study.Discard(s.cfg.Ctx); err != nil {
			s.errMsg = err.Error()
			return s, nil
		}
		s.stopTimer()
		return s, pop
	}
	return s, nil
}

func (s *Screen) togglePause() {
	a := s.cfg.Study.ActiveSession()
	if a == nil {
		return
	}
	var err error
	if a.IsPaused {
		err = s.cfg.Study.Resume(s.cfg.Ctx)
		if err == nil && s.cfg.Timer != nil && s.cfg.Pomodoro > 0 {
			err = ignoreNoTimer(s.cfg.Timer.Resume(s.cfg.Ctx))
		}
	} else {
		err = s.cfg.Study.Pause(s.cfg.Ctx)
		if err == nil && s.cfg.Timer != nil && s.cfg.Pomodoro > 0 {
			err = ignoreNoTimer(s.cfg.Timer.Pause(s.cfg.Ctx))
		}
	}
	if err != nil {
		s.errMsg = err.Error()
	}
}

func ignoreNoTimer(err error) error {
	if errors.Is(err, timer.ErrNoTimer) {
		return nil
	}
	return err
}

func (s *Screen) stopTimer() {
	if s.cfg.Timer == nil || s.cfg.Pomodoro == 0 {
		return
	}
	if err := s.cfg.Timer.Stop(s.cfg.Ctx); err != nil {
		s.errMsg = err.Error()
	}
}

func (s *Screen) finish() {
	s.phase = phaseDone
	recorded, err := s.cfg.Study.End(s.cfg.Ctx, strings.TrimSpace(s.notes.Value()))
	if err != nil {
		s.errMsg = err.Error()
		return
	}
	s.recorded = recorded
	s.stopTimer()
}

func (s *Screen) KeyHints() []layout.KeyHint {
	switch s.phase {
	case phaseNotes:
		return []layout.KeyHint{{Key: "Enter", Description: "Save session"}, {Key: "Esc", Description: "Keep studying"}}
	case phaseDone:
		return []layout.KeyHint{{Key: "Enter", Description: "Back to subjects"}}
	}
	pause := "Pause"
	if a := s.cfg.Study.ActiveSession(); a != nil && a.IsPaused {
		pause = "Resume"
	}
	return []layout.KeyHint{
		{Key: "Space", Description: pause},
		{Key: "e", Description: "End"},
		{Key: "d", Description: "Discard"},
		{Key: "Esc", Description: "Leave running"},
	}
}

// formatClock renders a duration as HH:MM:SS.
func formatClock(d time.Duration) string {
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs/60%60, secs%60)
}

func (s *Screen) View(width, height int) string {
	center := lipgloss.NewStyle().Width(width).Align(lipgloss.Center)
	var b strings.Builder
	b.WriteString("\n" + center.Render(theme.Title.Render(s.subject.Name)) + "\n\n")

	if s.errMsg != "" {
		b.WriteString(center.Render(theme.Failed.Render(s.errMsg)) + "\n\n")
	}

	if s.phase == phaseDone {
		b.WriteString(center.Render(s.doneView()))
		return b.String()
	}

	now := s.cfg.Now()
	a := s.cfg.Study.ActiveSession()
	var elapsed time.Duration
	status := theme.Running.Render("● studying")
	if a != nil {
		elapsed = a.Elapsed(now)
		if a.IsPaused {
			status = theme.Paused.Render("❚❚ paused")
		}
	}
	b.WriteString(center.Render(theme.Clock.Render(formatClock(elapsed))) + "\n")
	b.WriteString(center.Render(status) + "\n\n")

	barWidth := min(60, width-8)
	if s.cfg.Timer != nil && s.cfg.Pomodoro > 0 {
		if p, err := s.cfg.Timer.Progress(s.cfg.Ctx); err == nil {
			label := "pomodoro " + formatClock(p.Remaining)
			if p.Completed || s.pomoDone {
				label = "pomodoro done, take a break"
			}
			frac := 1 - float64(p.Remaining)/float64(s.cfg.Pomodoro)
			b.WriteString(center.Render(components.NewProgressBar(label, frac, false, barWidth).View()) + "\n")
		}
	}

	today := s.cfg.Study.TodayStats().TotalMinutes + int(elapsed/time.Minute)
	target := s.cfg.Study.DailyTargetHours() * 60
	b.WriteString(center.Render(components.NewProgressBar(
		"today "+layout.FormatMinutes(today), float64(today)/target, true, barWidth).View()) + "\n")

	if s.phase == phaseNotes {
		b.WriteString("\n" + center.Render(s.notes.View()) + "\n")
	}
	return b.String()
}

func (s *Screen) doneView() string {
	if s.errMsg != "" {
		return theme.Hint.Render("Press any key to go back")
	}
	if s.recorded == nil {
		return theme.Hint.Render("Break noted. Nothing was recorded.")
	}
	return theme.Running.Render(fmt.Sprintf("Recorded %s of %s",
		layout.FormatMinutes(s.recorded.Duration), s.subject.Name))
}
