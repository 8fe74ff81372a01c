package studytimer

import (
	"context"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/studylog/internal/router"
	"github.com/abhisek/studylog/internal/store"
	"github.com/abhisek/studylog/internal/study"
	"github.com/abhisek/studylog/internal/timer"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func setup(t *testing.T, pomodoro time.Duration) (*Screen, *study.Service, *clock) {
	t.Helper()
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)}
	kv := store.NewMemKV()
	svc := study.New(kv, study.WithClock(c.Now))
	require.NoError(t, svc.Load(ctx))

	cfg := Config{Ctx: ctx, Study: svc, Now: c.Now, Pomodoro: pomodoro}
	if pomodoro > 0 {
		tm := timer.New(kv, timer.WithClock(c.Now), timer.WithTickInterval(time.Hour))
		t.Cleanup(tm.Close)
		cfg.Timer = tm
	}
	sub := svc.Subjects()[0]
	s := New(cfg, sub)
	require.NotNil(t, s.Init())
	return s, svc, c
}

func key(r rune) tea.KeyPressMsg { return tea.KeyPressMsg{Code: r, Text: string(r)} }

func typeText(s *Screen, text string) {
	for _, r := range text {
		s.Update(key(r))
	}
}

func TestInitStartsSession(t *testing.T) {
	s, svc, _ := setup(t, 0)
	a := svc.ActiveSession()
	require.NotNil(t, a)
	assert.Equal(t, s.subject.ID, a.SubjectID)
	assert.Equal(t, s.subject.Name, s.Title())
}

func TestInitResumesExistingSession(t *testing.T) {
	s, svc, c := setup(t, 0)
	started := svc.ActiveSession().StartTime
	c.Advance(time.Minute)

	again := New(s.cfg, s.subject)
	again.Init()
	assert.Equal(t, started, svc.ActiveSession().StartTime)
}

func TestPauseToggle(t *testing.T) {
	s, svc, _ := setup(t, 0)
	s.Update(tea.KeyPressMsg{Code: ' '})
	assert.True(t, svc.ActiveSession().IsPaused)
	assert.Equal(t, "Resume", s.KeyHints()[0].Description)

	s.Update(key('p'))
	assert.False(t, svc.ActiveSession().IsPaused)
}

func TestEndRecordsSession(t *testing.T) {
	s, svc, c := setup(t, 0)
	c.Advance(25 * time.Minute)
	assert.Contains(t, s.View(80, 20), "00:25:00")

	s.Update(key('e'))
	assert.True(t, s.CapturesEscape())
	typeText(s, "cardiac cycle")
	s.Update(tea.KeyPressMsg{Code: tea.KeyEnter})

	require.Equal(t, phaseDone, s.phase)
	require.NotNil(t, s.recorded)
	assert.Equal(t, 25, s.recorded.Duration)
	assert.Equal(t, "cardiac cycle", s.recorded.Notes)
	assert.Nil(t, svc.ActiveSession())
	assert.Contains(t, s.View(80, 20), "Recorded 25m")

	_, cmd := s.Update(tea.KeyPressMsg{Code: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.IsType(t, router.PopScreenMsg{}, cmd())
}

func TestBreakNotesAreNotRecorded(t *testing.T) {
	s, svc, c := setup(t, 0)
	c.Advance(10 * time.Minute)
	s.Update(key('e'))
	typeText(s, "coffee break")
	assert.NotEmpty(t, s.notes.Warn)
	s.Update(tea.KeyPressMsg{Code: tea.KeyEnter})

	assert.Nil(t, s.recorded)
	assert.Empty(t, svc.Sessions())
	assert.Contains(t, s.View(80, 20), "Nothing was recorded")
}

func TestEscapeFromNotesKeepsStudying(t *testing.T) {
	s, svc, _ := setup(t, 0)
	s.Update(key('e'))
	_, cmd := s.Update(tea.KeyPressMsg{Code: tea.KeyEscape})
	assert.NotNil(t, cmd)
	assert.Equal(t, phaseRunning, s.phase)
	assert.NotNil(t, svc.ActiveSession())
}

func TestDiscard(t *testing.T) {
	s, svc, _ := setup(t, 0)
	_, cmd := s.Update(key('d'))
	require.NotNil(t, cmd)
	assert.IsType(t, router.PopScreenMsg{}, cmd())
	assert.Nil(t, svc.ActiveSession())
	assert.Empty(t, svc.Sessions())
}

func TestPomodoroFollowsSession(t *testing.T) {
	ctx := context.Background()
	s, _, c := setup(t, 25*time.Minute)
	tm := s.cfg.Timer
	require.True(t, tm.IsActive())

	c.Advance(5 * time.Minute)
	s.Update(key('p'))
	assert.False(t, tm.IsActive())
	s.Update(key('p'))
	assert.True(t, tm.IsActive())

	c.Advance(21 * time.Minute)
	p, err := tm.Progress(ctx)
	require.NoError(t, err)
	assert.True(t, p.Completed)
	s.Update(tickMsg(c.Now()))
	assert.True(t, s.pomoDone)
	assert.Contains(t, s.View(80, 20), "pomodoro done")

	s.Update(key('e'))
	s.Update(tea.KeyPressMsg{Code: tea.KeyEnter})
	_, err = tm.Progress(ctx)
	assert.ErrorIs(t, err, timer.ErrNoTimer)
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "00:00:00", formatClock(0))
	assert.Equal(t, "01:02:03", formatClock(time.Hour+2*time.Minute+3*time.Second))
}
