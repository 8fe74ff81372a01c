package app

import (
	"context"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/studylog/internal/screens/studytimer"
	"github.com/abhisek/studylog/internal/store"
	"github.com/abhisek/studylog/internal/study"
)

func testConfig(t *testing.T) studytimer.Config {
	t.Helper()
	now := func() time.Time { return time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC) }
	svc := study.New(store.NewMemKV(), study.WithClock(now))
	require.NoError(t, svc.Load(context.Background()))
	return studytimer.Config{Ctx: context.Background(), Study: svc, Now: now}
}

func TestOpensOnSubjects(t *testing.T) {
	m := newAppModel(testConfig(t))
	assert.Equal(t, 1, m.router.Depth())
	assert.Equal(t, "Subjects", m.router.Active().Title())
}

func TestOpensOnRunningSession(t *testing.T) {
	cfg := testConfig(t)
	sub := cfg.Study.Subjects()[2]
	_, err := cfg.Study.Start(context.Background(), sub.ID)
	require.NoError(t, err)

	m := newAppModel(cfg)
	assert.Equal(t, 2, m.router.Depth())
	assert.Equal(t, sub.Name, m.router.Active().Title())
}

func TestEscapePopsToSubjects(t *testing.T) {
	cfg := testConfig(t)
	_, err := cfg.Study.Start(context.Background(), cfg.Study.Subjects()[0].ID)
	require.NoError(t, err)
	m := newAppModel(cfg)

	updated, cmd := m.Update(tea.KeyPressMsg{Code: tea.KeyEscape})
	require.NotNil(t, cmd)
	updated, _ = updated.Update(cmd())
	assert.Equal(t, "Subjects", updated.(AppModel).router.Active().Title())
	assert.NotNil(t, cfg.Study.ActiveSession(), "leaving the screen keeps the session running")
}

func TestResizeKeepsScreen(t *testing.T) {
	m := newAppModel(testConfig(t))
	updated, cmd := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	assert.Nil(t, cmd)
	am := updated.(AppModel)
	assert.Equal(t, 100, am.width)
	content := am.router.View(am.width, 24)
	assert.Contains(t, content, "Pick a subject")
	assert.Contains(t, content, "Anatomy")
}
