package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/studylog/internal/auth"
	"github.com/abhisek/studylog/internal/study"
	"github.com/abhisek/studylog/internal/vault"
)

type memVault struct {
	mu    sync.Mutex
	items map[string]string
}

func newMemVault() *memVault { return &memVault{items: map[string]string{}} }

func (m *memVault) SetItem(_ context.Context, key, value string, _ vault.Options) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

func (m *memVault) GetItem(_ context.Context, key string, _ vault.Options) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *memVault) DeleteItem(_ context.Context, key string, _ vault.Options) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *memVault) Keys(context.Context, vault.Options) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.items {
		out = append(out, k)
	}
	return out, nil
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

var t0 = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, v vault.Vault) (*Service, *clock) {
	t.Helper()
	c := &clock{t: t0}
	return New(v, "ios", WithClock(c.Now)), c
}

func sampleData() study.Data {
	avg, band := 75.0, 80.0
	return study.Data{
		StudySessions: []study.StudySession{
			{ID: "s1", SubjectID: "anatomy", SubjectName: "Anatomy", StartTime: t0.Add(-2 * time.Hour), EndTime: t0.Add(-time.Hour), Duration: 60, Date: "2026-03-10"},
			{ID: "s2", SubjectID: "pathology", StartTime: t0.AddDate(0, 0, -1), EndTime: t0.AddDate(0, 0, -1).Add(45 * time.Minute), Duration: 45, Date: "2026-03-09", Notes: "cardio"},
		},
		TestScores: []study.TestScore{{
			ID: "t1", TestName: "GT 1", TestType: study.TestMock, Date: "2026-03-08",
			TotalMarks: 100, ObtainedMarks: 75,
			SubjectScores: []study.SubjectScore{{SubjectID: "pathology", TotalQuestions: 40, CorrectAnswers: 30, Percentage: 75}},
		}},
		Subjects: []study.Subject{
			{ID: "anatomy", Name: "Anatomy", Color: "#FF6B6B", TargetHours: 150, CompletedHours: 1},
			{ID: "pathology", Name: "Pathology", Color: "#96CEB4", TargetHours: 130, CompletedHours: 0.75, AverageMarks: &avg, MarksProgress: &band},
		},
		StudyPlans:       []study.StudyPlan{{SubjectID: "anatomy", DailyTarget: 60, WeeklyTarget: 300, Priority: study.PriorityHigh}},
		ExamDates:        study.ExamDates{NEETPG: "2026-06-15", INICET: "2026-05-10"},
		TodayProgress:    study.TodayProgress{Date: "2026-03-10", TotalMinutes: 60, LastResetTime: t0.Add(-7 * time.Hour)},
		DailyTargetHours: 6,
	}
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, newMemVault())
	x := sampleData()

	created := svc.CreateBackup(ctx, x, nil)
	require.True(t, created.Success, created.Error)
	assert.Equal(t, "2026-03-10T10:00:00.000Z", created.Timestamp)

	restored := svc.RestoreFromBackup(ctx, created.Timestamp, "")
	require.True(t, restored.Success, restored.Error)
	assert.Equal(t, x, *restored.Data)
}

func TestRoundTripWithSQLiteVault(t *testing.T) {
	ctx := context.Background()
	v, err := vault.Open("file:backup_roundtrip?mode=memory&cache=shared", "pass", vault.Limits{MaxItemBytes: 1 << 20, MaxItems: 64})
	require.NoError(t, err)
	t.Cleanup(func() { v.Close() })

	svc, _ := newTestService(t, v)
	user := &auth.User{ID: "u1", Email: "a@b.c"}
	created := svc.CreateBackup(ctx, sampleData(), user)
	require.True(t, created.Success, created.Error)

	list := svc.GetBackupList(ctx, "u1")
	require.Len(t, list, 1)
	assert.Equal(t, "u1", list[0].UserID)
	assert.Equal(t, 2, list[0].Metadata.TotalSessions)
	assert.Equal(t, 1.8, list[0].Metadata.TotalStudyHours)
	assert.Equal(t, DeviceInfo{Platform: "ios", AppVersion: AppVersion}, list[0].Metadata.DeviceInfo)

	restored := svc.RestoreFromBackup(ctx, created.Timestamp, "u1")
	require.True(t, restored.Success, restored.Error)
	assert.Equal(t, sampleData(), *restored.Data)

	assert.Empty(t, svc.GetBackupList(ctx, ""), "guest partition is separate")
}

func TestRetention(t *testing.T) {
	ctx := context.Background()
	mv := newMemVault()
	svc, c := newTestService(t, mv)

	var stamps []string
	for i := 0; i < 15; i++ {
		r := svc.CreateBackup(ctx, sampleData(), nil)
		require.True(t, r.Success, r.Error)
		stamps = append(stamps, r.Timestamp)
		c.t = c.t.Add(time.Minute)
	}

	list := svc.GetBackupList(ctx, "")
	require.Len(t, list, 10)
	for i, snap := range list {
		assert.Equal(t, stamps[14-i], snap.Timestamp)
	}

	var index []string
	require.NoError(t, json.Unmarshal([]byte(mv.items["backup_index_guest"]), &index))
	assert.Len(t, index, 10)

	keys, _ := mv.Keys(ctx, vault.Options{})
	backups := 0
	for _, k := range keys {
		if strings.HasPrefix(k, "backup_guest_") {
			backups++
		}
	}
	assert.Equal(t, 10, backups)
	assert.Contains(t, mv.items, "backup_status_guest")
}

func TestSameMillisecondBackupsAreKept(t *testing.T) {
	ctx := context.Background()
	mv := newMemVault()
	svc, _ := newTestService(t, mv)

	first := svc.CreateBackup(ctx, sampleData(), nil)
	second := svc.CreateBackup(ctx, sampleData(), nil)
	require.True(t, first.Success, first.Error)
	require.True(t, second.Success, second.Error)
	assert.Equal(t, "2026-03-10T10:00:00.000Z", first.Timestamp)
	assert.Equal(t, "2026-03-10T10:00:00.001Z", second.Timestamp)

	list := svc.GetBackupList(ctx, "")
	require.Len(t, list, 2)
	assert.Equal(t, second.Timestamp, list[0].Timestamp)
	assert.Contains(t, mv.items, fmt.Sprintf("backup_guest_%d", t0.UnixMilli()+1))

	r := svc.RestoreFromBackup(ctx, first.Timestamp, "")
	assert.True(t, r.Success, r.Error)
}

func TestFullVaultDropsOldestSnapshot(t *testing.T) {
	ctx := context.Background()
	v, err := vault.Open("file:backup_full?mode=memory&cache=shared", "pass", vault.Limits{MaxItemBytes: 1 << 20, MaxItems: 4})
	require.NoError(t, err)
	t.Cleanup(func() { v.Close() })
	svc, c := newTestService(t, v)

	var stamps []string
	for i := 0; i < 3; i++ {
		r := svc.CreateBackup(ctx, sampleData(), nil)
		require.True(t, r.Success, r.Error)
		stamps = append(stamps, r.Timestamp)
		c.t = c.t.Add(time.Minute)
	}

	// Two snapshots plus the index and status fill the vault.
	assert.True(t, svc.IsAvailable(ctx))
	list := svc.GetBackupList(ctx, "")
	require.Len(t, list, 2)
	assert.Equal(t, stamps[2], list[0].Timestamp)
	assert.Equal(t, stamps[1], list[1].Timestamp)

	auto := svc.AutoBackup(ctx, sampleData(), nil)
	assert.Equal(t, "recent backup exists", auto.Skipped)
}

func TestListDropsUnreadableEntries(t *testing.T) {
	ctx := context.Background()
	mv := newMemVault()
	svc, _ := newTestService(t, mv)

	r := svc.CreateBackup(ctx, sampleData(), nil)
	require.True(t, r.Success)
	mv.items["backup_guest_1"] = "[object Object]"
	mv.items["backup_index_guest"] = fmt.Sprintf(`["backup_guest_1","backup_guest_%d","backup_guest_2"]`, t0.UnixMilli())

	list := svc.GetBackupList(ctx, "")
	require.Len(t, list, 1)
	assert.Equal(t, r.Timestamp, list[0].Timestamp)
	assert.Equal(t, fmt.Sprintf(`["backup_guest_%d"]`, t0.UnixMilli()), mv.items["backup_index_guest"])
}

func TestRestoreDefaultsIncompleteSnapshot(t *testing.T) {
	ctx := context.Background()
	mv := newMemVault()
	svc, _ := newTestService(t, mv)

	mv.items["backup_guest_1"] = `{"version":"1.0.0","timestamp":"2025-01-01T00:00:00.000Z",
		"data":{"studySessions":"oops","subjects":[{"id":"a","name":"A"},{"name":"no id"}]}}`
	mv.items["backup_index_guest"] = `["backup_guest_1"]`

	r := svc.RestoreFromBackup(ctx, "2025-01-01T00:00:00.000Z", "")
	require.True(t, r.Success, r.Error)
	d := r.Data
	assert.Empty(t, d.StudySessions)
	assert.NotNil(t, d.StudySessions)
	assert.Len(t, d.Subjects, 1)
	assert.Equal(t, study.DefaultDailyTargetHours, d.DailyTargetHours)
	assert.Equal(t, "2026-03-10", d.TodayProgress.Date)
	assert.True(t, d.ExamDates.Empty())
}

func TestRestoreRefusals(t *testing.T) {
	ctx := context.Background()
	mv := newMemVault()
	svc, _ := newTestService(t, mv)

	mv.items["backup_guest_1"] = `{"version":"3.1.0","timestamp":"2025-01-01T00:00:00.000Z","data":{}}`
	mv.items["backup_guest_2"] = `{"version":"2.0.0","timestamp":"2025-01-02T00:00:00.000Z"}`
	mv.items["backup_index_guest"] = `["backup_guest_1","backup_guest_2"]`

	r := svc.RestoreFromBackup(ctx, "2025-01-01T00:00:00.000Z", "")
	assert.False(t, r.Success)
	assert.Contains(t, r.Error, "newer version")

	r = svc.RestoreFromBackup(ctx, "2025-01-02T00:00:00.000Z", "")
	assert.False(t, r.Success)
	assert.Equal(t, ErrInvalidBackupData.Error(), r.Error)

	r = svc.RestoreFromBackup(ctx, "2025-01-03T00:00:00.000Z", "")
	assert.Equal(t, ErrBackupNotFound.Error(), r.Error)
}

func TestDeleteBackup(t *testing.T) {
	ctx := context.Background()
	mv := newMemVault()
	svc, c := newTestService(t, mv)

	first := svc.CreateBackup(ctx, sampleData(), nil)
	c.t = c.t.Add(time.Hour)
	second := svc.CreateBackup(ctx, sampleData(), nil)

	r := svc.DeleteBackup(ctx, first.Timestamp, "")
	require.True(t, r.Success, r.Error)
	list := svc.GetBackupList(ctx, "")
	require.Len(t, list, 1)
	assert.Equal(t, second.Timestamp, list[0].Timestamp)
	assert.NotContains(t, mv.items, fmt.Sprintf("backup_guest_%d", t0.UnixMilli()))

	assert.False(t, svc.DeleteBackup(ctx, first.Timestamp, "").Success)
}

func TestAutoBackupThrottle(t *testing.T) {
	ctx := context.Background()
	svc, c := newTestService(t, newMemVault())

	r := svc.AutoBackup(ctx, sampleData(), nil)
	assert.True(t, r.Created, r.Error)

	c.t = c.t.Add(23 * time.Hour)
	r = svc.AutoBackup(ctx, sampleData(), nil)
	assert.False(t, r.Created)
	assert.Equal(t, "recent backup exists", r.Skipped)

	c.t = c.t.Add(2 * time.Hour)
	r = svc.AutoBackup(ctx, sampleData(), nil)
	assert.True(t, r.Created, r.Error)
	assert.Len(t, svc.GetBackupList(ctx, ""), 2)

	bad := sampleData()
	bad.DailyTargetHours = 0
	assert.NotEmpty(t, svc.AutoBackup(ctx, bad, nil).Error)
}

func TestUnavailableVault(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, vault.Unavailable{})
	assert.False(t, svc.IsAvailable(ctx))
	assert.False(t, svc.CreateBackup(ctx, sampleData(), nil).Success)
	assert.Equal(t, "vault not available", svc.AutoBackup(ctx, sampleData(), nil).Skipped)
	assert.False(t, svc.GetBackupInfo(ctx, "").IsAvailable)
}

func TestPlatformGate(t *testing.T) {
	ctx := context.Background()
	svc := New(newMemVault(), "linux")
	assert.False(t, svc.IsAvailable(ctx))
	r := svc.CreateBackup(ctx, sampleData(), nil)
	assert.False(t, r.Success)
	assert.Contains(t, r.Error, "linux")
	assert.Nil(t, svc.GetBackupList(ctx, ""))

	svc = New(newMemVault(), "linux", WithPlatforms("linux"))
	assert.True(t, svc.IsAvailable(ctx))
}

func TestBackupInfo(t *testing.T) {
	ctx := context.Background()
	svc, c := newTestService(t, newMemVault())

	assert.Equal(t, "No backups found", svc.GetBackupInfo(ctx, "").Status)

	require.True(t, svc.CreateBackup(ctx, sampleData(), nil).Success)
	info := svc.GetBackupInfo(ctx, "")
	assert.Equal(t, "Recently backed up", info.Status)
	assert.Equal(t, 1, info.BackupCount)
	assert.Equal(t, "2026-03-11T10:00:00.000Z", info.NextAutoBackup)

	c.t = t0.Add(5 * time.Hour)
	assert.Equal(t, "Last backup 5 hours ago", svc.GetBackupInfo(ctx, "").Status)
	c.t = t0.Add(30 * time.Hour)
	info = svc.GetBackupInfo(ctx, "")
	assert.Equal(t, "Last backup 1 day ago", info.Status)
	assert.Empty(t, info.NextAutoBackup)
	c.t = t0.Add(80 * time.Hour)
	assert.Equal(t, "Last backup 3 days ago", svc.GetBackupInfo(ctx, "").Status)
}

func TestFormatBackupDate(t *testing.T) {
	ts := "2026-03-10T10:00:00.000Z"
	tests := []struct {
		after time.Duration
		want  string
	}{
		{10 * time.Minute, "Just now"},
		{time.Hour, "1 hour ago"},
		{5 * time.Hour, "5 hours ago"},
		{25 * time.Hour, "1 day ago"},
		{6 * 24 * time.Hour, "6 days ago"},
		{8 * 24 * time.Hour, "Mar 10, 2026, 10:00 AM"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBackupDate(ts, t0.Add(tt.after)), tt.after.String())
	}
	assert.Equal(t, "Unknown date", FormatBackupDate("yesterday", t0))
}

func TestCheckVersion(t *testing.T) {
	assert.NoError(t, checkVersion(""))
	assert.NoError(t, checkVersion("1.0.0"))
	assert.NoError(t, checkVersion("2.9.1"))
	assert.NoError(t, checkVersion("garbage"))
	assert.ErrorIs(t, checkVersion("3.0.0"), ErrNewerVersion)
}
