package recovery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/studylog/internal/keys"
	"github.com/abhisek/studylog/internal/store"
	"github.com/abhisek/studylog/internal/vault"
)

type memVault struct {
	mu    sync.Mutex
	items map[string]string
}

func newMemVault() *memVault { return &memVault{items: map[string]string{}} }

func (v *memVault) SetItem(_ context.Context, key, value string, _ vault.Options) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.items[key] = value
	return nil
}

func (v *memVault) GetItem(_ context.Context, key string, _ vault.Options) (string, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.items[key]
	return s, ok, nil
}

func (v *memVault) DeleteItem(_ context.Context, key string, _ vault.Options) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.items, key)
	return nil
}

func (v *memVault) Keys(context.Context, vault.Options) ([]string, error) { return nil, nil }

const (
	sessionA     = `{"id":"s1","subjectId":"anatomy","startTime":"2026-03-10T08:00:00Z","endTime":"2026-03-10T09:00:00Z","duration":60,"date":"2026-03-10"}`
	sessionB     = `{"id":"s2","subjectId":"anatomy","startTime":"2026-03-11T08:00:00Z","endTime":"2026-03-11T08:30:00Z","duration":30,"date":"2026-03-11"}`
	scoreA       = `{"id":"t1","testName":"Grand Test 1","testType":"Mock","date":"2026-03-10","totalMarks":200,"obtainedMarks":120,"subjectScores":[]}`
	subjectsJSON = `[{"id":"anatomy","name":"Anatomy","color":"#f00","targetHours":100,"completedHours":0}]`
)

func seed(t *testing.T, kv store.KV, pairs map[string]string) {
	t.Helper()
	for k, v := range pairs {
		require.NoError(t, kv.Set(context.Background(), k, v))
	}
}

func TestRecoverMergesAndDedupes(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemKV()
	seed(t, kv, map[string]string{
		"guest_study_sessions": "[" + sessionA + "]",
		"STUDY_SESSIONS":       "[" + sessionA + "," + sessionB + "]",
		"guest_test_scores":    "[" + scoreA + "]",
		"@test_scores":         "[" + scoreA + "]",
		"guest_subjects":       subjectsJSON,
		"guest_study_plans":    `[{"subjectId":"anatomy","dailyTarget":60,"weeklyTarget":300}]`,
	})

	r := New(kv, nil, "linux").RecoverAllData(ctx, "")
	require.True(t, r.Success, r.Errors)
	assert.Equal(t, "local", r.Source)
	assert.Len(t, r.Data.Sessions, 2)
	assert.Len(t, r.Data.Scores, 1)
	require.Len(t, r.Data.Subjects, 1)
	assert.InDelta(t, 1.5, r.Data.Subjects[0].CompletedHours, 1e-9)
	require.Len(t, r.Data.Plans, 1)
	assert.EqualValues(t, "medium", r.Data.Plans[0].Priority)
	assert.Empty(t, r.MatchedKeys)
}

func TestRecoverDropsInvalidRecords(t *testing.T) {
	kv := store.NewMemKV()
	seed(t, kv, map[string]string{
		"guest_study_sessions": `[` + sessionA + `,{"id":"","subjectId":"x"},{"id":"s9","subjectId":"x","startTime":"2026-03-10T08:00:00Z","duration":0}]`,
	})
	r := New(kv, nil, "linux").RecoverAllData(context.Background(), "")
	require.True(t, r.Success)
	require.Len(t, r.Data.Sessions, 1)
	assert.Equal(t, "s1", r.Data.Sessions[0].ID)
}

func TestRecoverExamDateAliases(t *testing.T) {
	kv := store.NewMemKV()
	seed(t, kv, map[string]string{
		"guest_exam_dates": `{"NEET_PG":"","INICET":""}`,
		"examDates":        `{"neet_pg":"2026-06-15","inicet":"2026-05-10"}`,
	})
	r := New(kv, nil, "linux").RecoverAllData(context.Background(), "")
	require.True(t, r.Success)
	assert.Zero(t, r.Data.Total())
	assert.Equal(t, "2026-06-15", r.Data.ExamDates.NEETPG)
	assert.Equal(t, "2026-05-10", r.Data.ExamDates.INICET)
}

func TestRecoverSubstringMatches(t *testing.T) {
	kv := store.NewMemKV()
	seed(t, kv, map[string]string{
		"old_session_backup":   "[" + sessionB + "]",
		"guest_active_session": `{"subjectId":"anatomy","startTime":"2026-03-10T08:00:00Z","pausedTime":0,"isPaused":false}`,
	})
	r := New(kv, nil, "linux").RecoverAllData(context.Background(), "")
	require.True(t, r.Success)
	require.Len(t, r.Data.Sessions, 1)
	assert.Equal(t, "s2", r.Data.Sessions[0].ID)
	assert.Equal(t, []string{"old_session_backup"}, r.MatchedKeys)
	assert.Contains(t, Summary(r, 3), "old_session_backup")
}

func TestRecoverUserPartition(t *testing.T) {
	kv := store.NewMemKV()
	seed(t, kv, map[string]string{
		"cloud_user_u1_study_sessions": "[" + sessionA + "]",
	})
	r := New(kv, nil, "linux").RecoverAllData(context.Background(), "u1")
	require.True(t, r.Success)
	assert.Len(t, r.Data.Sessions, 1)
	assert.Empty(t, r.MatchedKeys)
}

func TestRecoverNothing(t *testing.T) {
	r := New(store.NewMemKV(), nil, "linux").RecoverAllData(context.Background(), "")
	assert.False(t, r.Success)
	assert.Equal(t, []string{msgNoKeys}, r.Errors)

	kv := store.NewMemKV()
	seed(t, kv, map[string]string{"unrelated": `{"a":1}`})
	r = New(kv, nil, "linux").RecoverAllData(context.Background(), "")
	assert.False(t, r.Success)
	assert.Equal(t, []string{msgNothingLocal}, r.Errors)
	assert.NotNil(t, r.Data.Sessions)
}

func TestRecoverReadErrorsAreReported(t *testing.T) {
	kv := store.NewMemKV()
	seed(t, kv, map[string]string{
		"guest_study_sessions": "[" + sessionA + "]",
		"STUDY_SESSIONS":       "[" + sessionB + "]",
	})
	kv.FailOn("STUDY_SESSIONS", errors.New("disk"))
	r := New(kv, nil, "linux").RecoverAllData(context.Background(), "")
	require.True(t, r.Success)
	assert.Len(t, r.Data.Sessions, 1)
	require.Len(t, r.Errors, 1)
	assert.Contains(t, r.Errors[0], "STUDY_SESSIONS")
}

func TestRecoverVaultShortCircuits(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemKV()
	seed(t, kv, map[string]string{"guest_study_sessions": "[" + sessionA + "]"})
	v := newMemVault()
	require.NoError(t, v.SetItem(ctx, "icloud_sessions", "["+sessionB+"]", vault.Options{}))
	require.NoError(t, v.SetItem(ctx, "icloud_guest_subjects", subjectsJSON, vault.Options{}))

	r := New(kv, v, "darwin").RecoverAllData(ctx, "")
	require.True(t, r.Success)
	assert.Equal(t, "vault", r.Source)
	require.Len(t, r.Data.Sessions, 1)
	assert.Equal(t, "s2", r.Data.Sessions[0].ID)
	require.Len(t, r.Data.Subjects, 1)
	assert.InDelta(t, 0.5, r.Data.Subjects[0].CompletedHours, 1e-9)

	r = New(kv, v, "linux").RecoverAllData(ctx, "")
	assert.Equal(t, "local", r.Source)
	assert.Equal(t, "s1", r.Data.Sessions[0].ID)
}

func TestRecoverEmptyVaultFallsBack(t *testing.T) {
	kv := store.NewMemKV()
	seed(t, kv, map[string]string{"guest_study_sessions": "[" + sessionA + "]"})
	r := New(kv, newMemVault(), "darwin").RecoverAllData(context.Background(), "")
	require.True(t, r.Success)
	assert.Equal(t, "local", r.Source)
	assert.Contains(t, r.Errors, msgNothingVault)
}

func dump(t *testing.T, kv store.KV) map[string]string {
	t.Helper()
	ctx := context.Background()
	all, err := kv.AllKeys(ctx)
	require.NoError(t, err)
	out := make(map[string]string, len(all))
	for _, k := range all {
		v, _, err := kv.Get(ctx, k)
		require.NoError(t, err)
		out[k] = v
	}
	return out
}

func TestRecoverTwiceWithoutSavingIsIdentical(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemKV()
	seed(t, kv, map[string]string{
		"guest_study_sessions": "[object Object]",
		"STUDY_SESSIONS":       "[" + sessionA + "," + sessionB + "]",
		"@study_sessions":      "[" + sessionA + "]",
		"studySessions":        "[" + sessionB + "]",
		"guest_test_scores":    "undefined",
		"@test_scores":         "[" + scoreA + "," + scoreA + "]",
		"SUBJECTS":             subjectsJSON,
		"old_session_backup":   "[" + sessionA + "]",
		"guest_exam_dates":     "obj",
	})
	before := dump(t, kv)

	svc := New(kv, nil, "linux")
	first := svc.RecoverAllData(ctx, "")
	second := svc.RecoverAllData(ctx, "")

	require.True(t, first.Success, first.Errors)
	assert.Equal(t, first, second)
	assert.Len(t, first.Data.Sessions, 2)
	assert.Len(t, first.Data.Scores, 1)
	assert.Equal(t, before, dump(t, kv), "recovery alone never writes")
}

func TestSaveThenRecoverIsStable(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemKV()
	seed(t, kv, map[string]string{
		"STUDY_SESSIONS":    "[" + sessionA + "," + sessionB + "]",
		"@test_scores":      "[" + scoreA + "]",
		"SUBJECTS":          subjectsJSON,
		"exam_dates":        `{"NEET_PG":"2026-06-15"}`,
		"guest_study_plans": `[]`,
	})
	svc := New(kv, nil, "linux")
	first := svc.RecoverAllData(ctx, "")
	require.True(t, first.Success)
	require.NoError(t, svc.SaveRecoveredData(ctx, first.Data, ""))

	raw, ok, err := kv.Get(ctx, keys.For("").StudySessions)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, raw, `"s2"`)
	_, ok, err = kv.Get(ctx, keys.For("").StudyPlans)
	require.NoError(t, err)
	assert.True(t, ok)

	second := svc.RecoverAllData(ctx, "")
	require.True(t, second.Success)
	assert.Equal(t, first.Data, second.Data)
}

func TestSaveRecoveredDataMirrorsForUsers(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemKV()
	svc := New(kv, nil, "linux")
	r := svc.RecoverAllData(ctx, "u1")
	require.NoError(t, svc.SaveRecoveredData(ctx, r.Data, "u1"))

	k := keys.For("u1")
	all, err := kv.AllKeys(ctx)
	require.NoError(t, err)
	assert.Contains(t, all, k.ExamDates)
	assert.Contains(t, all, k.Mirror(k.ExamDates))
	assert.NotContains(t, all, k.StudySessions)
}

func TestImmediateCorruptionCleanup(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemKV()
	seed(t, kv, map[string]string{
		"a": "obj",
		"b": `{"x":"[object Object]"}`,
		"c": `{"broken":`,
		"d": `[1,2]`,
		"e": `null`,
		"f": `"text"`,
	})
	svc := New(kv, nil, "linux")
	n, err := svc.ImmediateCorruptionCleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	all, err := kv.AllKeys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"d", "e", "f"}, all)

	n, err = svc.ImmediateCorruptionCleanup(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEmergencyCleanupCorruption(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemKV()
	seed(t, kv, map[string]string{
		"frag":    "o",
		"words":   "hello world",
		"alpha":   "abcdefghijklmno",
		"leading": "x = 1; y = 2",
		"fn":      "function () {}",
		"nan":     "NaN",
		"true":    "true",
		"null":    "null",
		"num":     "42",
		"obj":     `{"ok":true}`,
		"str":     `"fine"`,
	})
	svc := New(kv, nil, "linux")
	res := svc.EmergencyCleanupCorruption(ctx)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 6, res.Cleaned)

	all, err := kv.AllKeys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"true", "null", "num", "obj", "str"}, all)

	again := svc.EmergencyCleanupCorruption(ctx)
	assert.Zero(t, again.Cleaned)
}

func TestEmergencyCorrupt(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want bool
	}{
		{"", true},
		{"undefined", true},
		{"[object Object]", true},
		{"Q", true},
		{"False", false},
		{"-3.5", false},
		{`{"a":[1,2]}`, false},
		{`[{"a":"object"}]`, false},
		{"{not json", true},
		{strings.Repeat("a", 60), true},
	} {
		_, got := emergencyCorrupt(tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestSummary(t *testing.T) {
	r := Result{Errors: []string{"one", "two", "three"}}
	s := Summary(r, 2)
	assert.True(t, strings.HasPrefix(s, "No data recovered"))
	assert.Contains(t, s, "- two")
	assert.NotContains(t, s, "three")
	assert.Contains(t, s, "and 1 more")
}
