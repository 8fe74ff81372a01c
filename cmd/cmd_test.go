package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/studylog/internal/store"
)

// run executes the root command against a database in dir, answering
// prompts with input.
func run(t *testing.T, db, input string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(input))
	rootCmd.SetArgs(append([]string{"--db", db, "--log-level", "error"}, args...))
	t.Cleanup(func() { resetFlags(rootCmd) })
	require.NoError(t, rootCmd.ExecuteContext(context.Background()), out.String())
	resetFlags(rootCmd)
	return out.String()
}

// resetFlags undoes flag parsing so one invocation does not leak into the next.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if f.Changed {
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				_ = sv.Replace(nil)
			} else {
				_ = f.Value.Set(f.DefValue)
			}
			f.Changed = false
		}
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func testDB(t *testing.T) string {
	t.Helper()
	t.Setenv("STUDYLOG_PLATFORM", "linux")
	t.Setenv("STUDYLOG_VAULT_PASSPHRASE", "")
	return filepath.Join(t.TempDir(), "studylog.db")
}

func TestSessionAddAndList(t *testing.T) {
	db := testDB(t)

	out := run(t, db, "", "session", "add", "anatomy", "45", "--notes", "upper limb")
	assert.Contains(t, out, "Recorded 45m of Anatomy")

	out = run(t, db, "", "session", "list")
	assert.Contains(t, out, "Anatomy")
	assert.Contains(t, out, "upper limb")

	out = run(t, db, "", "stats")
	assert.Contains(t, out, "Anatomy")
}

func TestSessionLifecycle(t *testing.T) {
	db := testDB(t)

	assert.Contains(t, run(t, db, "", "session", "start", "physio"), "Started Physiology")
	assert.Contains(t, run(t, db, "", "session", "status"), "running")

	run(t, db, "", "session", "pause")
	assert.Contains(t, run(t, db, "", "session", "status"), "paused")

	run(t, db, "", "session", "resume")
	assert.Contains(t, run(t, db, "", "session", "end", "--notes", "cardio"), "Recorded")
	assert.Contains(t, run(t, db, "", "session", "status"), "No active session.")
	assert.Contains(t, run(t, db, "", "session", "end"), "No active session.")
}

func TestScoreAdd(t *testing.T) {
	db := testDB(t)

	out := run(t, db, "", "score", "add", "Grand Test 3", "--type", "NEET",
		"--total", "800", "--obtained", "520", "--subject", "anatomy=15/20")
	assert.Contains(t, out, "Grand Test 3 [NEET]")
	assert.Contains(t, out, "15/20 (75.0%)")

	assert.Contains(t, run(t, db, "", "score", "list"), "520/800 (65.0%)")
}

func TestRecoverDeclined(t *testing.T) {
	db := testDB(t)
	run(t, db, "", "session", "add", "pathology", "30")

	out := run(t, db, "n\n", "recover")
	assert.Contains(t, out, "Recovered 1 sessions")
	assert.Contains(t, out, "Nothing written.")
}

func TestResetRequiresConfirmation(t *testing.T) {
	db := testDB(t)
	run(t, db, "", "session", "add", "surgery", "20")

	assert.Contains(t, run(t, db, "no\n", "reset"), "Reset cancelled.")
	assert.Contains(t, run(t, db, "", "session", "list"), "Surgery")

	assert.Contains(t, run(t, db, "y\n", "reset"), "All data cleared.")
	assert.Contains(t, run(t, db, "", "session", "list"), "No sessions recorded.")
}

func TestExamAndTarget(t *testing.T) {
	db := testDB(t)

	run(t, db, "", "exam", "--neet-pg", "2030-08-01")
	assert.Contains(t, run(t, db, "", "exam"), "NEET PG: 2030-08-01")

	run(t, db, "", "target", "6")
	assert.Contains(t, run(t, db, "", "target"), "6h per day")
}

func TestBackupUnavailableOffVaultPlatforms(t *testing.T) {
	db := testDB(t)
	assert.Contains(t, run(t, db, "", "backup", "status"), "Status:")
}

func TestVersion(t *testing.T) {
	assert.Contains(t, run(t, testDB(t), "", "version"), "studylog")
}

func TestMutationTriggersOneAutoBackup(t *testing.T) {
	db := testDB(t)
	t.Setenv("STUDYLOG_PLATFORM", "darwin")
	t.Setenv("STUDYLOG_VAULT_PASSPHRASE", "correct horse")
	t.Setenv("STUDYLOG_VAULT_DB", filepath.Join(t.TempDir(), "vault.db"))
	t.Setenv("STUDYLOG_AUTO_BACKUP_DELAY", "1h")

	run(t, db, "", "session", "list")
	assert.Contains(t, run(t, db, "", "backup", "list"), "No backups.")

	run(t, db, "", "session", "add", "anatomy", "45")
	run(t, db, "", "score", "add", "GT 1", "--total", "200", "--obtained", "120")

	out := run(t, db, "", "backup", "list")
	assert.Equal(t, 1, strings.Count(out, "Just now"), out)
	assert.Contains(t, run(t, db, "", "backup", "status"), "Backups:      1")
}

func TestStartupRemovesCorruptedValues(t *testing.T) {
	db := testDB(t)
	run(t, db, "", "session", "list")

	ctx := context.Background()
	kv, err := store.Open(db)
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, "widget_cache", "[object Object]"))
	require.NoError(t, kv.Set(ctx, "widget_theme", `"dark"`))
	require.NoError(t, kv.Close())

	run(t, db, "", "session", "list")

	kv, err = store.Open(db)
	require.NoError(t, err)
	defer kv.Close()
	_, ok, err := kv.Get(ctx, "widget_cache")
	require.NoError(t, err)
	assert.False(t, ok, "corrupted value survives startup")
	got, ok, err := kv.Get(ctx, "widget_theme")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `"dark"`, got)
}
