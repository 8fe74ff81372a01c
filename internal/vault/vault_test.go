package vault

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	kdf.memory = 1024
	kdf.threads = 1
	os.Exit(m.Run())
}

func openTestVault(t *testing.T, limits Limits) *SQLite {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	v, err := Open(dsn, "correct horse", limits)
	require.NoError(t, err)
	t.Cleanup(func() { v.Close() })
	return v
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	v := openTestVault(t, Limits{})

	_, ok, err := v.GetItem(ctx, "missing", Options{})
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, v.SetItem(ctx, "backup_guest_1", `{"a":1}`, Options{}))
	require.NoError(t, v.SetItem(ctx, "backup_guest_1", `{"a":2}`, Options{}))
	got, ok, err := v.GetItem(ctx, "backup_guest_1", Options{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"a":2}`, got)

	require.NoError(t, v.DeleteItem(ctx, "backup_guest_1", Options{}))
	_, ok, err = v.GetItem(ctx, "backup_guest_1", Options{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCiphertextIsNotPlaintext(t *testing.T) {
	ctx := context.Background()
	v := openTestVault(t, Limits{})
	require.NoError(t, v.SetItem(ctx, "k", "very secret value", Options{}))

	var blob []byte
	require.NoError(t, v.db.QueryRow(`SELECT ciphertext FROM vault_items WHERE key = 'k'`).Scan(&blob))
	assert.NotContains(t, string(blob), "very secret value")
}

func TestServicesAreIsolated(t *testing.T) {
	ctx := context.Background()
	v := openTestVault(t, Limits{})
	require.NoError(t, v.SetItem(ctx, "k", "one", Options{Service: "A"}))
	require.NoError(t, v.SetItem(ctx, "k", "two", Options{}))

	got, _, err := v.GetItem(ctx, "k", Options{Service: "A"})
	require.NoError(t, err)
	assert.Equal(t, "one", got)

	keys, err := v.Keys(ctx, Options{Service: DefaultService})
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, keys)
}

func TestMovedCiphertextFailsToOpen(t *testing.T) {
	ctx := context.Background()
	v := openTestVault(t, Limits{})
	require.NoError(t, v.SetItem(ctx, "a", "alpha", Options{}))
	require.NoError(t, v.SetItem(ctx, "b", "beta", Options{}))

	// Copy a's sealed blob under b. The associated data no longer matches.
	_, err := v.db.Exec(`UPDATE vault_items SET ciphertext = (SELECT ciphertext FROM vault_items WHERE key = 'a') WHERE key = 'b'`)
	require.NoError(t, err)

	_, _, err = v.GetItem(ctx, "b", Options{})
	assert.ErrorIs(t, err, ErrItemCorrupted)
}

func TestLimits(t *testing.T) {
	ctx := context.Background()
	v := openTestVault(t, Limits{MaxItemBytes: 8, MaxItems: 2})

	err := v.SetItem(ctx, "big", "123456789", Options{})
	assert.ErrorIs(t, err, ErrValueTooLarge)

	require.NoError(t, v.SetItem(ctx, "a", "1", Options{}))
	require.NoError(t, v.SetItem(ctx, "b", "2", Options{}))
	assert.ErrorIs(t, v.SetItem(ctx, "c", "3", Options{}), ErrVaultFull)
	require.NoError(t, v.SetItem(ctx, "b", "22", Options{}), "overwrite fits")

	keys, err := v.Keys(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestRequireAuthenticationRejected(t *testing.T) {
	ctx := context.Background()
	v := openTestVault(t, Limits{})
	opts := Options{RequireAuthentication: true}
	assert.ErrorIs(t, v.SetItem(ctx, "k", "v", opts), ErrAuthRequired)
	_, _, err := v.GetItem(ctx, "k", opts)
	assert.ErrorIs(t, err, ErrAuthRequired)
}

func TestReopenChecksPassphrase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vault.db")

	v, err := Open(path, "first", Limits{})
	require.NoError(t, err)
	require.NoError(t, v.SetItem(ctx, "k", "v", Options{}))
	require.NoError(t, v.Close())

	_, err = Open(path, "second", Limits{})
	assert.ErrorIs(t, err, ErrInvalidPassphrase)

	v, err = Open(path, "first", Limits{})
	require.NoError(t, err)
	defer v.Close()
	got, ok, err := v.GetItem(ctx, "k", Options{})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestOpenWithoutPassphrase(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "vault.db"), "", Limits{})
	assert.ErrorIs(t, err, ErrVaultUnavailable)
}

func TestUnavailable(t *testing.T) {
	ctx := context.Background()
	var v Vault = Unavailable{}
	assert.ErrorIs(t, v.SetItem(ctx, "k", "v", Options{}), ErrVaultUnavailable)
	_, _, err := v.GetItem(ctx, "k", Options{})
	assert.ErrorIs(t, err, ErrVaultUnavailable)
	assert.ErrorIs(t, v.DeleteItem(ctx, "k", Options{}), ErrVaultUnavailable)
	_, err = v.Keys(ctx, Options{})
	assert.ErrorIs(t, err, ErrVaultUnavailable)
}
