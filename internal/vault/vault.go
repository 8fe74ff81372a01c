// Package vault is a secure per-item key-value store with practical
// capacity limits. Backups live here rather than in the general store.
package vault

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/abhisek/studylog/internal/store"
)

// DefaultService is the namespace backups are written under.
const DefaultService = "StudyTrackerBackup"

const (
	saltLength = 16
	keyLength  = chacha20poly1305.KeySize
	checkPlain = "studylog-vault"

	metaTable  = "vault_meta"
	itemsTable = "vault_items"
)

var (
	ErrVaultUnavailable  = errors.New("vault: not available")
	ErrInvalidPassphrase = errors.New("vault: invalid passphrase")
	ErrValueTooLarge     = errors.New("vault: value too large")
	ErrVaultFull         = errors.New("vault: item limit reached")
	ErrItemCorrupted     = errors.New("vault: item cannot be decrypted")
	ErrAuthRequired      = errors.New("vault: interactive authentication is not supported")
)

// kdf holds the argon2id cost parameters.
var kdf = struct {
	time    uint32
	memory  uint32
	threads uint8
}{time: 1, memory: 64 * 1024, threads: 4}

// Options select the item namespace. RequireAuthentication must stay false:
// reads happen in the background with nobody to unlock the vault.
type Options struct {
	Service               string
	RequireAuthentication bool
}

func (o Options) service() (string, error) {
	if o.RequireAuthentication {
		return "", ErrAuthRequired
	}
	if o.Service == "" {
		return DefaultService, nil
	}
	return o.Service, nil
}

// Limits cap what a single service may hold.
type Limits struct {
	MaxItemBytes int
	MaxItems     int
}

// Vault is the item-level contract backups and recovery depend on.
type Vault interface {
	SetItem(ctx context.Context, key, value string, opts Options) error
	GetItem(ctx context.Context, key string, opts Options) (string, bool, error)
	DeleteItem(ctx context.Context, key string, opts Options) error
	Keys(ctx context.Context, opts Options) ([]string, error)
}

// SQLite is a Vault sealed with XChaCha20-Poly1305 under an argon2id key.
type SQLite struct {
	db     *sql.DB
	drv    *entsql.Driver
	limits Limits
	now    func() time.Time

	mu   sync.Mutex
	aead cipher.AEAD
}

var _ Vault = (*SQLite)(nil)

// Open opens or creates the vault at dsn. An empty passphrase means the
// vault is unavailable. A passphrase that does not match the one the vault
// was created with returns ErrInvalidPassphrase.
func Open(dsn, passphrase string, limits Limits) (*SQLite, error) {
	if passphrase == "" {
		return nil, ErrVaultUnavailable
	}
	db, err := store.OpenDB(dsn)
	if err != nil {
		return nil, err
	}
	v := &SQLite{db: db, drv: entsql.OpenDB(dialect.SQLite, db), limits: limits, now: time.Now}
	if err := v.init(context.Background(), passphrase); err != nil {
		db.Close()
		return nil, err
	}
	return v, nil
}

func (v *SQLite) Close() error {
	return v.db.Close()
}

func (v *SQLite) init(ctx context.Context, passphrase string) error {
	tables := []*entsql.TableBuilder{
		store.SQL.CreateTable(metaTable).IfNotExists().
			Columns(
				entsql.Column("name").Type("TEXT").Attr("PRIMARY KEY"),
				entsql.Column("value").Type("BLOB").Attr("NOT NULL"),
			),
		store.SQL.CreateTable(itemsTable).IfNotExists().
			Columns(
				entsql.Column("service").Type("TEXT").Attr("NOT NULL"),
				entsql.Column("key").Type("TEXT").Attr("NOT NULL"),
				entsql.Column("nonce").Type("BLOB").Attr("NOT NULL"),
				entsql.Column("ciphertext").Type("BLOB").Attr("NOT NULL"),
				entsql.Column("updated_at").Type("TIMESTAMP").Attr("NOT NULL"),
			).
			PrimaryKey("service", "key"),
	}
	for _, t := range tables {
		if err := store.Exec(ctx, v.drv, t); err != nil {
			return fmt.Errorf("create vault tables: %w", err)
		}
	}

	salt, err := v.meta(ctx, "salt")
	if err != nil {
		return err
	}
	fresh := salt == nil
	if fresh {
		salt = make([]byte, saltLength)
		if _, err := rand.Read(salt); err != nil {
			return fmt.Errorf("generate salt: %w", err)
		}
	}

	key := argon2.IDKey([]byte(passphrase), salt, kdf.time, kdf.memory, kdf.threads, keyLength)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return fmt.Errorf("init cipher: %w", err)
	}
	v.aead = aead

	if fresh {
		check, err := v.seal("vault_meta", "check", []byte(checkPlain))
		if err != nil {
			return err
		}
		err = store.Exec(ctx, v.drv, store.SQL.Insert(metaTable).
			Columns("name", "value").
			Values("salt", salt).
			Values("check", check))
		if err != nil {
			return fmt.Errorf("save vault meta: %w", err)
		}
		return nil
	}

	check, err := v.meta(ctx, "check")
	if err != nil {
		return err
	}
	plain, err := v.open("vault_meta", "check", check)
	if err != nil || string(plain) != checkPlain {
		return ErrInvalidPassphrase
	}
	return nil
}

func (v *SQLite) meta(ctx context.Context, name string) ([]byte, error) {
	var b []byte
	err := store.Scan(ctx, v.drv, store.SQL.Select("value").
		From(entsql.Table(metaTable)).
		Where(entsql.EQ("name", name)),
		func(rows *entsql.Rows) error { return rows.Scan(&b) })
	if err != nil {
		return nil, fmt.Errorf("read vault meta %s: %w", name, err)
	}
	return b, nil
}

// seal returns nonce||ciphertext, bound to service and key.
func (v *SQLite) seal(service, key string, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	ct := v.aead.Seal(nil, nonce, plaintext, associatedData(service, key))
	return append(nonce, ct...), nil
}

func (v *SQLite) open(service, key string, blob []byte) ([]byte, error) {
	n := v.aead.NonceSize()
	if len(blob) < n {
		return nil, ErrItemCorrupted
	}
	plain, err := v.aead.Open(nil, blob[:n], blob[n:], associatedData(service, key))
	if err != nil {
		return nil, ErrItemCorrupted
	}
	return plain, nil
}

func associatedData(service, key string) []byte {
	return []byte(service + "\x00" + key)
}

func (v *SQLite) SetItem(ctx context.Context, key, value string, opts Options) error {
	service, err := opts.service()
	if err != nil {
		return err
	}
	if v.limits.MaxItemBytes > 0 && len(value) > v.limits.MaxItemBytes {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrValueTooLarge, len(value), v.limits.MaxItemBytes)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	blob, err := v.seal(service, key, []byte(value))
	if err != nil {
		return err
	}

	tx, err := v.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if v.limits.MaxItems > 0 {
		var others int
		err := store.Scan(ctx, tx, store.SQL.Select(entsql.Count("*")).
			From(entsql.Table(itemsTable)).
			Where(entsql.And(entsql.EQ("service", service), entsql.NEQ("key", key))),
			func(rows *entsql.Rows) error { return rows.Scan(&others) })
		if err != nil {
			return fmt.Errorf("count items: %w", err)
		}
		if others >= v.limits.MaxItems {
			return fmt.Errorf("%w: %d items", ErrVaultFull, others)
		}
	}

	// The nonce is also the blob prefix; the column keeps it queryable.
	nonce := blob[:v.aead.NonceSize()]
	err = store.Exec(ctx, tx, store.SQL.Insert(itemsTable).
		Columns("service", "key", "nonce", "ciphertext", "updated_at").
		Values(service, key, nonce, blob, v.now().UTC()).
		OnConflict(
			entsql.ConflictColumns("service", "key"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.SetExcluded("nonce")
				u.SetExcluded("ciphertext")
				u.SetExcluded("updated_at")
			}),
		))
	if err != nil {
		return fmt.Errorf("set item %q: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (v *SQLite) GetItem(ctx context.Context, key string, opts Options) (string, bool, error) {
	service, err := opts.service()
	if err != nil {
		return "", false, err
	}
	var blob []byte
	found := false
	err = store.Scan(ctx, v.drv, store.SQL.Select("ciphertext").
		From(entsql.Table(itemsTable)).
		Where(entsql.And(entsql.EQ("service", service), entsql.EQ("key", key))),
		func(rows *entsql.Rows) error {
			found = true
			return rows.Scan(&blob)
		})
	if err != nil {
		return "", false, fmt.Errorf("get item %q: %w", key, err)
	}
	if !found {
		return "", false, nil
	}

	v.mu.Lock()
	plain, err := v.open(service, key, blob)
	v.mu.Unlock()
	if err != nil {
		return "", false, fmt.Errorf("get item %q: %w", key, err)
	}
	return string(plain), true, nil
}

func (v *SQLite) DeleteItem(ctx context.Context, key string, opts Options) error {
	service, err := opts.service()
	if err != nil {
		return err
	}
	err = store.Exec(ctx, v.drv, store.SQL.Delete(itemsTable).
		Where(entsql.And(entsql.EQ("service", service), entsql.EQ("key", key))))
	if err != nil {
		return fmt.Errorf("delete item %q: %w", key, err)
	}
	return nil
}

// Keys lists the item keys of a service in sorted order.
func (v *SQLite) Keys(ctx context.Context, opts Options) ([]string, error) {
	service, err := opts.service()
	if err != nil {
		return nil, err
	}
	keys, err := store.Strings(ctx, v.drv, store.SQL.Select("key").
		From(entsql.Table(itemsTable)).
		Where(entsql.EQ("service", service)).
		OrderBy("key"))
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return keys, nil
}

// Unavailable is the Vault of platforms that have none. Every call fails
// with ErrVaultUnavailable.
type Unavailable struct{}

var _ Vault = Unavailable{}

func (Unavailable) SetItem(context.Context, string, string, Options) error {
	return ErrVaultUnavailable
}
func (Unavailable) GetItem(context.Context, string, Options) (string, bool, error) {
	return "", false, ErrVaultUnavailable
}
func (Unavailable) DeleteItem(context.Context, string, Options) error { return ErrVaultUnavailable }
func (Unavailable) Keys(context.Context, Options) ([]string, error) {
	return nil, ErrVaultUnavailable
}
