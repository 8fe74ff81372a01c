package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/studylog/internal/auth"
	"github.com/abhisek/studylog/internal/backup"
	"github.com/abhisek/studylog/internal/config"
	"github.com/abhisek/studylog/internal/extract"
	"github.com/abhisek/studylog/internal/logger"
	"github.com/abhisek/studylog/internal/recovery"
	"github.com/abhisek/studylog/internal/store"
	"github.com/abhisek/studylog/internal/study"
	"github.com/abhisek/studylog/internal/timer"
	"github.com/abhisek/studylog/internal/vault"
)

// env is everything a command needs, opened once per invocation.
type env struct {
	cfg   config.Config
	log   *logger.Logger
	store *store.Store
	vault *vault.SQLite

	auth  *auth.Sessions
	study *study.Service
	auto  *autoBackup
}

// openEnv loads configuration, opens the store and the vault, sweeps
// corrupted values and loads the current user's partition. With a vault,
// later data changes schedule an automatic backup.
func openEnv(cmd *cobra.Command) (*env, error) {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		cfg.DBPath = p
	}
	if p, _ := cmd.Flags().GetString("vault-db"); p != "" {
		cfg.VaultDBPath = p
	}
	if l, _ := cmd.Flags().GetString("log-level"); l != "" {
		cfg.LogLevel = l
	}

	log, err := logger.New(logger.Options{
		Mode:     cfg.LogMode,
		Level:    cfg.LogLevel,
		Redact:   cfg.LogRedact,
		HashSalt: cfg.LogHashSalt,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	e := &env{cfg: cfg, log: log}

	dbPath, err := resolvePath(cfg.DBPath, store.DefaultDBPath)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	if e.store, err = store.Open(dbPath); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.VaultSupported() && cfg.VaultPassphrase != "" {
		vaultPath, err := resolvePath(cfg.VaultDBPath, store.DefaultVaultPath)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("resolve vault path: %w", err)
		}
		e.vault, err = vault.Open(vaultPath, cfg.VaultPassphrase, vault.Limits{
			MaxItemBytes: cfg.VaultMaxItemBytes,
			MaxItems:     cfg.VaultMaxItems,
		})
		if errors.Is(err, vault.ErrInvalidPassphrase) {
			e.Close()
			return nil, err
		}
		if err != nil {
			log.Warn("secure vault unavailable", "error", err)
		}
	}

	if err := timer.ClearCorruptedTimerData(ctx, e.store, log); err != nil {
		log.Warn("timer state check failed", "error", err)
	}
	if res := e.recovery().EmergencyCleanupCorruption(ctx); len(res.Errors) > 0 {
		log.Warn("startup cleanup incomplete", "cleaned", res.Cleaned, "errors", len(res.Errors))
	}

	e.auth = auth.NewSessions(e.store, log, nil)
	e.study = study.New(e.store,
		study.WithLogger(log),
		study.WithDayBoundaryHour(cfg.DayBoundaryHour),
	)

	user, err := e.auth.Load(ctx)
	if err != nil {
		log.Warn("load user failed", "error", err)
	}
	if user != nil {
		err = e.study.SetUser(ctx, user)
	} else {
		err = e.study.Load(ctx)
	}
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("load study data: %w", err)
	}
	if _, err := e.study.CheckDayRollover(ctx); err != nil {
		log.Warn("day rollover failed", "error", err)
	}
	if e.vault != nil {
		e.auto = newAutoBackup(ctx, e.backups(), e.study, log, cfg.AutoBackupDelay)
	}
	return e, nil
}

func resolvePath(override string, def func() (string, error)) (string, error) {
	if override != "" {
		return override, store.EnsureDir(override)
	}
	return def()
}

func (e *env) Close() {
	if e.auto != nil {
		e.auto.flush()
	}
	if e.vault != nil {
		_ = e.vault.Close()
	}
	if e.store != nil {
		_ = e.store.Close()
	}
	e.log.Sync()
}

// vaultOrUnavailable never returns nil; backups check it.
func (e *env) vaultOrUnavailable() vault.Vault {
	if e.vault == nil {
		return vault.Unavailable{}
	}
	return e.vault
}

func (e *env) backups() *backup.Service {
	return backup.New(e.vaultOrUnavailable(), e.cfg.Platform,
		backup.WithLogger(e.log),
		backup.WithPlatforms(e.cfg.VaultPlatforms...),
		backup.WithMaxBackups(e.cfg.MaxBackups),
		backup.WithAutoInterval(e.cfg.AutoBackupInterval),
	)
}

func (e *env) recovery() *recovery.Service {
	var v vault.Vault
	if e.vault != nil {
		v = e.vault
	}
	return recovery.New(e.store, v, e.cfg.Platform,
		recovery.WithLogger(e.log),
		recovery.WithPlatforms(e.cfg.VaultPlatforms...),
	)
}

// userID is "" for the guest partition.
func (e *env) userID() string {
	if u := e.study.User(); u != nil {
		return u.ID
	}
	return ""
}

// subject resolves an id, an exact name or a partial name.
func (e *env) subject(arg string) (study.Subject, error) {
	subjects := e.study.Subjects()
	for _, s := range subjects {
		if s.ID == arg || strings.EqualFold(s.Name, arg) {
			return s, nil
		}
	}
	if s, ok := extract.Match(arg, subjects); ok {
		return s, nil
	}
	return study.Subject{}, fmt.Errorf("unknown subject %q", arg)
}

// confirm asks a yes/no question on stdin. --yes skips it.
func confirm(cmd *cobra.Command, question string) bool {
	if yes, _ := cmd.Flags().GetBool("yes"); yes {
		return true
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N] ", question)
	line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
