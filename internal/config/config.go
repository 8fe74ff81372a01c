package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process-wide settings for studylog.
type Config struct {
	// DBPath is the key-value database file. Empty means the default XDG path.
	DBPath string
	// VaultDBPath is the secure vault database file. Empty means the default XDG path.
	VaultDBPath string
	// VaultPassphrase is the key material for vault items. The vault is
	// unavailable when it is empty.
	VaultPassphrase string
	// Platform tags backups and gates the vault.
	Platform string
	// VaultPlatforms lists the platforms on which the vault exists.
	VaultPlatforms []string

	VaultMaxItemBytes int
	VaultMaxItems     int

	MaxBackups         int
	AutoBackupInterval time.Duration
	// AutoBackupDelay is how long study data must stay unchanged before an
	// automatic backup is attempted.
	AutoBackupDelay time.Duration

	// DayBoundaryHour is the local hour at which today's progress rolls over.
	DayBoundaryHour int

	LogMode     string
	LogLevel    string
	LogRedact   bool
	LogHashSalt string
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Platform:           runtime.GOOS,
		VaultPlatforms:     []string{"darwin", "ios"},
		VaultMaxItemBytes:  2 << 20,
		VaultMaxItems:      64,
		MaxBackups:         10,
		AutoBackupInterval: 24 * time.Hour,
		AutoBackupDelay:    5 * time.Second,
		DayBoundaryHour:    3,
		LogMode:            "dev",
		LogLevel:           "warn",
		LogRedact:          true,
	}
}

// Load reads an optional .env file from the working directory and then
// overlays STUDYLOG_* environment variables on Default().
func Load() (Config, error) {
	return LoadFiles(".env")
}

// LoadFiles is Load with explicit dotenv files. Missing files are ignored.
// Variables already set in the environment win over file values.
func LoadFiles(files ...string) (Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables, falling back to
// defaults for unset values.
func FromEnv() (Config, error) {
	cfg := Default()

	cfg.DBPath = os.Getenv("STUDYLOG_DB")
	cfg.VaultDBPath = os.Getenv("STUDYLOG_VAULT_DB")
	cfg.VaultPassphrase = os.Getenv("STUDYLOG_VAULT_PASSPHRASE")

	if p := os.Getenv("STUDYLOG_PLATFORM"); p != "" {
		cfg.Platform = strings.ToLower(p)
	}
	if p := os.Getenv("STUDYLOG_VAULT_PLATFORMS"); p != "" {
		cfg.VaultPlatforms = splitList(p)
	}
	if m := os.Getenv("STUDYLOG_LOG_MODE"); m != "" {
		cfg.LogMode = m
	}
	if l := os.Getenv("STUDYLOG_LOG_LEVEL"); l != "" {
		cfg.LogLevel = l
	}
	cfg.LogHashSalt = os.Getenv("STUDYLOG_LOG_HASH_SALT")

	var err error
	if cfg.LogRedact, err = envBool("STUDYLOG_LOG_REDACT", cfg.LogRedact); err != nil {
		return Config{}, err
	}
	if cfg.MaxBackups, err = envInt("STUDYLOG_MAX_BACKUPS", cfg.MaxBackups); err != nil {
		return Config{}, err
	}
	if cfg.DayBoundaryHour, err = envInt("STUDYLOG_DAY_BOUNDARY_HOUR", cfg.DayBoundaryHour); err != nil {
		return Config{}, err
	}
	if cfg.VaultMaxItemBytes, err = envInt("STUDYLOG_VAULT_MAX_ITEM_BYTES", cfg.VaultMaxItemBytes); err != nil {
		return Config{}, err
	}
	if cfg.VaultMaxItems, err = envInt("STUDYLOG_VAULT_MAX_ITEMS", cfg.VaultMaxItems); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("STUDYLOG_AUTO_BACKUP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("STUDYLOG_AUTO_BACKUP_INTERVAL: %w", err)
		}
		cfg.AutoBackupInterval = d
	}
	if v := os.Getenv("STUDYLOG_AUTO_BACKUP_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("STUDYLOG_AUTO_BACKUP_DELAY: %w", err)
		}
		cfg.AutoBackupDelay = d
	}

	return cfg, cfg.Validate()
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.MaxBackups < 1 {
		return fmt.Errorf("max backups must be at least 1, got %d", c.MaxBackups)
	}
	if c.DayBoundaryHour < 0 || c.DayBoundaryHour > 23 {
		return fmt.Errorf("day boundary hour must be within 0-23, got %d", c.DayBoundaryHour)
	}
	if c.VaultMaxItemBytes <= 0 || c.VaultMaxItems <= 0 {
		return fmt.Errorf("vault limits must be positive")
	}
	if c.AutoBackupInterval <= 0 {
		return fmt.Errorf("auto backup interval must be positive")
	}
	if c.AutoBackupDelay < 0 {
		return fmt.Errorf("auto backup delay must not be negative")
	}
	return nil
}

// VaultSupported reports whether the secure vault exists on the configured platform.
func (c Config) VaultSupported() bool {
	for _, p := range c.VaultPlatforms {
		if p == c.Platform {
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
