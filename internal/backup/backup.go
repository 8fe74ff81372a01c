// Package backup snapshots a partition's study data into the secure vault
// and restores it. Every operation reports failure in its result rather
// than returning an error.
package backup

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"golang.org/x/mod/semver"

	"github.com/abhisek/studylog/internal/auth"
	"github.com/abhisek/studylog/internal/logger"
	"github.com/abhisek/studylog/internal/safejson"
	"github.com/abhisek/studylog/internal/study"
	"github.com/abhisek/studylog/internal/vault"
)

const (
	Version    = "2.0.0"
	AppVersion = "1.0.0"

	DefaultMaxBackups   = 10
	DefaultAutoInterval = 24 * time.Hour

	keyPrefix    = "backup_"
	indexPrefix  = "backup_index_"
	statusPrefix = "backup_status_"
	checkKey     = "test_availability"
)

var (
	ErrBackupNotFound    = errors.New("backup not found")
	ErrInvalidBackupData = errors.New("invalid backup data")
	ErrNewerVersion      = errors.New("backup was written by a newer version")
)

// Result is the outcome of a mutating operation. Timestamp identifies the
// snapshot CreateBackup wrote.
type Result struct {
	Success   bool
	Error     string
	Timestamp string
}

type RestoreResult struct {
	Success bool
	Data    *study.Data
	Error   string
}

type CleanupResult struct {
	Success bool
	Deleted int
	Error   string
}

type AutoResult struct {
	Created bool
	Skipped string
	Error   string
}

type Status struct {
	IsAvailable    bool
	LastBackupDate string
	BackupCount    int
	Error          string
}

// Info is Status phrased for display.
type Info struct {
	IsAvailable    bool
	Status         string
	LastBackupDate string
	BackupCount    int
	NextAutoBackup string
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithLogger(l *logger.Logger) Option { return func(s *Service) { s.log = l } }

func WithMaxBackups(n int) Option { return func(s *Service) { s.maxBackups = n } }

func WithAutoInterval(d time.Duration) Option { return func(s *Service) { s.interval = d } }

// WithPlatforms lists the platforms on which the vault exists.
func WithPlatforms(p ...string) Option { return func(s *Service) { s.platforms = p } }

type Service struct {
	vault      vault.Vault
	platform   string
	platforms  []string
	opts       vault.Options
	maxBackups int
	interval   time.Duration
	log        *logger.Logger
	now        func() time.Time
}

func New(v vault.Vault, platform string, opts ...Option) *Service {
	s := &Service{
		vault:      v,
		platform:   platform,
		platforms:  []string{"darwin", "ios"},
		opts:       vault.Options{Service: vault.DefaultService},
		maxBackups: DefaultMaxBackups,
		interval:   DefaultAutoInterval,
		log:        logger.Nop(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func owner(userID string) string {
	if userID == "" {
		return "guest"
	}
	return userID
}

func (s *Service) supported() bool { return slices.Contains(s.platforms, s.platform) }

func (s *Service) unsupported() string {
	return fmt.Sprintf("secure vault is not available on %s", s.platform)
}

// IsAvailable round-trips a throwaway item. It never fails; any error
// reads as unavailable.
func (s *Service) IsAvailable(ctx context.Context) bool {
	if !s.supported() {
		return false
	}
	const marker = "test"
	if err := s.vault.SetItem(ctx, checkKey, marker, s.opts); err != nil {
		if errors.Is(err, vault.ErrVaultFull) {
			// Full is reachable; CreateBackup makes room.
			_, kerr := s.vault.Keys(ctx, s.opts)
			return kerr == nil
		}
		s.log.Debug("vault check failed", "error", err)
		return false
	}
	got, ok, err := s.vault.GetItem(ctx, checkKey, s.opts)
	if derr := s.vault.DeleteItem(ctx, checkKey, s.opts); derr != nil {
		s.log.Debug("vault check cleanup failed", "error", derr)
	}
	return err == nil && ok && got == marker
}

// CreateBackup writes d as a new snapshot, indexes it, records the backup
// time and then trims old snapshots.
func (s *Service) CreateBackup(ctx context.Context, d study.Data, user *auth.User) Result {
	if !s.supported() {
		return Result{Error: s.unsupported()}
	}
	if !s.IsAvailable(ctx) {
		return Result{Error: vault.ErrVaultUnavailable.Error()}
	}

	userID := ""
	if user.Valid() {
		userID = user.ID
	}
	key, now, err := s.freeKey(ctx, userID, s.now())
	if err != nil {
		return Result{Error: err.Error()}
	}
	snap := newSnapshot(d.Clone(), user, s.platform, now)
	raw, err := safejson.Marshal(snap)
	if err != nil {
		return Result{Error: fmt.Sprintf("encode backup: %v", err)}
	}

	err = s.vault.SetItem(ctx, key, raw, s.opts)
	if errors.Is(err, vault.ErrVaultFull) && s.makeRoom(ctx, userID) {
		err = s.vault.SetItem(ctx, key, raw, s.opts)
	}
	if err != nil {
		s.log.Error("backup write failed", "user_id", userID, "error", err)
		return Result{Error: err.Error()}
	}
	s.addToIndex(ctx, userID, key)
	s.updateStatus(ctx, userID, snap.Timestamp)
	if r := s.CleanupOldBackups(ctx, userID); !r.Success {
		s.log.Warn("backup cleanup failed", "user_id", userID, "error", r.Error)
	}

	s.log.Info("backup created", "user_id", userID, "timestamp", snap.Timestamp,
		"sessions", snap.Metadata.TotalSessions, "tests", snap.Metadata.TotalTests)
	return Result{Success: true, Timestamp: snap.Timestamp}
}

// freeKey returns the snapshot key for now. When a snapshot already holds
// that millisecond, now moves forward until the key is free.
func (s *Service) freeKey(ctx context.Context, userID string, now time.Time) (string, time.Time, error) {
	now = now.Truncate(time.Millisecond)
	for {
		if err := ctx.Err(); err != nil {
			return "", now, err
		}
		key := fmt.Sprintf("%s%s_%d", keyPrefix, owner(userID), now.UnixMilli())
		_, exists, err := s.vault.GetItem(ctx, key, s.opts)
		switch {
		case errors.Is(err, vault.ErrItemCorrupted):
		case err != nil:
			return "", now, err
		case !exists:
			return key, now, nil
		}
		now = now.Add(time.Millisecond)
	}
}

// makeRoom deletes the oldest snapshot so a new one fits in a full vault.
func (s *Service) makeRoom(ctx context.Context, userID string) bool {
	entries, err := s.entries(ctx, userID)
	if err != nil || len(entries) == 0 {
		return false
	}
	r := s.trim(ctx, userID, len(entries)-1)
	return r.Deleted > 0
}

type entry struct {
	key  string
	snap *Snapshot
}

// entries loads every indexed snapshot newest first. Entries that cannot be
// loaded are dropped from the index.
func (s *Service) entries(ctx context.Context, userID string) ([]entry, error) {
	index, err := s.readIndex(ctx, userID)
	if err != nil {
		return nil, err
	}
	var (
		out   []entry
		stale []string
	)
	for _, key := range index {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, ok, err := s.vault.GetItem(ctx, key, s.opts)
		if err != nil || !ok {
			s.log.Warn("dropping unreadable backup", "user_id", userID, "error", err)
			stale = append(stale, key)
			continue
		}
		snap, err := decodeSnapshot(raw)
		if err != nil {
			s.log.Warn("dropping corrupted backup", "user_id", userID, "error", err, "preview", safejson.Preview(raw))
			stale = append(stale, key)
			continue
		}
		out = append(out, entry{key: key, snap: snap})
	}
	if len(stale) > 0 {
		s.removeFromIndex(ctx, userID, stale...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		ti, _ := parseTimestamp(out[i].snap.Timestamp)
		tj, _ := parseTimestamp(out[j].snap.Timestamp)
		return ti.After(tj)
	})
	return out, nil
}

// GetBackupList returns the user's snapshots newest first. Failures yield
// an empty list.
func (s *Service) GetBackupList(ctx context.Context, userID string) []Snapshot {
	if !s.supported() {
		return nil
	}
	entries, err := s.entries(ctx, userID)
	if err != nil {
		s.log.Error("list backups failed", "user_id", userID, "error", err)
		return nil
	}
	out := make([]Snapshot, len(entries))
	for i, e := range entries {
		out[i] = *e.snap
	}
	return out
}

func (s *Service) find(ctx context.Context, timestamp, userID string) (entry, error) {
	entries, err := s.entries(ctx, userID)
	if err != nil {
		return entry{}, err
	}
	for _, e := range entries {
		if e.snap.Timestamp == timestamp {
			return e, nil
		}
	}
	return entry{}, ErrBackupNotFound
}

// RestoreFromBackup returns the snapshot with exactly timestamp, with every
// missing field defaulted, for the caller to apply wholesale. Snapshots
// from a newer major version are refused.
func (s *Service) RestoreFromBackup(ctx context.Context, timestamp, userID string) RestoreResult {
	if !s.supported() {
		return RestoreResult{Error: s.unsupported()}
	}
	e, err := s.find(ctx, timestamp, userID)
	if err != nil {
		return RestoreResult{Error: err.Error()}
	}
	if err := checkVersion(e.snap.Version); err != nil {
		return RestoreResult{Error: err.Error()}
	}
	if e.snap.Data == nil {
		return RestoreResult{Error: ErrInvalidBackupData.Error()}
	}
	d := normalize(*e.snap.Data, s.now())
	s.log.Info("backup restored", "user_id", userID, "timestamp", timestamp,
		"sessions", len(d.StudySessions), "scores", len(d.TestScores),
		"subjects", len(d.Subjects), "plans", len(d.StudyPlans))
	return RestoreResult{Success: true, Data: &d}
}

// checkVersion accepts unversioned snapshots and anything up to the
// current major version.
func checkVersion(v string) error {
	if v == "" {
		return nil
	}
	sv := "v" + v
	if !semver.IsValid(sv) {
		return nil
	}
	if semver.Compare(semver.Major(sv), semver.Major("v"+Version)) > 0 {
		return fmt.Errorf("%w: %s > %s", ErrNewerVersion, v, Version)
	}
	return nil
}

// DeleteBackup removes the snapshot with timestamp and its index entry.
func (s *Service) DeleteBackup(ctx context.Context, timestamp, userID string) Result {
	if !s.supported() {
		return Result{Error: s.unsupported()}
	}
	e, err := s.find(ctx, timestamp, userID)
	if err != nil {
		return Result{Error: err.Error()}
	}
	if err := s.vault.DeleteItem(ctx, e.key, s.opts); err != nil {
		return Result{Error: err.Error()}
	}
	s.removeFromIndex(ctx, userID, e.key)
	return Result{Success: true, Timestamp: timestamp}
}

// CleanupOldBackups keeps the newest snapshots up to the retention count
// and deletes the rest, oldest first.
func (s *Service) CleanupOldBackups(ctx context.Context, userID string) CleanupResult {
	return s.trim(ctx, userID, s.maxBackups)
}

func (s *Service) trim(ctx context.Context, userID string, keep int) CleanupResult {
	entries, err := s.entries(ctx, userID)
	if err != nil {
		return CleanupResult{Error: err.Error()}
	}
	if len(entries) <= keep {
		return CleanupResult{Success: true}
	}
	old := entries[keep:]
	var removed []string
	for i := len(old) - 1; i >= 0; i-- {
		if err := s.vault.DeleteItem(ctx, old[i].key, s.opts); err != nil {
			s.log.Warn("delete old backup failed", "user_id", userID, "error", err)
			continue
		}
		removed = append(removed, old[i].key)
	}
	s.removeFromIndex(ctx, userID, removed...)
	s.log.Info("cleaned up old backups", "user_id", userID, "count", len(removed))
	return CleanupResult{Success: len(removed) == len(old), Deleted: len(removed)}
}

// AutoBackup creates a snapshot when the vault is available and the most
// recent backup is older than the auto-backup interval.
func (s *Service) AutoBackup(ctx context.Context, d study.Data, user *auth.User) AutoResult {
	if d.DailyTargetHours <= 0 {
		return AutoResult{Error: "invalid input data for auto backup"}
	}
	userID := ""
	if user.Valid() {
		userID = user.ID
	}
	status := s.GetBackupStatus(ctx, userID)
	if !status.IsAvailable {
		return AutoResult{Skipped: "vault not available"}
	}
	if status.LastBackupDate != "" {
		if last, ok := parseTimestamp(status.LastBackupDate); ok && s.now().Sub(last) <= s.interval {
			return AutoResult{Skipped: "recent backup exists"}
		}
	}
	r := s.CreateBackup(ctx, d, user)
	if !r.Success {
		return AutoResult{Error: r.Error}
	}
	return AutoResult{Created: true}
}

func (s *Service) GetBackupStatus(ctx context.Context, userID string) Status {
	if !s.supported() {
		return Status{Error: s.unsupported()}
	}
	if !s.IsAvailable(ctx) {
		return Status{Error: "secure vault is not available or accessible"}
	}
	entries, err := s.entries(ctx, userID)
	if err != nil {
		return Status{Error: err.Error()}
	}
	st := Status{IsAvailable: true, BackupCount: len(entries)}
	if len(entries) > 0 {
		st.LastBackupDate = entries[0].snap.Timestamp
	}
	return st
}

func (s *Service) GetBackupInfo(ctx context.Context, userID string) Info {
	st := s.GetBackupStatus(ctx, userID)
	if !st.IsAvailable {
		text := st.Error
		if text == "" {
			text = "secure vault not available"
		}
		return Info{Status: text}
	}
	info := Info{IsAvailable: true, LastBackupDate: st.LastBackupDate, BackupCount: st.BackupCount}
	last, ok := parseTimestamp(st.LastBackupDate)
	if !ok {
		info.Status = "No backups found"
		return info
	}
	now := s.now()
	hours := now.Sub(last).Hours()
	switch {
	case hours < 1:
		info.Status = "Recently backed up"
	case hours < 24:
		info.Status = fmt.Sprintf("Last backup %d hours ago", int(hours))
	default:
		days := int(hours / 24)
		info.Status = fmt.Sprintf("Last backup %d %s ago", days, plural(days, "day"))
	}
	if next := last.Add(s.interval); next.After(now) {
		info.NextAutoBackup = next.UTC().Format(isoMillis)
	}
	return info
}

// FormatBackupDate renders a snapshot timestamp relative to now.
func FormatBackupDate(timestamp string, now time.Time) string {
	t, ok := parseTimestamp(timestamp)
	if !ok {
		return "Unknown date"
	}
	d := now.Sub(t)
	switch {
	case d < time.Hour:
		return "Just now"
	case d < 24*time.Hour:
		h := int(d.Hours())
		return fmt.Sprintf("%d %s ago", h, plural(h, "hour"))
	case d < 7*24*time.Hour:
		days := int(d.Hours() / 24)
		return fmt.Sprintf("%d %s ago", days, plural(days, "day"))
	}
	return t.In(now.Location()).Format("Jan 2, 2006, 03:04 PM")
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func (s *Service) readIndex(ctx context.Context, userID string) ([]string, error) {
	raw, ok, err := s.vault.GetItem(ctx, indexPrefix+owner(userID), s.opts)
	if err != nil {
		return nil, fmt.Errorf("read backup index: %w", err)
	}
	return safejson.SafeParseString(raw, ok, []string{}), nil
}

func (s *Service) writeIndex(ctx context.Context, userID string, index []string) error {
	raw, err := safejson.Marshal(index)
	if err != nil {
		return err
	}
	return s.vault.SetItem(ctx, indexPrefix+owner(userID), raw, s.opts)
}

func (s *Service) addToIndex(ctx context.Context, userID, key string) {
	index, err := s.readIndex(ctx, userID)
	if err != nil {
		index = []string{}
	}
	if slices.Contains(index, key) {
		return
	}
	if err := s.writeIndex(ctx, userID, append(index, key)); err != nil {
		s.log.Error("add to backup index failed", "user_id", userID, "error", err)
	}
}

func (s *Service) removeFromIndex(ctx context.Context, userID string, keys ...string) {
	if len(keys) == 0 {
		return
	}
	index, err := s.readIndex(ctx, userID)
	if err != nil {
		s.log.Error("remove from backup index failed", "user_id", userID, "error", err)
		return
	}
	kept := slices.DeleteFunc(index, func(k string) bool { return slices.Contains(keys, k) })
	if err := s.writeIndex(ctx, userID, kept); err != nil {
		s.log.Error("remove from backup index failed", "user_id", userID, "error", err)
	}
}

func (s *Service) updateStatus(ctx context.Context, userID, lastBackup string) {
	raw, err := safejson.Marshal(statusRecord{
		LastBackupDate: lastBackup,
		UpdatedAt:      s.now().UTC().Format(isoMillis),
	})
	if err == nil {
		err = s.vault.SetItem(ctx, statusPrefix+owner(userID), raw, s.opts)
	}
	if err != nil {
		s.log.Error("update backup status failed", "user_id", userID, "error", err)
	}
}
