// Package recovery salvages study data from every key that might hold it
// when the canonical keys are empty or damaged, and sweeps corrupted
// values out of the key-value medium. Salvage never deletes; it only
// writes when the caller confirms with SaveRecoveredData.
package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/abhisek/studylog/internal/keys"
	"github.com/abhisek/studylog/internal/logger"
	"github.com/abhisek/studylog/internal/safejson"
	"github.com/abhisek/studylog/internal/store"
	"github.com/abhisek/studylog/internal/study"
	"github.com/abhisek/studylog/internal/vault"
)

const (
	msgNothingLocal = "No recoverable data found in local storage"
	msgNothingVault = "No recoverable data found in secure vault"
	msgNoKeys       = "No data found in local storage or secure vault"
)

// Data is what a recovery pass salvaged.
type Data struct {
	Sessions  []study.StudySession `json:"sessions"`
	Scores    []study.TestScore    `json:"scores"`
	Subjects  []study.Subject      `json:"subjects"`
	Plans     []study.StudyPlan    `json:"plans"`
	ExamDates study.ExamDates      `json:"examDates"`
}

// Total counts recovered records, not counting exam dates.
func (d Data) Total() int {
	return len(d.Sessions) + len(d.Scores) + len(d.Subjects) + len(d.Plans)
}

func (d Data) found() bool { return d.Total() > 0 || !d.ExamDates.Empty() }

// Result reports a recovery pass. Errors are advisory. MatchedKeys lists
// keys that were read only because their name contained a dataset token.
type Result struct {
	Success     bool
	Source      string
	Data        Data
	Errors      []string
	MatchedKeys []string
}

type CleanupResult struct {
	Cleaned int
	Errors  []string
}

type Option func(*Service)

func WithLogger(l *logger.Logger) Option { return func(s *Service) { s.log = l } }

// WithPlatforms lists the platforms on which the vault is searched.
func WithPlatforms(p ...string) Option { return func(s *Service) { s.platforms = p } }

type Service struct {
	kv        store.KV
	vault     vault.Vault
	platform  string
	platforms []string
	log       *logger.Logger
}

// New returns a Service. v may be nil, in which case only the key-value
// medium is searched.
func New(kv store.KV, v vault.Vault, platform string, opts ...Option) *Service {
	s := &Service{
		kv:        kv,
		vault:     v,
		platform:  platform,
		platforms: []string{"darwin", "ios"},
		log:       logger.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func emptyData() Data {
	return Data{
		Sessions: []study.StudySession{},
		Scores:   []study.TestScore{},
		Subjects: []study.Subject{},
		Plans:    []study.StudyPlan{},
	}
}

// RecoverAllData searches the vault first where one exists and returns
// immediately if it yields anything. Otherwise every matching key in the
// key-value medium is scanned.
func (s *Service) RecoverAllData(ctx context.Context, userID string) Result {
	all, err := s.kv.AllKeys(ctx)
	if err != nil {
		s.log.Error("list keys failed", "error", err)
		all = nil
	}

	var errs []string
	if s.vault != nil && slices.Contains(s.platforms, s.platform) {
		r := s.recoverFromVault(ctx, userID)
		if r.Success {
			return r
		}
		errs = append(errs, r.Errors...)
	}

	if len(all) == 0 {
		return Result{Data: emptyData(), Errors: append(errs, msgNoKeys)}
	}

	r := s.recoverFromKV(ctx, userID, all)
	r.Errors = append(errs, r.Errors...)
	if r.Data.Total() == 0 && len(r.Errors) == 0 {
		r.Errors = append(r.Errors, msgNothingLocal)
	}
	s.log.Info("recovery finished",
		"source", r.Source,
		"sessions", len(r.Data.Sessions),
		"scores", len(r.Data.Scores),
		"subjects", len(r.Data.Subjects),
		"plans", len(r.Data.Plans),
		"errors", len(r.Errors),
	)
	return r
}

type scan struct {
	sessions []study.StudySession
	scores   []study.TestScore
	subjects []study.Subject
	plans    []study.StudyPlan
	dates    study.ExamDates
	extra    []string
	errs     []string
}

func (s *Service) recoverFromKV(ctx context.Context, userID string, all []string) Result {
	present := make(map[string]bool, len(all))
	for _, k := range all {
		present[k] = true
	}
	patterns := localPatterns(userID)

	var (
		scans [numDatasets]scan
		g     errgroup.Group
	)
	for d := range numDatasets {
		g.Go(func() error {
			ordered, extra := scanKeys(d, patterns[d], all, present)
			scans[d] = s.scanDataset(ctx, d, ordered)
			scans[d].extra = extra
			return nil
		})
	}
	_ = g.Wait()

	data := emptyData()
	var res Result
	for d := range numDatasets {
		sc := scans[d]
		res.Errors = append(res.Errors, sc.errs...)
		for _, k := range sc.extra {
			if !slices.Contains(res.MatchedKeys, k) {
				res.MatchedKeys = append(res.MatchedKeys, k)
			}
		}
	}
	data.Sessions = dedup(scans[sessions].sessions, func(ss study.StudySession) string { return ss.ID })
	data.Scores = dedup(scans[scores].scores, func(t study.TestScore) string { return t.ID })
	data.Plans = dedup(scans[plans].plans, func(p study.StudyPlan) string { return p.SubjectID })
	if len(scans[subjects].subjects) > 0 {
		data.Subjects = scans[subjects].subjects
	}
	data.ExamDates = scans[examDates].dates
	if len(data.Subjects) > 0 && len(data.Sessions) > 0 {
		data.Subjects = study.RecomputeHours(data.Subjects, data.Sessions)
	}

	res.Source = "local"
	res.Data = data
	res.Success = data.found()
	return res
}

// scanDataset reads each key in order and accumulates valid records.
// Subjects and exam dates stop at the first key that yields any.
func (s *Service) scanDataset(ctx context.Context, d dataset, ordered []string) scan {
	var sc scan
	for _, key := range ordered {
		if err := ctx.Err(); err != nil {
			sc.errs = append(sc.errs, fmt.Sprintf("recovery of %s interrupted: %v", d, err))
			return sc
		}
		raw, ok, err := s.kv.Get(ctx, key)
		if err != nil {
			sc.errs = append(sc.errs, fmt.Sprintf("Failed to recover %s from %s: %v", d, key, err))
			continue
		}
		if !ok {
			continue
		}
		if s.absorb(&sc, d, key, raw) && (d == subjects || d == examDates) {
			return sc
		}
	}
	return sc
}

// absorb adds the valid records in raw to sc and reports whether any were found.
func (s *Service) absorb(sc *scan, d dataset, key, raw string) bool {
	if d == examDates {
		dates, ok := parseExamDates(raw)
		if ok {
			sc.dates = dates
		}
		return ok
	}
	items, err := safejson.DecodeRepaired[[]json.RawMessage](raw)
	if err != nil {
		s.log.Debug("skipping unparseable key", "key", key, "error", err, "preview", safejson.Preview(raw))
		return false
	}
	n := 0
	switch d {
	case sessions:
		v, _ := study.FilterValid(items, study.ValidateSession)
		sc.sessions, n = append(sc.sessions, v...), len(v)
	case scores:
		v, _ := study.FilterValid(items, study.ValidateScore)
		sc.scores, n = append(sc.scores, v...), len(v)
	case subjects:
		v, _ := study.FilterValid(items, study.ValidateSubject)
		if len(sc.subjects) == 0 {
			sc.subjects = v
		}
		n = len(v)
	case plans:
		v, _ := study.FilterValid(items, study.ValidatePlan)
		sc.plans, n = append(sc.plans, v...), len(v)
	}
	return n > 0
}

// parseExamDates accepts the current field names and the older aliases.
// It succeeds only when at least one date is set.
func parseExamDates(raw string) (study.ExamDates, bool) {
	m, err := safejson.DecodeRepaired[map[string]any](raw)
	if err != nil {
		return study.ExamDates{}, false
	}
	pick := func(names ...string) string {
		for _, n := range names {
			if v, ok := m[n].(string); ok && v != "" {
				return v
			}
		}
		return ""
	}
	d := study.ExamDates{
		NEETPG: pick("NEET_PG", "neet_pg", "NEET"),
		INICET: pick("INICET", "inicet"),
	}
	return d, !d.Empty()
}

// dedup keeps the first item seen for each id.
func dedup[T any](items []T, id func(T) string) []T {
	seen := map[string]bool{}
	out := make([]T, 0, len(items))
	for _, it := range items {
		k := id(it)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, it)
	}
	return out
}

// recoverFromVault tries the loosely named secure entries for each dataset.
// The first pattern that parses wins.
func (s *Service) recoverFromVault(ctx context.Context, userID string) Result {
	opts := vault.Options{Service: vault.DefaultService}
	patterns := vaultPatterns(userID)

	var (
		raws [numDatasets]string
		errs [numDatasets]error
		g    errgroup.Group
	)
	for d := range numDatasets {
		g.Go(func() error {
			for _, p := range patterns[d] {
				v, ok, err := s.vault.GetItem(ctx, vaultKeyPrefix+p, opts)
				if err != nil {
					errs[d] = err
					if errors.Is(err, vault.ErrVaultUnavailable) {
						return nil
					}
					continue
				}
				if ok && !safejson.IsCorrupt(v) && strings.TrimSpace(v) != "null" {
					raws[d] = v
					return nil
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	sc := scan{}
	data := emptyData()
	for d := range numDatasets {
		if raws[d] == "" {
			continue
		}
		s.absorb(&sc, d, vaultKeyPrefix+patterns[d][0], raws[d])
	}
	if len(sc.sessions) > 0 {
		data.Sessions = sc.sessions
	}
	if len(sc.scores) > 0 {
		data.Scores = sc.scores
	}
	if len(sc.plans) > 0 {
		data.Plans = sc.plans
	}
	if len(sc.subjects) > 0 {
		data.Subjects = study.RecomputeHours(sc.subjects, data.Sessions)
	}
	data.ExamDates = sc.dates

	res := Result{Source: "vault", Data: data, Success: data.found()}
	for _, err := range errs {
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("vault recovery error: %v", err))
			break
		}
	}
	if !res.Success && len(res.Errors) == 0 {
		res.Errors = append(res.Errors, msgNothingVault)
	}
	return res
}

// SaveRecoveredData writes recovered datasets to the user's canonical keys.
// Empty datasets are left untouched; exam dates are always written.
func (s *Service) SaveRecoveredData(ctx context.Context, data Data, userID string) error {
	k := keys.For(userID)
	intent := keys.IntentFor(userID)

	var writes []store.Write
	add := func(key string, v any) error {
		raw, err := safejson.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		writes = append(writes, store.Write{Key: key, Value: raw, Intent: intent})
		return nil
	}
	type item struct {
		key   string
		v     any
		write bool
	}
	for _, it := range []item{
		{k.StudySessions, data.Sessions, len(data.Sessions) > 0},
		{k.TestScores, data.Scores, len(data.Scores) > 0},
		{k.Subjects, data.Subjects, len(data.Subjects) > 0},
		{k.StudyPlans, data.Plans, len(data.Plans) > 0},
		{k.ExamDates, data.ExamDates, true},
	} {
		if !it.write {
			continue
		}
		if err := add(it.key, it.v); err != nil {
			return err
		}
	}
	if err := store.NewWriter(s.kv, k, nil).Apply(ctx, writes...); err != nil {
		return fmt.Errorf("save recovered data: %w", err)
	}
	s.log.Info("recovered data saved", "user_id", userID,
		"sessions", len(data.Sessions), "scores", len(data.Scores),
		"subjects", len(data.Subjects), "plans", len(data.Plans))
	return nil
}
