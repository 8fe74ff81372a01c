package recovery

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/abhisek/studylog/internal/safejson"
)

var (
	fragments    = map[string]bool{"o": true, "ob": true, "obj": true, "object": true, "[object Object]": true, "undefined": true, "NaN": true}
	shortAlpha   = regexp.MustCompile(`^[a-zA-Z]+$`)
	singleLetter = regexp.MustCompile(`^[a-zA-Z]$`)
	leadingAlpha = regexp.MustCompile(`^[a-zA-Z]`)
)

// ImmediateCorruptionCleanup removes values that are known object
// fragments, contain "object Object", fail to parse, or cannot be read.
// It returns the number of keys removed.
func (s *Service) ImmediateCorruptionCleanup(ctx context.Context) (int, error) {
	all, err := s.kv.AllKeys(ctx)
	if err != nil {
		return 0, fmt.Errorf("list keys: %w", err)
	}
	var doomed []string
	for _, key := range all {
		raw, ok, err := s.kv.Get(ctx, key)
		if err != nil {
			doomed = append(doomed, key)
			continue
		}
		if !ok {
			continue
		}
		trimmed := strings.TrimSpace(raw)
		if fragments[trimmed] || strings.Contains(raw, "object Object") || !json.Valid([]byte(trimmed)) {
			doomed = append(doomed, key)
		}
	}
	if len(doomed) == 0 {
		return 0, nil
	}
	if err := s.kv.MultiRemove(ctx, doomed); err != nil {
		return 0, fmt.Errorf("remove %d corrupted keys: %w", len(doomed), err)
	}
	s.log.Warn("removed corrupted keys", "count", len(doomed))
	return len(doomed), nil
}

// emergencyCorrupt is the aggressive check used by EmergencyCleanupCorruption.
func emergencyCorrupt(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if sig, ok := safejson.Detect(trimmed); ok {
		return sig.Name, true
	}
	if strings.EqualFold(trimmed, "null") || strings.EqualFold(trimmed, "true") || strings.EqualFold(trimmed, "false") {
		return "", false
	}
	switch {
	case strings.Contains(trimmed, "object Object"):
		return "stringified-object", true
	case len(trimmed) < 20 && shortAlpha.MatchString(trimmed):
		return "alpha-only", true
	case singleLetter.MatchString(trimmed):
		return "single-letter", true
	case len(trimmed) < 50 && leadingAlpha.MatchString(trimmed):
		return "leading-letter", true
	case !json.Valid([]byte(trimmed)):
		return "unparseable", true
	}
	return "", false
}

// EmergencyCleanupCorruption removes every value matching a corruption
// signature, short alphabetic tokens, short values starting with a letter,
// and anything that fails to parse. Per-key failures are collected rather
// than aborting the sweep.
func (s *Service) EmergencyCleanupCorruption(ctx context.Context) CleanupResult {
	var res CleanupResult
	all, err := s.kv.AllKeys(ctx)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("Emergency cleanup failed: %v", err))
		return res
	}
	for _, key := range all {
		raw, ok, err := s.kv.Get(ctx, key)
		reason := "unreadable"
		if err == nil {
			if !ok {
				continue
			}
			var bad bool
			if reason, bad = emergencyCorrupt(raw); !bad {
				continue
			}
		}
		if err := s.kv.Remove(ctx, key); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("Failed to remove %s: %v", key, err))
			continue
		}
		s.log.Debug("removed corrupted key", "key", key, "reason", reason, "preview", safejson.Preview(raw))
		res.Cleaned++
	}
	if res.Cleaned > 0 {
		s.log.Warn("emergency cleanup removed keys", "count", res.Cleaned)
	}
	return res
}

// Summary renders a one-line outcome followed by up to maxErrors errors.
func Summary(r Result, maxErrors int) string {
	var b strings.Builder
	if r.Success {
		fmt.Fprintf(&b, "Recovered %d sessions, %d test scores, %d subjects, %d study plans",
			len(r.Data.Sessions), len(r.Data.Scores), len(r.Data.Subjects), len(r.Data.Plans))
		if !r.Data.ExamDates.Empty() {
			b.WriteString(" and exam dates")
		}
		if r.Source != "" {
			fmt.Fprintf(&b, " from %s", r.Source)
		}
	} else {
		b.WriteString("No data recovered")
	}
	if len(r.MatchedKeys) > 0 {
		fmt.Fprintf(&b, "\nAlso read by name match: %s", strings.Join(r.MatchedKeys, ", "))
	}
	for i, e := range r.Errors {
		if i == maxErrors {
			fmt.Fprintf(&b, "\n... and %d more", len(r.Errors)-maxErrors)
			break
		}
		b.WriteString("\n- " + e)
	}
	return b.String()
}
