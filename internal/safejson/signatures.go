package safejson

import (
	"regexp"
	"strings"
)

// Signature is a named predicate over a trimmed stored value that marks it
// as a serialization artifact rather than data.
type Signature struct {
	Name  string
	Match func(trimmed string) bool
}

var (
	objectFragmentRe = regexp.MustCompile(`(?i)^(o|ob|obj|obje|objec|object)$`)
	stringifiedRe    = regexp.MustCompile(`(?i)^(\[object\s+\w+\]|object object|object\s.*)$`)
	wordObjectRe     = regexp.MustCompile(`(?i)^\w+\s+object`)
	twoWordsRe       = regexp.MustCompile(`^[a-zA-Z]+\s+[a-zA-Z]+$`)
	shortAlphaRe     = regexp.MustCompile(`^[a-zA-Z]{1,10}$`)
	numberRe         = regexp.MustCompile(`^-?\d*\.?\d+$`)
)

// Signatures lists every known corruption form, most specific first.
// Detect reports the first match.
var Signatures = []Signature{
	{Name: "empty", Match: func(s string) bool { return s == "" }},
	{Name: "literal-undefined", Match: func(s string) bool { return strings.EqualFold(s, "undefined") }},
	{Name: "object-fragment", Match: objectFragmentRe.MatchString},
	{Name: "stringified-object", Match: stringifiedRe.MatchString},
	{Name: "nan", Match: func(s string) bool { return strings.EqualFold(s, "NaN") }},
	{Name: "function-like", Match: func(s string) bool {
		return len(s) >= 8 && strings.EqualFold(s[:8], "function")
	}},
	{Name: "word-object", Match: wordObjectRe.MatchString},
	{Name: "two-words", Match: twoWordsRe.MatchString},
	{Name: "short-alpha-token", Match: func(s string) bool {
		return shortAlphaRe.MatchString(s) && !isJSONLiteral(s)
	}},
}

// Detect trims value and returns the first corruption signature it matches.
func Detect(value string) (Signature, bool) {
	trimmed := strings.TrimSpace(value)
	for _, sig := range Signatures {
		if sig.Match(trimmed) {
			return sig, true
		}
	}
	return Signature{}, false
}

// LooksLikeJSON is the structural pre-check: an object, array or string
// opener, or a bare boolean, null or number literal.
func LooksLikeJSON(trimmed string) bool {
	if trimmed == "" {
		return false
	}
	switch trimmed[0] {
	case '{', '[', '"':
		return true
	}
	return isJSONLiteral(trimmed) || numberRe.MatchString(trimmed)
}

func isJSONLiteral(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false", "null":
		return true
	}
	return false
}
