package safejson

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ID       string `json:"id"`
	Duration int    `json:"duration"`
}

func TestDetect(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{"", "empty"},
		{"   ", "empty"},
		{"undefined", "literal-undefined"},
		{"o", "object-fragment"},
		{"  obj  ", "object-fragment"},
		{"objec", "object-fragment"},
		{"object", "object-fragment"},
		{"[object Object]", "stringified-object"},
		{"object Object", "stringified-object"},
		{"[object Promise]", "stringified-object"},
		{"NaN", "nan"},
		{"function () {}", "function-like"},
		{"some object here", "word-object"},
		{"hello world", "two-words"},
		{"abcdef", "short-alpha-token"},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			sig, ok := Detect(tt.value)
			require.True(t, ok)
			assert.Equal(t, tt.want, sig.Name)
		})
	}
}

func TestDetectClean(t *testing.T) {
	for _, v := range []string{"true", "false", "null", "4", "-1.5", `{"a":1}`, `[]`, `"object"`, "abcdefghijklmnop"} {
		_, ok := Detect(v)
		assert.False(t, ok, v)
	}
}

func TestSignatureNamesUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, sig := range Signatures {
		assert.False(t, seen[sig.Name], sig.Name)
		seen[sig.Name] = true
		require.NotNil(t, sig.Match)
	}
}

func TestLooksLikeJSON(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{`{"a":1}`, true},
		{`[1]`, true},
		{`"s"`, true},
		{"true", true},
		{"NULL", true},
		{"42", true},
		{".5", true},
		{"-3", true},
		{"abcdefghijklmnop", false},
		{"1e5", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LooksLikeJSON(tt.in), tt.in)
	}
}

func TestSafeParse(t *testing.T) {
	fallback := []record{{ID: "fallback"}}

	str := func(s string) *string { return &s }

	assert.Equal(t, fallback, SafeParse(nil, fallback))
	assert.Equal(t, fallback, SafeParse(str("null"), fallback))
	assert.Equal(t, fallback, SafeParse(str("object"), fallback))
	assert.Equal(t, fallback, SafeParse(str(`[{"id":"a"`), fallback))
	assert.Equal(t, fallback, SafeParse(str(`{"id":"a"}`), fallback), "type mismatch")

	got := SafeParse(str(` [{"id":"a","duration":15}] `), fallback)
	assert.Equal(t, []record{{ID: "a", Duration: 15}}, got)

	assert.Equal(t, 4.0, SafeParse(str("4"), 0.0))
	assert.Equal(t, 1.0, SafeParse(str("True"), 1.0))
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode[[]record]("")
	assert.ErrorIs(t, err, ErrAbsent)

	_, err = Decode[[]record]("[object Object]")
	var ce *CorruptError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "stringified-object", ce.Signature)

	_, err = Decode[[]record]("12abc!")
	assert.ErrorIs(t, err, ErrNotJSON)

	_, err = Decode[[]record]("[1,")
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.NotNil(t, pe.Unwrap())
}

func TestDecodeRepaired(t *testing.T) {
	got, err := DecodeRepaired[[]record](`garbage: [{"id":"x","duration":3}] trailing`)
	require.NoError(t, err)
	assert.Equal(t, []record{{ID: "x", Duration: 3}}, got)

	m, err := DecodeRepaired[map[string]any](`{"a":[object Object]}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, m["a"])
}

func TestRepair(t *testing.T) {
	assert.Equal(t, `{"a":{}}`, Repair(`{"a":[object Object]}`))
	assert.Equal(t, `[1,2]`, Repair(`xx [1,2] yy`))
	assert.Equal(t, `{"b":[1]}`, Repair(`pre {"b":[1]} post`))
	assert.Equal(t, "plain", Repair("plain"))
}

func TestIsCorrupt(t *testing.T) {
	assert.True(t, IsCorrupt("o"))
	assert.True(t, IsCorrupt("[object Object]"))
	assert.True(t, IsCorrupt(`{"a":`))
	assert.True(t, IsCorrupt("not json at all!"))
	assert.False(t, IsCorrupt("null"))
	assert.False(t, IsCorrupt(`{"a":1}`))
}

func TestMarshal(t *testing.T) {
	s, err := Marshal([]record{{ID: "a", Duration: 1}})
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"a","duration":1}]`, s)

	_, err = Marshal(nil)
	assert.ErrorIs(t, err, ErrRefused)

	var nilSlice []record
	_, err = Marshal(nilSlice)
	assert.ErrorIs(t, err, ErrRefused)

	s, err = Marshal(4)
	require.NoError(t, err)
	assert.Equal(t, "4", s)

	_, err = Marshal(func() {})
	assert.Error(t, err)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "abc", Preview("abc"))
	assert.Len(t, Preview(strings.Repeat("a", 100)), 50)

	p := Preview("x" + strings.Repeat("é", 60))
	assert.True(t, utf8.ValidString(p))
	assert.Equal(t, 50, utf8.RuneCountInString(p))
	assert.Equal(t, "x"+strings.Repeat("é", 49), p)
}

func FuzzSafeParse(f *testing.F) {
	for _, seed := range []string{
		"", "undefined", "null", "[object Object]", "object", `[{"id":"a"`,
		`[{"id":"a","duration":1}]`, "NaN", "  o  ", `"str"`, "-0.5", "{}",
	} {
		f.Add(seed)
	}
	fallback := []record{{ID: "fallback"}}
	f.Fuzz(func(t *testing.T, s string) {
		got := SafeParse(&s, fallback)
		if len(got) == 1 && got[0].ID == "fallback" {
			return
		}
		_, err := Decode[[]record](s)
		if err != nil {
			t.Fatalf("SafeParse returned non-fallback for rejected input %q", s)
		}
	})
}
