package store

import "context"

// KV is the persistence medium every component reads and writes through.
// Values are serialized JSON text. A missing key reads as ok == false.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	MultiSet(ctx context.Context, pairs []Pair) error
	MultiRemove(ctx context.Context, keys []string) error
	AllKeys(ctx context.Context) ([]string, error)
	// Apply runs a mixed batch atomically.
	Apply(ctx context.Context, ops []Op) error
}

// Pair is a key/value to set.
type Pair struct {
	Key   string
	Value string
}

// Op is one element of an atomic batch.
type Op struct {
	Key    string
	Value  string
	Delete bool
}
