package store

import (
	"context"
	"fmt"
	"time"

	"github.com/abhisek/studylog/internal/keys"
	"github.com/abhisek/studylog/internal/safejson"
)

// Write is one canonical-key mutation tagged with its sync intent.
type Write struct {
	Key    string
	Value  string
	Delete bool
	Intent keys.SyncIntent
}

// Writer expands Writes into an atomic batch for one partition. SyncMirror
// writes are duplicated to the cloud_ mirror and bump last_cloud_sync,
// unless the batch itself removes last_cloud_sync.
type Writer struct {
	kv   KV
	keys keys.Keys
	now  func() time.Time
}

func NewWriter(kv KV, k keys.Keys, now func() time.Time) *Writer {
	if now == nil {
		now = time.Now
	}
	return &Writer{kv: kv, keys: k, now: now}
}

// Ops returns the expanded batch without applying it.
func (w *Writer) Ops(writes ...Write) ([]Op, error) {
	ops := make([]Op, 0, len(writes)*2+1)
	mirrored, unsynced := false, false
	for _, wr := range writes {
		ops = append(ops, Op{Key: wr.Key, Value: wr.Value, Delete: wr.Delete})
		if wr.Key == w.keys.LastCloudSync && wr.Delete {
			unsynced = true
		}
		if wr.Intent != keys.SyncMirror {
			continue
		}
		if m := w.keys.Mirror(wr.Key); m != "" {
			ops = append(ops, Op{Key: m, Value: wr.Value, Delete: wr.Delete})
			mirrored = true
		}
	}
	if mirrored && !unsynced {
		stamp, err := safejson.Marshal(w.now().UTC().Format(time.RFC3339))
		if err != nil {
			return nil, err
		}
		ops = append(ops, Op{Key: w.keys.LastCloudSync, Value: stamp})
	}
	return ops, nil
}

// Apply persists writes as one batch.
func (w *Writer) Apply(ctx context.Context, writes ...Write) error {
	ops, err := w.Ops(writes...)
	if err != nil {
		return err
	}
	if err := w.kv.Apply(ctx, ops); err != nil {
		return fmt.Errorf("apply %d writes: %w", len(writes), err)
	}
	return nil
}
