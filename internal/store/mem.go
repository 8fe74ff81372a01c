package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemKV is an in-memory KV. Tests use it to inject per-key faults.
type MemKV struct {
	mu     sync.RWMutex
	data   map[string]string
	faults map[string]error
}

var _ KV = (*MemKV)(nil)

func NewMemKV() *MemKV {
	return &MemKV{data: map[string]string{}, faults: map[string]error{}}
}

// FailOn makes every access to key return err. A nil err clears the fault.
func (m *MemKV) FailOn(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.faults, key)
		return
	}
	m.faults[key] = err
}

func (m *MemKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.faults[key]; err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemKV) Set(ctx context.Context, key, value string) error {
	return m.Apply(ctx, []Op{{Key: key, Value: value}})
}

func (m *MemKV) Remove(ctx context.Context, key string) error {
	return m.Apply(ctx, []Op{{Key: key, Delete: true}})
}

func (m *MemKV) MultiSet(ctx context.Context, pairs []Pair) error {
	ops := make([]Op, len(pairs))
	for i, p := range pairs {
		ops[i] = Op{Key: p.Key, Value: p.Value}
	}
	return m.Apply(ctx, ops)
}

func (m *MemKV) MultiRemove(ctx context.Context, keys []string) error {
	ops := make([]Op, len(keys))
	for i, k := range keys {
		ops[i] = Op{Key: k, Delete: true}
	}
	return m.Apply(ctx, ops)
}

func (m *MemKV) AllKeys(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Apply checks every op for a fault before mutating anything.
func (m *MemKV) Apply(_ context.Context, ops []Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range ops {
		if err := m.faults[op.Key]; err != nil {
			return fmt.Errorf("write %q: %w", op.Key, err)
		}
	}
	for _, op := range ops {
		if op.Delete {
			delete(m.data, op.Key)
		} else {
			m.data[op.Key] = op.Value
		}
	}
	return nil
}
