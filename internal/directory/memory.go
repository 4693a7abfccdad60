package directory

import (
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-simdht/internal/similarity"
	"github.com/dep2p/go-simdht/pkg/types"
)

// Memory 内存多值目录
type Memory[V comparable] struct {
	cfg Config
	cmp similarity.Comparator[types.ID]
	clk clock.Clock

	mu      sync.Mutex
	entries map[types.ID]types.ValueSet[V]
	closed  bool
}

// NewMemory 创建内存目录
func NewMemory[V comparable](cfg Config, cmp similarity.Comparator[types.ID], clk clock.Clock) *Memory[V] {
	if clk == nil {
		clk = clock.New()
	}
	if cmp == nil {
		cmp = similarity.HammingID{}
	}
	return &Memory[V]{
		cfg:     cfg,
		cmp:     cmp,
		clk:     clk,
		entries: make(map[types.ID]types.ValueSet[V]),
	}
}

// Comparator 实现 MultiValue
func (d *Memory[V]) Comparator() similarity.Comparator[types.ID] { return d.cmp }

// Get 实现 MultiValue
func (d *Memory[V]) Get(key types.ID) (types.ValueSet[V], error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	return live(d.entries[key], d.clk.Now()), nil
}

// Put 实现 MultiValue
func (d *Memory[V]) Put(key types.ID, info types.ValueInfo[V]) (*types.ValueInfo[V], error) {
	if key.IsEmpty() {
		return nil, ErrInvalidKey
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}

	now := d.clk.Now()
	info = stamp(d.cfg, info, now)
	set := d.entries[key]
	for i := range set {
		if set[i].Value != info.Value {
			continue
		}
		prev := set[i]
		set[i] = info
		if prev.Expired(now) {
			return nil, nil
		}
		return &prev, nil
	}
	d.entries[key] = append(set, info)
	return nil, nil
}

// Remove 实现 MultiValue
func (d *Memory[V]) Remove(key types.ID, value V) (*types.ValueInfo[V], error) {
	removed, err := d.RemoveMatching(key, func(vi types.ValueInfo[V]) bool { return vi.Value == value })
	if err != nil || len(removed) == 0 {
		return nil, err
	}
	return &removed[0], nil
}

// RemoveAll 实现 MultiValue
func (d *Memory[V]) RemoveAll(key types.ID) (types.ValueSet[V], error) {
	return d.RemoveMatching(key, func(types.ValueInfo[V]) bool { return true })
}

// RemoveMatching 实现 MultiValue
func (d *Memory[V]) RemoveMatching(key types.ID, match func(types.ValueInfo[V]) bool) (types.ValueSet[V], error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}

	now := d.clk.Now()
	var kept, removed types.ValueSet[V]
	for _, vi := range d.entries[key] {
		switch {
		case vi.Expired(now):
		case match(vi):
			removed = append(removed, vi)
		default:
			kept = append(kept, vi)
		}
	}
	if len(kept) == 0 {
		delete(d.entries, key)
	} else {
		d.entries[key] = kept
	}
	return removed, nil
}

// SimilarKeys 实现 MultiValue
func (d *Memory[V]) SimilarKeys(key types.ID, threshold float64) ([]types.ID, error) {
	m, err := d.Similar(key, threshold)
	if err != nil {
		return nil, err
	}
	return sortedKeys(d.cmp, key, m), nil
}

// Similar 实现 MultiValue
func (d *Memory[V]) Similar(key types.ID, threshold float64) (map[types.ID]types.ValueSet[V], error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	return scanSimilar(d.cmp, key, threshold, d.entries, d.clk.Now()), nil
}

// Keys 实现 MultiValue
func (d *Memory[V]) Keys() ([]types.ID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	now := d.clk.Now()
	keys := make([]types.ID, 0, len(d.entries))
	for k, set := range d.entries {
		if len(live(set, now)) > 0 {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Len 实现 MultiValue
func (d *Memory[V]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// Sweep 实现 MultiValue
func (d *Memory[V]) Sweep() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrClosed
	}
	now := d.clk.Now()
	n := 0
	for k, set := range d.entries {
		kept := live(set, now)
		n += len(set) - len(kept)
		if len(kept) == 0 {
			delete(d.entries, k)
		} else {
			d.entries[k] = kept
		}
	}
	return n, nil
}

// Clear 实现 MultiValue
func (d *Memory[V]) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.entries = make(map[types.ID]types.ValueSet[V])
	return nil
}

// Close 实现 MultiValue
func (d *Memory[V]) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.entries = nil
	return nil
}

var _ MultiValue[string] = (*Memory[string])(nil)
