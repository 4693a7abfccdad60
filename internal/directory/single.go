package directory

import (
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-simdht/internal/core/storage/engine"
	"github.com/dep2p/go-simdht/internal/core/storage/kv"
	"github.com/dep2p/go-simdht/internal/similarity"
	"github.com/dep2p/go-simdht/pkg/types"
)

// SingleValue 每个键只存一个值的存储
type SingleValue[V comparable] interface {
	// Get 返回键下的值
	Get(key types.ID) (types.ValueInfo[V], bool, error)

	// Put 写入值并返回被覆盖的旧值
	Put(key types.ID, info types.ValueInfo[V]) (*types.ValueInfo[V], error)

	// Delete 删除键并返回旧值
	Delete(key types.ID) (*types.ValueInfo[V], error)

	// Range 遍历全部键值，fn 返回 false 时停止
	Range(fn func(key types.ID, info types.ValueInfo[V]) bool) error

	// Len 键数量
	Len() int

	// Clear 清空
	Clear() error

	// Close 关闭
	Close() error
}

// ============================================================================
//                              MemorySingle
// ============================================================================

// MemorySingle 内存单值存储
type MemorySingle[V comparable] struct {
	mu      sync.RWMutex
	entries map[types.ID]types.ValueInfo[V]
}

// NewMemorySingle 创建内存单值存储
func NewMemorySingle[V comparable]() *MemorySingle[V] {
	return &MemorySingle[V]{entries: make(map[types.ID]types.ValueInfo[V])}
}

// Get 实现 SingleValue
func (s *MemorySingle[V]) Get(key types.ID) (types.ValueInfo[V], bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vi, ok := s.entries[key]
	return vi, ok, nil
}

// Put 实现 SingleValue
func (s *MemorySingle[V]) Put(key types.ID, info types.ValueInfo[V]) (*types.ValueInfo[V], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.entries[key]
	s.entries[key] = info
	if !ok {
		return nil, nil
	}
	return &prev, nil
}

// Delete 实现 SingleValue
func (s *MemorySingle[V]) Delete(key types.ID) (*types.ValueInfo[V], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	delete(s.entries, key)
	return &prev, nil
}

// Range 实现 SingleValue
func (s *MemorySingle[V]) Range(fn func(key types.ID, info types.ValueInfo[V]) bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, vi := range s.entries {
		if !fn(k, vi) {
			break
		}
	}
	return nil
}

// Len 实现 SingleValue
func (s *MemorySingle[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear 实现 SingleValue
func (s *MemorySingle[V]) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[types.ID]types.ValueInfo[V])
	return nil
}

// Close 实现 SingleValue
func (s *MemorySingle[V]) Close() error {
	return s.Clear()
}

// ============================================================================
//                              SingleValueAdapter
// ============================================================================

// SingleValueAdapter 把单值存储适配为多值契约
//
// 每个值包装成单元素集合；写入不同的值会覆盖旧值。
type SingleValueAdapter[V comparable] struct {
	cfg   Config
	cmp   similarity.Comparator[types.ID]
	clk   clock.Clock
	inner SingleValue[V]

	mu     sync.Mutex
	closed bool
}

// NewSingleValueAdapter 创建适配器
func NewSingleValueAdapter[V comparable](cfg Config, inner SingleValue[V], cmp similarity.Comparator[types.ID], clk clock.Clock) *SingleValueAdapter[V] {
	if clk == nil {
		clk = clock.New()
	}
	if cmp == nil {
		cmp = similarity.HammingID{}
	}
	return &SingleValueAdapter[V]{cfg: cfg, cmp: cmp, clk: clk, inner: inner}
}

// Comparator 实现 MultiValue
func (a *SingleValueAdapter[V]) Comparator() similarity.Comparator[types.ID] { return a.cmp }

// Get 实现 MultiValue
func (a *SingleValueAdapter[V]) Get(key types.ID) (types.ValueSet[V], error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}
	vi, ok, err := a.inner.Get(key)
	if err != nil || !ok || vi.Expired(a.clk.Now()) {
		return nil, err
	}
	return types.ValueSet[V]{vi}, nil
}

// Put 实现 MultiValue，只在旧值与新值相等时返回旧值
func (a *SingleValueAdapter[V]) Put(key types.ID, info types.ValueInfo[V]) (*types.ValueInfo[V], error) {
	if key.IsEmpty() {
		return nil, ErrInvalidKey
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}
	now := a.clk.Now()
	prev, err := a.inner.Put(key, stamp(a.cfg, info, now))
	if err != nil || prev == nil || prev.Value != info.Value || prev.Expired(now) {
		return nil, err
	}
	return prev, nil
}

// Remove 实现 MultiValue
func (a *SingleValueAdapter[V]) Remove(key types.ID, value V) (*types.ValueInfo[V], error) {
	removed, err := a.RemoveMatching(key, func(vi types.ValueInfo[V]) bool { return vi.Value == value })
	if err != nil || len(removed) == 0 {
		return nil, err
	}
	return &removed[0], nil
}

// RemoveAll 实现 MultiValue
func (a *SingleValueAdapter[V]) RemoveAll(key types.ID) (types.ValueSet[V], error) {
	return a.RemoveMatching(key, func(types.ValueInfo[V]) bool { return true })
}

// RemoveMatching 实现 MultiValue
func (a *SingleValueAdapter[V]) RemoveMatching(key types.ID, match func(types.ValueInfo[V]) bool) (types.ValueSet[V], error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}
	vi, ok, err := a.inner.Get(key)
	if err != nil || !ok {
		return nil, err
	}
	expired := vi.Expired(a.clk.Now())
	if !expired && !match(vi) {
		return nil, nil
	}
	if _, err := a.inner.Delete(key); err != nil {
		return nil, err
	}
	if expired {
		return nil, nil
	}
	return types.ValueSet[V]{vi}, nil
}

func (a *SingleValueAdapter[V]) snapshot() (map[types.ID]types.ValueSet[V], error) {
	out := make(map[types.ID]types.ValueSet[V], a.inner.Len())
	err := a.inner.Range(func(k types.ID, vi types.ValueInfo[V]) bool {
		out[k] = types.ValueSet[V]{vi}
		return true
	})
	return out, err
}

// SimilarKeys 实现 MultiValue
func (a *SingleValueAdapter[V]) SimilarKeys(key types.ID, threshold float64) ([]types.ID, error) {
	m, err := a.Similar(key, threshold)
	if err != nil {
		return nil, err
	}
	return sortedKeys(a.cmp, key, m), nil
}

// Similar 实现 MultiValue
func (a *SingleValueAdapter[V]) Similar(key types.ID, threshold float64) (map[types.ID]types.ValueSet[V], error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}
	entries, err := a.snapshot()
	if err != nil {
		return nil, err
	}
	return scanSimilar(a.cmp, key, threshold, entries, a.clk.Now()), nil
}

// Keys 实现 MultiValue
func (a *SingleValueAdapter[V]) Keys() ([]types.ID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}
	now := a.clk.Now()
	var keys []types.ID
	err := a.inner.Range(func(k types.ID, vi types.ValueInfo[V]) bool {
		if !vi.Expired(now) {
			keys = append(keys, k)
		}
		return true
	})
	return keys, err
}

// Len 实现 MultiValue
func (a *SingleValueAdapter[V]) Len() int {
	return a.inner.Len()
}

// Sweep 实现 MultiValue
func (a *SingleValueAdapter[V]) Sweep() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return 0, ErrClosed
	}
	now := a.clk.Now()
	var expired []types.ID
	if err := a.inner.Range(func(k types.ID, vi types.ValueInfo[V]) bool {
		if vi.Expired(now) {
			expired = append(expired, k)
		}
		return true
	}); err != nil {
		return 0, err
	}
	for _, k := range expired {
		if _, err := a.inner.Delete(k); err != nil {
			return 0, err
		}
	}
	return len(expired), nil
}

// Clear 实现 MultiValue
func (a *SingleValueAdapter[V]) Clear() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	return a.inner.Clear()
}

// Close 实现 MultiValue
func (a *SingleValueAdapter[V]) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.inner.Close()
}

var (
	_ SingleValue[string] = (*MemorySingle[string])(nil)
	_ MultiValue[string]  = (*SingleValueAdapter[string])(nil)
)

// ============================================================================
//                              KVSingle
// ============================================================================

// KVSingle 基于 kv.Store 的单值存储，存储键为 ID 的十六进制
type KVSingle[V comparable] struct {
	store *kv.Store
}

// NewKVSingle 创建持久化单值存储，store 应已带前缀（如 d/s/global/）
func NewKVSingle[V comparable](store *kv.Store) *KVSingle[V] {
	return &KVSingle[V]{store: store}
}

// Get 实现 SingleValue
func (s *KVSingle[V]) Get(key types.ID) (types.ValueInfo[V], bool, error) {
	var rec persistedValue[V]
	if err := s.store.GetJSON([]byte(key.String()), &rec); err != nil {
		if engine.IsNotFound(err) {
			return types.ValueInfo[V]{}, false, nil
		}
		return types.ValueInfo[V]{}, false, err
	}
	return rec.info(), true, nil
}

// Put 实现 SingleValue
func (s *KVSingle[V]) Put(key types.ID, info types.ValueInfo[V]) (*types.ValueInfo[V], error) {
	prev, ok, err := s.Get(key)
	if err != nil {
		return nil, err
	}
	rec := persistedValue[V]{Key: key, Value: info.Value, TTL: info.TTL, Secret: info.HashedSecret}
	if !info.ExpiresAt.IsZero() {
		rec.ExpiresAt = info.ExpiresAt.UnixNano()
	}
	if err := s.store.PutJSON([]byte(key.String()), &rec); err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &prev, nil
}

// Delete 实现 SingleValue
func (s *KVSingle[V]) Delete(key types.ID) (*types.ValueInfo[V], error) {
	prev, ok, err := s.Get(key)
	if err != nil || !ok {
		return nil, err
	}
	if err := s.store.Delete([]byte(key.String())); err != nil {
		return nil, err
	}
	return &prev, nil
}

// Range 实现 SingleValue
func (s *KVSingle[V]) Range(fn func(key types.ID, info types.ValueInfo[V]) bool) error {
	return s.store.PrefixScan(nil, func(key, value []byte) bool {
		var rec persistedValue[V]
		if err := kv.DecodeJSON(key, value, &rec); err != nil {
			logger.Warn("跳过损坏的单值记录", "error", err)
			return true
		}
		return fn(rec.Key, rec.info())
	})
}

// Len 实现 SingleValue
func (s *KVSingle[V]) Len() int {
	keys, err := s.store.Keys(nil)
	if err != nil {
		return 0
	}
	return len(keys)
}

// Clear 实现 SingleValue
func (s *KVSingle[V]) Clear() error {
	return s.store.DeletePrefix(nil)
}

// Close 实现 SingleValue，不关闭底层引擎
func (s *KVSingle[V]) Close() error {
	return nil
}

var _ SingleValue[string] = (*KVSingle[string])(nil)
