package directory

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-simdht/internal/core/storage/kv"
	"github.com/dep2p/go-simdht/internal/similarity"
	"github.com/dep2p/go-simdht/pkg/lib/log"
	"github.com/dep2p/go-simdht/pkg/types"
)

var logger = log.Logger("directory")

// persistedValue 持久化的值记录
//
// 存储键: <hex key>/<hex sha1(value)>
type persistedValue[V comparable] struct {
	Key       types.ID      `json:"key"`
	Value     V             `json:"value"`
	TTL       time.Duration `json:"ttl"`
	ExpiresAt int64         `json:"expires_at,omitempty"`
	Secret    types.Secret  `json:"secret,omitempty"`
}

func (p persistedValue[V]) info() types.ValueInfo[V] {
	vi := types.ValueInfo[V]{Value: p.Value, TTL: p.TTL, HashedSecret: p.Secret}
	if p.ExpiresAt != 0 {
		vi.ExpiresAt = time.Unix(0, p.ExpiresAt)
	}
	return vi
}

// Persistent BadgerDB 多值目录
//
// 写入同时落盘和更新内存索引，打开时从存储加载未过期的记录。
// 启用过期时记录带 badger TTL，进程停止期间过期的数据由引擎删除。
type Persistent[V comparable] struct {
	cfg   Config
	cmp   similarity.Comparator[types.ID]
	clk   clock.Clock
	store *kv.Store

	mu     sync.Mutex
	cache  map[types.ID]types.ValueSet[V]
	closed bool
}

// NewPersistent 创建持久化目录
//
// store 应已带目录前缀，例如 kv.New(eng, []byte("d/v/global/"))。
func NewPersistent[V comparable](cfg Config, store *kv.Store, cmp similarity.Comparator[types.ID], clk clock.Clock) (*Persistent[V], error) {
	if store == nil {
		return nil, ErrNoEngine
	}
	if clk == nil {
		clk = clock.New()
	}
	if cmp == nil {
		cmp = similarity.HammingID{}
	}
	d := &Persistent[V]{
		cfg:   cfg,
		cmp:   cmp,
		clk:   clk,
		store: store,
		cache: make(map[types.ID]types.ValueSet[V]),
	}
	if err := d.load(); err != nil {
		return nil, fmt.Errorf("directory: load %s: %w", cfg.Name, err)
	}
	return d, nil
}

func (d *Persistent[V]) load() error {
	now := d.clk.Now()
	var expired [][]byte
	corrupted := 0
	err := d.store.PrefixScan(nil, func(key, value []byte) bool {
		var rec persistedValue[V]
		if err := kv.DecodeJSON(key, value, &rec); err != nil {
			logger.Warn("跳过损坏的目录记录", "error", err)
			corrupted++
			return true
		}
		vi := rec.info()
		if vi.Expired(now) {
			expired = append(expired, bytes.Clone(key))
			return true
		}
		set := d.cache[rec.Key]
		set.Add(vi)
		d.cache[rec.Key] = set
		return true
	})
	if err != nil {
		return err
	}
	for _, k := range expired {
		if err := d.store.Delete(k); err != nil {
			return err
		}
	}
	logger.Debug("目录已加载", "name", d.cfg.Name, "keys", len(d.cache), "expired", len(expired), "corrupted", corrupted)
	return nil
}

func recordKey[V comparable](key types.ID, v V) []byte {
	return []byte(key.String() + "/" + types.ValueHash(v).String())
}

func keyPrefix(key types.ID) []byte {
	return []byte(key.String() + "/")
}

func (d *Persistent[V]) write(key types.ID, vi types.ValueInfo[V], now time.Time) error {
	rec := persistedValue[V]{Key: key, Value: vi.Value, TTL: vi.TTL, Secret: vi.HashedSecret}
	var ttl time.Duration
	if !vi.ExpiresAt.IsZero() {
		rec.ExpiresAt = vi.ExpiresAt.UnixNano()
		ttl = vi.ExpiresAt.Sub(now)
	}
	return d.store.PutJSONWithTTL(recordKey(key, vi.Value), &rec, ttl)
}

// Comparator 实现 MultiValue
func (d *Persistent[V]) Comparator() similarity.Comparator[types.ID] { return d.cmp }

// Get 实现 MultiValue
func (d *Persistent[V]) Get(key types.ID) (types.ValueSet[V], error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	return live(d.cache[key], d.clk.Now()), nil
}

// Put 实现 MultiValue
func (d *Persistent[V]) Put(key types.ID, info types.ValueInfo[V]) (*types.ValueInfo[V], error) {
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
	if err := d.write(key, info, now); err != nil {
		return nil, err
	}

	set := d.cache[key]
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
	d.cache[key] = append(set, info)
	return nil, nil
}

// Remove 实现 MultiValue
func (d *Persistent[V]) Remove(key types.ID, value V) (*types.ValueInfo[V], error) {
	removed, err := d.RemoveMatching(key, func(vi types.ValueInfo[V]) bool { return vi.Value == value })
	if err != nil || len(removed) == 0 {
		return nil, err
	}
	return &removed[0], nil
}

// RemoveAll 实现 MultiValue
func (d *Persistent[V]) RemoveAll(key types.ID) (types.ValueSet[V], error) {
	return d.RemoveMatching(key, func(types.ValueInfo[V]) bool { return true })
}

// RemoveMatching 实现 MultiValue
func (d *Persistent[V]) RemoveMatching(key types.ID, match func(types.ValueInfo[V]) bool) (types.ValueSet[V], error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}

	now := d.clk.Now()
	var (
		kept, removed types.ValueSet[V]
		err           error
	)
	current := d.cache[key]
	for i, vi := range current {
		expired := vi.Expired(now)
		if !expired && !match(vi) {
			kept = append(kept, vi)
			continue
		}
		if err = d.store.Delete(recordKey(key, vi.Value)); err != nil {
			// 删除失败的记录和未处理的记录留在索引中，已删除的记录移出索引
			kept = append(kept, current[i:]...)
			break
		}
		if !expired {
			removed = append(removed, vi)
		}
	}
	if len(kept) == 0 {
		delete(d.cache, key)
	} else {
		d.cache[key] = kept
	}
	return removed, err
}

// SimilarKeys 实现 MultiValue
func (d *Persistent[V]) SimilarKeys(key types.ID, threshold float64) ([]types.ID, error) {
	m, err := d.Similar(key, threshold)
	if err != nil {
		return nil, err
	}
	return sortedKeys(d.cmp, key, m), nil
}

// Similar 实现 MultiValue
func (d *Persistent[V]) Similar(key types.ID, threshold float64) (map[types.ID]types.ValueSet[V], error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	return scanSimilar(d.cmp, key, threshold, d.cache, d.clk.Now()), nil
}

// Keys 实现 MultiValue
func (d *Persistent[V]) Keys() ([]types.ID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	now := d.clk.Now()
	keys := make([]types.ID, 0, len(d.cache))
	for k, set := range d.cache {
		if len(live(set, now)) > 0 {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Len 实现 MultiValue
func (d *Persistent[V]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.cache)
}

// Sweep 实现 MultiValue
func (d *Persistent[V]) Sweep() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrClosed
	}
	now := d.clk.Now()
	n := 0
	for k, set := range d.cache {
		var kept types.ValueSet[V]
		for _, vi := range set {
			if !vi.Expired(now) {
				kept = append(kept, vi)
				continue
			}
			if err := d.store.Delete(recordKey(k, vi.Value)); err != nil {
				return n, err
			}
			n++
		}
		if len(kept) == 0 {
			delete(d.cache, k)
		} else {
			d.cache[k] = kept
		}
	}
	return n, nil
}

// Clear 实现 MultiValue
func (d *Persistent[V]) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	for k := range d.cache {
		if err := d.store.DeletePrefix(keyPrefix(k)); err != nil {
			return err
		}
	}
	d.cache = make(map[types.ID]types.ValueSet[V])
	return nil
}

// Close 实现 MultiValue，不关闭底层引擎
func (d *Persistent[V]) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.cache = nil
	return nil
}

var _ MultiValue[string] = (*Persistent[string])(nil)
