// Package directory 实现节点本地目录
//
// 目录把 ID 映射到一组 ValueInfo，同一键下不会出现两个相等的值。
// 三种实现共用 MultiValue 契约：
//   - Memory: 内存 map
//   - Persistent: BadgerDB（kv.Store 前缀 d/v/），带内存索引
//   - SingleValueAdapter: 把单值存储包装成多值契约
//
// 相似性扫描是对全部键的线性扫描，按注入的比较器打分，阈值包含边界。
//
// 并发：每个目录实例一把互斥锁，put/remove/clear 与迭代类操作
// （Similar、Keys）互斥。
package directory

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dep2p/go-simdht/internal/similarity"
	"github.com/dep2p/go-simdht/pkg/types"
)

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrClosed 目录已关闭
	ErrClosed = errors.New("directory: closed")

	// ErrUnsupportedType 不支持的目录类型
	ErrUnsupportedType = errors.New("directory: unsupported type")

	// ErrNoEngine 持久化目录缺少存储引擎
	ErrNoEngine = errors.New("directory: persistent directory requires a storage engine")

	// ErrInvalidKey 无效键
	ErrInvalidKey = errors.New("directory: invalid key")
)

// ============================================================================
//                              契约
// ============================================================================

// MultiValue 多值目录
type MultiValue[V comparable] interface {
	// Get 返回键下的全部值，键不存在时返回 nil
	Get(key types.ID) (types.ValueSet[V], error)

	// Put 写入一个值
	//
	// 已有相等的值时替换其属性（刷新 TTL）并返回原 ValueInfo，否则返回 nil。
	Put(key types.ID, info types.ValueInfo[V]) (*types.ValueInfo[V], error)

	// Remove 删除一个值，返回被删除的 ValueInfo
	Remove(key types.ID, value V) (*types.ValueInfo[V], error)

	// RemoveAll 删除键下全部值
	RemoveAll(key types.ID) (types.ValueSet[V], error)

	// RemoveMatching 原子地删除键下满足 match 的值
	RemoveMatching(key types.ID, match func(types.ValueInfo[V]) bool) (types.ValueSet[V], error)

	// SimilarKeys 返回与 key 相似度不低于 threshold 的键
	SimilarKeys(key types.ID, threshold float64) ([]types.ID, error)

	// Similar 返回与 key 相似度不低于 threshold 的键及其值
	Similar(key types.ID, threshold float64) (map[types.ID]types.ValueSet[V], error)

	// Keys 返回全部未过期的键
	Keys() ([]types.ID, error)

	// Len 键数量
	Len() int

	// Sweep 清除过期值，返回清除数量
	Sweep() (int, error)

	// Clear 清空目录
	Clear() error

	// Close 关闭目录
	Close() error

	// Comparator 相似度比较器
	Comparator() similarity.Comparator[types.ID]
}

// ============================================================================
//                              配置
// ============================================================================

// 目录实现类型
const (
	TypeMemory     = "memory"
	TypePersistent = "persistent"
)

// Config 目录配置
type Config struct {
	// Type 实现类型: memory | persistent
	Type string

	// Name 目录名，持久化时作为键前缀的一部分
	Name string

	// MultipleValuesForKey 为 false 时使用单值存储加适配器
	MultipleValuesForKey bool

	// Expiration 是否启用 TTL 过期
	Expiration bool

	// DefaultTTL 值未携带 TTL 时使用
	DefaultTTL time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Type:                 TypeMemory,
		Name:                 "global",
		MultipleValuesForKey: true,
		Expiration:           true,
		DefaultTTL:           3 * time.Hour,
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	if c.Type != TypeMemory && c.Type != TypePersistent {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, c.Type)
	}
	if c.Name == "" {
		return fmt.Errorf("directory: empty name")
	}
	if c.Expiration && c.DefaultTTL <= 0 {
		return fmt.Errorf("directory: default ttl must be positive when expiration is enabled")
	}
	return nil
}

// ============================================================================
//                              公共逻辑
// ============================================================================

// stamp 补全 TTL 并在启用过期时计算过期时间
func stamp[V comparable](cfg Config, info types.ValueInfo[V], now time.Time) types.ValueInfo[V] {
	if info.TTL <= 0 {
		info.TTL = cfg.DefaultTTL
	}
	if cfg.Expiration && info.TTL > 0 {
		info.ExpiresAt = now.Add(info.TTL)
	} else {
		info.ExpiresAt = time.Time{}
	}
	return info
}

// live 过滤掉已过期的值，全部过期时返回 nil
func live[V comparable](set types.ValueSet[V], now time.Time) types.ValueSet[V] {
	var out types.ValueSet[V]
	for _, vi := range set {
		if !vi.Expired(now) {
			out = append(out, vi)
		}
	}
	return out
}

// scanSimilar 对 entries 做线性扫描
func scanSimilar[V comparable](cmp similarity.Comparator[types.ID], key types.ID, threshold float64,
	entries map[types.ID]types.ValueSet[V], now time.Time) map[types.ID]types.ValueSet[V] {
	out := make(map[types.ID]types.ValueSet[V])
	for k, set := range entries {
		if cmp.Similarity(key, k) < threshold {
			continue
		}
		if vs := live(set, now); len(vs) > 0 {
			out[k] = vs
		}
	}
	return out
}

// sortedKeys 按与 key 的相似度降序返回结果键
func sortedKeys[V comparable](cmp similarity.Comparator[types.ID], key types.ID, m map[types.ID]types.ValueSet[V]) []types.ID {
	keys := make([]types.ID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, cmp.Order(key))
	return keys
}
