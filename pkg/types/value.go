package types

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"
)

// ============================================================================
//                              Secret - 所有权密钥
// ============================================================================

// Secret 哈希后的所有权密钥
//
// put 时附加到每个值上，remove 时必须提供相同的 Secret。
type Secret []byte

// HashSecret 对原始密钥做 SHA-1
func HashSecret(raw []byte) Secret {
	if len(raw) == 0 {
		return nil
	}
	sum := sha1.Sum(raw)
	return Secret(sum[:])
}

// Equal 比较两个 Secret
func (s Secret) Equal(other Secret) bool {
	return bytes.Equal(s, other)
}

// IsEmpty 检查是否为空
func (s Secret) IsEmpty() bool {
	return len(s) == 0
}

// String 返回十六进制表示
func (s Secret) String() string {
	return hex.EncodeToString(s)
}

// ============================================================================
//                              ValueInfo - 带属性的值
// ============================================================================

// Attributes 一批 put 共用的值属性
type Attributes struct {
	TTL          time.Duration
	HashedSecret Secret
}

// ValueInfo 存储的值及其属性
//
// 相等性只看 Value，两个 ValueInfo 即使 TTL 或 Secret 不同也视为同一个值。
type ValueInfo[V comparable] struct {
	Value        V             `json:"value"`
	TTL          time.Duration `json:"ttl"`
	ExpiresAt    time.Time     `json:"expires_at,omitempty"`
	HashedSecret Secret        `json:"secret,omitempty"`
}

// NewValueInfo 创建 ValueInfo
func NewValueInfo[V comparable](v V, attr Attributes) ValueInfo[V] {
	return ValueInfo[V]{Value: v, TTL: attr.TTL, HashedSecret: attr.HashedSecret}
}

// Equal 值相等
func (vi ValueInfo[V]) Equal(other ValueInfo[V]) bool {
	return vi.Value == other.Value
}

// Expired 检查在 now 时刻是否已过期；ExpiresAt 为零值表示永不过期
func (vi ValueInfo[V]) Expired(now time.Time) bool {
	return !vi.ExpiresAt.IsZero() && !now.Before(vi.ExpiresAt)
}

// RemainingTTL 返回剩余存活时间；永不过期时返回 TTL 本身
func (vi ValueInfo[V]) RemainingTTL(now time.Time) time.Duration {
	if vi.ExpiresAt.IsZero() {
		return vi.TTL
	}
	if d := vi.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// ValueHash 返回值的 SHA-1 派生 ID，remove 按哈希删除时使用
func ValueHash[V comparable](v V) ID {
	return SHA1ID([]byte(fmt.Sprint(v)), sha1.Size)
}

// ============================================================================
//                              ValueSet - 值集合
// ============================================================================

// ValueSet 按值去重的有序集合
type ValueSet[V comparable] []ValueInfo[V]

// Contains 检查是否包含相同值
func (s ValueSet[V]) Contains(v V) bool {
	return s.index(v) >= 0
}

// Lookup 返回相同值的 ValueInfo
func (s ValueSet[V]) Lookup(v V) (ValueInfo[V], bool) {
	if i := s.index(v); i >= 0 {
		return s[i], true
	}
	return ValueInfo[V]{}, false
}

func (s ValueSet[V]) index(v V) int {
	for i := range s {
		if s[i].Value == v {
			return i
		}
	}
	return -1
}

// Add 添加值，已存在同值时保留原元素，返回是否新增
func (s *ValueSet[V]) Add(vi ValueInfo[V]) bool {
	if s.index(vi.Value) >= 0 {
		return false
	}
	*s = append(*s, vi)
	return true
}

// Union 返回并集，不修改接收者
func (s ValueSet[V]) Union(other ValueSet[V]) ValueSet[V] {
	out := make(ValueSet[V], 0, len(s)+len(other))
	out = append(out, s...)
	for _, vi := range other {
		out.Add(vi)
	}
	return out
}

// Values 返回纯值列表
func (s ValueSet[V]) Values() []V {
	out := make([]V, len(s))
	for i := range s {
		out[i] = s[i].Value
	}
	return out
}

// Clone 浅拷贝
func (s ValueSet[V]) Clone() ValueSet[V] {
	if s == nil {
		return nil
	}
	out := make(ValueSet[V], len(s))
	copy(out, s)
	return out
}

// MergeSimilar 将 src 合并进 dst：两边都有的键取值集合并集，仅 src 有的键原样加入
func MergeSimilar[V comparable](dst, src map[ID]ValueSet[V]) map[ID]ValueSet[V] {
	if dst == nil {
		dst = make(map[ID]ValueSet[V], len(src))
	}
	for k, vs := range src {
		if prev, ok := dst[k]; ok {
			dst[k] = prev.Union(vs)
			continue
		}
		dst[k] = vs.Clone()
	}
	return dst
}
