// Package kademlia 提供 K 桶路由表
//
// 桶按度量的距离等级索引：XOR 度量下等级是异或结果的比特长度，
// 汉明度量下等级就是比特差异数，因此最多有 bitLen+1 个桶。
// 桶懒创建，变空时删除。
package kademlia

import (
	"fmt"
	"math/big"
	"math/rand"
	"sort"
	"strings"
	"sync"

	"github.com/dep2p/go-simdht/internal/routing/metric"
	"github.com/dep2p/go-simdht/pkg/types"
)

// DefaultBucketSize 默认 K 桶容量
const DefaultBucketSize = 20

// Table K 桶路由表
//
// 桶表由一把读写锁保护，每个桶再有自己的锁：
// Touch 持读锁修改单个桶，不同桶互不阻塞；删除桶需要写锁。
type Table struct {
	self       types.IDAddressPair
	metric     metric.Metric
	bucketSize int
	bits       int

	mu      sync.RWMutex
	buckets map[int]*KBucket
}

// NewTable 创建路由表
func NewTable(self types.IDAddressPair, m metric.Metric, bucketSize int) *Table {
	if bucketSize <= 0 {
		bucketSize = DefaultBucketSize
	}
	return &Table{
		self:       self,
		metric:     m,
		bucketSize: bucketSize,
		bits:       self.ID.BitLen(),
		buckets:    make(map[int]*KBucket),
	}
}

// Self 本节点
func (t *Table) Self() types.IDAddressPair { return t.self }

// Metric 距离度量
func (t *Table) Metric() metric.Metric { return t.metric }

// Touch 插入或刷新节点，忽略自身
func (t *Table) Touch(p types.IDAddressPair) {
	if p.IsEmpty() || p.ID.Equal(t.self.ID) || p.ID.Size() != t.self.ID.Size() {
		return
	}
	idx := t.metric.Class(p.ID, t.self.ID)

	for {
		t.mu.RLock()
		b := t.buckets[idx]
		if b != nil {
			b.Touch(p)
			t.mu.RUnlock()
			return
		}
		t.mu.RUnlock()

		t.mu.Lock()
		if t.buckets[idx] == nil {
			t.buckets[idx] = NewKBucket(t.bucketSize)
		}
		t.mu.Unlock()
	}
}

// Forget 移除节点，桶变空时删除桶
func (t *Table) Forget(p types.IDAddressPair) {
	if p.ID.Equal(t.self.ID) || p.ID.Size() != t.self.ID.Size() {
		return
	}
	idx := t.metric.Class(p.ID, t.self.ID)

	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.buckets[idx]
	if b == nil {
		return
	}
	if b.Remove(p.ID) == 0 {
		delete(t.buckets, idx)
	}
}

// NextHopCandidates 返回最多 maxCount 个下一跳候选
//
// 设 d 为目标到本节点的距离等级。d > 0 时依次取桶 d、d-1 … 0，
// 再放入本节点（joining 时跳过），最后取桶 d+1 … bitLen。
// d = 0 时本节点在最前，之后是所有桶。每个桶内先按到目标的距离排序。
func (t *Table) NextHopCandidates(target, _ types.ID, joining bool, maxCount int) []types.IDAddressPair {
	if maxCount <= 0 {
		return nil
	}
	cmp := metric.TowardTarget(t.metric, target)
	d := t.metric.Class(target, t.self.ID)
	out := make([]types.IDAddressPair, 0, maxCount)
	seen := make(map[types.ID]struct{}, maxCount)

	add := func(p types.IDAddressPair) bool {
		if _, ok := seen[p.ID]; !ok {
			seen[p.ID] = struct{}{}
			out = append(out, p)
		}
		return len(out) >= maxCount
	}
	pick := func(idx int) bool {
		t.mu.RLock()
		b := t.buckets[idx]
		t.mu.RUnlock()
		if b == nil {
			return false
		}
		for _, p := range b.SortedNodes(cmp) {
			if add(p) {
				return true
			}
		}
		return false
	}

	if d > 0 {
		for i := d; i >= 0; i-- {
			if pick(i) {
				return out
			}
		}
	}
	if !joining && add(t.self) {
		return out
	}
	start := d + 1
	if d == 0 {
		start = 0
	}
	for i := start; i <= t.bits; i++ {
		if pick(i) {
			return out
		}
	}
	return out
}

// Peers 返回所有已知节点
func (t *Table) Peers() []types.IDAddressPair {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []types.IDAddressPair
	for _, idx := range t.sortedIndexes() {
		out = append(out, t.buckets[idx].Nodes()...)
	}
	return out
}

// NumEntries 返回非空桶数量
func (t *Table) NumEntries() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.buckets)
}

// Clear 清空路由表
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buckets = make(map[int]*KBucket)
}

// Incorporate 把路由经过的节点加入路由表
func (t *Table) Incorporate(hops []types.IDAddressPair) bool {
	before := t.size()
	for _, p := range hops {
		t.Touch(p)
	}
	return t.size() != before
}

func (t *Table) size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, b := range t.buckets {
		n += b.Size()
	}
	return n
}

// MaintenanceEdge 返回桶刷新的目标 ID
//
// 随机选一个距离等级 c ∈ [1, bitLen]，生成与本节点恰好相距等级 c 的 ID。
func (t *Table) MaintenanceEdge(rnd *rand.Rand) types.ID {
	c := rnd.Intn(t.bits) + 1
	return RandomIDAtClass(t.metric, t.self.ID, c, rnd)
}

// RandomIDAtClass 生成与 self 距离等级为 c 的随机 ID
//
// 汉明度量随机翻转 c 位；其他度量生成异或结果比特长度为 c 的 ID。
func RandomIDAtClass(m metric.Metric, self types.ID, c int, rnd *rand.Rand) types.ID {
	bits := self.BitLen()
	if c <= 0 {
		return self
	}
	if c > bits {
		c = bits
	}

	mask := new(big.Int)
	if _, ok := m.(metric.Hamming); ok {
		for _, i := range rnd.Perm(bits)[:c] {
			mask.SetBit(mask, i, 1)
		}
	} else {
		// 最高位固定为 c-1，其余低位随机
		mask.SetBit(mask, c-1, 1)
		if c > 1 {
			low := new(big.Int).Rand(rnd, new(big.Int).Lsh(big.NewInt(1), uint(c-1)))
			mask.Or(mask, low)
		}
	}
	return types.IDFromBigInt(new(big.Int).Xor(self.BigInt(), mask), self.Size())
}

// String 返回路由表的文本表示
func (t *Table) String() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "self: %s (%s)\n", t.self, t.metric.Name())
	for _, idx := range t.sortedIndexes() {
		fmt.Fprintf(&sb, "bucket %d:", idx)
		for _, p := range t.buckets[idx].Nodes() {
			fmt.Fprintf(&sb, " %s", p)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// sortedIndexes 调用方需持有 t.mu
func (t *Table) sortedIndexes() []int {
	idx := make([]int, 0, len(t.buckets))
	for i := range t.buckets {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}
