// Package chord 提供 finger 表与后继列表
//
// 环的顺序由注入的度量决定：Gray 度量下环按 Gray 码相邻排列，
// 相邻位置只差一位，线性遍历也按比特差异递增。
package chord

import (
	"math/big"
	"slices"
	"sync"

	"github.com/dep2p/go-simdht/internal/routing/metric"
	"github.com/dep2p/go-simdht/pkg/types"
)

// DefaultSuccessorListSize 默认后继列表长度
const DefaultSuccessorListSize = 8

// FingerTable finger 表
//
// 槽位为节点到本节点的距离等级 [1, bitLen]，每个槽位保留距离最小的节点。
type FingerTable struct {
	self   types.ID
	metric metric.Metric

	mu      sync.RWMutex
	fingers map[int]types.IDAddressPair
}

// NewFingerTable 创建 finger 表
func NewFingerTable(self types.ID, m metric.Metric) *FingerTable {
	return &FingerTable{
		self:    self,
		metric:  m,
		fingers: make(map[int]types.IDAddressPair),
	}
}

// Put 放入节点，返回表是否发生变化
func (f *FingerTable) Put(p types.IDAddressPair) bool {
	if p.ID.Equal(f.self) || p.ID.Size() != f.self.Size() {
		return false
	}
	slot := f.metric.Class(p.ID, f.self)
	if slot <= 0 {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.fingers[slot]
	if ok {
		if cur.ID.Equal(p.ID) {
			if cur.Address == p.Address {
				return false
			}
			f.fingers[slot] = p
			return true
		}
		if f.distance(cur.ID).Cmp(f.distance(p.ID)) <= 0 {
			return false
		}
	}
	f.fingers[slot] = p
	return true
}

func (f *FingerTable) distance(id types.ID) *big.Int {
	return f.metric.Distance(id, f.self)
}

// Remove 移除节点
func (f *FingerTable) Remove(id types.ID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for slot, p := range f.fingers {
		if p.ID.Equal(id) {
			delete(f.fingers, slot)
			return true
		}
	}
	return false
}

// Get 返回槽位上的节点
func (f *FingerTable) Get(slot int) (types.IDAddressPair, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.fingers[slot]
	return p, ok
}

// NumDifferentEntries 返回不同节点数
func (f *FingerTable) NumDifferentEntries() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	seen := make(map[types.ID]struct{}, len(f.fingers))
	for _, p := range f.fingers {
		seen[p.ID] = struct{}{}
	}
	return len(seen)
}

// Entries 按槽位升序返回所有节点
func (f *FingerTable) Entries() []types.IDAddressPair {
	f.mu.RLock()
	defer f.mu.RUnlock()
	slots := make([]int, 0, len(f.fingers))
	for s := range f.fingers {
		slots = append(slots, s)
	}
	slices.Sort(slots)
	out := make([]types.IDAddressPair, len(slots))
	for i, s := range slots {
		out[i] = f.fingers[s]
	}
	return out
}

// Clear 清空
func (f *FingerTable) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fingers = make(map[int]types.IDAddressPair)
}

// ============================================================================
//                              后继列表
// ============================================================================

// SuccessorList 按到本节点距离升序的有界节点列表
type SuccessorList struct {
	self     types.ID
	metric   metric.Metric
	capacity int

	mu    sync.RWMutex
	nodes []types.IDAddressPair
}

// NewSuccessorList 创建后继列表
func NewSuccessorList(self types.ID, m metric.Metric, capacity int) *SuccessorList {
	if capacity <= 0 {
		capacity = DefaultSuccessorListSize
	}
	return &SuccessorList{self: self, metric: m, capacity: capacity}
}

// Add 加入节点，返回列表是否变化
func (s *SuccessorList) Add(p types.IDAddressPair) bool {
	if p.ID.Equal(s.self) || p.ID.Size() != s.self.Size() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.nodes {
		if s.nodes[i].ID.Equal(p.ID) {
			changed := s.nodes[i].Address != p.Address
			s.nodes[i] = p
			return changed
		}
	}

	cmp := metric.TowardTarget(s.metric, s.self)
	i, _ := slices.BinarySearchFunc(s.nodes, p, cmp)
	if i >= s.capacity {
		return false
	}
	s.nodes = slices.Insert(s.nodes, i, p)
	if len(s.nodes) > s.capacity {
		s.nodes = s.nodes[:s.capacity]
	}
	return true
}

// Remove 移除节点
func (s *SuccessorList) Remove(id types.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.nodes {
		if s.nodes[i].ID.Equal(id) {
			s.nodes = slices.Delete(s.nodes, i, i+1)
			return true
		}
	}
	return false
}

// Nodes 返回节点副本
func (s *SuccessorList) Nodes() []types.IDAddressPair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.nodes)
}

// Clear 清空
func (s *SuccessorList) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = nil
}
