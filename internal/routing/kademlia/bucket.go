package kademlia

import (
	"slices"
	"sync"

	"github.com/dep2p/go-simdht/pkg/types"
)

// KBucket K 桶
//
// 节点按最近接触时间排列，最新的在尾部。桶满时新节点进入替换缓存，
// 桶内节点被遗忘后由最新的替换节点补位。
type KBucket struct {
	capacity int

	// 节点列表（最近活跃的在尾部）
	nodes []types.IDAddressPair

	// 替换缓存（最新的在前部）
	replacements []types.IDAddressPair

	mu sync.Mutex
}

// NewKBucket 创建容量为 capacity 的 K 桶
func NewKBucket(capacity int) *KBucket {
	return &KBucket{
		capacity: capacity,
		nodes:    make([]types.IDAddressPair, 0, capacity),
	}
}

// Touch 插入或刷新节点，返回节点是否在桶内
func (b *KBucket) Touch(p types.IDAddressPair) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if i := indexOf(b.nodes, p.ID); i >= 0 {
		// 移动到尾部，地址以最新为准
		b.nodes = append(b.nodes[:i], b.nodes[i+1:]...)
		b.nodes = append(b.nodes, p)
		return true
	}
	if i := indexOf(b.replacements, p.ID); i >= 0 {
		b.replacements = append(b.replacements[:i], b.replacements[i+1:]...)
	}
	if len(b.nodes) < b.capacity {
		b.nodes = append(b.nodes, p)
		return true
	}

	b.replacements = append([]types.IDAddressPair{p}, b.replacements...)
	if len(b.replacements) > b.capacity {
		b.replacements = b.replacements[:b.capacity]
	}
	return false
}

// Remove 移除节点，从替换缓存提升一个节点补位；返回剩余节点数
func (b *KBucket) Remove(id types.ID) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if i := indexOf(b.nodes, id); i >= 0 {
		b.nodes = append(b.nodes[:i], b.nodes[i+1:]...)
		if len(b.replacements) > 0 {
			b.nodes = append(b.nodes, b.replacements[0])
			b.replacements = b.replacements[1:]
		}
	} else if i := indexOf(b.replacements, id); i >= 0 {
		b.replacements = append(b.replacements[:i], b.replacements[i+1:]...)
	}
	return len(b.nodes)
}

// Contains 检查节点是否在桶内
func (b *KBucket) Contains(id types.ID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return indexOf(b.nodes, id) >= 0
}

// Size 返回桶中节点数量
func (b *KBucket) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.nodes)
}

// Nodes 返回节点副本
func (b *KBucket) Nodes() []types.IDAddressPair {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.nodes)
}

// SortedNodes 返回按 cmp 排序的节点副本
func (b *KBucket) SortedNodes(cmp func(a, b types.IDAddressPair) int) []types.IDAddressPair {
	nodes := b.Nodes()
	slices.SortFunc(nodes, cmp)
	return nodes
}

func indexOf(list []types.IDAddressPair, id types.ID) int {
	for i := range list {
		if list[i].ID.Equal(id) {
			return i
		}
	}
	return -1
}
