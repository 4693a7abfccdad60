package chord

import (
	"fmt"
	"math"
	"math/big"
	"math/rand"
	"slices"
	"strings"
	"time"

	"github.com/dep2p/go-simdht/internal/routing/metric"
	"github.com/dep2p/go-simdht/pkg/types"
)

// EdgePolicy finger 边的生成策略
type EdgePolicy int

const (
	// EdgeAdditive self + offset，offset 以概率 p 取全空间随机数，否则取 2^(i-1)
	EdgeAdditive EdgePolicy = iota
	// EdgeXOR self XOR 2^(bit-1)
	EdgeXOR
)

// String 返回策略名
func (p EdgePolicy) String() string {
	switch p {
	case EdgeAdditive:
		return "additive"
	case EdgeXOR:
		return "xor"
	default:
		return "unknown"
	}
}

// Table Chord 路由表：finger 表加后继列表
type Table struct {
	self             types.IDAddressPair
	metric           metric.Metric
	policy           EdgePolicy
	probProportional float64
	bits             int

	fingers    *FingerTable
	successors *SuccessorList
}

// NewTable 创建 Chord 路由表
func NewTable(self types.IDAddressPair, m metric.Metric, policy EdgePolicy, successors int, probProportional float64) *Table {
	return &Table{
		self:             self,
		metric:           m,
		policy:           policy,
		probProportional: probProportional,
		bits:             self.ID.BitLen(),
		fingers:          NewFingerTable(self.ID, m),
		successors:       NewSuccessorList(self.ID, m, successors),
	}
}

// Self 本节点
func (t *Table) Self() types.IDAddressPair { return t.self }

// Metric 距离度量
func (t *Table) Metric() metric.Metric { return t.metric }

// Fingers finger 表
func (t *Table) Fingers() *FingerTable { return t.fingers }

// Successors 后继列表
func (t *Table) Successors() *SuccessorList { return t.successors }

// Touch 同时放入 finger 表和后继列表
func (t *Table) Touch(p types.IDAddressPair) {
	if p.IsEmpty() {
		return
	}
	t.fingers.Put(p)
	t.successors.Add(p)
}

// Forget 从两个结构中移除
func (t *Table) Forget(p types.IDAddressPair) {
	t.fingers.Remove(p.ID)
	t.successors.Remove(p.ID)
}

// NextHopCandidates finger、后继和自身（joining 时跳过）去重后按到目标的距离排序
func (t *Table) NextHopCandidates(target, _ types.ID, joining bool, maxCount int) []types.IDAddressPair {
	if maxCount <= 0 {
		return nil
	}
	all := t.Peers()
	if !joining {
		all = append(all, t.self)
	}
	slices.SortFunc(all, metric.TowardTarget(t.metric, target))
	if len(all) > maxCount {
		all = all[:maxCount]
	}
	return all
}

// Peers 返回去重后的已知节点
func (t *Table) Peers() []types.IDAddressPair {
	var out []types.IDAddressPair
	seen := make(map[types.ID]struct{})
	for _, list := range [][]types.IDAddressPair{t.fingers.Entries(), t.successors.Nodes()} {
		for _, p := range list {
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// NumEntries finger 表中不同节点数
func (t *Table) NumEntries() int {
	return t.fingers.NumDifferentEntries()
}

// Clear 清空路由表
func (t *Table) Clear() {
	t.fingers.Clear()
	t.successors.Clear()
}

// Incorporate 把路由经过的节点（自身除外）放入 finger 表和后继列表
func (t *Table) Incorporate(hops []types.IDAddressPair) bool {
	updated := false
	for _, p := range hops {
		if p.ID.Equal(t.self.ID) {
			continue
		}
		updated = t.fingers.Put(p) || updated
		t.successors.Add(p)
	}
	return updated
}

// MaintenanceEdge 返回下一个 finger 边
func (t *Table) MaintenanceEdge(rnd *rand.Rand) types.ID {
	size := t.self.ID.Size()
	self := t.self.ID.BigInt()
	if t.bits < 2 {
		return t.self.ID
	}

	switch t.policy {
	case EdgeXOR:
		// bit ∈ [1, bitLen-1]
		bit := rnd.Intn(t.bits-1) + 1
		offset := new(big.Int).Lsh(big.NewInt(1), uint(bit-1))
		return types.IDFromBigInt(new(big.Int).Xor(self, offset), size)
	default:
		var offset *big.Int
		if rnd.Float64() < t.probProportional {
			offset = new(big.Int).Rand(rnd, new(big.Int).Lsh(big.NewInt(1), uint(t.bits-1)))
		} else {
			// i ∈ [2, bitLen]
			i := rnd.Intn(t.bits-1) + 2
			offset = new(big.Int).Lsh(big.NewInt(1), uint(i-1))
		}
		return types.IDFromBigInt(new(big.Int).Add(self, offset), size)
	}
}

// String 返回路由表的文本表示
func (t *Table) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "self: %s (%s, %s)\n", t.self, t.metric.Name(), t.policy)
	sb.WriteString("fingers:")
	for _, p := range t.fingers.Entries() {
		fmt.Fprintf(&sb, " %s", p)
	}
	sb.WriteString("\nsuccessors:")
	for _, p := range t.successors.Nodes() {
		fmt.Fprintf(&sb, " %s", p)
	}
	sb.WriteByte('\n')
	return sb.String()
}

// SleepInterval 根据已知 finger 数计算维护间隔
//
// interval = min + (max-min) · ln(n+1) / ln(bitLen+1)，再乘以 1-play+play·2·rand。
// 已知节点越少间隔越短，启动阶段填充更快。
func SleepInterval(minInterval, maxInterval time.Duration, numEntries, bits int, play float64, rnd *rand.Rand) time.Duration {
	ratio := 0.0
	if bits > 0 {
		ratio = math.Log(float64(numEntries)+1) / math.Log(float64(bits)+1)
	}
	if ratio > 1 {
		ratio = 1
	}
	interval := float64(minInterval) + float64(maxInterval-minInterval)*ratio
	jitter := 1 - play + play*2*rnd.Float64()
	return time.Duration(interval * jitter)
}
