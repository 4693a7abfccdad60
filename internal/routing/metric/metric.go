// Package metric 提供路由距离度量
//
// 度量同时决定两件事：
//   - Distance: 候选节点到目标的远近，用于排序
//   - Class: 距离等级 [0, bitLen]，用于 K 桶或 finger 槽位索引
//
// 支持的度量：
//   - XOR: Kademlia
//   - Hamming: HammingKademlia，等级即比特差异数
//   - Gray: Hamming Chord 环，先从 Gray 码还原再相减（无向）
//   - GrayRing: HammingChord 环，差值非正时加上 ID 空间大小（有向）
package metric

import (
	"math/big"

	"github.com/dep2p/go-simdht/pkg/types"
)

// 度量名
const (
	NameXOR      = "xor"
	NameHamming  = "hamming"
	NameGray     = "gray"
	NameGrayRing = "gray-ring"
)

// Metric 距离度量
type Metric interface {
	// Name 度量名
	Name() string

	// Distance 计算 to 与 from 之间的非负距离
	Distance(to, from types.ID) *big.Int

	// Class 距离等级，取值 [0, bitLen]
	Class(to, from types.ID) int
}

// ============================================================================
//                              XOR
// ============================================================================

// XOR 异或距离
type XOR struct{}

// Name 度量名
func (XOR) Name() string { return NameXOR }

// Distance 返回 to XOR from
func (XOR) Distance(to, from types.ID) *big.Int {
	return to.Xor(from).BigInt()
}

// Class 返回异或结果的比特长度，即 bitLen 减去公共前缀长度
func (m XOR) Class(to, from types.ID) int {
	return m.Distance(to, from).BitLen()
}

// ============================================================================
//                              Hamming
// ============================================================================

// Hamming 汉明距离
type Hamming struct{}

// Name 度量名
func (Hamming) Name() string { return NameHamming }

// Distance 返回 popcount(to XOR from)
func (Hamming) Distance(to, from types.ID) *big.Int {
	return big.NewInt(int64(to.Xor(from).OnesCount()))
}

// Class 等于汉明距离
func (Hamming) Class(to, from types.ID) int {
	return to.Xor(from).OnesCount()
}

// ============================================================================
//                              Gray
// ============================================================================

// Gray 无向 Gray 码距离
//
// 两个操作数先从 Gray 码还原为二进制，大减小后再转回 Gray 码，
// 环上相邻位置只差一位。
type Gray struct {
	conv *GrayConverter
}

// NewGray 创建 Gray 度量
func NewGray(conv *GrayConverter) *Gray {
	return &Gray{conv: conv}
}

// Name 度量名
func (*Gray) Name() string { return NameGray }

// Distance 返回 toGray(|fromGray(to) - fromGray(from)|)
func (g *Gray) Distance(to, from types.ID) *big.Int {
	a := g.conv.FromGrayID(to)
	b := g.conv.FromGrayID(from)
	if a.Cmp(b) < 0 {
		a, b = b, a
	}
	return ToGray(new(big.Int).Sub(a, b))
}

// Class 返回距离的比特长度
func (g *Gray) Class(to, from types.ID) int {
	return g.Distance(to, from).BitLen()
}

// GrayRing 有向 Gray 码环距离
type GrayRing struct {
	conv *GrayConverter
}

// NewGrayRing 创建 GrayRing 度量
func NewGrayRing(conv *GrayConverter) *GrayRing {
	return &GrayRing{conv: conv}
}

// Name 度量名
func (*GrayRing) Name() string { return NameGrayRing }

// Distance 返回 Gray 距离，非正时加上 2^bitLen
//
// 相同 ID 的距离因此是整个环，自身永远不是自己的后继。
func (g *GrayRing) Distance(to, from types.ID) *big.Int {
	a := g.conv.FromGrayID(to)
	b := g.conv.FromGrayID(from)
	if a.Cmp(b) < 0 {
		a, b = b, a
	}
	d := ToGray(new(big.Int).Sub(a, b))
	if d.Sign() <= 0 {
		d.Add(d, new(big.Int).Lsh(big.NewInt(1), uint(to.BitLen())))
	}
	return d
}

// Class 返回距离的比特长度，上限为 bitLen
func (g *GrayRing) Class(to, from types.ID) int {
	c := g.Distance(to, from).BitLen()
	if c > to.BitLen() {
		return to.BitLen()
	}
	return c
}

// ============================================================================
//                              比较器
// ============================================================================

// TowardTarget 返回按到 target 距离升序排列的比较函数，距离相同时按 ID 自然序
func TowardTarget(m Metric, target types.ID) func(a, b types.IDAddressPair) int {
	return func(a, b types.IDAddressPair) int {
		if c := m.Distance(a.ID, target).Cmp(m.Distance(b.ID, target)); c != 0 {
			return c
		}
		return a.ID.Compare(b.ID)
	}
}

// Closer 检查 a 是否比 b 严格更接近 target
func Closer(m Metric, target, a, b types.ID) bool {
	return m.Distance(a, target).Cmp(m.Distance(b, target)) < 0
}

var (
	_ Metric = XOR{}
	_ Metric = Hamming{}
	_ Metric = (*Gray)(nil)
	_ Metric = (*GrayRing)(nil)
)
