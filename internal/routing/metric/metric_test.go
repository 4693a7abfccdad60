package metric

import (
	"math/big"
	"math/bits"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-simdht/pkg/types"
)

func id8(n uint64) types.ID { return types.IDFromUint64(n, 1) }

func newConv(t *testing.T, size int) *GrayConverter {
	t.Helper()
	c, err := NewGrayConverter(size)
	require.NoError(t, err)
	return c
}

// TestGray_RoundTrip 测试 fromGray(toGray(n)) == n
func TestGray_RoundTrip(t *testing.T) {
	for n := int64(0); n < 1<<12; n++ {
		v := big.NewInt(n)
		require.Equal(t, 0, FromGray(ToGray(v)).Cmp(v), "n=%d", n)
	}

	rnd := rand.New(rand.NewSource(7))
	limit := new(big.Int).Lsh(big.NewInt(1), 160)
	for i := 0; i < 200; i++ {
		v := new(big.Int).Rand(rnd, limit)
		require.Equal(t, 0, FromGray(ToGray(v)).Cmp(v))
	}

	// 相邻整数的 Gray 码只差一位
	for n := int64(0); n < 255; n++ {
		diff := new(big.Int).Xor(ToGray(big.NewInt(n)), ToGray(big.NewInt(n+1)))
		assert.Equal(t, 1, onesCount(diff))
	}

	assert.Panics(t, func() { ToGray(big.NewInt(-1)) })
	t.Log("✅ Gray 码往返正常")
}

func onesCount(n *big.Int) int {
	c := 0
	for _, w := range n.Bits() {
		c += bits.OnesCount(uint(w))
	}
	return c
}

// TestXOR 测试异或度量
func TestXOR(t *testing.T) {
	m := XOR{}
	assert.Equal(t, int64(0b0110), m.Distance(id8(0b1010), id8(0b1100)).Int64())
	assert.Equal(t, 3, m.Class(id8(0b1010), id8(0b1100)))
	assert.Equal(t, 0, m.Class(id8(5), id8(5)))
	assert.Equal(t, 8, m.Class(id8(0x80), id8(0)))
}

// TestHamming 测试汉明度量
func TestHamming(t *testing.T) {
	m := Hamming{}
	assert.Equal(t, int64(2), m.Distance(id8(0b1010), id8(0b1100)).Int64())
	assert.Equal(t, 2, m.Class(id8(0b1010), id8(0b1100)))
	assert.Equal(t, 8, m.Class(id8(0xff), id8(0)))
}

// TestGray_Distance 测试 Gray 距离对称且非负
func TestGray_Distance(t *testing.T) {
	g := NewGray(newConv(t, 16))
	for a := uint64(0); a < 64; a++ {
		for b := uint64(0); b < 64; b++ {
			d1 := g.Distance(id8(a), id8(b))
			d2 := g.Distance(id8(b), id8(a))
			require.Equal(t, 0, d1.Cmp(d2))
			require.GreaterOrEqual(t, d1.Sign(), 0)
		}
	}
	assert.Equal(t, 0, g.Distance(id8(9), id8(9)).Sign())

	// Gray 码相邻的两个 ID，二进制距离为 1
	a := ToGray(big.NewInt(41)).Uint64()
	b := ToGray(big.NewInt(42)).Uint64()
	assert.Equal(t, int64(1), g.Distance(id8(a), id8(b)).Int64())
	assert.Equal(t, 1, g.Class(id8(a), id8(b)))
}

// TestGrayRing_Distance 测试有向环距离
func TestGrayRing_Distance(t *testing.T) {
	g := NewGrayRing(newConv(t, 16))
	assert.Equal(t, int64(256), g.Distance(id8(3), id8(3)).Int64(), "自身距离为整个环")
	assert.Equal(t, 8, g.Class(id8(3), id8(3)))
	assert.Positive(t, g.Distance(id8(1), id8(2)).Sign())
}

// TestGrayConverter_Cache 测试缓存容量和淘汰
func TestGrayConverter_Cache(t *testing.T) {
	_, err := NewGrayConverter(0)
	assert.Error(t, err)

	c := newConv(t, 4)
	for n := uint64(0); n < 10; n++ {
		got := c.FromGrayID(id8(n))
		assert.Equal(t, 0, got.Cmp(FromGray(big.NewInt(int64(n)))))
	}
	assert.Equal(t, 4, c.Len())

	first := c.FromGrayID(id8(9))
	assert.Same(t, first, c.FromGrayID(id8(9)), "命中缓存返回同一对象")
}

// TestTowardTarget 测试按距离排序，距离相同按 ID 自然序
func TestTowardTarget(t *testing.T) {
	target := id8(0)
	pairs := []types.IDAddressPair{
		{ID: id8(0b11)}, {ID: id8(0b10)}, {ID: id8(0b01)}, {ID: id8(0b111)},
	}
	slices.SortFunc(pairs, TowardTarget(Hamming{}, target))

	got := make([]uint64, len(pairs))
	for i, p := range pairs {
		got[i] = p.ID.BigInt().Uint64()
	}
	assert.Equal(t, []uint64{0b01, 0b10, 0b11, 0b111}, got)

	assert.True(t, Closer(XOR{}, target, id8(1), id8(2)))
	assert.False(t, Closer(XOR{}, target, id8(2), id8(2)))
}
