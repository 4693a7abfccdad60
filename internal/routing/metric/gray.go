package metric

import (
	"fmt"
	"math/big"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dep2p/go-simdht/pkg/types"
)

// DefaultGrayCacheSize 默认缓存容量
const DefaultGrayCacheSize = 65536

// ToGray 二进制转反射 Gray 码: n ^ (n >> 1)
//
// 只对非负数有定义，负数会 panic。
func ToGray(n *big.Int) *big.Int {
	mustNonNegative(n)
	return new(big.Int).Xor(n, new(big.Int).Rsh(n, 1))
}

// FromGray Gray 码还原为二进制，逐位异或折叠
func FromGray(g *big.Int) *big.Int {
	mustNonNegative(g)
	n := new(big.Int).Set(g)
	for i := new(big.Int).Rsh(g, 1); i.Sign() != 0; i.Rsh(i, 1) {
		n.Xor(n, i)
	}
	return n
}

func mustNonNegative(n *big.Int) {
	if n.Sign() < 0 {
		panic(fmt.Sprintf("metric: gray code undefined for negative %s", n))
	}
}

// GrayConverter 带 LRU 缓存的 Gray 码转换器
//
// FromGray 需要对所有比特折叠，同一 ID 在路由中反复出现，
// 结果按 ID 缓存。缓存由构造方注入，可安全并发使用。
type GrayConverter struct {
	cache *lru.Cache[types.ID, *big.Int]
}

// NewGrayConverter 创建容量为 size 的转换器
func NewGrayConverter(size int) (*GrayConverter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("metric: gray cache size must be positive, got %d", size)
	}
	cache, err := lru.New[types.ID, *big.Int](size)
	if err != nil {
		return nil, err
	}
	return &GrayConverter{cache: cache}, nil
}

// FromGrayID 还原 ID 的 Gray 码，返回值不可修改
func (c *GrayConverter) FromGrayID(id types.ID) *big.Int {
	if v, ok := c.cache.Get(id); ok {
		return v
	}
	v := FromGray(id.BigInt())
	c.cache.Add(id, v)
	return v
}

// Len 当前缓存条目数
func (c *GrayConverter) Len() int {
	return c.cache.Len()
}
