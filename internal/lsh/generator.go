// Package lsh 实现随机超平面局部敏感哈希 ID 生成器
//
// 生成器在创建时按种子预先计算 IDBitLength 个投影向量，
// 每个向量 Dimensions 维，分量为高斯随机数乘以 ContentBitLength 的平方后取整。
// 对输入向量逐个求点积，点积 >= 0 时置位第 i 位（最低位为第 0 位）。
//
// 两个输入向量夹角越小，生成 ID 的汉明距离期望越小。
package lsh

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/dep2p/go-simdht/config"
	"github.com/dep2p/go-simdht/pkg/lib/log"
	"github.com/dep2p/go-simdht/pkg/types"
)

var logger = log.Logger("lsh")

var (
	// ErrDimensionMismatch 输入维度与配置不一致
	ErrDimensionMismatch = errors.New("lsh: dimension mismatch")

	// ErrInvalidConfig 无效配置
	ErrInvalidConfig = errors.New("lsh: invalid config")
)

// Config 生成器配置
type Config struct {
	// Seed 随机种子
	Seed int64

	// IDBitLength 输出 ID 比特数，8 的正整数倍
	IDBitLength int

	// ContentBitLength 输入内容比特长度，投影按其平方缩放
	ContentBitLength int

	// Dimensions 输入向量维度
	Dimensions int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Seed:             1,
		IDBitLength:      160,
		ContentBitLength: 160,
		Dimensions:       1,
	}
}

// ConfigFromUnified 从统一配置创建生成器配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		return DefaultConfig()
	}
	return Config{
		Seed:             cfg.LSH.Seed,
		IDBitLength:      cfg.LSH.IDBitLength,
		ContentBitLength: cfg.LSH.ContentBitLength,
		Dimensions:       cfg.LSH.Dimensions,
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	if c.IDBitLength <= 0 || c.IDBitLength%8 != 0 {
		return fmt.Errorf("%w: id bit length %d", ErrInvalidConfig, c.IDBitLength)
	}
	if c.ContentBitLength <= 0 {
		return fmt.Errorf("%w: content bit length %d", ErrInvalidConfig, c.ContentBitLength)
	}
	if c.Dimensions <= 0 {
		return fmt.Errorf("%w: dimensions %d", ErrInvalidConfig, c.Dimensions)
	}
	return nil
}

// Generator 随机超平面 ID 生成器，创建后只读，可并发使用
type Generator struct {
	cfg         Config
	projections [][]*big.Int
	floatProj   [][]float64
}

// New 创建生成器并预计算投影
func New(cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rnd := rand.New(rand.NewSource(cfg.Seed))
	scale := math.Pow(float64(cfg.ContentBitLength), 2)

	g := &Generator{
		cfg:         cfg,
		projections: make([][]*big.Int, cfg.IDBitLength),
		floatProj:   make([][]float64, cfg.IDBitLength),
	}
	for i := 0; i < cfg.IDBitLength; i++ {
		g.projections[i] = make([]*big.Int, cfg.Dimensions)
		g.floatProj[i] = make([]float64, cfg.Dimensions)
		for j := 0; j < cfg.Dimensions; j++ {
			p, _ := big.NewFloat(rnd.NormFloat64() * scale).Int(nil)
			g.projections[i][j] = p
			g.floatProj[i][j] = float64(p.Int64())
		}
	}

	logger.Debug("LSH 生成器已创建", "seed", cfg.Seed, "bits", cfg.IDBitLength,
		"contentBits", cfg.ContentBitLength, "dims", cfg.Dimensions)
	return g, nil
}

// Config 返回配置
func (g *Generator) Config() Config { return g.cfg }

// HashVector 对整数向量做随机超平面哈希
func (g *Generator) HashVector(v []*big.Int) (types.ID, error) {
	if len(v) != g.cfg.Dimensions {
		return types.EmptyID, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), g.cfg.Dimensions)
	}
	out := new(big.Int)
	dot, term := new(big.Int), new(big.Int)
	for i, proj := range g.projections {
		dot.SetInt64(0)
		for j, x := range v {
			if x == nil {
				return types.EmptyID, fmt.Errorf("%w: nil component %d", ErrDimensionMismatch, j)
			}
			dot.Add(dot, term.Mul(x, proj[j]))
		}
		if dot.Sign() >= 0 {
			out.SetBit(out, i, 1)
		}
	}
	return types.IDFromBigInt(out, g.cfg.IDBitLength/8), nil
}

// HashFloats 对浮点向量做随机超平面哈希
func (g *Generator) HashFloats(v []float64) (types.ID, error) {
	if len(v) != g.cfg.Dimensions {
		return types.EmptyID, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), g.cfg.Dimensions)
	}
	out := new(big.Int)
	for i, proj := range g.floatProj {
		if floats.Dot(v, proj) >= 0 {
			out.SetBit(out, i, 1)
		}
	}
	return types.IDFromBigInt(out, g.cfg.IDBitLength/8), nil
}

// HashInt 把单个整数作为一维向量哈希，仅限一维配置
func (g *Generator) HashInt(n *big.Int) (types.ID, error) {
	if g.cfg.Dimensions != 1 {
		return types.EmptyID, fmt.Errorf("%w: HashInt requires 1 dimension, configured %d", ErrDimensionMismatch, g.cfg.Dimensions)
	}
	return g.HashVector([]*big.Int{n})
}

// HashBytes 把字节数组按大端二进制补码解释为整数后哈希，仅限一维配置
func (g *Generator) HashBytes(b []byte) (types.ID, error) {
	return g.HashInt(signedInt(b))
}

// signedInt 大端二进制补码解码
func signedInt(b []byte) *big.Int {
	n := new(big.Int).SetBytes(b)
	if len(b) > 0 && b[0]&0x80 != 0 {
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), uint(len(b)*8)))
	}
	return n
}
