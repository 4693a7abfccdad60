package routing

import (
	"fmt"
	"math/rand"

	"github.com/dep2p/go-simdht/internal/routing/chord"
	"github.com/dep2p/go-simdht/internal/routing/kademlia"
	"github.com/dep2p/go-simdht/internal/routing/metric"
	"github.com/dep2p/go-simdht/pkg/types"
)

// Algorithm 路由算法
//
// 一个算法 = 一种路由表策略 + 注入的距离度量。
// 实现必须并发安全：请求处理和维护任务同时访问路由表。
type Algorithm interface {
	// Self 本节点
	Self() types.IDAddressPair

	// Metric 距离度量
	Metric() metric.Metric

	// NextHopCandidates 返回最多 maxCount 个下一跳候选
	//
	// joining 为 true 时结果不含本节点。
	NextHopCandidates(target, lastHop types.ID, joining bool, maxCount int) []types.IDAddressPair

	// Touch 记录一个活跃节点
	Touch(p types.IDAddressPair)

	// Forget 移除一个失效节点
	Forget(p types.IDAddressPair)

	// Peers 路由表中的全部节点
	Peers() []types.IDAddressPair

	// NumEntries 维护间隔计算使用的条目数
	NumEntries() int

	// Clear 清空路由表
	Clear()

	// Incorporate 把一次维护路由经过的节点并入路由表，返回路由表是否变化
	Incorporate(hops []types.IDAddressPair) bool

	// MaintenanceEdge 返回下一次维护要路由到的目标
	MaintenanceEdge(rnd *rand.Rand) types.ID

	// String 路由表的文本表示
	String() string
}

var (
	_ Algorithm = (*kademlia.Table)(nil)
	_ Algorithm = (*chord.Table)(nil)
)

// NewAlgorithm 按名字创建路由算法
//
//	Kademlia         K 桶 + XOR
//	HammingKademlia  K 桶 + 汉明距离
//	Hamming          finger 表 + Gray 距离，加法 finger 修复
//	HammingChord     finger 表 + 环形 Gray 距离，异或 finger 修复
//
// conv 只被 Gray 系度量使用，可为 nil，此时按 cfg.GrayCacheSize 新建。
func NewAlgorithm(name string, self types.IDAddressPair, cfg *Config, conv *metric.GrayConverter) (Algorithm, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	grayConv := func() (*metric.GrayConverter, error) {
		if conv != nil {
			return conv, nil
		}
		return metric.NewGrayConverter(cfg.GrayCacheSize)
	}

	switch name {
	case AlgorithmKademlia:
		return kademlia.NewTable(self, metric.XOR{}, cfg.BucketSize), nil
	case AlgorithmHammingKademlia:
		return kademlia.NewTable(self, metric.Hamming{}, cfg.BucketSize), nil
	case AlgorithmHamming:
		c, err := grayConv()
		if err != nil {
			return nil, err
		}
		return chord.NewTable(self, metric.NewGray(c), chord.EdgeAdditive,
			cfg.SuccessorListSize, cfg.Daemon.ProbProportional), nil
	case AlgorithmHammingChord:
		c, err := grayConv()
		if err != nil {
			return nil, err
		}
		return chord.NewTable(self, metric.NewGrayRing(c), chord.EdgeXOR,
			cfg.SuccessorListSize, cfg.Daemon.ProbProportional), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
}
