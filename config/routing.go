package config

import (
	"fmt"
	"time"
)

// 支持的路由算法名
const (
	AlgorithmKademlia        = "Kademlia"
	AlgorithmHammingKademlia = "HammingKademlia"
	AlgorithmHamming         = "Hamming"
	AlgorithmHammingChord    = "HammingChord"
)

// 守护任务调度模式
const (
	DaemonModeGoroutine = "goroutine"
	DaemonModeTimer     = "timer"
)

// RoutingConfig 路由层配置
type RoutingConfig struct {
	// Algorithm 路由算法名
	// 可选: Kademlia, HammingKademlia, Hamming, HammingChord
	Algorithm string `json:"algorithm"`

	// IDBitLength ID 比特长度，必须是 8 的倍数
	IDBitLength int `json:"id_bit_length"`

	// BucketSize K 桶容量
	BucketSize int `json:"bucket_size"`

	// SuccessorListSize Chord 后继列表长度
	SuccessorListSize int `json:"successor_list_size"`

	// MaxHops 单次路由的最大跳数
	MaxHops int `json:"max_hops"`

	// RequestTimeout 单次请求超时
	RequestTimeout Duration `json:"request_timeout"`

	// GrayCacheSize Gray 码转换 LRU 缓存容量
	GrayCacheSize int `json:"gray_cache_size"`

	// JoinMaxElapsed 加入网络时退避重试的总时长上限
	JoinMaxElapsed Duration `json:"join_max_elapsed"`

	// Daemon 路由维护守护任务
	Daemon DaemonConfig `json:"daemon"`
}

// DaemonConfig 路由维护守护任务配置
type DaemonConfig struct {
	// Enabled 是否运行维护任务
	Enabled bool `json:"enabled"`

	// Mode 调度模式: goroutine | timer，同一节点实例固定不变
	Mode string `json:"mode"`

	// InitialInterval 首次维护前的等待时间
	InitialInterval Duration `json:"initial_interval"`

	// MinInterval / MaxInterval 维护间隔上下限
	MinInterval Duration `json:"min_interval"`
	MaxInterval Duration `json:"max_interval"`

	// JitterRatio 随机抖动比例 [0, 1]
	JitterRatio float64 `json:"jitter_ratio"`

	// ProbProportional finger 偏移取全空间均匀随机数的概率 [0, 1]
	ProbProportional float64 `json:"prob_proportional"`
}

// DefaultRoutingConfig 返回默认路由配置
func DefaultRoutingConfig() RoutingConfig {
	return RoutingConfig{
		Algorithm:         AlgorithmHammingKademlia,
		IDBitLength:       160,
		BucketSize:        20,
		SuccessorListSize: 8,
		MaxHops:           32,
		RequestTimeout:    Duration(5 * time.Second),
		GrayCacheSize:     65536,
		JoinMaxElapsed:    Duration(30 * time.Second),
		Daemon: DaemonConfig{
			Enabled:          true,
			Mode:             DaemonModeGoroutine,
			InitialInterval:  Duration(time.Second),
			MinInterval:      Duration(2 * time.Second),
			MaxInterval:      Duration(60 * time.Second),
			JitterRatio:      0.3,
			ProbProportional: 0.5,
		},
	}
}

// Validate 验证路由配置
func (c *RoutingConfig) Validate() error {
	switch c.Algorithm {
	case AlgorithmKademlia, AlgorithmHammingKademlia, AlgorithmHamming, AlgorithmHammingChord:
	default:
		return fmt.Errorf("routing: unsupported algorithm %q", c.Algorithm)
	}
	if c.IDBitLength <= 0 || c.IDBitLength%8 != 0 {
		return fmt.Errorf("routing: id_bit_length must be a positive multiple of 8, got %d", c.IDBitLength)
	}
	if c.BucketSize <= 0 {
		return fmt.Errorf("routing: bucket_size must be positive")
	}
	if c.SuccessorListSize <= 0 {
		return fmt.Errorf("routing: successor_list_size must be positive")
	}
	if c.MaxHops <= 0 {
		return fmt.Errorf("routing: max_hops must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("routing: request_timeout must be positive")
	}
	if c.GrayCacheSize <= 0 {
		return fmt.Errorf("routing: gray_cache_size must be positive")
	}
	return c.Daemon.Validate()
}

// Validate 验证守护任务配置
func (c *DaemonConfig) Validate() error {
	if c.Mode != DaemonModeGoroutine && c.Mode != DaemonModeTimer {
		return fmt.Errorf("routing: unsupported daemon mode %q", c.Mode)
	}
	if c.MinInterval <= 0 || c.MaxInterval < c.MinInterval {
		return fmt.Errorf("routing: daemon intervals must satisfy 0 < min <= max")
	}
	if c.InitialInterval < 0 {
		return fmt.Errorf("routing: daemon initial_interval cannot be negative")
	}
	if c.JitterRatio < 0 || c.JitterRatio > 1 {
		return fmt.Errorf("routing: jitter_ratio must be in [0, 1]")
	}
	if c.ProbProportional < 0 || c.ProbProportional > 1 {
		return fmt.Errorf("routing: prob_proportional must be in [0, 1]")
	}
	return nil
}
