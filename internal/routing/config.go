package routing

import (
	"fmt"
	"time"
)

// 算法名
const (
	AlgorithmKademlia        = "Kademlia"
	AlgorithmHammingKademlia = "HammingKademlia"
	AlgorithmHamming         = "Hamming"
	AlgorithmHammingChord    = "HammingChord"
)

// DaemonMode 维护任务调度模式
type DaemonMode string

const (
	// DaemonGoroutine 独立 goroutine 循环，初始等待后按间隔执行
	DaemonGoroutine DaemonMode = "goroutine"
	// DaemonTimer 通过 clock.AfterFunc 协作调度
	DaemonTimer DaemonMode = "timer"
)

// Config 路由服务配置
type Config struct {
	// Algorithm 路由算法
	Algorithm string

	// IDBitLength ID 比特长度
	IDBitLength int

	// BucketSize K 桶容量（Kademlia 系）
	BucketSize int

	// SuccessorListSize 后继列表长度（Chord 系）
	SuccessorListSize int

	// MaxHops 单次路由最大跳数，回调调用的默认尝试预算
	MaxHops int

	// RequestTimeout 单次 FIND_NODE/INVOKE 超时
	RequestTimeout time.Duration

	// GrayCacheSize Gray 码缓存容量
	GrayCacheSize int

	// JoinMaxElapsed 加入时退避重试的总时长
	JoinMaxElapsed time.Duration

	// SpareCandidates 每次路由额外获取的候选数
	SpareCandidates int

	// Daemon 维护任务
	Daemon DaemonConfig

	// Seed 随机源种子，0 表示使用当前时间
	Seed int64
}

// DaemonConfig 维护任务配置
type DaemonConfig struct {
	Enabled          bool
	Mode             DaemonMode
	InitialInterval  time.Duration
	MinInterval      time.Duration
	MaxInterval      time.Duration
	JitterRatio      float64
	ProbProportional float64
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Algorithm:         AlgorithmHammingKademlia,
		IDBitLength:       160,
		BucketSize:        20,
		SuccessorListSize: 8,
		MaxHops:           32,
		RequestTimeout:    5 * time.Second,
		GrayCacheSize:     65536,
		JoinMaxElapsed:    30 * time.Second,
		SpareCandidates:   2,
		Daemon: DaemonConfig{
			Enabled:          true,
			Mode:             DaemonGoroutine,
			InitialInterval:  time.Second,
			MinInterval:      2 * time.Second,
			MaxInterval:      60 * time.Second,
			JitterRatio:      0.3,
			ProbProportional: 0.5,
		},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	switch c.Algorithm {
	case AlgorithmKademlia, AlgorithmHammingKademlia, AlgorithmHamming, AlgorithmHammingChord:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAlgorithm, c.Algorithm)
	}
	if c.IDBitLength <= 0 || c.IDBitLength%8 != 0 {
		return fmt.Errorf("%w: id bit length %d", ErrInvalidConfig, c.IDBitLength)
	}
	if c.BucketSize <= 0 || c.SuccessorListSize <= 0 {
		return fmt.Errorf("%w: table sizes must be positive", ErrInvalidConfig)
	}
	if c.MaxHops <= 0 {
		return fmt.Errorf("%w: max hops must be positive", ErrInvalidConfig)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request timeout must be positive", ErrInvalidConfig)
	}
	if c.GrayCacheSize <= 0 {
		return fmt.Errorf("%w: gray cache size must be positive", ErrInvalidConfig)
	}
	if c.JoinMaxElapsed <= 0 {
		return fmt.Errorf("%w: join max elapsed must be positive", ErrInvalidConfig)
	}
	if c.SpareCandidates < 0 {
		return fmt.Errorf("%w: spare candidates cannot be negative", ErrInvalidConfig)
	}
	if !c.Daemon.Enabled {
		return nil
	}
	if c.Daemon.Mode != DaemonGoroutine && c.Daemon.Mode != DaemonTimer {
		return fmt.Errorf("%w: daemon mode %q", ErrInvalidConfig, c.Daemon.Mode)
	}
	if c.Daemon.MinInterval <= 0 || c.Daemon.MaxInterval < c.Daemon.MinInterval {
		return fmt.Errorf("%w: daemon intervals", ErrInvalidConfig)
	}
	return nil
}

// IDSize ID 字节数
func (c *Config) IDSize() int {
	return c.IDBitLength / 8
}

// ConfigOption 配置选项函数
type ConfigOption func(*Config)

// WithAlgorithm 设置路由算法
func WithAlgorithm(name string) ConfigOption {
	return func(c *Config) {
		c.Algorithm = name
	}
}

// WithIDBitLength 设置 ID 比特长度
func WithIDBitLength(bits int) ConfigOption {
	return func(c *Config) {
		c.IDBitLength = bits
	}
}

// WithBucketSize 设置 K 桶容量
func WithBucketSize(size int) ConfigOption {
	return func(c *Config) {
		c.BucketSize = size
	}
}

// WithMaxHops 设置最大跳数
func WithMaxHops(hops int) ConfigOption {
	return func(c *Config) {
		c.MaxHops = hops
	}
}

// WithRequestTimeout 设置请求超时
func WithRequestTimeout(timeout time.Duration) ConfigOption {
	return func(c *Config) {
		c.RequestTimeout = timeout
	}
}

// WithSpareCandidates 设置备用候选数
func WithSpareCandidates(n int) ConfigOption {
	return func(c *Config) {
		c.SpareCandidates = n
	}
}

// WithDaemon 设置维护任务
func WithDaemon(d DaemonConfig) ConfigOption {
	return func(c *Config) {
		c.Daemon = d
	}
}

// WithoutDaemon 关闭维护任务
func WithoutDaemon() ConfigOption {
	return func(c *Config) {
		c.Daemon.Enabled = false
	}
}

// WithSeed 设置随机种子
func WithSeed(seed int64) ConfigOption {
	return func(c *Config) {
		c.Seed = seed
	}
}
