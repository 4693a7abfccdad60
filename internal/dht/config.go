package dht

import (
	"fmt"
	"time"
)

// Config DHT 服务配置
type Config struct {
	// ReplicationFactor put/remove 默认需要确认的副本数
	ReplicationFactor int

	// SpareCandidates 路由时额外请求的备用责任候选数
	SpareCandidates int

	// NumTimesGets get 请求的责任节点数
	NumTimesGets int

	// MinReplicaAcks 判定 put/remove 成功的最小确认数，0 表示等于副本数
	MinReplicaAcks int

	// ExtraHops 相似性搜索的默认扩展轮数
	ExtraHops int

	// DefaultTTL put 未指定 TTL 时使用的存活时间
	DefaultTTL time.Duration

	// MaxTTL 服务端接受的最大存活时间
	MaxTTL time.Duration

	// SimilaritySearch 是否启用相似性搜索，关闭时 GetSimilar 退化为精确查询
	SimilaritySearch bool

	// NumNodesAskedToTransfer 加入时请求迁移数据的节点数
	NumNodesAskedToTransfer int

	// RequestTimeout 单次 put/remove/transfer 请求超时
	RequestTimeout time.Duration

	// SweepInterval 过期值清理间隔，0 表示不启动清理任务
	SweepInterval time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		ReplicationFactor:       3,
		SpareCandidates:         2,
		NumTimesGets:            1,
		MinReplicaAcks:          0,
		ExtraHops:               2,
		DefaultTTL:              3 * time.Hour,
		MaxTTL:                  7 * 24 * time.Hour,
		SimilaritySearch:        true,
		NumNodesAskedToTransfer: 2,
		RequestTimeout:          5 * time.Second,
		SweepInterval:           time.Minute,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.ReplicationFactor <= 0 {
		return fmt.Errorf("%w: replication factor must be positive", ErrInvalidConfig)
	}
	if c.SpareCandidates < 0 {
		return fmt.Errorf("%w: spare candidates cannot be negative", ErrInvalidConfig)
	}
	if c.NumTimesGets <= 0 {
		return fmt.Errorf("%w: num times gets must be positive", ErrInvalidConfig)
	}
	if c.MinReplicaAcks < 0 || c.MinReplicaAcks > c.ReplicationFactor {
		return fmt.Errorf("%w: min replica acks %d out of [0, %d]", ErrInvalidConfig, c.MinReplicaAcks, c.ReplicationFactor)
	}
	if c.ExtraHops < 0 {
		return fmt.Errorf("%w: extra hops cannot be negative", ErrInvalidConfig)
	}
	if c.DefaultTTL < 0 || c.MaxTTL <= 0 {
		return fmt.Errorf("%w: invalid ttl bounds", ErrInvalidConfig)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request timeout must be positive", ErrInvalidConfig)
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("%w: sweep interval cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// minAcks 返回 repeat 个副本时判定成功的确认数
func (c *Config) minAcks(repeat int) int {
	if c.MinReplicaAcks <= 0 || c.MinReplicaAcks > repeat {
		return repeat
	}
	return c.MinReplicaAcks
}

// ConfigOption 配置选项
type ConfigOption func(*Config)

// WithReplicationFactor 设置副本数
func WithReplicationFactor(n int) ConfigOption {
	return func(c *Config) {
		c.ReplicationFactor = n
	}
}

// WithMinReplicaAcks 设置最小确认数
func WithMinReplicaAcks(n int) ConfigOption {
	return func(c *Config) {
		c.MinReplicaAcks = n
	}
}

// WithSpareCandidates 设置备用候选数
func WithSpareCandidates(n int) ConfigOption {
	return func(c *Config) {
		c.SpareCandidates = n
	}
}

// WithExtraHops 设置相似性搜索扩展轮数
func WithExtraHops(n int) ConfigOption {
	return func(c *Config) {
		c.ExtraHops = n
	}
}

// WithSimilaritySearch 启用或关闭相似性搜索
func WithSimilaritySearch(enabled bool) ConfigOption {
	return func(c *Config) {
		c.SimilaritySearch = enabled
	}
}

// WithTTL 设置默认和最大存活时间
func WithTTL(def, max time.Duration) ConfigOption {
	return func(c *Config) {
		c.DefaultTTL = def
		c.MaxTTL = max
	}
}

// WithSweepInterval 设置清理间隔
func WithSweepInterval(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.SweepInterval = d
	}
}

// NewConfig 以默认配置为基础应用选项
func NewConfig(opts ...ConfigOption) *Config {
	c := DefaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	return c
}
