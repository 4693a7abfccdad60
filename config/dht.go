package config

import (
	"fmt"
	"time"
)

// SimilarityMetricHamming 唯一支持的相似度度量
const SimilarityMetricHamming = "Hamming"

// DHTConfig DHT 服务配置
type DHTConfig struct {
	// ReplicationFactor put/remove 需要确认的副本数
	ReplicationFactor int `json:"replication_factor"`

	// SpareCandidates 路由时额外请求的备用候选数
	SpareCandidates int `json:"spare_candidates"`

	// NumTimesGets get 请求的责任节点数
	NumTimesGets int `json:"num_times_gets"`

	// MinReplicaAcks 判定成功的最小确认数，0 表示等于副本数
	MinReplicaAcks int `json:"min_replica_acks"`

	// ExtraHops 相似性搜索的扩展轮数
	ExtraHops int `json:"extra_hops"`

	// DefaultTTL 未指定时的值存活时间
	DefaultTTL Duration `json:"default_ttl"`

	// MaxTTL 服务端接受的最大存活时间
	MaxTTL Duration `json:"max_ttl"`

	// SimilaritySearch 是否启用相似性搜索
	SimilaritySearch bool `json:"similarity_search"`

	// SimilarityMetric 相似度度量名
	SimilarityMetric string `json:"similarity_metric"`

	// NumNodesAskedToTransfer 加入时请求迁移数据的节点数
	NumNodesAskedToTransfer int `json:"num_nodes_asked_to_transfer"`

	// RequestTimeout 单次 put/remove 请求超时
	RequestTimeout Duration `json:"request_timeout"`

	// SweepInterval 过期值清理间隔，0 表示不启动清理任务
	SweepInterval Duration `json:"sweep_interval"`
}

// DefaultDHTConfig 返回默认 DHT 配置
func DefaultDHTConfig() DHTConfig {
	return DHTConfig{
		ReplicationFactor:       3,
		SpareCandidates:         2,
		NumTimesGets:            1,
		MinReplicaAcks:          0,
		ExtraHops:               2,
		DefaultTTL:              Duration(3 * time.Hour),
		MaxTTL:                  Duration(7 * 24 * time.Hour),
		SimilaritySearch:        true,
		SimilarityMetric:        SimilarityMetricHamming,
		NumNodesAskedToTransfer: 2,
		RequestTimeout:          Duration(5 * time.Second),
		SweepInterval:           Duration(time.Minute),
	}
}

// Validate 验证 DHT 配置
func (c *DHTConfig) Validate() error {
	if c.ReplicationFactor <= 0 {
		return fmt.Errorf("dht: replication_factor must be positive")
	}
	if c.SpareCandidates < 0 {
		return fmt.Errorf("dht: spare_candidates cannot be negative")
	}
	if c.NumTimesGets <= 0 {
		return fmt.Errorf("dht: num_times_gets must be positive")
	}
	if c.MinReplicaAcks < 0 || c.MinReplicaAcks > c.ReplicationFactor {
		return fmt.Errorf("dht: min_replica_acks must be in [0, replication_factor]")
	}
	if c.ExtraHops < 0 {
		return fmt.Errorf("dht: extra_hops cannot be negative")
	}
	if c.DefaultTTL < 0 || c.MaxTTL <= 0 {
		return fmt.Errorf("dht: invalid ttl bounds")
	}
	if c.SimilarityMetric != SimilarityMetricHamming {
		return fmt.Errorf("dht: unsupported similarity metric %q", c.SimilarityMetric)
	}
	if c.NumNodesAskedToTransfer < 0 {
		return fmt.Errorf("dht: num_nodes_asked_to_transfer cannot be negative")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("dht: request_timeout must be positive")
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("dht: sweep_interval cannot be negative")
	}
	return nil
}
