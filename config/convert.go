package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// FromJSON 从 JSON 数据创建配置
//
// 未出现的字段保留默认值，未设置 lsh.id_bit_length 时沿用 routing.id_bit_length。
//
// 示例 JSON:
//
//	{
//	  "routing": {"algorithm": "HammingChord", "id_bit_length": 64},
//	  "dht": {"replication_factor": 2, "extra_hops": 1}
//	}
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	cfg.LSH.IDBitLength = 0
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.LSH.IDBitLength == 0 {
		cfg.LSH.IDBitLength = cfg.Routing.IDBitLength
	}
	return cfg, nil
}

// ToJSON 序列化配置
func ToJSON(cfg *Config) ([]byte, error) {
	return json.MarshalIndent(cfg, "", "  ")
}

// Load 从文件加载并验证配置
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := FromJSON(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save 将配置写入文件
func Save(cfg *Config, path string) error {
	data, err := ToJSON(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// CloneConfig 克隆配置
//
// 所有子配置都是值类型，浅拷贝即为深拷贝。
func CloneConfig(cfg *Config) *Config {
	if cfg == nil {
		return nil
	}
	cloned := *cfg
	return &cloned
}
