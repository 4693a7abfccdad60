package config

import (
	"fmt"
	"time"
)

// 本地目录实现类型
const (
	DirectoryMemory     = "memory"
	DirectoryPersistent = "persistent"
)

// DirectoryConfig 本地目录配置
type DirectoryConfig struct {
	// Type 目录实现: memory | persistent
	Type string `json:"type"`

	// MultipleValuesForKey 每个键是否可存多个值
	// false 时使用单值存储加适配器
	MultipleValuesForKey bool `json:"multiple_values_for_key"`

	// Expiration 是否启用 TTL 过期
	Expiration bool `json:"expiration"`

	// DefaultTTL 值未携带 TTL 时使用的存活时间
	DefaultTTL Duration `json:"default_ttl"`
}

// DefaultDirectoryConfig 返回默认目录配置
func DefaultDirectoryConfig() DirectoryConfig {
	return DirectoryConfig{
		Type:                 DirectoryMemory,
		MultipleValuesForKey: true,
		Expiration:           true,
		DefaultTTL:           Duration(3 * time.Hour),
	}
}

// Validate 验证目录配置
func (c *DirectoryConfig) Validate() error {
	if c.Type != DirectoryMemory && c.Type != DirectoryPersistent {
		return fmt.Errorf("directory: unsupported type %q", c.Type)
	}
	if c.Expiration && c.DefaultTTL <= 0 {
		return fmt.Errorf("directory: default_ttl must be positive when expiration is enabled")
	}
	return nil
}
