package storage

import (
	"time"

	"github.com/dep2p/go-simdht/config"
	"github.com/dep2p/go-simdht/internal/core/storage/engine"
)

// Config Storage 模块配置
//
// Enabled 为 false 时不打开任何数据库，本地目录使用内存实现。
type Config struct {
	// Enabled 是否需要持久化引擎
	Enabled bool

	// Path BadgerDB 数据库目录
	Path string

	// SyncWrites 是否同步写入
	SyncWrites bool

	// GCInterval 值日志 GC 间隔
	GCInterval time.Duration

	// GCDiscardRatio 值日志 GC 丢弃比例
	GCDiscardRatio float64
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Path:           "./data/simdht.db",
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// ConfigFromUnified 从统一配置创建 Storage 配置
//
// 只有 directory.type 为 persistent 时才启用引擎。
func ConfigFromUnified(cfg *config.Config) Config {
	storageCfg := DefaultConfig()
	if cfg == nil {
		return storageCfg
	}
	storageCfg.Enabled = cfg.Directory.Type == config.DirectoryPersistent
	if cfg.Storage.DataDir != "" {
		storageCfg.Path = cfg.Storage.DBPath()
	}
	storageCfg.SyncWrites = cfg.Storage.SyncWrites
	return storageCfg
}

// ToEngineConfig 转换为引擎配置
func (c *Config) ToEngineConfig() *engine.Config {
	engineCfg := engine.DefaultConfig(c.Path)
	engineCfg.SyncWrites = c.SyncWrites
	engineCfg.GCInterval = c.GCInterval
	engineCfg.GCDiscardRatio = c.GCDiscardRatio
	return engineCfg
}

// Validate 验证配置，GC 参数越界时回落到默认值
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Path == "" {
		return engine.ErrInvalidConfig
	}
	if c.GCInterval < time.Minute {
		c.GCInterval = time.Minute
	}
	if c.GCDiscardRatio <= 0 || c.GCDiscardRatio >= 1 {
		c.GCDiscardRatio = 0.5
	}
	return nil
}
