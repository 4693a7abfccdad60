package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config 存储引擎配置
//
// 测试代码使用 t.TempDir() 作为 Path。
type Config struct {
	// Path 数据目录路径（必需）
	Path string

	// SyncWrites 每次写入同步到磁盘
	SyncWrites bool

	// ReadOnly 只读模式
	ReadOnly bool

	// MemTableSize 内存表大小（字节）
	MemTableSize int64

	// BlockCacheSize 块缓存大小（字节）
	BlockCacheSize int64

	// GCInterval 值日志 GC 间隔，0 表示不启动 GC
	GCInterval time.Duration

	// GCDiscardRatio 值日志 GC 丢弃比例
	GCDiscardRatio float64
}

// DefaultConfig 返回默认配置
func DefaultConfig(path string) *Config {
	return &Config{
		Path:           path,
		MemTableSize:   16 << 20, // 16MB，本地目录数据量小
		BlockCacheSize: 32 << 20,
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidConfig)
	}
	if c.MemTableSize <= 0 {
		return fmt.Errorf("%w: mem table size must be positive", ErrInvalidConfig)
	}
	if c.GCDiscardRatio <= 0 || c.GCDiscardRatio >= 1 {
		return fmt.Errorf("%w: gc discard ratio must be in (0,1)", ErrInvalidConfig)
	}
	return nil
}

// EnsureDir 确保数据目录存在
func (c *Config) EnsureDir() error {
	if c.ReadOnly {
		return nil
	}
	return os.MkdirAll(filepath.Clean(c.Path), 0o755)
}
