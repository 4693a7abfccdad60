package config

import (
	"fmt"
	"path/filepath"
)

// StorageConfig 存储配置
//
// 持久化目录使用 BadgerDB，通过 Key 前缀隔离不同组件的数据。
//
// 数据目录结构：
//
//	${DataDir}/
//	└── simdht.db/          # BadgerDB 主数据库
//	    ├── 000001.vlog
//	    ├── 000001.sst
//	    └── MANIFEST
type StorageConfig struct {
	// DataDir 数据目录路径
	// 仅在 directory.type 为 persistent 时使用
	DataDir string `json:"data_dir"`

	// SyncWrites 每次写入是否同步落盘
	SyncWrites bool `json:"sync_writes"`
}

// DefaultStorageConfig 返回默认的存储配置
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		DataDir: "./data",
	}
}

// Validate 验证存储配置的有效性
func (c *StorageConfig) Validate(directoryType string) error {
	if directoryType == DirectoryPersistent && c.DataDir == "" {
		return fmt.Errorf("storage: data_dir cannot be empty for a persistent directory")
	}
	return nil
}

// DBPath 返回 BadgerDB 数据库路径
func (c *StorageConfig) DBPath() string {
	return filepath.Join(c.DataDir, "simdht.db")
}
