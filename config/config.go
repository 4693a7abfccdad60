// Package config 提供统一的配置管理
//
// 主 Config 结构体嵌入所有子配置，每个子配置在独立文件中定义，
// 支持从 JSON 文件加载和保存。各内部模块通过 ConfigFromUnified
// 把统一配置转换为自己的 Config。
//
// 使用示例：
//
//	cfg := config.NewConfig()
//	cfg.Routing.Algorithm = "HammingChord"
//	cfg.DHT.ReplicationFactor = 2
//
//	// 从文件加载
//	cfg, err := config.Load("simdht.json")
package config

import "fmt"

// Config 是 simdht 节点的完整配置结构
//
// 配置按照功能模块组织：
//   - Routing: 路由算法、身份长度、维护守护任务
//   - DHT: 副本数、TTL、相似性搜索
//   - Directory: 本地目录实现与过期策略
//   - LSH: 局部敏感哈希 ID 生成器
//   - Storage: 数据目录
//   - Log: 日志级别与格式
type Config struct {
	// Routing 路由层配置
	Routing RoutingConfig `json:"routing"`

	// DHT DHT 服务配置
	DHT DHTConfig `json:"dht"`

	// Directory 本地目录配置
	Directory DirectoryConfig `json:"directory"`

	// LSH ID 生成器配置
	LSH LSHConfig `json:"lsh"`

	// Storage 存储配置
	Storage StorageConfig `json:"storage"`

	// Log 日志配置
	Log LogConfig `json:"log"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Routing:   DefaultRoutingConfig(),
		DHT:       DefaultDHTConfig(),
		Directory: DefaultDirectoryConfig(),
		LSH:       DefaultLSHConfig(),
		Storage:   DefaultStorageConfig(),
		Log:       DefaultLogConfig(),
	}
}

// Validate 验证配置的有效性
//
// 不支持的算法名、相似度度量名、目录类型以及非正的尺寸都在这里失败。
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config: nil config")
	}
	if err := c.Routing.Validate(); err != nil {
		return err
	}
	if err := c.DHT.Validate(); err != nil {
		return err
	}
	if err := c.Directory.Validate(); err != nil {
		return err
	}
	if err := c.LSH.Validate(); err != nil {
		return err
	}
	if c.LSH.IDBitLength != c.Routing.IDBitLength {
		return fmt.Errorf("config: lsh.id_bit_length %d differs from routing.id_bit_length %d",
			c.LSH.IDBitLength, c.Routing.IDBitLength)
	}
	if err := c.Storage.Validate(c.Directory.Type); err != nil {
		return err
	}
	return c.Log.Validate()
}

// IDSize 返回 ID 字节数
func (c *Config) IDSize() int {
	return c.Routing.IDBitLength / 8
}
