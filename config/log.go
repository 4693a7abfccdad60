package config

import (
	"fmt"

	"github.com/dep2p/go-simdht/pkg/lib/log"
)

// LogConfig 日志配置
type LogConfig struct {
	// Level 日志级别: debug | info | warn | error
	Level string `json:"level"`

	// Format 输出格式: text | json
	Format string `json:"format"`
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "warn",
		Format: "text",
	}
}

// Validate 验证日志配置
func (c *LogConfig) Validate() error {
	if _, err := log.ParseLevel(c.Level); err != nil {
		return err
	}
	if c.Format != "text" && c.Format != "json" {
		return fmt.Errorf("log: unsupported format %q", c.Format)
	}
	return nil
}
