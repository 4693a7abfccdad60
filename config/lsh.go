package config

import "fmt"

// LSHConfig 随机超平面 ID 生成器配置
type LSHConfig struct {
	// Seed 随机种子，相同种子生成相同投影
	Seed int64 `json:"seed"`

	// IDBitLength 输出 ID 的比特数，必须是 8 的倍数
	IDBitLength int `json:"id_bit_length"`

	// ContentBitLength 输入内容的比特长度，用于缩放投影
	ContentBitLength int `json:"content_bit_length"`

	// Dimensions 输入向量维度
	Dimensions int `json:"dimensions"`
}

// DefaultLSHConfig 返回默认 LSH 配置
func DefaultLSHConfig() LSHConfig {
	return LSHConfig{
		Seed:             1,
		IDBitLength:      160,
		ContentBitLength: 160,
		Dimensions:       1,
	}
}

// Validate 验证 LSH 配置
func (c *LSHConfig) Validate() error {
	if c.IDBitLength <= 0 || c.IDBitLength%8 != 0 {
		return fmt.Errorf("lsh: id_bit_length must be a positive multiple of 8, got %d", c.IDBitLength)
	}
	if c.ContentBitLength <= 0 {
		return fmt.Errorf("lsh: content_bit_length must be positive")
	}
	if c.Dimensions <= 0 {
		return fmt.Errorf("lsh: dimensions must be positive")
	}
	return nil
}
