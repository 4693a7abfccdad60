package dht

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-simdht/pkg/types"
)

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrUnauthorized remove 缺少密钥或被责任节点拒绝
	ErrUnauthorized = errors.New("dht: unauthorized")

	// ErrReplicationFailed 确认的副本数不足
	ErrReplicationFailed = errors.New("dht: replication failed")

	// ErrInvalidConfig 无效配置
	ErrInvalidConfig = errors.New("dht: invalid config")

	// ErrStopped 服务已停止
	ErrStopped = errors.New("dht: stopped")

	// ErrEmptyRequest 请求不含任何键
	ErrEmptyRequest = errors.New("dht: empty request")
)

// DHTError DHT 操作错误
type DHTError struct {
	Op  string   // 操作名称
	Key types.ID // 相关的键，可为空
	Err error    // 底层错误
}

// Error 实现 error 接口
func (e *DHTError) Error() string {
	if e.Key.IsEmpty() {
		return fmt.Sprintf("dht %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("dht %s %s: %v", e.Op, e.Key.ShortString(), e.Err)
}

// Unwrap 实现错误解包
func (e *DHTError) Unwrap() error {
	return e.Err
}

// NewDHTError 创建 DHT 错误
func NewDHTError(op string, key types.ID, err error) *DHTError {
	return &DHTError{Op: op, Key: key, Err: err}
}
