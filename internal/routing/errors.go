package routing

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-simdht/pkg/types"
)

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrRoutingFailed 路由失败，与"路由成功但没有值"相区分
	ErrRoutingFailed = errors.New("routing: routing failed")

	// ErrStopped 服务已停止
	ErrStopped = errors.New("routing: service stopped")

	// ErrMaxHops 超出跳数预算
	ErrMaxHops = errors.New("routing: hop budget exhausted")

	// ErrUnknownCallback 未知的回调类型
	ErrUnknownCallback = errors.New("routing: unknown callback kind")

	// ErrUnknownAlgorithm 不支持的路由算法
	ErrUnknownAlgorithm = errors.New("routing: unknown algorithm")

	// ErrNoResponsibleNode 所有责任候选都不可用
	ErrNoResponsibleNode = errors.New("routing: no responsible node answered")

	// ErrInvalidConfig 无效配置
	ErrInvalidConfig = errors.New("routing: invalid config")
)

// RoutingError 路由错误
type RoutingError struct {
	Op     string
	Target types.ID
	Err    error
}

// Error 实现 error 接口
func (e *RoutingError) Error() string {
	if e.Target.IsEmpty() {
		return fmt.Sprintf("routing %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("routing %s %s: %v", e.Op, e.Target.ShortString(), e.Err)
}

// Unwrap 返回底层错误
func (e *RoutingError) Unwrap() error {
	return e.Err
}

// NewRoutingError 创建路由错误
func NewRoutingError(op string, target types.ID, err error) *RoutingError {
	return &RoutingError{Op: op, Target: target, Err: err}
}

// failed 包装为 ErrRoutingFailed
func failed(op string, target types.ID, cause error) error {
	if errors.Is(cause, ErrRoutingFailed) {
		return NewRoutingError(op, target, cause)
	}
	return NewRoutingError(op, target, fmt.Errorf("%w: %w", ErrRoutingFailed, cause))
}
