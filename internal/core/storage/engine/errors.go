package engine

import "errors"

var (
	// ErrNotFound 键不存在
	ErrNotFound = errors.New("storage: key not found")

	// ErrEmptyKey 读写空键
	ErrEmptyKey = errors.New("storage: empty key")

	// ErrClosed 引擎已关闭
	ErrClosed = errors.New("storage: engine closed")

	// ErrReadOnly 引擎以只读方式打开
	ErrReadOnly = errors.New("storage: read-only mode")

	// ErrInvalidConfig 引擎配置无效
	ErrInvalidConfig = errors.New("storage: invalid configuration")

	// ErrCorrupted 记录无法解码，由 kv.DecodeJSON 包装返回
	ErrCorrupted = errors.New("storage: data corrupted")
)

// IsNotFound 是否为键不存在
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsClosed 是否为引擎已关闭
func IsClosed(err error) bool { return errors.Is(err, ErrClosed) }

// IsCorrupted 是否为记录损坏
func IsCorrupted(err error) bool { return errors.Is(err, ErrCorrupted) }
