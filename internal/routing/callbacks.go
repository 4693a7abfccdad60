package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dep2p/go-simdht/pkg/types"
)

// CallbackKind 回调类型
type CallbackKind uint8

const (
	// CallbackExact 精确查询
	CallbackExact CallbackKind = iota + 1
	// CallbackSimilar 相似性查询
	CallbackSimilar
)

// String 返回回调类型名
func (k CallbackKind) String() string {
	switch k {
	case CallbackExact:
		return "exact"
	case CallbackSimilar:
		return "similar"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Valid 是否为已知类型
func (k CallbackKind) Valid() bool {
	return k == CallbackExact || k == CallbackSimilar
}

// Callback 在责任节点上执行的回调
//
// 返回的错误不会让路由失败，调用方收到空结果。
type Callback func(ctx context.Context, target types.ID, args json.RawMessage, onResponsibleNode bool) (json.RawMessage, error)

// callbackTable 回调分发表
type callbackTable struct {
	mu    sync.RWMutex
	table map[CallbackKind]Callback
}

func newCallbackTable() *callbackTable {
	return &callbackTable{table: make(map[CallbackKind]Callback)}
}

func (t *callbackTable) register(kind CallbackKind, cb Callback) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownCallback, kind)
	}
	if cb == nil {
		return fmt.Errorf("%w: nil callback for %s", ErrInvalidConfig, kind)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.table[kind] = cb
	return nil
}

// invoke 执行回调，未知类型或回调出错时记录警告并返回空结果
func (t *callbackTable) invoke(ctx context.Context, kind CallbackKind, target types.ID, args json.RawMessage) json.RawMessage {
	t.mu.RLock()
	cb, ok := t.table[kind]
	t.mu.RUnlock()
	if !ok {
		logger.Warn("收到未知回调类型", "kind", kind.String(), "target", target.ShortString())
		return nil
	}

	out, err := cb(ctx, target, args, true)
	if err != nil {
		logger.Warn("回调执行失败", "kind", kind.String(), "target", target.ShortString(), "error", err)
		return nil
	}
	return out
}
