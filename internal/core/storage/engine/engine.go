// Package engine 定义存储引擎接口
//
// 本地目录（Directory）通过该接口访问持久化存储，
// 具体实现见 engine/badger。
package engine

import "time"

// InternalEngine 存储引擎接口
type InternalEngine interface {
	// Get 获取值，不存在时返回 ErrNotFound
	Get(key []byte) ([]byte, error)

	// Put 写入键值对
	Put(key, value []byte) error

	// PutWithTTL 写入带过期时间的键值对，ttl <= 0 表示永不过期
	PutWithTTL(key, value []byte, ttl time.Duration) error

	// Delete 删除键，键不存在不报错
	Delete(key []byte) error

	// Has 检查键是否存在
	Has(key []byte) (bool, error)

	// NewPrefixIterator 创建前缀迭代器，调用方负责 Close
	NewPrefixIterator(prefix []byte) Iterator

	// Start 启动后台任务（值日志 GC）
	Start() error

	// Close 关闭引擎
	Close() error
}

// Iterator 键值迭代器
//
// 用法：
//
//	it := eng.NewPrefixIterator(prefix)
//	defer it.Close()
//	for it.First(); it.Valid(); it.Next() {
//	    key, value := it.Key(), it.Value()
//	}
//	if err := it.Error(); err != nil { ... }
type Iterator interface {
	First() bool
	Next() bool
	Valid() bool
	Key() []byte
	Value() []byte
	Error() error
	Close()
}
