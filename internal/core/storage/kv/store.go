// Package kv 提供带前缀隔离的 KV 存储
//
// Store 在存储引擎之上为所有键自动添加前缀，
// 每个组件用不同前缀隔离数据。
//
// # 键空间约定
//
//   - d/v/ - 本地目录的值记录
//   - d/s/ - 单值目录
//
// # 使用示例
//
//	dir := kv.New(eng, []byte("d/"))
//	_ = dir.PutJSON([]byte("v/k1/h1"), record)  // 实际键: d/v/k1/h1
package kv

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dep2p/go-simdht/internal/core/storage/engine"
)

// Store 带前缀隔离的 KV 存储
type Store struct {
	engine engine.InternalEngine
	prefix []byte
}

// New 创建 Store
func New(eng engine.InternalEngine, prefix []byte) *Store {
	return &Store{engine: eng, prefix: append([]byte(nil), prefix...)}
}

func (s *Store) prefixKey(key []byte) []byte {
	out := make([]byte, len(s.prefix)+len(key))
	copy(out, s.prefix)
	copy(out[len(s.prefix):], key)
	return out
}

func (s *Store) stripPrefix(key []byte) []byte {
	if len(key) < len(s.prefix) {
		return key
	}
	return key[len(s.prefix):]
}

// Get 获取值
func (s *Store) Get(key []byte) ([]byte, error) {
	return s.engine.Get(s.prefixKey(key))
}

// Put 写入键值对
func (s *Store) Put(key, value []byte) error {
	return s.engine.Put(s.prefixKey(key), value)
}

// Delete 删除键
func (s *Store) Delete(key []byte) error {
	return s.engine.Delete(s.prefixKey(key))
}

// Has 检查键是否存在
func (s *Store) Has(key []byte) (bool, error) {
	return s.engine.Has(s.prefixKey(key))
}

// GetJSON 读取并反序列化 JSON 值
func (s *Store) GetJSON(key []byte, v interface{}) error {
	data, err := s.Get(key)
	if err != nil {
		return err
	}
	return DecodeJSON(key, data, v)
}

// DecodeJSON 反序列化记录，格式错误时返回包装 engine.ErrCorrupted 的错误
func DecodeJSON(key, data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: record %q: %v", engine.ErrCorrupted, key, err)
	}
	return nil
}

// PutJSON 序列化为 JSON 并写入
func (s *Store) PutJSON(key []byte, v interface{}) error {
	return s.PutJSONWithTTL(key, v, 0)
}

// PutJSONWithTTL 序列化为 JSON 并写入，ttl > 0 时到期后由引擎删除
func (s *Store) PutJSONWithTTL(key []byte, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.engine.PutWithTTL(s.prefixKey(key), data, ttl)
}

// PrefixScan 扫描子前缀下的所有键值，fn 返回 false 时停止
//
// 传给 fn 的 key 已去掉 Store 前缀。
func (s *Store) PrefixScan(subPrefix []byte, fn func(key, value []byte) bool) error {
	it := s.engine.NewPrefixIterator(s.prefixKey(subPrefix))
	defer it.Close()

	for it.First(); it.Valid(); it.Next() {
		if !fn(s.stripPrefix(it.Key()), it.Value()) {
			break
		}
	}
	return it.Error()
}

// Keys 返回子前缀下的所有键
func (s *Store) Keys(subPrefix []byte) ([][]byte, error) {
	var keys [][]byte
	err := s.PrefixScan(subPrefix, func(key, _ []byte) bool {
		keys = append(keys, key)
		return true
	})
	return keys, err
}

// DeletePrefix 删除子前缀下的所有键
func (s *Store) DeletePrefix(subPrefix []byte) error {
	keys, err := s.Keys(subPrefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// SubStore 创建子命名空间
func (s *Store) SubStore(subPrefix []byte) *Store {
	return New(s.engine, s.prefixKey(subPrefix))
}

// Prefix 返回前缀
func (s *Store) Prefix() []byte {
	return s.prefix
}
