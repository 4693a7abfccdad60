// Package storage 提供本地目录的持久化存储服务
//
// 基于 BadgerDB 实现，只在 directory.type 为 persistent 时打开。
//
// # 架构
//
//	directory.Persistent
//	        │
//	        ▼
//	kv.Store（前缀隔离，JSON 记录）
//	        │
//	        ▼
//	engine/badger（BadgerDB，条目 TTL）
//
// # 键空间设计
//
//	前缀     | 使用方          | 说明
//	---------|-----------------|------------------
//	d/v/     | directory       | 多值目录记录
//	d/s/     | directory       | 单值目录记录
//
// # 使用示例
//
//	app := fx.New(
//	    fx.Supply(cfg),
//	    storage.Module(),
//	)
//
// 手动创建：
//
//	eng, err := storage.New("/data/simdht.db")
//	if err != nil {
//	    return err
//	}
//	defer eng.Close()
//	store := storage.NewKVStore(eng, []byte("d/"))
package storage
