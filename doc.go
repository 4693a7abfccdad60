// Package simdht 提供支持相似性查询的结构化 P2P DHT
//
// simdht 在结构化覆盖网络之上增加近似查询：内容先通过局部敏感哈希（LSH）
// 映射到 ID 空间，再经过按 Hamming / Gray 码排序的覆盖网络路由，
// 必要时沿着响应节点的拓扑邻居扩大搜索范围。
//
// # 核心概念
//
//   - Node: 一个 DHT 节点，用户交互的主入口
//   - ID: 定长大端字节串，键和节点共用同一 ID 空间
//   - Secret: 写入时附带的哈希密钥，删除时必须匹配
//   - 相似度: 两个 ID 相同比特所占比例，取值 [0, 1]
//
// # 快速开始
//
//	network := memnet.NewNetwork()
//
//	// 1. 创建并启动第一个节点
//	a, err := simdht.Start(ctx, simdht.WithNetwork(network))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer a.Close()
//
//	// 2. 第二个节点通过第一个节点加入
//	b, err := simdht.Start(ctx,
//	    simdht.WithNetwork(network),
//	    simdht.WithBootstrap(a.Address()),
//	)
//
//	// 3. 写入并做相似性查询
//	key, _ := b.ContentKey([]byte("hello world"))
//	_, _ = b.Put(ctx, key, "greeting")
//	similar, _ := a.GetSimilar(ctx, key, 0.9)
//
// # 模块组装
//
// Node 使用 Fx 组装内部模块：
//
//	storage → directory → routing → dht
//	                         lsh
//
// 存储引擎只在目录类型为 persistent 时打开（BadgerDB）。
//
// # 文件组织
//
//   - node.go: Node 结构与 DHT 操作
//   - options.go: 函数式选项
//   - fx.go: Fx 模块组装
//   - errors.go: 公共错误
//   - version.go: 版本信息
package simdht
