// Package types 定义 simdht 的基础数据类型
//
// 这是整个系统的最底层包，不依赖任何其他内部包。
// 所有类型都是值类型，创建后不可修改，可以安全地在 goroutine 间传递。
//
// # 文件组织
//
//   - id.go     - ID 定长比特串（节点标识与内容键共用）
//   - addr.go   - IDAddressPair 节点标识与网络地址
//   - value.go  - ValueInfo、ValueSet、Secret
//   - result.go - Result 按键的成功/失败结果
package types
