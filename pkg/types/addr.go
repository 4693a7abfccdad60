package types

import "fmt"

// IDAddressPair 节点标识与网络地址
//
// 两个 ID 相同的 IDAddressPair 视为同一节点，与地址新旧无关。
type IDAddressPair struct {
	ID      ID     `json:"id"`
	Address string `json:"address"`
}

// Equal 按 ID 比较
func (p IDAddressPair) Equal(other IDAddressPair) bool {
	return p.ID.Equal(other.ID)
}

// IsEmpty 检查是否为空
func (p IDAddressPair) IsEmpty() bool {
	return p.ID.IsEmpty()
}

// String 返回 "id@address"
func (p IDAddressPair) String() string {
	return fmt.Sprintf("%s@%s", p.ID.String(), p.Address)
}

// ContainsPair 检查列表中是否有同 ID 节点
func ContainsPair(list []IDAddressPair, p IDAddressPair) bool {
	for _, q := range list {
		if q.Equal(p) {
			return true
		}
	}
	return false
}
