package dht

import (
	"time"

	"github.com/dep2p/go-simdht/pkg/types"
)

// PutRequest 一个键的 put 请求
type PutRequest[V comparable] struct {
	Key    types.ID
	Values []V
}

// RemoveRequest 一个键的 remove 请求
//
// Values 非空时删除这些值；否则 Hashes 非空时删除 SHA-1 哈希在列表中的值；
// 两者都为空时删除该键下所有密钥匹配的值。
type RemoveRequest[V comparable] struct {
	Key    types.ID
	Values []V
	Hashes []types.ID
}

// PutOptions put 选项，零值字段使用服务当前的默认值
type PutOptions struct {
	// TTL 存活时间，0 表示使用 SetTTLForPut 设置的值
	TTL time.Duration

	// Secret 哈希后的所有权密钥，nil 表示使用 SetSecretForPut 设置的值
	Secret types.Secret

	// Repeat 需要确认的副本数，0 表示使用 ReplicationFactor
	Repeat int

	// ExcludeSelf 不把本节点作为副本
	ExcludeSelf bool
}

// SimilarQuery 一个相似性查询
type SimilarQuery struct {
	Key       types.ID
	Threshold float64
}

// ============================================================================
//                              线上消息
// ============================================================================

// wireValue 线上传输的值，Remaining 按接收方时钟重建过期时间
type wireValue[V comparable] struct {
	Value     V             `json:"value"`
	TTL       time.Duration `json:"ttl"`
	Remaining time.Duration `json:"remaining,omitempty"`
	Secret    types.Secret  `json:"secret,omitempty"`
}

func toWire[V comparable](set types.ValueSet[V], now time.Time) []wireValue[V] {
	if len(set) == 0 {
		return nil
	}
	out := make([]wireValue[V], len(set))
	for i, vi := range set {
		out[i] = wireValue[V]{Value: vi.Value, TTL: vi.TTL, Secret: vi.HashedSecret}
		if !vi.ExpiresAt.IsZero() {
			out[i].Remaining = vi.RemainingTTL(now)
		}
	}
	return out
}

func fromWire[V comparable](ws []wireValue[V], now time.Time) types.ValueSet[V] {
	var set types.ValueSet[V]
	for _, w := range ws {
		vi := types.ValueInfo[V]{Value: w.Value, TTL: w.TTL, HashedSecret: w.Secret}
		if w.Remaining > 0 {
			vi.ExpiresAt = now.Add(w.Remaining)
		}
		set.Add(vi)
	}
	return set
}

// similarArgs 相似性回调参数，扩展轮次的目标与 Key 不同
type similarArgs struct {
	Key       types.ID `json:"key"`
	Threshold float64  `json:"threshold"`
}

// putEntry PUT 中的一个键
type putEntry[V comparable] struct {
	Key    types.ID `json:"key"`
	Values []V      `json:"values"`
}

// putMessage PUT 负载，同一地址的多个键合并为一条消息，共用一组属性
type putMessage[V comparable] struct {
	Entries []putEntry[V] `json:"entries"`
	TTL     time.Duration `json:"ttl"`
	Secret  types.Secret  `json:"secret,omitempty"`
}

// removeEntry REMOVE 中的一个键
type removeEntry[V comparable] struct {
	Key    types.ID   `json:"key"`
	Values []V        `json:"values,omitempty"`
	Hashes []types.ID `json:"hashes,omitempty"`
}

// removeMessage REMOVE 负载
type removeMessage[V comparable] struct {
	Entries []removeEntry[V] `json:"entries"`
	Secret  types.Secret     `json:"secret,omitempty"`
}

// storeReply PUT/REMOVE 响应，Values 与请求的 Entries 一一对应
//
// PUT 返回各键已存在的相同值，REMOVE 返回被删除的值。
type storeReply[V comparable] struct {
	Values   [][]wireValue[V] `json:"values"`
	Rejected bool             `json:"rejected,omitempty"`
}

// transferEntry TRANSFER 响应中的一个键
type transferEntry[V comparable] struct {
	Key    types.ID       `json:"key"`
	Values []wireValue[V] `json:"values"`
}

// transferReply TRANSFER 响应
type transferReply[V comparable] struct {
	Entries []transferEntry[V] `json:"entries"`
}
