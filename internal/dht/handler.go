package dht

import (
	"context"

	"github.com/dep2p/go-simdht/internal/core/transport"
	"github.com/dep2p/go-simdht/internal/routing/metric"
	"github.com/dep2p/go-simdht/pkg/types"
)

// ============================================================================
//                              PUT
// ============================================================================

func (d *DHT[V]) handlePut(_ context.Context, msg *transport.Message) (*transport.Message, error) {
	var req putMessage[V]
	if err := msg.DecodePayload(&req); err != nil {
		return nil, err
	}
	logger.Debug("收到 PUT", "from", msg.Sender.ID.ShortString(), "keys", len(req.Entries))
	return transport.NewReply(msg, d.Self(), d.putLocally(req))
}

// putLocally 把一批写入应用到本地目录
//
// TTL 被限制在 [0, MaxTTL]，0 表示目录默认值；同一批共用一组属性。
// 目录错误记录警告，对应的键返回空结果。
func (d *DHT[V]) putLocally(req putMessage[V]) storeReply[V] {
	ttl := req.TTL
	if ttl > d.cfg.MaxTTL {
		ttl = d.cfg.MaxTTL
	} else if ttl < 0 {
		ttl = 0
	}
	attr := types.Attributes{TTL: ttl, HashedSecret: req.Secret}

	now := d.clk.Now()
	reply := storeReply[V]{Values: make([][]wireValue[V], len(req.Entries))}
	for i, e := range req.Entries {
		var existed types.ValueSet[V]
		for _, v := range e.Values {
			old, err := d.dir.Put(e.Key, types.NewValueInfo(v, attr))
			if err != nil {
				logger.Warn("本地写入失败", "key", e.Key.ShortString(), "error", err)
				continue
			}
			if old != nil {
				existed.Add(*old)
			}
		}
		reply.Values[i] = toWire(existed, now)
	}
	return reply
}

// ============================================================================
//                              REMOVE
// ============================================================================

func (d *DHT[V]) handleRemove(_ context.Context, msg *transport.Message) (*transport.Message, error) {
	var req removeMessage[V]
	if err := msg.DecodePayload(&req); err != nil {
		return nil, err
	}
	logger.Debug("收到 REMOVE", "from", msg.Sender.ID.ShortString(), "keys", len(req.Entries))
	return transport.NewReply(msg, d.Self(), d.removeLocally(req))
}

// removeLocally 把一批删除应用到本地目录，只删除密钥匹配的值
func (d *DHT[V]) removeLocally(req removeMessage[V]) storeReply[V] {
	if req.Secret.IsEmpty() {
		logger.Warn("拒绝没有密钥的 REMOVE", "keys", len(req.Entries))
		return storeReply[V]{Rejected: true}
	}

	now := d.clk.Now()
	reply := storeReply[V]{Values: make([][]wireValue[V], len(req.Entries))}
	for i, e := range req.Entries {
		removed, err := d.dir.RemoveMatching(e.Key, removeMatcher(e, req.Secret))
		if err != nil {
			logger.Warn("本地删除失败", "key", e.Key.ShortString(), "error", err)
		}
		reply.Values[i] = toWire(removed, now)
	}
	return reply
}

// removeMatcher 返回一个删除条件：密钥必须匹配；
// 指定了值时值必须在列表中，否则指定了哈希时值的 SHA-1 哈希必须在列表中。
func removeMatcher[V comparable](e removeEntry[V], secret types.Secret) func(types.ValueInfo[V]) bool {
	values := make(map[V]struct{}, len(e.Values))
	for _, v := range e.Values {
		values[v] = struct{}{}
	}
	hashes := make(map[types.ID]struct{}, len(e.Hashes))
	for _, h := range e.Hashes {
		hashes[h] = struct{}{}
	}

	return func(vi types.ValueInfo[V]) bool {
		if !secret.Equal(vi.HashedSecret) {
			return false
		}
		switch {
		case len(values) > 0:
			_, ok := values[vi.Value]
			return ok
		case len(hashes) > 0:
			_, ok := hashes[types.ValueHash(vi.Value)]
			return ok
		default:
			return true
		}
	}
}

// ============================================================================
//                              TRANSFER
// ============================================================================

// handleTransfer 返回新加入的节点比本节点更接近的键及其值
func (d *DHT[V]) handleTransfer(_ context.Context, msg *transport.Message) (*transport.Message, error) {
	joiner := msg.Sender
	self := d.Self()
	m := d.svc.Algorithm().Metric()

	keys, err := d.dir.Keys()
	if err != nil {
		logger.Warn("读取本地键失败", "error", err)
		return transport.NewReply(msg, self, transferReply[V]{})
	}

	now := d.clk.Now()
	var reply transferReply[V]
	for _, k := range keys {
		if k.Size() != joiner.ID.Size() || !metric.Closer(m, k, joiner.ID, self.ID) {
			continue
		}
		set, err := d.dir.Get(k)
		if err != nil || len(set) == 0 {
			continue
		}
		reply.Entries = append(reply.Entries, transferEntry[V]{Key: k, Values: toWire(set, now)})
	}
	logger.Debug("迁移数据到新节点", "joiner", joiner.ID.ShortString(), "keys", len(reply.Entries))
	return transport.NewReply(msg, self, reply)
}
