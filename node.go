package simdht

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/dep2p/go-simdht/config"
	"github.com/dep2p/go-simdht/internal/core/storage/engine"
	"github.com/dep2p/go-simdht/internal/core/transport"
	"github.com/dep2p/go-simdht/internal/core/transport/memnet"
	"github.com/dep2p/go-simdht/internal/dht"
	"github.com/dep2p/go-simdht/internal/lsh"
	"github.com/dep2p/go-simdht/internal/routing"
	"github.com/dep2p/go-simdht/pkg/lib/log"
	"github.com/dep2p/go-simdht/pkg/types"
)

var logger = log.Logger("simdht/node")

// stopTimeout 关闭节点时等待各模块停止的上限
const stopTimeout = 10 * time.Second

// Node 一个相似性 DHT 节点
//
// Node 是用户交互的主入口，值类型为 string。
// 通过 New 创建，Start 启动，Close 关闭；Close 之后节点不可再用。
type Node struct {
	cfg       *config.Config
	app       *fx.App
	tr        transport.Transport
	bootstrap string

	// 由 Fx 注入
	dht    *dht.DHT[string]
	gen    *lsh.Generator
	engine engine.InternalEngine

	started atomic.Bool
	closed  atomic.Bool
}

// New 创建节点但不启动
//
// 不指定 WithSelfID 时，节点 ID 由监听地址的 SHA-1 派生。
func New(opts ...Option) (*Node, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	cfg, err := o.resolveConfig()
	if err != nil {
		return nil, err
	}

	network := o.network
	if network == nil {
		network = memnet.NewNetwork()
	}
	ep, err := network.Listen(o.address)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	self := o.selfID
	if self.IsEmpty() {
		self = types.SHA1ID([]byte(ep.Address()), cfg.IDSize())
	}
	if self.Size() != cfg.IDSize() {
		_ = ep.Close()
		return nil, fmt.Errorf("%w: self id has %d bytes, routing expects %d", ErrInvalidOption, self.Size(), cfg.IDSize())
	}

	n := &Node{cfg: cfg, tr: ep, bootstrap: o.bootstrap}
	n.app = buildFxApp(cfg, o, self, ep, n)
	if err := n.app.Err(); err != nil {
		_ = ep.Close()
		return nil, fmt.Errorf("build node: %w", err)
	}
	logger.Info("节点已创建", "id", self.ShortString(), "address", ep.Address())
	return n, nil
}

// Start 创建并启动节点
func Start(ctx context.Context, opts ...Option) (*Node, error) {
	n, err := New(opts...)
	if err != nil {
		return nil, err
	}
	if err := n.Start(ctx); err != nil {
		_ = n.Close()
		return nil, err
	}
	return n, nil
}

// Start 启动各模块；配置了引导节点时随后加入网络
func (n *Node) Start(ctx context.Context) error {
	if n.closed.Load() {
		return ErrNodeClosed
	}
	if n.started.Swap(true) {
		return ErrAlreadyStarted
	}
	if err := n.app.Start(ctx); err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	if n.bootstrap != "" {
		if err := n.Join(ctx, n.bootstrap); err != nil {
			return err
		}
	}
	logger.Info("节点已启动", "id", n.ID().ShortString())
	return nil
}

// Close 停止节点并释放资源，可重复调用
func (n *Node) Close() error {
	if n.closed.Swap(true) {
		return nil
	}
	if n.started.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		return n.app.Stop(ctx)
	}

	// 未启动时生命周期钩子不会运行，手动释放已打开的资源
	var err error
	err = multierr.Append(err, n.dht.Stop())
	err = multierr.Append(err, n.dht.Directory().Close())
	if n.engine != nil {
		err = multierr.Append(err, n.engine.Close())
	}
	return err
}

func (n *Node) ready() error {
	if n.closed.Load() {
		return ErrNodeClosed
	}
	if !n.started.Load() {
		return ErrNotStarted
	}
	return nil
}

// ============================================================================
//                              身份与状态
// ============================================================================

// ID 返回节点 ID
func (n *Node) ID() types.ID { return n.dht.Self().ID }

// Address 返回节点地址
func (n *Node) Address() string { return n.tr.Address() }

// Config 返回节点配置的副本
func (n *Node) Config() *config.Config { return config.CloneConfig(n.cfg) }

// DHT 返回底层 DHT 服务
func (n *Node) DHT() *dht.DHT[string] { return n.dht }

// LSH 返回内容 ID 生成器
func (n *Node) LSH() *lsh.Generator { return n.gen }

// RoutingTable 返回路由表的文本表示
func (n *Node) RoutingTable() string { return n.dht.RoutingTableString() }

// Suspend 暂停路由维护
func (n *Node) Suspend() { n.dht.Suspend() }

// Resume 恢复路由维护
func (n *Node) Resume() error { return n.dht.Resume() }

// Join 通过引导节点加入网络
func (n *Node) Join(ctx context.Context, bootstrap string) error {
	if err := n.ready(); err != nil {
		return err
	}
	_, err := n.dht.Join(ctx, bootstrap)
	return err
}

// ============================================================================
//                              内容键
// ============================================================================

// ContentKey 用 LSH 把内容映射为 ID，相似内容得到相似 ID
func (n *Node) ContentKey(content []byte) (types.ID, error) {
	return n.gen.HashBytes(content)
}

// VectorKey 用 LSH 把特征向量映射为 ID
func (n *Node) VectorKey(vector []float64) (types.ID, error) {
	return n.gen.HashFloats(vector)
}

// ============================================================================
//                              DHT 操作
// ============================================================================

// Get 返回 key 下的值
func (n *Node) Get(ctx context.Context, key types.ID) (types.ValueSet[string], error) {
	if err := n.ready(); err != nil {
		return nil, err
	}
	return n.dht.Get(ctx, key)
}

// GetSimilar 返回与 key 相似度不低于 threshold 的键及其值
func (n *Node) GetSimilar(ctx context.Context, key types.ID, threshold float64) (map[types.ID]types.ValueSet[string], error) {
	if err := n.ready(); err != nil {
		return nil, err
	}
	return n.dht.GetSimilar(ctx, key, threshold)
}

// GetSimilarHops 同 GetSimilar，但使用给定的扩展轮数
func (n *Node) GetSimilarHops(ctx context.Context, key types.ID, threshold float64, extraHops int) (map[types.ID]types.ValueSet[string], error) {
	if err := n.ready(); err != nil {
		return nil, err
	}
	return n.dht.GetSimilarHops(ctx, key, threshold, extraHops)
}

// Put 写入 key 的值，返回副本上已存在的值
func (n *Node) Put(ctx context.Context, key types.ID, values ...string) (types.ValueSet[string], error) {
	if err := n.ready(); err != nil {
		return nil, err
	}
	return n.dht.Put(ctx, key, values...)
}

// PutWith 使用给定选项批量写入
func (n *Node) PutWith(ctx context.Context, reqs []dht.PutRequest[string], opts dht.PutOptions) []types.Result[types.ValueSet[string]] {
	if err := n.ready(); err != nil {
		out := make([]types.Result[types.ValueSet[string]], len(reqs))
		for i := range out {
			out[i] = types.Fail[types.ValueSet[string]](err)
		}
		return out
	}
	return n.dht.PutWith(ctx, reqs, opts)
}

// Remove 删除 key 下密钥匹配的指定值
func (n *Node) Remove(ctx context.Context, key types.ID, secret types.Secret, values ...string) (types.ValueSet[string], error) {
	if err := n.ready(); err != nil {
		return nil, err
	}
	return n.dht.Remove(ctx, key, secret, values...)
}

// RemoveAll 删除 key 下密钥匹配的全部值
func (n *Node) RemoveAll(ctx context.Context, key types.ID, secret types.Secret) (types.ValueSet[string], error) {
	if err := n.ready(); err != nil {
		return nil, err
	}
	return n.dht.RemoveAll(ctx, key, secret)
}

// SetSecretForPut 设置之后写入使用的密钥，返回旧值
func (n *Node) SetSecretForPut(secret types.Secret) types.Secret {
	return n.dht.SetSecretForPut(secret)
}

// SetTTLForPut 设置之后写入使用的 TTL，返回旧值
func (n *Node) SetTTLForPut(ttl time.Duration) time.Duration {
	return n.dht.SetTTLForPut(ttl)
}

// LastRoutingResults 返回最近一次操作的路由结果
func (n *Node) LastRoutingResults() []types.Result[routing.RoutingResult] {
	return n.dht.LastRoutingResults()
}
