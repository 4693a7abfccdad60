package routing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-simdht/internal/core/transport"
	"github.com/dep2p/go-simdht/internal/core/transport/memnet"
	"github.com/dep2p/go-simdht/pkg/types"
)

var meshIDs = []uint64{0x0001, 0x00f0, 0x0f0f, 0x3c3c, 0xa5a5, 0xfff0}

// TestNewService_InvalidInput 测试构造参数校验
func TestNewService_InvalidInput(t *testing.T) {
	net := memnet.NewNetwork()
	ep, err := net.Listen("")
	require.NoError(t, err)

	_, err = NewService(types.IDFromUint64(1, 4), ep, testConfig(AlgorithmKademlia))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewService(types.IDFromUint64(1, testIDSize), ep, testConfig("Pastry"))
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)

	_, err = NewService(types.IDFromUint64(1, testIDSize), nil, testConfig(AlgorithmKademlia))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	t.Log("✅ NewService 参数校验测试通过")
}

// TestRoute_SingleNode 测试单节点网络中自己负责所有键
func TestRoute_SingleNode(t *testing.T) {
	for _, algo := range allAlgorithms {
		t.Run(algo, func(t *testing.T) {
			nodes := newTestNodes(t, memnet.NewNetwork(), testConfig(algo), 0x1234)
			target := types.IDFromUint64(0xbeef, testIDSize)

			results := nodes[0].Route(context.Background(), []types.ID{target}, 3)
			require.Len(t, results, 1)
			require.NoError(t, results[0].Err)

			r := results[0].Value
			assert.Equal(t, target, r.Target)
			assert.Equal(t, []types.IDAddressPair{nodes[0].Self()}, r.Responsible)
			assert.Equal(t, nodes[0].Self(), r.LastHop())
			assert.Equal(t, 0, r.Hops())
		})
	}

	t.Log("✅ 单节点路由测试通过")
}

// TestRoute_FullMesh 测试所有节点互相认识时，路由结果是全局最近的节点
func TestRoute_FullMesh(t *testing.T) {
	targets := []types.ID{
		types.IDFromUint64(0x0102, testIDSize),
		types.IDFromUint64(0x7777, testIDSize),
		types.IDFromUint64(0xfe01, testIDSize),
	}
	for _, algo := range allAlgorithms {
		t.Run(algo, func(t *testing.T) {
			nodes := newTestNodes(t, memnet.NewNetwork(), testConfig(algo), meshIDs...)
			fullMesh(nodes)
			m := nodes[0].Algorithm().Metric()

			for _, from := range nodes {
				results := from.Route(context.Background(), targets, len(nodes))
				for i, res := range results {
					require.NoError(t, res.Err)
					expected := closestTo(m, targets[i], nodes)
					assert.Equal(t, pairIDs(expected), pairIDs(res.Value.Responsible))

					last := res.Value.LastHop()
					assert.Zero(t, m.Distance(last.ID, targets[i]).Cmp(m.Distance(expected[0].ID, targets[i])),
						"last hop %s, best %s", last.ID, expected[0].ID)
				}
			}
		})
	}

	t.Log("✅ 全连接路由测试通过")
}

// TestRoute_ReplicaCount 测试副本数小于网络规模时，责任候选仍是全局最近的节点
//
// 0x7777 在 HammingKademlia 下最近的 0xfff0 位于 0x0001 的高位桶，
// 按副本数截断的候选列表看不到它。
func TestRoute_ReplicaCount(t *testing.T) {
	target := types.IDFromUint64(0x7777, testIDSize)
	for _, algo := range allAlgorithms {
		t.Run(algo, func(t *testing.T) {
			nodes := newTestNodes(t, memnet.NewNetwork(), testConfig(algo), meshIDs...)
			fullMesh(nodes)
			expected := closestTo(nodes[0].Algorithm().Metric(), target, nodes)

			for _, from := range nodes {
				r, err := from.RouteOne(context.Background(), target, 2)
				require.NoError(t, err)
				require.Len(t, r.Responsible, 2)
				assert.Equal(t, pairIDs(expected[:2]), pairIDs(r.Responsible), "from %s", from.Self().ID)
			}
		})
	}

	nodes := newTestNodes(t, memnet.NewNetwork(), testConfig(AlgorithmHammingKademlia), meshIDs...)
	fullMesh(nodes)
	r, err := nodes[0].RouteOne(context.Background(), target, 2)
	require.NoError(t, err)
	assert.Equal(t, []types.ID{types.IDFromUint64(0xfff0, testIDSize), types.IDFromUint64(0x0f0f, testIDSize)},
		pairIDs(r.Responsible))

	t.Log("✅ 副本数路由测试通过")
}

// TestRoute_DeadPeerForgotten 测试无响应的下一跳被遗忘并跳过
func TestRoute_DeadPeerForgotten(t *testing.T) {
	net := memnet.NewNetwork()
	nodes := newTestNodes(t, net, testConfig(AlgorithmHammingKademlia), 0x0000, 0x00ff, 0xff00, 0xff01)
	fullMesh(nodes)

	dead := nodes[2]
	net.SetDown(dead.Self().Address, true)

	r, err := nodes[0].RouteOne(context.Background(), dead.Self().ID, 3)
	require.NoError(t, err)
	assert.False(t, types.ContainsPair(r.Responsible, dead.Self()))
	assert.Equal(t, nodes[3].Self().ID, r.Responsible[0].ID)
	assert.False(t, types.ContainsPair(nodes[0].Algorithm().Peers(), dead.Self()))

	t.Log("✅ 失效节点遗忘测试通过")
}

// TestRoute_MaxHops 测试跳数预算耗尽时报告路由失败
func TestRoute_MaxHops(t *testing.T) {
	build := func(maxHops int) []*Service {
		cfg := testConfig(AlgorithmHammingKademlia)
		cfg.MaxHops = maxHops
		// A 只认识 B，B 只认识 C，到 C 需要两跳
		nodes := newTestNodes(t, memnet.NewNetwork(), cfg, 0x00ff, 0x0001, 0x0000)
		nodes[0].Algorithm().Touch(nodes[1].Self())
		nodes[1].Algorithm().Touch(nodes[2].Self())
		return nodes
	}

	nodes := build(1)
	_, err := nodes[0].RouteOne(context.Background(), nodes[2].Self().ID, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRoutingFailed)
	assert.ErrorIs(t, err, ErrMaxHops)

	var rerr *RoutingError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "route", rerr.Op)

	nodes = build(2)
	r, err := nodes[0].RouteOne(context.Background(), nodes[2].Self().ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Hops())
	assert.Equal(t, pairIDs([]types.IDAddressPair{nodes[0].Self(), nodes[1].Self(), nodes[2].Self()}), pairIDs(r.Pairs()))
	assert.Equal(t, nodes[2].Self().ID, r.Responsible[0].ID)

	t.Log("✅ 跳数预算测试通过")
}

// TestRoute_ContextCanceled 测试 context 取消时路由失败而不是返回空结果
func TestRoute_ContextCanceled(t *testing.T) {
	nodes := newTestNodes(t, memnet.NewNetwork(), testConfig(AlgorithmKademlia), 1, 2)
	fullMesh(nodes)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := nodes[0].Route(ctx, []types.ID{types.IDFromUint64(2, testIDSize)}, 1)
	require.Len(t, results, 1)
	assert.False(t, results[0].OK())
	assert.ErrorIs(t, results[0].Err, ErrRoutingFailed)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
}

// TestRoute_Stopped 测试停止后路由失败
func TestRoute_Stopped(t *testing.T) {
	nodes := newTestNodes(t, memnet.NewNetwork(), testConfig(AlgorithmKademlia), 1)
	require.NoError(t, nodes[0].Stop())
	require.NoError(t, nodes[0].Stop())

	_, err := nodes[0].RouteOne(context.Background(), types.IDFromUint64(2, testIDSize), 1)
	assert.ErrorIs(t, err, ErrStopped)
	assert.ErrorIs(t, nodes[0].Start(context.Background()), ErrStopped)
}

// TestJoin 测试节点依次通过引导节点加入后可以路由到全局最近节点
func TestJoin(t *testing.T) {
	for _, algo := range allAlgorithms {
		t.Run(algo, func(t *testing.T) {
			nodes := newTestNodes(t, memnet.NewNetwork(), testConfig(algo), meshIDs...)
			boot := nodes[0]

			for _, n := range nodes[1:] {
				_, err := n.Join(context.Background(), boot.Self().Address)
				require.NoError(t, err)
				assert.True(t, types.ContainsPair(n.Algorithm().Peers(), boot.Self()))
			}
			assert.Len(t, boot.Algorithm().Peers(), len(nodes)-1)

			target := types.IDFromUint64(0x7777, testIDSize)
			r, err := boot.RouteOne(context.Background(), target, len(nodes))
			require.NoError(t, err)
			expected := closestTo(boot.Algorithm().Metric(), target, nodes)
			assert.Equal(t, pairIDs(expected), pairIDs(r.Responsible))
		})
	}

	t.Log("✅ Join 测试通过")
}

// TestJoin_ResponsibleExcludesSelf 测试加入结果中的责任候选不含自身
func TestJoin_ResponsibleExcludesSelf(t *testing.T) {
	nodes := newTestNodes(t, memnet.NewNetwork(), testConfig(AlgorithmHammingKademlia), meshIDs...)
	fullMesh(nodes[:len(nodes)-1])

	joiner := nodes[len(nodes)-1]
	r, err := joiner.Join(context.Background(), nodes[0].Self().Address)
	require.NoError(t, err)
	require.NotEmpty(t, r.Responsible)
	assert.False(t, types.ContainsPair(r.Responsible, joiner.Self()))
	assert.Len(t, joiner.Algorithm().Peers(), len(nodes)-1)
}

// TestJoin_BootstrapUnreachable 测试引导节点不可达时重试后失败
func TestJoin_BootstrapUnreachable(t *testing.T) {
	nodes := newTestNodes(t, memnet.NewNetwork(), testConfig(AlgorithmKademlia), 1)

	_, err := nodes[0].Join(context.Background(), "mem://nowhere")
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrUnreachable)

	// 引导到自己视为网络中的第一个节点
	r, err := nodes[0].Join(context.Background(), nodes[0].Self().Address)
	require.NoError(t, err)
	assert.Equal(t, nodes[0].Self(), r.LastHop())

	t.Log("✅ 引导节点不可达测试通过")
}

// TestLeave 测试离开后路由表清空
func TestLeave(t *testing.T) {
	nodes := newTestNodes(t, memnet.NewNetwork(), testConfig(AlgorithmHammingChord), meshIDs...)
	fullMesh(nodes)
	require.NotEmpty(t, nodes[0].Algorithm().Peers())

	nodes[0].Leave()
	assert.Empty(t, nodes[0].Algorithm().Peers())
}

// TestHandle_TouchesSender 测试收到消息时发送者被加入路由表
func TestHandle_TouchesSender(t *testing.T) {
	nodes := newTestNodes(t, memnet.NewNetwork(), testConfig(AlgorithmHammingKademlia), 1, 2)

	require.NoError(t, nodes[0].Ping(context.Background(), nodes[1].Self()))
	assert.True(t, types.ContainsPair(nodes[0].Algorithm().Peers(), nodes[1].Self()))
	assert.True(t, types.ContainsPair(nodes[1].Algorithm().Peers(), nodes[0].Self()))

	nodes[1].Handle(transport.MessageTypePut, func(_ context.Context, msg *transport.Message) (*transport.Message, error) {
		return transport.NewReply(msg, nodes[1].Self(), map[string]string{"ok": "yes"})
	})
	var out map[string]string
	require.NoError(t, nodes[0].Request(context.Background(), nodes[1].Self().Address, transport.MessageTypePut, struct{}{}, &out))
	assert.Equal(t, "yes", out["ok"])
}

// TestPing_DeadPeer 测试 ping 失败时遗忘节点
func TestPing_DeadPeer(t *testing.T) {
	net := memnet.NewNetwork()
	nodes := newTestNodes(t, net, testConfig(AlgorithmKademlia), 1, 2)
	fullMesh(nodes)

	net.SetDown(nodes[1].Self().Address, true)
	assert.ErrorIs(t, nodes[0].Ping(context.Background(), nodes[1].Self()), transport.ErrUnreachable)
	assert.Empty(t, nodes[0].Algorithm().Peers())
}

// ============================================================================
//                              回调
// ============================================================================

func registerAddressCallback(t *testing.T, nodes []*Service) {
	t.Helper()
	for _, n := range nodes {
		addr := n.Self().Address
		require.NoError(t, n.RegisterCallback(CallbackExact, func(_ context.Context, _ types.ID, args json.RawMessage, onResponsible bool) (json.RawMessage, error) {
			assert.True(t, onResponsible)
			var suffix string
			if len(args) > 0 {
				if err := json.Unmarshal(args, &suffix); err != nil {
					return nil, err
				}
			}
			return json.Marshal(addr + suffix)
		}))
	}
}

// TestInvokeCallbacksOnRoute 测试在责任节点执行回调，且同一地址的调用合并为一条消息
func TestInvokeCallbacksOnRoute(t *testing.T) {
	net := memnet.NewNetwork()
	nodes := newTestNodes(t, net, testConfig(AlgorithmHammingKademlia), 0x0000, 0x00ff, 0xff00)
	fullMesh(nodes)
	registerAddressCallback(t, nodes)

	owner := nodes[2]
	args, err := json.Marshal("#x")
	require.NoError(t, err)
	calls := []Invocation{
		{Target: types.IDFromUint64(0xff00, testIDSize), Kind: CallbackExact},
		{Target: types.IDFromUint64(0xff01, testIDSize), Kind: CallbackExact, Args: args},
	}

	net.ResetCounts()
	results := nodes[0].InvokeCallbacksOnRoute(context.Background(), calls, 1, -1)
	require.Len(t, results, 2)
	assert.Equal(t, 1, net.Count(transport.MessageTypeInvoke))

	var v0, v1 string
	require.NoError(t, results[0].Err)
	require.NoError(t, json.Unmarshal(results[0].Value.Value, &v0))
	require.NoError(t, results[1].Err)
	require.NoError(t, json.Unmarshal(results[1].Value.Value, &v1))
	assert.Equal(t, owner.Self().Address, v0)
	assert.Equal(t, owner.Self().Address+"#x", v1)
	assert.Equal(t, owner.Self().ID, results[0].Value.Routing.LastHop().ID)

	t.Log("✅ InvokeCallbacksOnRoute 测试通过")
}

// TestInvokeCallbacksOnRoute_Local 测试自己是责任节点时在本地执行，不发送 INVOKE
func TestInvokeCallbacksOnRoute_Local(t *testing.T) {
	net := memnet.NewNetwork()
	nodes := newTestNodes(t, net, testConfig(AlgorithmHammingKademlia), 0x0000, 0xffff)
	fullMesh(nodes)
	registerAddressCallback(t, nodes)

	net.ResetCounts()
	results := nodes[0].InvokeCallbacksOnRoute(context.Background(),
		[]Invocation{{Target: types.IDFromUint64(0x0001, testIDSize), Kind: CallbackExact}}, 1, -1)
	require.NoError(t, results[0].Err)
	assert.Zero(t, net.Count(transport.MessageTypeInvoke))

	var v string
	require.NoError(t, json.Unmarshal(results[0].Value.Value, &v))
	assert.Equal(t, nodes[0].Self().Address, v)
}

// TestInvokeCallbacksOnRoute_RoutingFailure 测试路由失败的键单独失败
func TestInvokeCallbacksOnRoute_RoutingFailure(t *testing.T) {
	nodes := newTestNodes(t, memnet.NewNetwork(), testConfig(AlgorithmKademlia), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := nodes[0].InvokeCallbacksOnRoute(ctx, []Invocation{{Target: types.IDFromUint64(5, testIDSize), Kind: CallbackExact}}, 1, -1)
	assert.ErrorIs(t, results[0].Err, ErrRoutingFailed)
}

// TestRegisterCallback_UnknownKind 测试注册未知回调类型失败
func TestRegisterCallback_UnknownKind(t *testing.T) {
	nodes := newTestNodes(t, memnet.NewNetwork(), testConfig(AlgorithmKademlia), 1)
	noop := func(context.Context, types.ID, json.RawMessage, bool) (json.RawMessage, error) { return nil, nil }

	assert.ErrorIs(t, nodes[0].RegisterCallback(CallbackKind(9), noop), ErrUnknownCallback)
	assert.Error(t, nodes[0].RegisterCallback(CallbackExact, nil))
	assert.NoError(t, nodes[0].RegisterCallback(CallbackSimilar, noop))
	assert.Equal(t, "similar", CallbackSimilar.String())
}

// TestInvoke_UnknownKindAndFailingCallback 测试未知类型和回调错误都返回空结果而不是失败
func TestInvoke_UnknownKindAndFailingCallback(t *testing.T) {
	nodes := newTestNodes(t, memnet.NewNetwork(), testConfig(AlgorithmHammingKademlia), 0x0000, 0xffff)
	fullMesh(nodes)
	require.NoError(t, nodes[1].RegisterCallback(CallbackExact, func(context.Context, types.ID, json.RawMessage, bool) (json.RawMessage, error) {
		return nil, errors.New("directory unavailable")
	}))

	target := nodes[1].Self().ID
	var resp InvokeResponse
	req := InvokeRequest{Entries: []InvokeEntry{
		{Target: target, Kind: CallbackKind(42)},
		{Target: target, Kind: CallbackExact},
	}}
	require.NoError(t, nodes[0].Request(context.Background(), nodes[1].Self().Address, transport.MessageTypeInvoke, req, &resp))
	require.Len(t, resp.Results, 2)
	for _, r := range resp.Results {
		assert.True(t, len(r) == 0 || string(r) == "null")
	}

	results := nodes[0].InvokeCallbacksOnRoute(context.Background(), []Invocation{{Target: target, Kind: CallbackExact}}, 1, -1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, target, results[0].Value.Routing.LastHop().ID)

	t.Log("✅ 回调容错测试通过")
}
