package dht

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-simdht/internal/core/transport/memnet"
	"github.com/dep2p/go-simdht/internal/directory"
	"github.com/dep2p/go-simdht/internal/routing"
	"github.com/dep2p/go-simdht/pkg/types"
)

const testIDSize = 2

func id(n uint64) types.ID {
	return types.IDFromUint64(n, testIDSize)
}

func testRoutingConfig(spare int) *routing.Config {
	cfg := routing.DefaultConfig()
	cfg.Algorithm = routing.AlgorithmKademlia
	cfg.IDBitLength = testIDSize * 8
	cfg.RequestTimeout = time.Second
	cfg.JoinMaxElapsed = 200 * time.Millisecond
	cfg.SpareCandidates = spare
	cfg.Daemon.Enabled = false
	cfg.Seed = 1
	return cfg
}

func testConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	cfg.RequestTimeout = time.Second
	cfg.SweepInterval = 0
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// cluster 同一内存网络上的一组 DHT 节点
type cluster struct {
	net   *memnet.Network
	clk   *clock.Mock
	nodes []*DHT[string]
}

// newCluster 创建节点，全部节点互相认识
func newCluster(t *testing.T, cfg *Config, ids ...uint64) *cluster {
	t.Helper()
	c := &cluster{net: memnet.NewNetwork(), clk: clock.NewMock()}
	metrics := NewMetrics(nil)
	for _, n := range ids {
		ep, err := c.net.Listen("")
		require.NoError(t, err)
		svc, err := routing.NewService(id(n), ep, testRoutingConfig(cfg.SpareCandidates), routing.WithClock(c.clk))
		require.NoError(t, err)

		dcfg := directory.DefaultConfig()
		dir := directory.NewMemory[string](dcfg, nil, c.clk)

		d, err := New[string](svc, dir, cfg, WithMetrics(metrics))
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = d.Stop()
			_ = dir.Close()
		})
		c.nodes = append(c.nodes, d)
	}
	c.mesh()
	return c
}

func (c *cluster) mesh() {
	for _, a := range c.nodes {
		for _, b := range c.nodes {
			if a != b {
				a.RoutingService().Algorithm().Touch(b.Self())
			}
		}
	}
}

// holders 返回本地目录中有 key 的节点下标
func (c *cluster) holders(t *testing.T, key types.ID) []int {
	t.Helper()
	var out []int
	for i, n := range c.nodes {
		set, err := n.GlobalValues(key)
		require.NoError(t, err)
		if len(set) > 0 {
			out = append(out, i)
		}
	}
	return out
}
