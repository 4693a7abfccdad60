package routing

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-simdht/internal/core/transport/memnet"
	"github.com/dep2p/go-simdht/internal/routing/metric"
	"github.com/dep2p/go-simdht/pkg/types"
)

const testIDSize = 2

var allAlgorithms = []string{AlgorithmKademlia, AlgorithmHammingKademlia, AlgorithmHamming, AlgorithmHammingChord}

func testConfig(algorithm string) *Config {
	cfg := DefaultConfig()
	cfg.Algorithm = algorithm
	cfg.IDBitLength = testIDSize * 8
	cfg.RequestTimeout = time.Second
	cfg.JoinMaxElapsed = 200 * time.Millisecond
	cfg.Daemon.Enabled = false
	cfg.Seed = 1
	return cfg
}

// newTestNodes 在同一个内存网络上创建节点
func newTestNodes(t *testing.T, net *memnet.Network, cfg *Config, ids ...uint64) []*Service {
	t.Helper()
	out := make([]*Service, 0, len(ids))
	for _, id := range ids {
		ep, err := net.Listen("")
		require.NoError(t, err)
		svc, err := NewService(types.IDFromUint64(id, testIDSize), ep, cfg)
		require.NoError(t, err)
		t.Cleanup(func() { _ = svc.Stop() })
		out = append(out, svc)
	}
	return out
}

// fullMesh 让每个节点认识其他所有节点
func fullMesh(nodes []*Service) {
	for _, a := range nodes {
		for _, b := range nodes {
			a.Algorithm().Touch(b.Self())
		}
	}
}

// closestTo 按到 target 的距离排序全部节点
func closestTo(m metric.Metric, target types.ID, nodes []*Service) []types.IDAddressPair {
	pairs := make([]types.IDAddressPair, len(nodes))
	for i, n := range nodes {
		pairs[i] = n.Self()
	}
	slices.SortFunc(pairs, metric.TowardTarget(m, target))
	return pairs
}

func pairIDs(pairs []types.IDAddressPair) []types.ID {
	out := make([]types.ID, len(pairs))
	for i, p := range pairs {
		out[i] = p.ID
	}
	return out
}
