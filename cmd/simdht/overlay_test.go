package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-simdht/config"
	"github.com/dep2p/go-simdht/pkg/types"
)

func overlayConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Routing.IDBitLength = 16
	cfg.LSH.IDBitLength = 16
	cfg.Routing.Daemon.Enabled = false
	cfg.DHT.SweepInterval = 0
	return cfg
}

// TestClampReplication 测试副本数和最小确认数不超过节点数
func TestClampReplication(t *testing.T) {
	cfg := overlayConfig()
	cfg.DHT.ReplicationFactor = 3
	cfg.DHT.MinReplicaAcks = 3

	clamped := clampReplication(config.CloneConfig(cfg), 2)
	assert.Equal(t, 2, clamped.DHT.ReplicationFactor)
	assert.Equal(t, 2, clamped.DHT.MinReplicaAcks)
	require.NoError(t, clamped.Validate())

	kept := clampReplication(config.CloneConfig(cfg), 5)
	assert.Equal(t, 3, kept.DHT.ReplicationFactor)
	assert.Equal(t, 3, kept.DHT.MinReplicaAcks)
}

// TestStartOverlay_FewerNodesThanReplicas 测试节点数少于默认副本数时 put 仍然成功
func TestStartOverlay_FewerNodesThanReplicas(t *testing.T) {
	ctx := context.Background()
	cfg := overlayConfig()
	require.Equal(t, 3, cfg.DHT.ReplicationFactor)

	for _, count := range []int{1, 2} {
		o, err := startOverlay(ctx, cfg, count, nil)
		require.NoError(t, err)

		assert.Equal(t, count, o.entry().Config().DHT.ReplicationFactor)
		key := types.IDFromUint64(0x0001, o.idSize())
		_, err = o.entry().Put(ctx, key, "a", "b")
		require.NoError(t, err, "nodes=%d", count)

		values, err := o.entry().Get(ctx, key)
		require.NoError(t, err)
		assert.Len(t, values, 2)
		require.NoError(t, o.Close())
	}

	t.Log("✅ 小规模覆盖网络写入测试通过")
}
