package simdht

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-simdht/config"
	"github.com/dep2p/go-simdht/internal/core/transport/memnet"
	"github.com/dep2p/go-simdht/pkg/types"
)

// testConfig 16 比特 ID、关闭维护任务的小规模配置
func testConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Routing.IDBitLength = 16
	cfg.LSH.IDBitLength = 16
	cfg.Routing.Daemon.Enabled = false
	cfg.Routing.JoinMaxElapsed = config.Duration(200 * time.Millisecond)
	cfg.DHT.ReplicationFactor = 2
	cfg.DHT.SweepInterval = 0
	return cfg
}

// TestNode_PutGetSimilar 测试两个节点加入同一网络后写入和查询
func TestNode_PutGetSimilar(t *testing.T) {
	ctx := context.Background()
	network := memnet.NewNetwork()

	a, err := Start(ctx, WithConfig(testConfig()), WithNetwork(network), WithSelfID(types.IDFromUint64(0x0100, 2)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	b, err := Start(ctx,
		WithConfig(testConfig()),
		WithNetwork(network),
		WithSelfID(types.IDFromUint64(0x8000, 2)),
		WithBootstrap(a.Address()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	owner := types.HashSecret([]byte("owner"))
	b.SetSecretForPut(owner)
	_, err = b.Put(ctx, types.IDFromUint64(0x0f00, 2), "exact")
	require.NoError(t, err)
	_, err = b.Put(ctx, types.IDFromUint64(0x0f01, 2), "near")
	require.NoError(t, err)

	got, err := a.Get(ctx, types.IDFromUint64(0x0f00, 2))
	require.NoError(t, err)
	assert.Equal(t, []string{"exact"}, got.Values())

	similar, err := a.GetSimilar(ctx, types.IDFromUint64(0x0f00, 2), 0.9)
	require.NoError(t, err)
	assert.Len(t, similar, 2)

	removed, err := a.RemoveAll(ctx, types.IDFromUint64(0x0f01, 2), owner)
	require.NoError(t, err)
	assert.Equal(t, []string{"near"}, removed.Values())
	assert.NotEmpty(t, a.RoutingTable())
	t.Log("✅ 双节点写入与相似性查询测试通过")
}

// TestNode_Lifecycle 测试启动与关闭的状态检查
func TestNode_Lifecycle(t *testing.T) {
	ctx := context.Background()
	n, err := New(WithConfig(testConfig()))
	require.NoError(t, err)
	assert.Equal(t, 2, n.ID().Size())

	_, err = n.Get(ctx, n.ID())
	assert.ErrorIs(t, err, ErrNotStarted)

	require.NoError(t, n.Start(ctx))
	assert.ErrorIs(t, n.Start(ctx), ErrAlreadyStarted)

	cfg := n.Config()
	cfg.DHT.ReplicationFactor = 9
	assert.Equal(t, 2, n.Config().DHT.ReplicationFactor)

	require.NoError(t, n.Close())
	require.NoError(t, n.Close())
	_, err = n.Get(ctx, n.ID())
	assert.ErrorIs(t, err, ErrNodeClosed)
	assert.ErrorIs(t, n.Start(ctx), ErrNodeClosed)
}

// TestNode_CloseWithoutStart 测试未启动的节点可以关闭
func TestNode_CloseWithoutStart(t *testing.T) {
	n, err := New(WithConfig(testConfig()))
	require.NoError(t, err)
	assert.NoError(t, n.Close())
}

// TestNode_Options 测试非法选项在创建时失败
func TestNode_Options(t *testing.T) {
	_, err := New(WithConfig(nil))
	assert.ErrorIs(t, err, ErrInvalidOption)

	_, err = New(WithConfig(testConfig()), WithSelfID(types.IDFromUint64(1, 4)))
	assert.ErrorIs(t, err, ErrInvalidOption)

	bad := testConfig()
	bad.Routing.Algorithm = "Pastry"
	_, err = New(WithConfig(bad))
	assert.Error(t, err)
}

// TestNode_ConfigFile 测试从配置文件创建节点
func TestNode_ConfigFile(t *testing.T) {
	cfg := testConfig()
	cfg.Routing.Algorithm = config.AlgorithmHammingChord
	path := filepath.Join(t.TempDir(), "simdht.json")
	require.NoError(t, config.Save(cfg, path))

	n, err := New(WithConfigFile(path))
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	assert.Equal(t, config.AlgorithmHammingChord, n.Config().Routing.Algorithm)
	assert.Equal(t, config.AlgorithmHammingChord, n.DHT().RoutingService().Config().Algorithm)
}

// TestNode_Persistent 测试持久化目录在重启后保留数据
func TestNode_Persistent(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.DHT.ReplicationFactor = 1
	cfg.Directory.Type = config.DirectoryPersistent
	cfg.Storage.DataDir = t.TempDir()
	self := types.IDFromUint64(0x1234, 2)
	key := types.IDFromUint64(0x0042, 2)

	n, err := Start(ctx, WithConfig(cfg), WithSelfID(self))
	require.NoError(t, err)
	_, err = n.Put(ctx, key, "durable")
	require.NoError(t, err)
	require.NoError(t, n.Close())

	n, err = Start(ctx, WithConfig(cfg), WithSelfID(self))
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	got, err := n.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []string{"durable"}, got.Values())
	t.Log("✅ 持久化目录重启测试通过")
}

// TestNode_ContentKey 测试内容键长度与路由 ID 一致且可复现
func TestNode_ContentKey(t *testing.T) {
	n, err := New(WithConfig(testConfig()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })

	k1, err := n.ContentKey([]byte("hello world"))
	require.NoError(t, err)
	k2, err := n.ContentKey([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
	assert.Equal(t, 2, k1.Size())

	_, err = n.VectorKey([]float64{1, 2})
	assert.Error(t, err)
}

// TestVersionInfo 测试版本信息
func TestVersionInfo(t *testing.T) {
	assert.Contains(t, VersionInfo(), Version)
}
