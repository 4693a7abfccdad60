package dht

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-simdht/config"
	"github.com/dep2p/go-simdht/internal/core/transport"
	"github.com/dep2p/go-simdht/internal/core/transport/memnet"
	"github.com/dep2p/go-simdht/internal/directory"
	"github.com/dep2p/go-simdht/internal/routing"
	"github.com/dep2p/go-simdht/pkg/types"
)

// TestModule 测试 Fx 装配的单节点可以写入和读取
func TestModule(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Routing.IDBitLength = testIDSize * 8
	cfg.Routing.Daemon.Enabled = false
	cfg.DHT.ReplicationFactor = 1
	cfg.DHT.SweepInterval = 0

	network := memnet.NewNetwork()
	var d *DHT[string]
	app := fxtest.New(t,
		fx.Supply(cfg),
		fx.Provide(
			fx.Annotate(func() types.ID { return id(0x0abc) }, fx.ResultTags(`name:"self_id"`)),
			func() (transport.Transport, error) { return network.Listen("") },
		),
		directory.Module[string](),
		routing.Module(),
		Module[string](),
		fx.Populate(&d),
	)
	app.RequireStart()
	require.NotNil(t, d)
	assert.Equal(t, 1, d.Config().ReplicationFactor)

	ctx := context.Background()
	_, err := d.Put(ctx, id(0x0001), "v")
	require.NoError(t, err)
	got, err := d.Get(ctx, id(0x0001))
	require.NoError(t, err)
	assert.Equal(t, []string{"v"}, got.Values())

	app.RequireStop()
	_, err = d.Get(ctx, id(0x0001))
	assert.ErrorIs(t, err, routing.ErrRoutingFailed)
	t.Log("✅ DHT 模块生命周期正常")
}

// TestConfigFromUnified 测试统一配置转换
func TestConfigFromUnified(t *testing.T) {
	assert.Equal(t, DefaultConfig(), ConfigFromUnified(nil))

	cfg := config.NewConfig()
	cfg.DHT.ReplicationFactor = 5
	cfg.DHT.MaxTTL = config.Duration(time.Hour)
	cfg.DHT.SimilaritySearch = false

	c := ConfigFromUnified(cfg)
	assert.Equal(t, 5, c.ReplicationFactor)
	assert.Equal(t, time.Hour, c.MaxTTL)
	assert.False(t, c.SimilaritySearch)
	assert.Equal(t, 3*time.Hour, c.DefaultTTL)
	require.NoError(t, c.Validate())
}
