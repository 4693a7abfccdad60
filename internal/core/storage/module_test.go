package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-simdht/config"
	"github.com/dep2p/go-simdht/internal/core/storage/engine"
)

// TestModule_Persistent 测试持久化目录时模块打开并关闭引擎
func TestModule_Persistent(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Directory.Type = config.DirectoryPersistent
	cfg.Storage.DataDir = t.TempDir()

	var eng engine.InternalEngine
	app := fxtest.New(t,
		fx.Supply(cfg),
		Module(),
		fx.Populate(&eng),
	)
	app.RequireStart()
	require.NotNil(t, eng)
	require.NoError(t, eng.Put([]byte("k"), []byte("v")))
	app.RequireStop()

	_, err := eng.Get([]byte("k"))
	assert.True(t, engine.IsClosed(err))
	t.Log("✅ 存储模块生命周期正常")
}

// TestModule_Memory 测试内存目录时不打开引擎
func TestModule_Memory(t *testing.T) {
	var eng engine.InternalEngine
	app := fxtest.New(t,
		fx.Supply(config.NewConfig()),
		Module(),
		fx.Populate(&eng),
	)
	app.RequireStart()
	assert.Nil(t, eng)
	app.RequireStop()
}

// TestConfigFromUnified 测试统一配置转换
func TestConfigFromUnified(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Directory.Type = config.DirectoryPersistent
	cfg.Storage.DataDir = "/tmp/x"
	cfg.Storage.SyncWrites = true

	sc := ConfigFromUnified(cfg)
	assert.True(t, sc.Enabled)
	assert.Equal(t, "/tmp/x/simdht.db", sc.Path)
	assert.True(t, sc.ToEngineConfig().SyncWrites)

	sc.GCInterval = 0
	require.NoError(t, sc.Validate())
	assert.Equal(t, DefaultConfig().GCInterval/10, sc.GCInterval)

	assert.False(t, ConfigFromUnified(nil).Enabled)
}
