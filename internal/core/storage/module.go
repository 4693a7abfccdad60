package storage

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-simdht/config"
	"github.com/dep2p/go-simdht/internal/core/storage/engine"
	"github.com/dep2p/go-simdht/internal/core/storage/engine/badger"
	"github.com/dep2p/go-simdht/internal/core/storage/kv"
	"github.com/dep2p/go-simdht/pkg/lib/log"
)

var logger = log.Logger("core/storage")

// Params Storage 模块依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// Result Storage 模块提供的结果
//
// 未启用持久化时 Engine 为 nil。
type Result struct {
	fx.Out

	Engine engine.InternalEngine
	Config Config
}

// Module 返回 Storage Fx 模块
//
// 提供:
//   - engine.InternalEngine: 存储引擎实例（可能为 nil）
//   - Config: 存储配置
//
// 生命周期:
//   - OnStart: 启动引擎（GC 等后台任务）
//   - OnStop: 关闭引擎
func Module() fx.Option {
	return fx.Module("storage",
		fx.Provide(ProvideStorage),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideStorage 提供存储引擎和配置
func ProvideStorage(p Params) (Result, error) {
	cfg := ConfigFromUnified(p.UnifiedCfg)
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	if !cfg.Enabled {
		return Result{Config: cfg}, nil
	}

	eng, err := NewEngine(cfg)
	if err != nil {
		return Result{}, err
	}
	return Result{Engine: eng, Config: cfg}, nil
}

// registerLifecycle 注册生命周期钩子
func registerLifecycle(lc fx.Lifecycle, eng engine.InternalEngine) {
	if eng == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			logger.Info("正在启动存储引擎")
			if err := eng.Start(); err != nil {
				logger.Error("存储引擎启动失败", "error", err)
				return err
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			logger.Info("正在关闭存储引擎")
			if err := eng.Close(); err != nil {
				logger.Warn("存储引擎关闭失败", "error", err)
				return err
			}
			return nil
		},
	})
}

// NewEngine 根据配置创建存储引擎
func NewEngine(cfg Config) (engine.InternalEngine, error) {
	logger.Debug("创建存储引擎", "path", cfg.Path)
	eng, err := badger.New(cfg.ToEngineConfig())
	if err != nil {
		logger.Error("创建存储引擎失败", "error", err)
		return nil, err
	}
	return eng, nil
}

// NewKVStore 创建带前缀的 KVStore
func NewKVStore(eng engine.InternalEngine, prefix []byte) *kv.Store {
	return kv.New(eng, prefix)
}

// New 在 path 下创建持久化存储引擎
func New(path string) (engine.InternalEngine, error) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Path = path
	return NewEngine(cfg)
}

// InternalEngine 是 engine.InternalEngine 的类型别名
type InternalEngine = engine.InternalEngine

// KVStore 是 kv.Store 的类型别名
type KVStore = kv.Store
