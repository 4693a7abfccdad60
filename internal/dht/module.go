package dht

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-simdht/config"
	"github.com/dep2p/go-simdht/internal/directory"
	"github.com/dep2p/go-simdht/internal/routing"
)

// ConfigFromUnified 从统一配置创建 DHT 配置
func ConfigFromUnified(cfg *config.Config) *Config {
	if cfg == nil {
		return DefaultConfig()
	}
	c := cfg.DHT
	return &Config{
		ReplicationFactor:       c.ReplicationFactor,
		SpareCandidates:         c.SpareCandidates,
		NumTimesGets:            c.NumTimesGets,
		MinReplicaAcks:          c.MinReplicaAcks,
		ExtraHops:               c.ExtraHops,
		DefaultTTL:              c.DefaultTTL.Duration(),
		MaxTTL:                  c.MaxTTL.Duration(),
		SimilaritySearch:        c.SimilaritySearch,
		NumNodesAskedToTransfer: c.NumNodesAskedToTransfer,
		RequestTimeout:          c.RequestTimeout.Duration(),
		SweepInterval:           c.SweepInterval.Duration(),
	}
}

// Params DHT 模块依赖参数
type Params[V comparable] struct {
	fx.In

	Routing    *routing.Service
	Directory  directory.MultiValue[V]
	UnifiedCfg *config.Config        `optional:"true"`
	Metrics    *Metrics              `optional:"true"`
	Registerer prometheus.Registerer `optional:"true"`
}

// Module 返回值类型为 V 的 DHT Fx 模块
//
// 生命周期:
//   - OnStart: 启动路由维护和过期值清理
//   - OnStop: 停止清理任务和路由服务
func Module[V comparable]() fx.Option {
	return fx.Module("dht",
		fx.Provide(Provide[V]),
		fx.Invoke(registerLifecycle[V]),
	)
}

// Provide 从 Fx 参数创建 DHT 服务
//
// 没有注入 Metrics 时按 Registerer 新建，两者都没有时指标不注册。
func Provide[V comparable](p Params[V]) (*DHT[V], error) {
	m := p.Metrics
	if m == nil {
		m = NewMetrics(p.Registerer)
	}
	return New[V](p.Routing, p.Directory, ConfigFromUnified(p.UnifiedCfg), WithMetrics(m))
}

func registerLifecycle[V comparable](lc fx.Lifecycle, d *DHT[V]) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// 启动超时 context 结束后后台任务仍需运行
			return d.Start(context.Background())
		},
		OnStop: func(_ context.Context) error {
			return d.Stop()
		},
	})
}
