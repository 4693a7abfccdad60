package routing

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-simdht/config"
	"github.com/dep2p/go-simdht/internal/core/transport"
	"github.com/dep2p/go-simdht/internal/routing/metric"
	"github.com/dep2p/go-simdht/pkg/types"
)

// Params 路由模块依赖参数
type Params struct {
	fx.In

	SelfID     types.ID `name:"self_id"`
	Transport  transport.Transport
	UnifiedCfg *config.Config        `optional:"true"`
	Clock      clock.Clock           `optional:"true"`
	Gray       *metric.GrayConverter `optional:"true"`
}

// Module 返回路由 Fx 模块
//
// 生命周期:
//   - OnStart: 启动维护任务
//   - OnStop: 停止维护任务并关闭传输
func Module() fx.Option {
	return fx.Module("routing",
		fx.Provide(ProvideService),
		fx.Invoke(registerLifecycle),
	)
}

// ConfigFromUnified 从统一配置创建路由配置
func ConfigFromUnified(cfg *config.Config) *Config {
	if cfg == nil {
		return DefaultConfig()
	}
	r := cfg.Routing
	return &Config{
		Algorithm:         r.Algorithm,
		IDBitLength:       r.IDBitLength,
		BucketSize:        r.BucketSize,
		SuccessorListSize: r.SuccessorListSize,
		MaxHops:           r.MaxHops,
		RequestTimeout:    r.RequestTimeout.Duration(),
		GrayCacheSize:     r.GrayCacheSize,
		JoinMaxElapsed:    r.JoinMaxElapsed.Duration(),
		SpareCandidates:   cfg.DHT.SpareCandidates,
		Daemon: DaemonConfig{
			Enabled:          r.Daemon.Enabled,
			Mode:             DaemonMode(r.Daemon.Mode),
			InitialInterval:  r.Daemon.InitialInterval.Duration(),
			MinInterval:      r.Daemon.MinInterval.Duration(),
			MaxInterval:      r.Daemon.MaxInterval.Duration(),
			JitterRatio:      r.Daemon.JitterRatio,
			ProbProportional: r.Daemon.ProbProportional,
		},
	}
}

// ProvideService 从 Fx 参数创建路由服务
func ProvideService(p Params) (*Service, error) {
	cfg := ConfigFromUnified(p.UnifiedCfg)
	var opts []Option
	if p.Clock != nil {
		opts = append(opts, WithClock(p.Clock))
	}
	if p.Gray != nil {
		opts = append(opts, WithGrayConverter(p.Gray))
	}
	return NewService(p.SelfID, p.Transport, cfg, opts...)
}

func registerLifecycle(lc fx.Lifecycle, s *Service) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// 启动超时 context 结束后维护任务仍需运行
			return s.Start(context.Background())
		},
		OnStop: func(_ context.Context) error {
			return s.Stop()
		},
	})
}
