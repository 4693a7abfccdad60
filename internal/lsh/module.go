package lsh

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-simdht/config"
)

// Params LSH 模块依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// Module 返回 LSH Fx 模块
func Module() fx.Option {
	return fx.Module("lsh",
		fx.Provide(func(p Params) (*Generator, error) {
			return New(ConfigFromUnified(p.UnifiedCfg))
		}),
	)
}
