package directory

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-simdht/config"
	"github.com/dep2p/go-simdht/internal/core/storage/engine"
	"github.com/dep2p/go-simdht/internal/core/storage/kv"
	"github.com/dep2p/go-simdht/internal/similarity"
	"github.com/dep2p/go-simdht/pkg/types"
)

// Open 按配置打开目录
//
//	memory     + 多值  -> Memory
//	memory     + 单值  -> SingleValueAdapter(MemorySingle)
//	persistent + 多值  -> Persistent（前缀 d/v/<name>/）
//	persistent + 单值  -> SingleValueAdapter(KVSingle)（前缀 d/s/<name>/）
func Open[V comparable](cfg Config, eng engine.InternalEngine, cmp similarity.Comparator[types.ID], clk clock.Clock) (MultiValue[V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case TypeMemory:
		if cfg.MultipleValuesForKey {
			return NewMemory[V](cfg, cmp, clk), nil
		}
		return NewSingleValueAdapter[V](cfg, NewMemorySingle[V](), cmp, clk), nil
	case TypePersistent:
		if eng == nil {
			return nil, ErrNoEngine
		}
		if cfg.MultipleValuesForKey {
			return NewPersistent[V](cfg, kv.New(eng, []byte("d/v/"+cfg.Name+"/")), cmp, clk)
		}
		single := NewKVSingle[V](kv.New(eng, []byte("d/s/"+cfg.Name+"/")))
		return NewSingleValueAdapter[V](cfg, single, cmp, clk), nil
	}
	return nil, ErrUnsupportedType
}

// ConfigFromUnified 从统一配置创建目录配置
func ConfigFromUnified(cfg *config.Config) Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	c.Type = cfg.Directory.Type
	c.MultipleValuesForKey = cfg.Directory.MultipleValuesForKey
	c.Expiration = cfg.Directory.Expiration
	c.DefaultTTL = cfg.Directory.DefaultTTL.Duration()
	return c
}

// Params 目录模块依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config        `optional:"true"`
	Engine     engine.InternalEngine `optional:"true"`
	Clock      clock.Clock           `optional:"true"`
}

// Module 返回值类型为 V 的目录 Fx 模块
//
// 比较器按 dht.similarity_metric 选择，不支持的度量在启动时失败。
func Module[V comparable]() fx.Option {
	return fx.Module("directory",
		fx.Provide(Provide[V]),
		fx.Invoke(registerLifecycle[V]),
	)
}

// Provide 从 Fx 参数打开目录
func Provide[V comparable](p Params) (MultiValue[V], error) {
	metric := similarity.MetricHamming
	if p.UnifiedCfg != nil {
		metric = p.UnifiedCfg.DHT.SimilarityMetric
	}
	cmp, err := similarity.ForID(metric)
	if err != nil {
		return nil, err
	}
	return Open[V](ConfigFromUnified(p.UnifiedCfg), p.Engine, cmp, p.Clock)
}

func registerLifecycle[V comparable](lc fx.Lifecycle, dir MultiValue[V]) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return dir.Close()
		},
	})
}
