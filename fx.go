package simdht

import (
	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-simdht/config"
	"github.com/dep2p/go-simdht/internal/core/storage"
	"github.com/dep2p/go-simdht/internal/core/transport"
	"github.com/dep2p/go-simdht/internal/dht"
	"github.com/dep2p/go-simdht/internal/directory"
	"github.com/dep2p/go-simdht/internal/lsh"
	"github.com/dep2p/go-simdht/internal/routing"
	"github.com/dep2p/go-simdht/pkg/lib/log"
	"github.com/dep2p/go-simdht/pkg/types"
)

var fxLogger = log.Logger("simdht/fx")

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. 配置、身份、传输、可选的时钟和指标注册器
//  2. Storage: 持久化目录时打开 BadgerDB
//  3. Directory: 本地目录
//  4. Routing: 路由算法与路由服务
//  5. DHT: 值服务，值类型为 string
//  6. LSH: 内容 ID 生成器
func buildFxApp(cfg *config.Config, o *options, self types.ID, tr transport.Transport, node *Node) *fx.App {
	modules := []fx.Option{
		// 配置注入
		fx.Supply(cfg),
		fx.Provide(
			fx.Annotate(func() types.ID { return self }, fx.ResultTags(`name:"self_id"`)),
			func() transport.Transport { return tr },
		),
	}

	if o.clock != nil {
		clk := o.clock
		modules = append(modules, fx.Provide(func() clock.Clock { return clk }))
	}
	if o.registerer != nil {
		reg := o.registerer
		modules = append(modules, fx.Provide(func() prometheus.Registerer { return reg }))
	}

	modules = append(modules,
		storage.Module(),
		directory.Module[string](),
		routing.Module(),
		dht.Module[string](),
		lsh.Module(),
	)

	// 用户扩展
	modules = append(modules, o.userFxOptions...)

	modules = append(modules,
		fx.Populate(&node.dht, &node.gen, &node.engine),
		fx.WithLogger(func() fxevent.Logger {
			if o.fxLogger != nil {
				return &fxevent.ZapLogger{Logger: o.fxLogger}
			}
			// 禁用 Fx 日志输出（避免干扰用户日志）
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)

	fxLogger.Debug("组装 Fx 应用", "self", self.ShortString(), "algorithm", cfg.Routing.Algorithm, "directory", cfg.Directory.Type)
	return fx.New(modules...)
}
