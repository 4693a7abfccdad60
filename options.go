package simdht

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/dep2p/go-simdht/config"
	"github.com/dep2p/go-simdht/internal/core/transport/memnet"
	"github.com/dep2p/go-simdht/pkg/types"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	// 统一配置，nil 时使用默认配置
	config     *config.Config
	configFile string

	// 身份与网络
	selfID    types.ID
	network   *memnet.Network
	address   string
	bootstrap string

	// 注入的基础设施
	clock      clock.Clock
	registerer prometheus.Registerer
	fxLogger   *zap.Logger

	// 用户自定义 Fx 选项
	userFxOptions []fx.Option
}

// newOptions 创建默认选项
func newOptions() *options {
	return &options{}
}

// resolveConfig 按 配置文件 → 显式配置 → 默认配置 的顺序确定统一配置
func (o *options) resolveConfig() (*config.Config, error) {
	var cfg *config.Config
	switch {
	case o.configFile != "":
		loaded, err := config.Load(o.configFile)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", o.configFile, err)
		}
		cfg = loaded
	case o.config != nil:
		cfg = config.CloneConfig(o.config)
	default:
		cfg = config.NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// ============================================================================
//                              配置选项
// ============================================================================

// WithConfig 使用给定的统一配置
//
// 配置在创建节点时被复制，之后的修改不影响节点。
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return fmt.Errorf("%w: nil config", ErrInvalidOption)
		}
		o.config = cfg
		return nil
	}
}

// WithConfigFile 从 JSON 文件加载统一配置，优先于 WithConfig
func WithConfigFile(path string) Option {
	return func(o *options) error {
		if path == "" {
			return fmt.Errorf("%w: empty config path", ErrInvalidOption)
		}
		o.configFile = path
		return nil
	}
}

// ============================================================================
//                              身份与网络选项
// ============================================================================

// WithSelfID 指定节点 ID
//
// 不指定时使用监听地址的 SHA-1 派生 ID。ID 长度必须与 routing.id_bit_length 一致。
func WithSelfID(id types.ID) Option {
	return func(o *options) error {
		if id.IsEmpty() {
			return fmt.Errorf("%w: empty self id", ErrInvalidOption)
		}
		o.selfID = id
		return nil
	}
}

// WithNetwork 把节点接入给定的内存网络
//
// 不指定时节点使用独立的内存网络，只能与自己通信。
func WithNetwork(n *memnet.Network) Option {
	return func(o *options) error {
		if n == nil {
			return fmt.Errorf("%w: nil network", ErrInvalidOption)
		}
		o.network = n
		return nil
	}
}

// WithAddress 指定监听地址，为空时由网络分配
func WithAddress(addr string) Option {
	return func(o *options) error {
		o.address = addr
		return nil
	}
}

// WithBootstrap 指定引导节点地址，Start 后通过它加入网络
func WithBootstrap(addr string) Option {
	return func(o *options) error {
		o.bootstrap = addr
		return nil
	}
}

// ============================================================================
//                              基础设施选项
// ============================================================================

// WithClock 注入时钟，测试中用于控制 TTL 和维护任务
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		o.clock = clk
		return nil
	}
}

// WithRegisterer 把 DHT 指标注册到给定的 Prometheus registerer
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) error {
		o.registerer = reg
		return nil
	}
}

// WithFxLogger 使用给定的 zap logger 输出 Fx 事件，默认不输出
func WithFxLogger(l *zap.Logger) Option {
	return func(o *options) error {
		o.fxLogger = l
		return nil
	}
}

// WithFxOption 追加自定义 Fx 选项
func WithFxOption(opts ...fx.Option) Option {
	return func(o *options) error {
		o.userFxOptions = append(o.userFxOptions, opts...)
		return nil
	}
}
