package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-simdht/internal/routing/metric"
	"github.com/dep2p/go-simdht/pkg/types"
)

// TestNewAlgorithm 测试算法注册表按名字选择策略和度量
func TestNewAlgorithm(t *testing.T) {
	self := types.IDAddressPair{ID: types.IDFromUint64(1, testIDSize), Address: "mem://self"}
	cases := map[string]string{
		AlgorithmKademlia:        metric.NameXOR,
		AlgorithmHammingKademlia: metric.NameHamming,
		AlgorithmHamming:         metric.NameGray,
		AlgorithmHammingChord:    metric.NameGrayRing,
	}
	for name, metricName := range cases {
		t.Run(name, func(t *testing.T) {
			algo, err := NewAlgorithm(name, self, testConfig(name), nil)
			require.NoError(t, err)
			assert.Equal(t, metricName, algo.Metric().Name())
			assert.Equal(t, self, algo.Self())
			assert.Empty(t, algo.Peers())
		})
	}

	_, err := NewAlgorithm("Pastry", self, nil, nil)
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)

	t.Log("✅ NewAlgorithm 测试通过")
}

// TestNewAlgorithm_SharedGrayConverter 测试多个算法共享注入的 Gray 缓存
func TestNewAlgorithm_SharedGrayConverter(t *testing.T) {
	conv, err := metric.NewGrayConverter(128)
	require.NoError(t, err)

	a, err := NewAlgorithm(AlgorithmHamming, types.IDAddressPair{ID: types.IDFromUint64(1, 2), Address: "a"}, testConfig(AlgorithmHamming), conv)
	require.NoError(t, err)
	b, err := NewAlgorithm(AlgorithmHammingChord, types.IDAddressPair{ID: types.IDFromUint64(2, 2), Address: "b"}, testConfig(AlgorithmHammingChord), conv)
	require.NoError(t, err)

	a.Touch(b.Self())
	b.Touch(a.Self())
	assert.Positive(t, conv.Len())
}

// TestConfig_Validate 测试路由配置校验
func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cases := []ConfigOption{
		WithAlgorithm("Pastry"),
		WithIDBitLength(12),
		WithBucketSize(0),
		WithMaxHops(0),
		WithRequestTimeout(0),
		WithSpareCandidates(-1),
		WithDaemon(DaemonConfig{Enabled: true, Mode: "thread", MinInterval: 1, MaxInterval: 2}),
	}
	for i, opt := range cases {
		cfg := DefaultConfig()
		opt(cfg)
		assert.Error(t, cfg.Validate(), "case %d", i)
	}

	cfg := DefaultConfig()
	WithoutDaemon()(cfg)
	cfg.Daemon.Mode = "ignored"
	assert.NoError(t, cfg.Validate())
}
