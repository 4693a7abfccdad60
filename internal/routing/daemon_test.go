package routing

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-simdht/pkg/types"
)

var daemonModes = []DaemonMode{DaemonGoroutine, DaemonTimer}

func daemonConfig(mode DaemonMode) DaemonConfig {
	return DaemonConfig{
		Enabled:          true,
		Mode:             mode,
		InitialInterval:  time.Second,
		MinInterval:      time.Second,
		MaxInterval:      time.Second,
		JitterRatio:      0,
		ProbProportional: 0.5,
	}
}

// fakeRoute 每次维护路由返回一个新节点
type fakeRoute struct {
	self  types.IDAddressPair
	calls atomic.Int64
}

func (f *fakeRoute) route(_ context.Context, _ types.ID) ([]types.IDAddressPair, error) {
	n := f.calls.Add(1)
	peer := types.IDAddressPair{ID: types.IDFromUint64(uint64(0x1000+n), testIDSize), Address: "mem://peer"}
	return []types.IDAddressPair{f.self, peer}, nil
}

func newTestDaemon(t *testing.T, algo string, mode DaemonMode, route routeFunc) (*Daemon, Algorithm, *clock.Mock) {
	t.Helper()
	cfg := testConfig(algo)
	self := types.IDAddressPair{ID: types.IDFromUint64(0x0001, testIDSize), Address: "mem://self"}
	a, err := NewAlgorithm(algo, self, cfg, nil)
	require.NoError(t, err)

	mock := clock.NewMock()
	if route == nil {
		route = (&fakeRoute{self: self}).route
	}
	d := NewDaemon(daemonConfig(mode), cfg.IDBitLength, a, route, mock, 1)
	t.Cleanup(func() { _ = d.Stop() })
	return d, a, mock
}

// advanceUntil 推进 mock 时钟直到维护周期数达到 n
func advanceUntil(t *testing.T, d *Daemon, mock *clock.Mock, n int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		mock.Add(time.Second)
		return d.Cycles() >= n
	}, 5*time.Second, 5*time.Millisecond, "cycles=%d, want %d", d.Cycles(), n)
}

// TestDaemon_Cycles 测试两种调度模式下周期推进并把路由节点并入路由表
func TestDaemon_Cycles(t *testing.T) {
	for _, algo := range allAlgorithms {
		for _, mode := range daemonModes {
			t.Run(algo+"/"+string(mode), func(t *testing.T) {
				d, a, mock := newTestDaemon(t, algo, mode, nil)
				require.NoError(t, d.Start(context.Background()))
				assert.True(t, d.Running())

				advanceUntil(t, d, mock, 5)
				assert.NotEmpty(t, a.Peers())
				assert.False(t, types.ContainsPair(a.Peers(), a.Self()))
			})
		}
	}

	t.Log("✅ 维护周期测试通过")
}

// TestDaemon_SuspendResumeStop 测试挂起后不再运行周期，恢复后继续，停止后不可恢复
func TestDaemon_SuspendResumeStop(t *testing.T) {
	for _, mode := range daemonModes {
		t.Run(string(mode), func(t *testing.T) {
			d, _, mock := newTestDaemon(t, AlgorithmHammingKademlia, mode, nil)
			require.NoError(t, d.Start(context.Background()))
			advanceUntil(t, d, mock, 2)

			d.Suspend()
			assert.False(t, d.Running())
			suspended := d.Cycles()
			for i := 0; i < 10; i++ {
				mock.Add(time.Second)
			}
			assert.Equal(t, suspended, d.Cycles())

			require.NoError(t, d.Resume())
			assert.True(t, d.Running())
			advanceUntil(t, d, mock, suspended+2)

			done := make(chan struct{})
			go func() {
				_ = d.Stop()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("Stop 没有及时返回")
			}
			assert.False(t, d.Running())

			stopped := d.Cycles()
			for i := 0; i < 10; i++ {
				mock.Add(time.Second)
			}
			assert.Equal(t, stopped, d.Cycles())
			assert.ErrorIs(t, d.Resume(), ErrStopped)
			assert.ErrorIs(t, d.Start(context.Background()), ErrStopped)
			require.NoError(t, d.Stop())
		})
	}

	t.Log("✅ 挂起/恢复/停止测试通过")
}

// TestDaemon_StopWaitsForCycle 测试停止会取消并等待进行中的周期
func TestDaemon_StopWaitsForCycle(t *testing.T) {
	for _, mode := range daemonModes {
		t.Run(string(mode), func(t *testing.T) {
			entered := make(chan struct{})
			var finished atomic.Bool
			route := func(ctx context.Context, _ types.ID) ([]types.IDAddressPair, error) {
				select {
				case entered <- struct{}{}:
				default:
				}
				<-ctx.Done()
				finished.Store(true)
				return nil, ctx.Err()
			}
			d, _, mock := newTestDaemon(t, AlgorithmKademlia, mode, route)
			require.NoError(t, d.Start(context.Background()))

			require.Eventually(t, func() bool {
				mock.Add(time.Second)
				select {
				case <-entered:
					return true
				default:
					return false
				}
			}, 5*time.Second, 5*time.Millisecond)

			require.NoError(t, d.Stop())
			assert.True(t, finished.Load())
			assert.Zero(t, d.Cycles())
		})
	}
}

// TestDaemon_Disabled 测试未启用时 Start 不启动任何周期
func TestDaemon_Disabled(t *testing.T) {
	d, _, mock := newTestDaemon(t, AlgorithmKademlia, DaemonGoroutine, nil)
	d.cfg.Enabled = false

	require.NoError(t, d.Start(context.Background()))
	assert.False(t, d.Running())
	mock.Add(5 * time.Second)
	assert.Zero(t, d.Cycles())
}

// TestDaemon_SuspendBeforeStart 测试启动前挂起时直到 Resume 才开始
func TestDaemon_SuspendBeforeStart(t *testing.T) {
	d, _, mock := newTestDaemon(t, AlgorithmHammingChord, DaemonTimer, nil)
	d.Suspend()
	require.NoError(t, d.Start(context.Background()))
	assert.False(t, d.Running())

	require.NoError(t, d.Resume())
	advanceUntil(t, d, mock, 1)
}
