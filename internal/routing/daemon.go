package routing

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-simdht/internal/routing/chord"
	"github.com/dep2p/go-simdht/pkg/types"
)

// routeFunc 维护任务路由到维护目标，返回经过的节点
type routeFunc func(ctx context.Context, target types.ID) ([]types.IDAddressPair, error)

// Daemon 路由表维护任务
//
// 每个周期向算法给出的维护目标路由一次（副本数 1），
// 把路由经过的节点并入路由表。停止和挂起状态在每个周期开始时检查。
//
// 两种调度模式在创建时固定：
//   - goroutine: 初始等待后在独立 goroutine 中循环
//   - timer: 每个周期结束时用 clock.AfterFunc 安排下一个周期
type Daemon struct {
	cfg   DaemonConfig
	bits  int
	algo  Algorithm
	route routeFunc
	clk   clock.Clock

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu        sync.Mutex
	parent    context.Context
	cancel    context.CancelFunc
	timer     *clock.Timer
	running   bool
	stopped   bool
	suspended bool

	wg     sync.WaitGroup
	cycles atomic.Int64
}

// NewDaemon 创建维护任务
func NewDaemon(cfg DaemonConfig, bits int, algo Algorithm, route routeFunc, clk clock.Clock, seed int64) *Daemon {
	if clk == nil {
		clk = clock.New()
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if cfg.Mode == "" {
		cfg.Mode = DaemonGoroutine
	}
	return &Daemon{
		cfg:   cfg,
		bits:  bits,
		algo:  algo,
		route: route,
		clk:   clk,
		rnd:   rand.New(rand.NewSource(seed)),
	}
}

// Start 启动维护任务，未启用时直接返回
func (d *Daemon) Start(ctx context.Context) error {
	if !d.cfg.Enabled {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return ErrStopped
	}
	if d.running {
		return nil
	}
	d.parent = ctx
	if !d.suspended {
		d.launchLocked(d.cfg.InitialInterval)
	}
	return nil
}

// Stop 停止维护任务并等待进行中的周期结束，停止后不可恢复
func (d *Daemon) Stop() error {
	d.halt(func() { d.stopped = true })
	return nil
}

// Suspend 挂起维护任务
func (d *Daemon) Suspend() {
	d.halt(func() { d.suspended = true })
}

// Resume 恢复挂起的维护任务
func (d *Daemon) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return ErrStopped
	}
	if !d.suspended {
		return nil
	}
	d.suspended = false
	if d.cfg.Enabled && d.parent != nil && !d.running {
		d.launchLocked(d.cfg.InitialInterval)
	}
	return nil
}

// Cycles 已完成的维护周期数
func (d *Daemon) Cycles() int64 {
	return d.cycles.Load()
}

// Running 是否正在运行
func (d *Daemon) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *Daemon) halt(mark func()) {
	d.mu.Lock()
	mark()
	cancel, timer := d.cancel, d.timer
	d.cancel, d.timer = nil, nil
	d.running = false
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if timer != nil && timer.Stop() {
		d.wg.Done()
	}
	d.wg.Wait()
}

// launchLocked 调用方持有 d.mu
func (d *Daemon) launchLocked(initial time.Duration) {
	ctx, cancel := context.WithCancel(d.parent)
	d.cancel = cancel
	d.running = true

	switch d.cfg.Mode {
	case DaemonTimer:
		d.scheduleLocked(ctx, initial)
	default:
		d.wg.Add(1)
		go d.loop(ctx, initial)
	}
}

func (d *Daemon) loop(ctx context.Context, wait time.Duration) {
	defer d.wg.Done()
	for {
		t := d.clk.Timer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		if !d.active(ctx) {
			return
		}
		d.cycle(ctx)
		wait = d.interval()
	}
}

// scheduleLocked 调用方持有 d.mu
func (d *Daemon) scheduleLocked(ctx context.Context, wait time.Duration) {
	d.wg.Add(1)
	d.timer = d.clk.AfterFunc(wait, func() {
		defer d.wg.Done()
		if !d.active(ctx) {
			return
		}
		d.cycle(ctx)

		next := d.interval()
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.stopped || d.suspended || ctx.Err() != nil {
			return
		}
		d.scheduleLocked(ctx, next)
	})
}

func (d *Daemon) active(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.stopped && !d.suspended
}

func (d *Daemon) cycle(ctx context.Context) {
	d.rndMu.Lock()
	edge := d.algo.MaintenanceEdge(d.rnd)
	d.rndMu.Unlock()

	hops, err := d.route(ctx, edge)
	if err != nil {
		logger.Debug("维护路由失败", "edge", edge.ShortString(), "error", err)
		return
	}
	if d.algo.Incorporate(hops) {
		logger.Debug("路由表已更新", "edge", edge.ShortString(), "entries", d.algo.NumEntries())
	}
	d.cycles.Add(1)
}

func (d *Daemon) interval() time.Duration {
	d.rndMu.Lock()
	defer d.rndMu.Unlock()
	return chord.SleepInterval(d.cfg.MinInterval, d.cfg.MaxInterval, d.algo.NumEntries(), d.bits, d.cfg.JitterRatio, d.rnd)
}
