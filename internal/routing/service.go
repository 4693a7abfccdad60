// Package routing 实现结构化覆盖网络的路由服务
//
// Service 把一个路由算法（路由表策略 + 距离度量）和一个传输绑定在一起：
//   - Route: 迭代查找，返回路由经过的节点和责任候选
//   - InvokeCallbacksOnRoute: 路由后在责任节点上批量执行回调
//   - Join / Leave: 加入和离开覆盖网络
//   - Handle: 注册消息处理器，收到的每条消息都会刷新发送者
//
// 路由表维护由 Daemon 在后台完成。
package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-simdht/internal/core/transport"
	"github.com/dep2p/go-simdht/internal/routing/metric"
	"github.com/dep2p/go-simdht/pkg/lib/log"
	"github.com/dep2p/go-simdht/pkg/types"
)

var logger = log.Logger("routing/service")

// maxParallelRoutes 批量路由的并发上限
const maxParallelRoutes = 16

// Option 服务选项
type Option func(*Service)

// WithClock 注入时钟，测试中使用 clock.NewMock()
func WithClock(clk clock.Clock) Option {
	return func(s *Service) {
		s.clk = clk
	}
}

// WithGrayConverter 注入 Gray 码转换器，多个节点可以共享一个缓存
func WithGrayConverter(conv *metric.GrayConverter) Option {
	return func(s *Service) {
		s.conv = conv
	}
}

// Service 路由服务
type Service struct {
	cfg       *Config
	algo      Algorithm
	tr        transport.Transport
	clk       clock.Clock
	conv      *metric.GrayConverter
	daemon    *Daemon
	callbacks *callbackTable

	stopped atomic.Bool
}

// NewService 创建路由服务
//
// 服务接管 tr 的生命周期，Stop 时关闭传输。
func NewService(selfID types.ID, tr transport.Transport, cfg *Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if selfID.Size() != cfg.IDSize() {
		return nil, fmt.Errorf("%w: self id has %d bytes, want %d", ErrInvalidConfig, selfID.Size(), cfg.IDSize())
	}
	if tr == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidConfig)
	}

	s := &Service{
		cfg:       cfg,
		tr:        tr,
		callbacks: newCallbackTable(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clk == nil {
		s.clk = clock.New()
	}

	self := types.IDAddressPair{ID: selfID, Address: tr.Address()}
	algo, err := NewAlgorithm(cfg.Algorithm, self, cfg, s.conv)
	if err != nil {
		return nil, err
	}
	s.algo = algo
	s.daemon = NewDaemon(cfg.Daemon, cfg.IDBitLength, algo, s.maintenanceRoute, s.clk, cfg.Seed)

	s.Handle(transport.MessageTypeFindNode, s.handleFindNode)
	s.Handle(transport.MessageTypePing, s.handlePing)
	s.Handle(transport.MessageTypeInvoke, s.handleInvoke)

	logger.Debug("路由服务已创建", "self", selfID.ShortString(), "addr", self.Address, "algorithm", cfg.Algorithm)
	return s, nil
}

// Self 本节点
func (s *Service) Self() types.IDAddressPair { return s.algo.Self() }

// Algorithm 路由算法
func (s *Service) Algorithm() Algorithm { return s.algo }

// Config 服务配置
func (s *Service) Config() *Config { return s.cfg }

// Clock 服务时钟
func (s *Service) Clock() clock.Clock { return s.clk }

// Daemon 维护任务
func (s *Service) Daemon() *Daemon { return s.daemon }

// Transport 底层传输
func (s *Service) Transport() transport.Transport { return s.tr }

// TableString 路由表文本
func (s *Service) TableString() string { return s.algo.String() }

// ============================================================================
//                              生命周期
// ============================================================================

// Start 启动维护任务
func (s *Service) Start(ctx context.Context) error {
	if s.stopped.Load() {
		return ErrStopped
	}
	return s.daemon.Start(ctx)
}

// Stop 停止维护任务并关闭传输
func (s *Service) Stop() error {
	if s.stopped.Swap(true) {
		return nil
	}
	return multierr.Combine(s.daemon.Stop(), s.tr.Close())
}

// Stopped 是否已停止
func (s *Service) Stopped() bool { return s.stopped.Load() }

// Suspend 挂起维护任务
func (s *Service) Suspend() { s.daemon.Suspend() }

// Resume 恢复维护任务
func (s *Service) Resume() error { return s.daemon.Resume() }

// ============================================================================
//                              路由
// ============================================================================

// Route 并行路由到每个目标
//
// 每个目标独立报告结果，失败的目标携带 ErrRoutingFailed。
func (s *Service) Route(ctx context.Context, targets []types.ID, replicaCount int) []types.Result[RoutingResult] {
	results := make([]types.Result[RoutingResult], len(targets))
	var g errgroup.Group
	g.SetLimit(maxParallelRoutes)
	for i, target := range targets {
		g.Go(func() error {
			r, err := s.lookup(ctx, target, replicaCount, false)
			if err != nil {
				results[i] = types.Fail[RoutingResult](err)
			} else {
				results[i] = types.Ok(r)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// RouteOne 路由到单个目标
func (s *Service) RouteOne(ctx context.Context, target types.ID, replicaCount int) (RoutingResult, error) {
	return s.lookup(ctx, target, replicaCount, false)
}

// lookup 迭代查找
//
// 每一步从候选中选出尚未尝试、且严格比当前节点更接近目标的最佳节点，
// 向它请求候选并移动过去；没有更近的候选时结束。
// joining 时本节点不参与比较，第一步总会选中最佳候选。
func (s *Service) lookup(ctx context.Context, target types.ID, replicaCount int, joining bool) (RoutingResult, error) {
	self := s.algo.Self()
	m := s.algo.Metric()
	if replicaCount <= 0 {
		replicaCount = 1
	}
	// 每跳至少请求一个桶的候选，Responsible 构造时才截断到 replicaCount
	ask := max(replicaCount+s.cfg.SpareCandidates, s.cfg.BucketSize)

	route := []RoutingHop{{Pair: self, Time: s.clk.Now()}}
	candidates := s.algo.NextHopCandidates(target, types.EmptyID, joining, ask)
	tried := map[types.ID]struct{}{self.ID: {}}
	dead := make(map[types.ID]struct{})
	cmp := metric.TowardTarget(m, target)

	var current types.IDAddressPair
	if !joining {
		current = self
	}

	for hops := 0; ; {
		if s.stopped.Load() {
			return RoutingResult{}, failed("route", target, ErrStopped)
		}
		if err := ctx.Err(); err != nil {
			return RoutingResult{}, failed("route", target, err)
		}

		slices.SortFunc(candidates, cmp)
		next, ok := s.pickNext(candidates, tried, current, target)
		if !ok {
			break
		}
		if hops >= s.cfg.MaxHops {
			return RoutingResult{}, failed("route", target, ErrMaxHops)
		}
		tried[next.ID] = struct{}{}

		found, err := s.findNode(ctx, next, target, ask, joining)
		if err != nil {
			if ctx.Err() != nil {
				return RoutingResult{}, failed("route", target, ctx.Err())
			}
			logger.Debug("下一跳无响应", "peer", next.ID.ShortString(), "target", target.ShortString(), "error", err)
			s.algo.Forget(next)
			dead[next.ID] = struct{}{}
			candidates = removePair(candidates, next)
			continue
		}

		hops++
		s.algo.Touch(next)
		current = next
		route = append(route, RoutingHop{Pair: next, Time: s.clk.Now()})
		for _, c := range found {
			if _, gone := dead[c.ID]; gone || c.IsEmpty() || c.ID.Size() != self.ID.Size() {
				continue
			}
			if joining && c.ID == self.ID {
				continue
			}
			if !types.ContainsPair(candidates, c) {
				candidates = append(candidates, c)
			}
			if joining {
				s.algo.Touch(c)
			}
		}
	}

	pool := candidates
	if !current.IsEmpty() && !types.ContainsPair(pool, current) {
		pool = append(pool, current)
	}
	pool = slices.DeleteFunc(slices.Clone(pool), func(p types.IDAddressPair) bool {
		return joining && p.ID == self.ID
	})
	slices.SortFunc(pool, cmp)
	if len(pool) > replicaCount {
		pool = pool[:replicaCount]
	}
	if len(pool) == 0 && !joining {
		pool = []types.IDAddressPair{self}
	}

	return RoutingResult{Target: target, Route: route, Responsible: pool}, nil
}

func (s *Service) pickNext(sorted []types.IDAddressPair, tried map[types.ID]struct{}, current types.IDAddressPair, target types.ID) (types.IDAddressPair, bool) {
	m := s.algo.Metric()
	for _, c := range sorted {
		if _, ok := tried[c.ID]; ok {
			continue
		}
		// 候选已排序，第一个未尝试的候选不够近则后面都不够近
		if !current.IsEmpty() && !metric.Closer(m, target, c.ID, current.ID) {
			return types.IDAddressPair{}, false
		}
		return c, true
	}
	return types.IDAddressPair{}, false
}

func (s *Service) findNode(ctx context.Context, peer types.IDAddressPair, target types.ID, maxCount int, joining bool) ([]types.IDAddressPair, error) {
	var resp FindNodeResponse
	req := FindNodeRequest{Target: target, MaxCount: maxCount, Joining: joining}
	if err := s.Request(ctx, peer.Address, transport.MessageTypeFindNode, req, &resp); err != nil {
		return nil, err
	}
	return resp.Candidates, nil
}

func (s *Service) maintenanceRoute(ctx context.Context, target types.ID) ([]types.IDAddressPair, error) {
	r, err := s.lookup(ctx, target, 1, false)
	if err != nil {
		return nil, err
	}
	return r.Pairs(), nil
}

// ============================================================================
//                              请求
// ============================================================================

// Request 向 addr 发送请求并解码响应到 resp，resp 为 nil 时忽略响应负载
//
// 每次请求受 RequestTimeout 约束。
func (s *Service) Request(ctx context.Context, addr string, t transport.MessageType, req, resp interface{}) error {
	reply, err := s.exchange(ctx, addr, t, req)
	if err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	if reply == nil {
		return fmt.Errorf("routing: empty %s reply from %s", t, addr)
	}
	return reply.DecodePayload(resp)
}

func (s *Service) exchange(ctx context.Context, addr string, t transport.MessageType, req interface{}) (*transport.Message, error) {
	if s.stopped.Load() {
		return nil, ErrStopped
	}
	msg, err := transport.NewMessage(t, s.algo.Self(), req)
	if err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	return s.tr.SendAndReceive(cctx, addr, msg)
}

// Ping 探测节点是否在线，成功时刷新路由表
func (s *Service) Ping(ctx context.Context, peer types.IDAddressPair) error {
	if err := s.Request(ctx, peer.Address, transport.MessageTypePing, nil, nil); err != nil {
		s.algo.Forget(peer)
		return err
	}
	s.algo.Touch(peer)
	return nil
}

// ============================================================================
//                              回调
// ============================================================================

// RegisterCallback 注册回调，未知类型在注册时失败
func (s *Service) RegisterCallback(kind CallbackKind, cb Callback) error {
	return s.callbacks.register(kind, cb)
}

// pendingInvocation 一个键的回调状态
type pendingInvocation struct {
	idx      int
	call     Invocation
	routing  RoutingResult
	queue    []types.IDAddressPair
	attempts int
}

// InvokeCallbacksOnRoute 路由到每个目标，在责任节点上执行回调
//
// 每一轮把各键的队首候选按地址分组，每个地址发送一条合并的 INVOKE；
// 失败的候选被遗忘并出队，下一轮使用下一个候选，每个键最多尝试 maxHops 次，
// maxHops < 0 时使用配置的跳数预算。实际应答的节点成为路由的最后一跳。
func (s *Service) InvokeCallbacksOnRoute(ctx context.Context, calls []Invocation, replicaCount, maxHops int) []types.Result[CallbackResult] {
	results := make([]types.Result[CallbackResult], len(calls))
	budget := maxHops
	if budget < 0 {
		budget = s.cfg.MaxHops
	}
	if budget < 1 {
		budget = 1
	}

	targets := make([]types.ID, len(calls))
	for i, c := range calls {
		targets[i] = c.Target
	}
	routed := s.Route(ctx, targets, replicaCount)

	active := make([]*pendingInvocation, 0, len(calls))
	for i, r := range routed {
		if !r.OK() {
			results[i] = types.Fail[CallbackResult](r.Err)
			continue
		}
		active = append(active, &pendingInvocation{
			idx:     i,
			call:    calls[i],
			routing: r.Value,
			queue:   slices.Clone(r.Value.Responsible),
		})
	}

	for len(active) > 0 {
		if err := ctx.Err(); err != nil {
			for _, p := range active {
				results[p.idx] = types.Fail[CallbackResult](failed("invoke", p.call.Target, err))
			}
			return results
		}

		addrs, groups := groupByHead(active)
		outcomes := make([]invokeOutcome, len(addrs))
		var g errgroup.Group
		for ai, addr := range addrs {
			g.Go(func() error {
				outcomes[ai] = s.invokeAt(ctx, groups[addr])
				return nil
			})
		}
		_ = g.Wait()

		var next []*pendingInvocation
		now := s.clk.Now()
		for ai, addr := range addrs {
			group := groups[addr]
			head := group[0].queue[0]
			out := outcomes[ai]
			if out.err == nil {
				for j, p := range group {
					results[p.idx] = types.Ok(CallbackResult{
						Routing: p.routing.withLastHop(head, now),
						Value:   out.values[j],
					})
				}
				continue
			}

			logger.Debug("责任节点调用失败", "peer", head.ID.ShortString(), "keys", len(group), "error", out.err)
			if head.ID != s.Self().ID {
				s.algo.Forget(head)
			}
			for _, p := range group {
				p.queue = p.queue[1:]
				p.attempts++
				if len(p.queue) == 0 || p.attempts >= budget {
					results[p.idx] = types.Fail[CallbackResult](failed("invoke", p.call.Target,
						fmt.Errorf("%w: %w", ErrNoResponsibleNode, out.err)))
					continue
				}
				next = append(next, p)
			}
		}
		active = next
	}
	return results
}

type invokeOutcome struct {
	values []json.RawMessage
	err    error
}

// groupByHead 按队首候选地址分组，地址按首次出现的顺序返回
func groupByHead(active []*pendingInvocation) ([]string, map[string][]*pendingInvocation) {
	var addrs []string
	groups := make(map[string][]*pendingInvocation)
	for _, p := range active {
		addr := p.queue[0].Address
		if _, ok := groups[addr]; !ok {
			addrs = append(addrs, addr)
		}
		groups[addr] = append(groups[addr], p)
	}
	return addrs, groups
}

func (s *Service) invokeAt(ctx context.Context, group []*pendingInvocation) invokeOutcome {
	head := group[0].queue[0]

	if head.ID == s.Self().ID {
		values := make([]json.RawMessage, len(group))
		for i, p := range group {
			values[i] = s.callbacks.invoke(ctx, p.call.Kind, p.call.Target, p.call.Args)
		}
		return invokeOutcome{values: values}
	}

	req := InvokeRequest{Entries: make([]InvokeEntry, len(group))}
	for i, p := range group {
		req.Entries[i] = InvokeEntry{Target: p.call.Target, Kind: p.call.Kind, Args: p.call.Args}
	}
	var resp InvokeResponse
	if err := s.Request(ctx, head.Address, transport.MessageTypeInvoke, req, &resp); err != nil {
		return invokeOutcome{err: err}
	}
	if len(resp.Results) != len(group) {
		return invokeOutcome{err: fmt.Errorf("routing: invoke reply has %d results for %d entries", len(resp.Results), len(group))}
	}
	s.algo.Touch(head)
	return invokeOutcome{values: resp.Results}
}

// ============================================================================
//                              加入与离开
// ============================================================================

// Join 通过引导节点加入覆盖网络
//
// 先向引导节点发送 joining 模式的 FIND_NODE（指数退避重试），
// 再以 joining 模式查找自身 ID，沿途发现的节点全部加入路由表。
// 返回的 Responsible 是离本节点最近的其他节点。
func (s *Service) Join(ctx context.Context, bootstrap string) (RoutingResult, error) {
	self := s.Self()
	if bootstrap == "" || bootstrap == self.Address {
		return RoutingResult{Target: self.ID, Route: []RoutingHop{{Pair: self, Time: s.clk.Now()}}}, nil
	}

	var (
		boot  types.IDAddressPair
		found []types.IDAddressPair
	)
	op := func() error {
		req := FindNodeRequest{Target: self.ID, MaxCount: s.cfg.BucketSize, Joining: true}
		reply, err := s.exchange(ctx, bootstrap, transport.MessageTypeFindNode, req)
		if err != nil {
			if errors.Is(err, ErrStopped) {
				return backoff.Permanent(err)
			}
			return err
		}
		if reply == nil {
			return fmt.Errorf("routing: empty join reply from %s", bootstrap)
		}
		var resp FindNodeResponse
		if err := reply.DecodePayload(&resp); err != nil {
			return backoff.Permanent(err)
		}
		boot, found = reply.Sender, resp.Candidates
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = s.cfg.JoinMaxElapsed
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return RoutingResult{}, NewRoutingError("join", self.ID, err)
	}

	s.touchSender(boot)
	for _, p := range found {
		if p.ID != self.ID {
			s.algo.Touch(p)
		}
	}

	r, err := s.lookup(ctx, self.ID, s.cfg.BucketSize, true)
	if err != nil {
		return RoutingResult{}, err
	}
	logger.Info("已加入网络", "self", self.ID.ShortString(), "bootstrap", bootstrap, "peers", len(s.algo.Peers()))
	return r, nil
}

// Leave 离开网络，清空路由表
func (s *Service) Leave() {
	s.algo.Clear()
}

// ============================================================================
//                              消息处理
// ============================================================================

// Handle 注册消息处理器，处理前先用发送者刷新路由表
func (s *Service) Handle(t transport.MessageType, h transport.Handler) {
	s.tr.Handle(t, func(ctx context.Context, msg *transport.Message) (*transport.Message, error) {
		if s.stopped.Load() {
			return nil, ErrStopped
		}
		s.touchSender(msg.Sender)
		return h(ctx, msg)
	})
}

func (s *Service) touchSender(p types.IDAddressPair) {
	if p.IsEmpty() || p.Address == "" || p.ID.Size() != s.cfg.IDSize() || p.ID == s.Self().ID {
		return
	}
	s.algo.Touch(p)
}

func (s *Service) handleFindNode(_ context.Context, msg *transport.Message) (*transport.Message, error) {
	var req FindNodeRequest
	if err := msg.DecodePayload(&req); err != nil {
		return nil, err
	}
	maxCount := req.MaxCount
	if maxCount <= 0 {
		maxCount = s.cfg.BucketSize
	}
	candidates := s.algo.NextHopCandidates(req.Target, msg.Sender.ID, req.Joining, maxCount)
	return transport.NewReply(msg, s.Self(), FindNodeResponse{Candidates: candidates})
}

func (s *Service) handlePing(_ context.Context, msg *transport.Message) (*transport.Message, error) {
	return transport.NewReply(msg, s.Self(), nil)
}

func (s *Service) handleInvoke(ctx context.Context, msg *transport.Message) (*transport.Message, error) {
	var req InvokeRequest
	if err := msg.DecodePayload(&req); err != nil {
		return nil, err
	}
	resp := InvokeResponse{Results: make([]json.RawMessage, len(req.Entries))}
	for i, e := range req.Entries {
		resp.Results[i] = s.callbacks.invoke(ctx, e.Kind, e.Target, e.Args)
	}
	return transport.NewReply(msg, s.Self(), resp)
}

func removePair(list []types.IDAddressPair, p types.IDAddressPair) []types.IDAddressPair {
	return slices.DeleteFunc(list, func(q types.IDAddressPair) bool { return q.Equal(p) })
}
