// Package dht 实现带相似性搜索的分布式哈希表服务
//
// DHT 建立在路由服务之上：
//   - Get / GetSimilar: 在责任节点执行回调，相似性搜索可沿责任节点的邻居扩展若干轮
//   - Put / Remove: 路由后按候选队列复制到多个副本，失败的副本由下一个候选顶替
//   - Join: 加入网络并从最近的节点迁移本节点负责的数据
//
// 本地数据保存在 directory.MultiValue 中，后台任务定期清理过期值。
package dht

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-simdht/internal/core/transport"
	"github.com/dep2p/go-simdht/internal/directory"
	"github.com/dep2p/go-simdht/internal/routing"
	"github.com/dep2p/go-simdht/pkg/lib/log"
	"github.com/dep2p/go-simdht/pkg/types"
)

var logger = log.Logger("dht")

// Option DHT 选项
type Option func(*options)

type options struct {
	metrics *Metrics
}

// WithMetrics 使用共享的指标
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// DHT 分布式哈希表服务
type DHT[V comparable] struct {
	cfg     *Config
	svc     *routing.Service
	dir     directory.MultiValue[V]
	clk     clock.Clock
	metrics *Metrics

	mu           sync.Mutex
	ttlForPut    time.Duration
	secretForPut types.Secret
	lastKeys     []types.ID
	lastRoutes   []types.Result[routing.RoutingResult]

	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
	stopped     atomic.Bool
}

// New 创建 DHT 服务并在路由服务上注册回调和消息处理器
func New[V comparable](svc *routing.Service, dir directory.MultiValue[V], cfg *Config, opts ...Option) (*DHT[V], error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if svc == nil || dir == nil {
		return nil, fmt.Errorf("%w: nil routing service or directory", ErrInvalidConfig)
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = NewMetrics(nil)
	}

	d := &DHT[V]{
		cfg:       cfg,
		svc:       svc,
		dir:       dir,
		clk:       svc.Clock(),
		metrics:   o.metrics,
		ttlForPut: cfg.DefaultTTL,
	}

	if err := svc.RegisterCallback(routing.CallbackExact, d.exactCallback); err != nil {
		return nil, err
	}
	if err := svc.RegisterCallback(routing.CallbackSimilar, d.similarCallback); err != nil {
		return nil, err
	}
	svc.Handle(transport.MessageTypePut, d.handlePut)
	svc.Handle(transport.MessageTypeRemove, d.handleRemove)
	svc.Handle(transport.MessageTypeTransfer, d.handleTransfer)

	logger.Debug("DHT 服务已创建", "self", svc.Self().ID.ShortString(),
		"replication", cfg.ReplicationFactor, "similarity", cfg.SimilaritySearch)
	return d, nil
}

// Self 本节点
func (d *DHT[V]) Self() types.IDAddressPair { return d.svc.Self() }

// Config 服务配置
func (d *DHT[V]) Config() *Config { return d.cfg }

// RoutingService 底层路由服务
func (d *DHT[V]) RoutingService() *routing.Service { return d.svc }

// Directory 本地目录
func (d *DHT[V]) Directory() directory.MultiValue[V] { return d.dir }

// ============================================================================
//                              生命周期
// ============================================================================

// Start 启动路由维护和过期值清理
func (d *DHT[V]) Start(ctx context.Context) error {
	if d.stopped.Load() {
		return ErrStopped
	}
	if err := d.svc.Start(ctx); err != nil {
		return err
	}
	d.startSweeper()
	return nil
}

// Stop 停止清理任务和路由服务，目录由调用方关闭
func (d *DHT[V]) Stop() error {
	if d.stopped.Swap(true) {
		return nil
	}
	d.stopSweeper()
	return d.svc.Stop()
}

// Suspend 挂起路由维护
func (d *DHT[V]) Suspend() { d.svc.Suspend() }

// Resume 恢复路由维护
func (d *DHT[V]) Resume() error { return d.svc.Resume() }

func (d *DHT[V]) startSweeper() {
	if d.cfg.SweepInterval <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sweepCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.sweepCancel = cancel
	d.sweepDone = make(chan struct{})
	// 在启动 goroutine 前创建 ticker，mock 时钟推进时不会错过
	go d.sweepLoop(ctx, d.clk.Ticker(d.cfg.SweepInterval), d.sweepDone)
}

func (d *DHT[V]) stopSweeper() {
	d.mu.Lock()
	cancel, done := d.sweepCancel, d.sweepDone
	d.sweepCancel, d.sweepDone = nil, nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (d *DHT[V]) sweepLoop(ctx context.Context, ticker *clock.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := d.dir.Sweep()
			if err != nil {
				if errors.Is(err, directory.ErrClosed) {
					return
				}
				logger.Warn("清理过期值失败", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("已清理过期值", "count", n)
			}
		}
	}
}

// ============================================================================
//                              查询
// ============================================================================

// Get 查询一个键的值
//
// 路由失败返回 routing.ErrRoutingFailed，没有值时返回空集合。
func (d *DHT[V]) Get(ctx context.Context, key types.ID) (types.ValueSet[V], error) {
	return d.GetBatch(ctx, []types.ID{key})[0].Unwrap()
}

// GetBatch 批量查询，每个键独立报告结果
func (d *DHT[V]) GetBatch(ctx context.Context, keys []types.ID) []types.Result[types.ValueSet[V]] {
	calls := make([]routing.Invocation, len(keys))
	for i, k := range keys {
		calls[i] = routing.Invocation{Target: k, Kind: routing.CallbackExact}
	}
	invoked := d.svc.InvokeCallbacksOnRoute(ctx, calls, d.cfg.NumTimesGets+d.cfg.SpareCandidates, -1)
	d.preserveInvoked(keys, invoked)

	now := d.clk.Now()
	out := make([]types.Result[types.ValueSet[V]], len(keys))
	for i, r := range invoked {
		if !r.OK() {
			out[i] = types.Fail[types.ValueSet[V]](NewDHTError("get", keys[i], r.Err))
			d.metrics.observe("get", r.Err)
			continue
		}
		d.metrics.observeRoute(r.Value.Routing)
		set, err := decodeValues[V](r.Value.Value, now)
		if err != nil {
			logger.Warn("无法解码查询结果", "key", keys[i].ShortString(), "error", err)
		}
		out[i] = types.Ok(set)
		d.metrics.observe("get", nil)
	}
	return out
}

// GetSimilar 查询与 key 相似度不低于 threshold 的键及其值，扩展轮数取配置值
func (d *DHT[V]) GetSimilar(ctx context.Context, key types.ID, threshold float64) (map[types.ID]types.ValueSet[V], error) {
	return d.GetSimilarHops(ctx, key, threshold, d.cfg.ExtraHops)
}

// GetSimilarHops 指定扩展轮数的相似性查询
func (d *DHT[V]) GetSimilarHops(ctx context.Context, key types.ID, threshold float64, extraHops int) (map[types.ID]types.ValueSet[V], error) {
	return d.GetSimilarBatch(ctx, []SimilarQuery{{Key: key, Threshold: threshold}}, extraHops)[0].Unwrap()
}

// GetSimilarBatch 批量相似性查询
//
// 先在每个键的责任节点上扫描本地目录，然后进行最多 extraHops 轮扩展：
// 每轮把上一轮应答的节点记为已联系，在累积的责任候选中去掉已联系的节点和本节点，
// 取 ID 最小的一个作为新目标（没有时退回原始键），用相同参数再次查询并按键合并结果。
// 各轮严格串行。没有备用候选时不做扩展。
// 关闭相似性搜索时退化为精确查询，结果是 {key: 精确查询的值集合}，值集合可能为空。
func (d *DHT[V]) GetSimilarBatch(ctx context.Context, queries []SimilarQuery, extraHops int) []types.Result[map[types.ID]types.ValueSet[V]] {
	out := make([]types.Result[map[types.ID]types.ValueSet[V]], len(queries))
	keys := make([]types.ID, len(queries))
	for i, q := range queries {
		keys[i] = q.Key
	}

	if !d.cfg.SimilaritySearch {
		for i, r := range d.GetBatch(ctx, keys) {
			if !r.OK() {
				out[i] = types.Fail[map[types.ID]types.ValueSet[V]](r.Err)
				continue
			}
			out[i] = types.Ok(map[types.ID]types.ValueSet[V]{keys[i]: r.Value})
		}
		return out
	}

	// calls[j] 对应 queries[idx[j]]
	var (
		calls []routing.Invocation
		idx   []int
	)
	for i, q := range queries {
		args, err := json.Marshal(similarArgs{Key: q.Key, Threshold: q.Threshold})
		if err != nil {
			out[i] = types.Fail[map[types.ID]types.ValueSet[V]](NewDHTError("get_similar", q.Key, err))
			continue
		}
		calls = append(calls, routing.Invocation{Target: q.Key, Kind: routing.CallbackSimilar, Args: args})
		idx = append(idx, i)
	}

	replicas := d.cfg.NumTimesGets + d.cfg.SpareCandidates
	first := d.svc.InvokeCallbacksOnRoute(ctx, calls, replicas, -1)
	d.preserveInvoked(keysAt(keys, idx), first)

	// 只有首轮成功的键参与扩展
	type expansion struct {
		call      routing.Invocation
		idx       int
		last      types.Result[routing.CallbackResult]
		contacted map[types.ID]struct{}
		closest   map[types.ID]struct{}
	}
	var active []*expansion
	now := d.clk.Now()
	for j, r := range first {
		i := idx[j]
		if !r.OK() {
			out[i] = types.Fail[map[types.ID]types.ValueSet[V]](NewDHTError("get_similar", keys[i], r.Err))
			d.metrics.observe("get_similar", r.Err)
			continue
		}
		d.metrics.observeRoute(r.Value.Routing)
		d.metrics.observe("get_similar", nil)
		m, err := decodeSimilar[V](r.Value.Value, now)
		if err != nil {
			logger.Warn("无法解码相似性查询结果", "key", keys[i].ShortString(), "error", err)
		}
		out[i] = types.Ok(m)
		active = append(active, &expansion{
			call:      calls[j],
			idx:       i,
			last:      r,
			contacted: make(map[types.ID]struct{}),
			closest:   make(map[types.ID]struct{}),
		})
	}

	if d.cfg.SpareCandidates < 1 {
		extraHops = 0
	}
	self := d.Self().ID
	for hop := 0; hop < extraHops && len(active) > 0; hop++ {
		if ctx.Err() != nil {
			break
		}
		round := make([]routing.Invocation, len(active))
		for j, e := range active {
			target := keys[e.idx]
			if e.last.OK() {
				e.contacted[e.last.Value.Routing.LastHop().ID] = struct{}{}
				for _, p := range e.last.Value.Routing.Responsible {
					e.closest[p.ID] = struct{}{}
				}
				for id := range e.contacted {
					delete(e.closest, id)
				}
				delete(e.closest, self)
				if next, ok := smallestID(e.closest); ok {
					target = next
				}
			}
			round[j] = e.call
			round[j].Target = target
		}

		logger.Debug("相似性搜索扩展", "hop", hop, "keys", len(round))
		results := d.svc.InvokeCallbacksOnRoute(ctx, round, replicas, -1)
		now = d.clk.Now()
		for j, e := range active {
			e.last = results[j]
			if !e.last.OK() {
				continue
			}
			m, err := decodeSimilar[V](e.last.Value.Value, now)
			if err != nil {
				logger.Warn("无法解码相似性查询结果", "key", keys[e.idx].ShortString(), "error", err)
				continue
			}
			out[e.idx].Value = types.MergeSimilar(out[e.idx].Value, m)
		}
	}

	return out
}

func keysAt(keys []types.ID, idx []int) []types.ID {
	out := make([]types.ID, len(idx))
	for j, i := range idx {
		out[j] = keys[i]
	}
	return out
}

// smallestID 返回集合中自然序最小的 ID
func smallestID(set map[types.ID]struct{}) (types.ID, bool) {
	var (
		best  types.ID
		found bool
	)
	for id := range set {
		if !found || id.Compare(best) < 0 {
			best, found = id, true
		}
	}
	return best, found
}

func decodeValues[V comparable](raw json.RawMessage, now time.Time) (types.ValueSet[V], error) {
	if len(raw) == 0 || string(raw) == "null" {
		return types.ValueSet[V]{}, nil
	}
	var ws []wireValue[V]
	if err := json.Unmarshal(raw, &ws); err != nil {
		return types.ValueSet[V]{}, err
	}
	set := fromWire(ws, now)
	if set == nil {
		set = types.ValueSet[V]{}
	}
	return set, nil
}

func decodeSimilar[V comparable](raw json.RawMessage, now time.Time) (map[types.ID]types.ValueSet[V], error) {
	out := make(map[types.ID]types.ValueSet[V])
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	var wm map[types.ID][]wireValue[V]
	if err := json.Unmarshal(raw, &wm); err != nil {
		return out, err
	}
	for k, ws := range wm {
		if set := fromWire(ws, now); len(set) > 0 {
			out[k] = set
		}
	}
	return out, nil
}

// ============================================================================
//                              回调
// ============================================================================

func (d *DHT[V]) exactCallback(_ context.Context, target types.ID, _ json.RawMessage, _ bool) (json.RawMessage, error) {
	set, err := d.dir.Get(target)
	if err != nil {
		return nil, err
	}
	return json.Marshal(toWire(set, d.clk.Now()))
}

func (d *DHT[V]) similarCallback(_ context.Context, target types.ID, raw json.RawMessage, _ bool) (json.RawMessage, error) {
	args := similarArgs{Key: target, Threshold: 1}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, err
		}
	}
	m, err := d.dir.Similar(args.Key, args.Threshold)
	if err != nil {
		return nil, err
	}
	now := d.clk.Now()
	wm := make(map[types.ID][]wireValue[V], len(m))
	for k, set := range m {
		wm[k] = toWire(set, now)
	}
	return json.Marshal(wm)
}

// ============================================================================
//                              写入与删除
// ============================================================================

// SetTTLForPut 设置后续 put 的默认 TTL，返回旧值
func (d *DHT[V]) SetTTLForPut(ttl time.Duration) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	old := d.ttlForPut
	d.ttlForPut = ttl
	return old
}

// SetSecretForPut 设置后续 put 的默认密钥（已哈希），返回旧值
func (d *DHT[V]) SetSecretForPut(secret types.Secret) types.Secret {
	d.mu.Lock()
	defer d.mu.Unlock()
	old := d.secretForPut
	d.secretForPut = secret
	return old
}

// Put 写入一个键的若干值
//
// 返回副本上已存在的相同值。
func (d *DHT[V]) Put(ctx context.Context, key types.ID, values ...V) (types.ValueSet[V], error) {
	return d.PutWith(ctx, []PutRequest[V]{{Key: key, Values: values}}, PutOptions{})[0].Unwrap()
}

// PutBatch 批量写入
func (d *DHT[V]) PutBatch(ctx context.Context, reqs []PutRequest[V]) []types.Result[types.ValueSet[V]] {
	return d.PutWith(ctx, reqs, PutOptions{})
}

// PutWith 按选项批量写入
func (d *DHT[V]) PutWith(ctx context.Context, reqs []PutRequest[V], opts PutOptions) []types.Result[types.ValueSet[V]] {
	d.mu.Lock()
	if opts.TTL == 0 {
		opts.TTL = d.ttlForPut
	}
	if opts.Secret == nil {
		opts.Secret = d.secretForPut
	}
	d.mu.Unlock()
	if opts.Repeat <= 0 {
		opts.Repeat = d.cfg.ReplicationFactor
	}

	keys := make([]types.ID, len(reqs))
	for i, r := range reqs {
		keys[i] = r.Key
	}

	send := func(ctx context.Context, head types.IDAddressPair, idx []int) ([][]wireValue[V], error) {
		msg := putMessage[V]{Entries: make([]putEntry[V], len(idx)), TTL: opts.TTL, Secret: opts.Secret}
		for j, i := range idx {
			msg.Entries[j] = putEntry[V]{Key: reqs[i].Key, Values: reqs[i].Values}
		}
		if head.ID == d.Self().ID {
			return d.putLocally(msg).Values, nil
		}
		return d.store(ctx, head, transport.MessageTypePut, msg, len(idx))
	}
	return d.replicate(ctx, "put", keys, opts.Repeat, opts.ExcludeSelf, send)
}

// Remove 删除一个键下的指定值，secret 必须与写入时的密钥相同
//
// 返回被删除的值。
func (d *DHT[V]) Remove(ctx context.Context, key types.ID, secret types.Secret, values ...V) (types.ValueSet[V], error) {
	return d.RemoveBatch(ctx, []RemoveRequest[V]{{Key: key, Values: values}}, secret)[0].Unwrap()
}

// RemoveByHash 按值的 SHA-1 哈希删除
func (d *DHT[V]) RemoveByHash(ctx context.Context, key types.ID, secret types.Secret, hashes ...types.ID) (types.ValueSet[V], error) {
	return d.RemoveBatch(ctx, []RemoveRequest[V]{{Key: key, Hashes: hashes}}, secret)[0].Unwrap()
}

// RemoveAll 删除一个键下密钥匹配的全部值
func (d *DHT[V]) RemoveAll(ctx context.Context, key types.ID, secret types.Secret) (types.ValueSet[V], error) {
	return d.RemoveBatch(ctx, []RemoveRequest[V]{{Key: key}}, secret)[0].Unwrap()
}

// RemoveBatch 批量删除，空密钥直接失败
func (d *DHT[V]) RemoveBatch(ctx context.Context, reqs []RemoveRequest[V], secret types.Secret) []types.Result[types.ValueSet[V]] {
	if secret.IsEmpty() {
		out := make([]types.Result[types.ValueSet[V]], len(reqs))
		for i, r := range reqs {
			out[i] = types.Fail[types.ValueSet[V]](NewDHTError("remove", r.Key, ErrUnauthorized))
			d.metrics.observe("remove", ErrUnauthorized)
		}
		return out
	}

	keys := make([]types.ID, len(reqs))
	for i, r := range reqs {
		keys[i] = r.Key
	}

	send := func(ctx context.Context, head types.IDAddressPair, idx []int) ([][]wireValue[V], error) {
		msg := removeMessage[V]{Entries: make([]removeEntry[V], len(idx)), Secret: secret}
		for j, i := range idx {
			msg.Entries[j] = removeEntry[V]{Key: reqs[i].Key, Values: reqs[i].Values, Hashes: reqs[i].Hashes}
		}
		if head.ID == d.Self().ID {
			return d.removeLocally(msg).Values, nil
		}
		return d.store(ctx, head, transport.MessageTypeRemove, msg, len(idx))
	}
	return d.replicate(ctx, "remove", keys, d.cfg.ReplicationFactor, false, send)
}

// store 向副本发送 PUT/REMOVE 并检查响应
func (d *DHT[V]) store(ctx context.Context, head types.IDAddressPair, t transport.MessageType, msg interface{}, n int) ([][]wireValue[V], error) {
	cctx, cancel := context.WithTimeout(ctx, d.cfg.RequestTimeout)
	defer cancel()

	var reply storeReply[V]
	if err := d.svc.Request(cctx, head.Address, t, msg, &reply); err != nil {
		return nil, err
	}
	if reply.Rejected {
		return nil, ErrUnauthorized
	}
	if len(reply.Values) != n {
		return nil, fmt.Errorf("dht: %s reply has %d results for %d entries", t, len(reply.Values), n)
	}
	return reply.Values, nil
}

// sendFunc 向一个副本发送 idx 指定的键，返回与 idx 对应的结果
type sendFunc[V comparable] func(ctx context.Context, head types.IDAddressPair, idx []int) ([][]wireValue[V], error)

// replicate 把每个键复制到 repeat 个副本
//
// 每个键有一个责任候选队列。每一轮取出各键的队首，按地址分组并行发送；
// 发送失败的候选已出队，下一轮自然使用下一个候选。
// 键在获得 repeat 个确认后结束，确认数不低于最小确认数即为成功。
func (d *DHT[V]) replicate(ctx context.Context, op string, keys []types.ID, repeat int, excludeSelf bool, send sendFunc[V]) []types.Result[types.ValueSet[V]] {
	out := make([]types.Result[types.ValueSet[V]], len(keys))
	if len(keys) == 0 {
		return out
	}
	self := d.Self()
	routed := d.svc.Route(ctx, keys, repeat+d.cfg.SpareCandidates)
	d.preserve(keys, routed)

	queues := make([][]types.IDAddressPair, len(keys))
	acks := make([]int, len(keys))
	prev := make([]types.ValueSet[V], len(keys))
	lastErr := make([]error, len(keys))
	for i, r := range routed {
		if !r.OK() {
			out[i] = types.Fail[types.ValueSet[V]](NewDHTError(op, keys[i], r.Err))
			d.metrics.observe(op, r.Err)
			continue
		}
		d.metrics.observeRoute(r.Value)
		queues[i] = slices.Clone(r.Value.Responsible)
		if excludeSelf {
			queues[i] = slices.DeleteFunc(queues[i], func(p types.IDAddressPair) bool { return p.ID == self.ID })
		}
	}

	for ctx.Err() == nil {
		var addrs []string
		heads := make(map[string]types.IDAddressPair)
		groups := make(map[string][]int)
		for i, q := range queues {
			if len(q) == 0 || acks[i] >= repeat {
				continue
			}
			head := q[0]
			queues[i] = q[1:]
			if _, ok := groups[head.Address]; !ok {
				addrs = append(addrs, head.Address)
				heads[head.Address] = head
			}
			groups[head.Address] = append(groups[head.Address], i)
		}
		if len(addrs) == 0 {
			break
		}

		type outcome struct {
			values [][]wireValue[V]
			err    error
		}
		outcomes := make([]outcome, len(addrs))
		var g errgroup.Group
		for ai, addr := range addrs {
			g.Go(func() error {
				values, err := send(ctx, heads[addr], groups[addr])
				outcomes[ai] = outcome{values: values, err: err}
				return nil
			})
		}
		_ = g.Wait()

		now := d.clk.Now()
		for ai, addr := range addrs {
			o := outcomes[ai]
			if o.err != nil {
				logger.Warn("副本请求失败", "op", op, "peer", heads[addr].ID.ShortString(), "keys", len(groups[addr]), "error", o.err)
				for _, i := range groups[addr] {
					lastErr[i] = o.err
				}
				continue
			}
			for j, i := range groups[addr] {
				acks[i]++
				prev[i] = prev[i].Union(fromWire(o.values[j], now))
			}
		}
	}

	for i, r := range routed {
		if !r.OK() {
			continue
		}
		need := d.cfg.minAcks(repeat)
		if acks[i] >= need && acks[i] > 0 {
			set := prev[i]
			if set == nil {
				set = types.ValueSet[V]{}
			}
			out[i] = types.Ok(set)
			d.metrics.observe(op, nil)
			continue
		}
		cause := fmt.Errorf("%w: %d of %d acks", ErrReplicationFailed, acks[i], need)
		if lastErr[i] != nil {
			cause = fmt.Errorf("%w: %w", cause, lastErr[i])
		}
		if err := ctx.Err(); err != nil && lastErr[i] == nil {
			cause = fmt.Errorf("%w: %w", cause, err)
		}
		out[i] = types.Fail[types.ValueSet[V]](NewDHTError(op, keys[i], cause))
		d.metrics.observe(op, cause)
	}
	return out
}

// ============================================================================
//                              加入与状态
// ============================================================================

// Join 通过引导节点加入网络，并请求最近的节点迁移本节点负责的数据
func (d *DHT[V]) Join(ctx context.Context, bootstrap string) (routing.RoutingResult, error) {
	r, err := d.svc.Join(ctx, bootstrap)
	if err != nil {
		return routing.RoutingResult{}, NewDHTError("join", d.Self().ID, err)
	}
	d.preserve([]types.ID{d.Self().ID}, []types.Result[routing.RoutingResult]{types.Ok(r)})

	asked := 0
	for _, p := range r.Responsible {
		if asked >= d.cfg.NumNodesAskedToTransfer {
			break
		}
		if p.ID == d.Self().ID {
			continue
		}
		asked++
		n, err := d.requestTransfer(ctx, p)
		if err != nil {
			logger.Warn("请求迁移数据失败", "peer", p.ID.ShortString(), "error", err)
			continue
		}
		logger.Debug("已迁移数据", "from", p.ID.ShortString(), "keys", n)
	}
	return r, nil
}

func (d *DHT[V]) requestTransfer(ctx context.Context, p types.IDAddressPair) (int, error) {
	cctx, cancel := context.WithTimeout(ctx, d.cfg.RequestTimeout)
	defer cancel()

	var reply transferReply[V]
	if err := d.svc.Request(cctx, p.Address, transport.MessageTypeTransfer, struct{}{}, &reply); err != nil {
		return 0, err
	}
	now := d.clk.Now()
	for _, e := range reply.Entries {
		for _, vi := range fromWire(e.Values, now) {
			vi.TTL = vi.RemainingTTL(now)
			vi.ExpiresAt = time.Time{}
			if _, err := d.dir.Put(e.Key, vi); err != nil {
				logger.Warn("保存迁移数据失败", "key", e.Key.ShortString(), "error", err)
			}
		}
	}
	return len(reply.Entries), nil
}

// GlobalKeys 本地目录中的键
func (d *DHT[V]) GlobalKeys() ([]types.ID, error) {
	return d.dir.Keys()
}

// GlobalValues 本地目录中一个键的值
func (d *DHT[V]) GlobalValues(key types.ID) (types.ValueSet[V], error) {
	return d.dir.Get(key)
}

// LastKeys 最近一次操作的键
func (d *DHT[V]) LastKeys() []types.ID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.lastKeys)
}

// LastRoutingResults 最近一次操作的路由结果，与 LastKeys 一一对应
func (d *DHT[V]) LastRoutingResults() []types.Result[routing.RoutingResult] {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.lastRoutes)
}

// ClearDHTState 清空本地目录
func (d *DHT[V]) ClearDHTState() error {
	return d.dir.Clear()
}

// ClearRoutingTable 清空路由表和最近的路由记录
func (d *DHT[V]) ClearRoutingTable() {
	d.svc.Leave()
	d.mu.Lock()
	d.lastKeys, d.lastRoutes = nil, nil
	d.mu.Unlock()
}

// RoutingTableString 路由表文本
func (d *DHT[V]) RoutingTableString() string {
	return d.svc.TableString()
}

func (d *DHT[V]) preserve(keys []types.ID, routes []types.Result[routing.RoutingResult]) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastKeys = slices.Clone(keys)
	d.lastRoutes = routes
}

func (d *DHT[V]) preserveInvoked(keys []types.ID, invoked []types.Result[routing.CallbackResult]) {
	routes := make([]types.Result[routing.RoutingResult], len(invoked))
	for i, r := range invoked {
		if r.OK() {
			routes[i] = types.Ok(r.Value.Routing)
		} else {
			routes[i] = types.Fail[routing.RoutingResult](r.Err)
		}
	}
	d.preserve(keys, routes)
}
