// Package memnet 提供进程内的 Transport 实现
//
// 每条消息都经过 JSON 编解码，行为与真实线路一致；
// SetDown 用于故障注入，测试和命令行工具共用。
package memnet

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dep2p/go-simdht/internal/core/transport"
	"github.com/dep2p/go-simdht/pkg/lib/log"
)

var logger = log.Logger("core/transport/memnet")

// Option 网络选项
type Option func(*Network)

// WithLatency 为每次投递增加固定延迟
func WithLatency(d time.Duration) Option {
	return func(n *Network) { n.latency = d }
}

// Network 进程内网络
type Network struct {
	mu        sync.RWMutex
	endpoints map[string]*Endpoint
	down      map[string]bool
	latency   time.Duration
	nextAddr  atomic.Uint64

	countsMu sync.Mutex
	counts   map[transport.MessageType]int
}

// NewNetwork 创建进程内网络
func NewNetwork(opts ...Option) *Network {
	n := &Network{
		endpoints: make(map[string]*Endpoint),
		down:      make(map[string]bool),
		counts:    make(map[transport.MessageType]int),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Listen 在 addr 上创建端点，addr 为空时自动分配
func (n *Network) Listen(addr string) (*Endpoint, error) {
	if addr == "" {
		addr = fmt.Sprintf("mem://%d", n.nextAddr.Add(1))
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.endpoints[addr]; ok {
		return nil, fmt.Errorf("memnet: address %s already in use", addr)
	}
	ep := &Endpoint{
		network:  n,
		addr:     addr,
		handlers: make(map[transport.MessageType]transport.Handler),
	}
	n.endpoints[addr] = ep
	return ep, nil
}

// SetDown 设置地址是否故障，故障地址收发都失败
func (n *Network) SetDown(addr string, down bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if down {
		n.down[addr] = true
	} else {
		delete(n.down, addr)
	}
}

// Count 返回某类消息的投递次数
func (n *Network) Count(t transport.MessageType) int {
	n.countsMu.Lock()
	defer n.countsMu.Unlock()
	return n.counts[t]
}

// ResetCounts 清空投递计数
func (n *Network) ResetCounts() {
	n.countsMu.Lock()
	defer n.countsMu.Unlock()
	n.counts = make(map[transport.MessageType]int)
}

func (n *Network) lookup(from, to string) (*Endpoint, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.down[from] || n.down[to] {
		return nil, fmt.Errorf("%w: %s", transport.ErrUnreachable, to)
	}
	ep, ok := n.endpoints[to]
	if !ok || ep.closed.Load() {
		return nil, fmt.Errorf("%w: %s", transport.ErrUnreachable, to)
	}
	return ep, nil
}

func (n *Network) remove(addr string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.endpoints, addr)
}

// deliver 把消息编码后投递给 to，返回解码后的响应
func (n *Network) deliver(ctx context.Context, from, to string, msg *transport.Message) (*transport.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target, err := n.lookup(from, to)
	if err != nil {
		return nil, err
	}

	data, err := msg.Encode()
	if err != nil {
		return nil, err
	}
	if n.latency > 0 {
		timer := time.NewTimer(n.latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	n.countsMu.Lock()
	n.counts[msg.Type]++
	n.countsMu.Unlock()

	in, err := transport.DecodeMessage(data)
	if err != nil {
		return nil, err
	}
	return target.dispatch(ctx, in)
}

// ============================================================================
//                              Endpoint
// ============================================================================

// Endpoint 网络中的一个端点，实现 transport.Transport
type Endpoint struct {
	network *Network
	addr    string
	closed  atomic.Bool

	mu       sync.RWMutex
	handlers map[transport.MessageType]transport.Handler
}

// Address 本地地址
func (e *Endpoint) Address() string {
	return e.addr
}

// Handle 注册消息处理器
func (e *Endpoint) Handle(t transport.MessageType, h transport.Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[t] = h
}

// Send 单向发送，忽略响应
func (e *Endpoint) Send(ctx context.Context, addr string, msg *transport.Message) error {
	_, err := e.SendAndReceive(ctx, addr, msg)
	return err
}

// SendAndReceive 发送并等待响应
func (e *Endpoint) SendAndReceive(ctx context.Context, addr string, msg *transport.Message) (*transport.Message, error) {
	if e.closed.Load() {
		return nil, transport.ErrClosed
	}
	return e.network.deliver(ctx, e.addr, addr, msg)
}

func (e *Endpoint) dispatch(ctx context.Context, msg *transport.Message) (*transport.Message, error) {
	e.mu.RLock()
	h, ok := e.handlers[msg.Type]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s at %s", transport.ErrNoHandler, msg.Type, e.addr)
	}

	reply, err := h(ctx, msg)
	if err != nil {
		logger.Debug("处理器返回错误", "addr", e.addr, "type", msg.Type.String(), "error", err)
		return nil, fmt.Errorf("%w: %v", transport.ErrRemote, err)
	}
	if reply == nil {
		return nil, nil
	}

	data, err := reply.Encode()
	if err != nil {
		return nil, err
	}
	return transport.DecodeMessage(data)
}

// Close 关闭端点，重复调用无副作用
func (e *Endpoint) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.network.remove(e.addr)
	return nil
}

var _ transport.Transport = (*Endpoint)(nil)
