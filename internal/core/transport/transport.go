// Package transport 定义节点间消息传输契约
//
// 路由层和 DHT 层只依赖 Transport 接口：
//   - Send: 单向发送
//   - SendAndReceive: 请求-响应
//   - Handle: 按消息类型注册处理器
//
// 进程内实现见 memnet 子包。
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dep2p/go-simdht/pkg/types"
)

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrUnreachable 目标地址不可达
	ErrUnreachable = errors.New("transport: address unreachable")

	// ErrClosed 传输已关闭
	ErrClosed = errors.New("transport: closed")

	// ErrNoHandler 对端没有注册该消息类型的处理器
	ErrNoHandler = errors.New("transport: no handler for message type")

	// ErrRemote 对端处理器返回错误
	ErrRemote = errors.New("transport: remote error")
)

// ============================================================================
//                              消息类型
// ============================================================================

// MessageType 消息类型
type MessageType uint8

const (
	// MessageTypeFindNode FIND_NODE 请求
	MessageTypeFindNode MessageType = iota + 1
	// MessageTypePing PING 请求
	MessageTypePing
	// MessageTypeInvoke INVOKE 请求，在责任节点执行回调
	MessageTypeInvoke
	// MessageTypePut PUT 请求
	MessageTypePut
	// MessageTypeRemove REMOVE 请求
	MessageTypeRemove
	// MessageTypeTransfer TRANSFER 请求，新节点加入时迁移数据
	MessageTypeTransfer
	// MessageTypeReply 响应
	MessageTypeReply
)

// String 返回消息类型的字符串表示
func (m MessageType) String() string {
	switch m {
	case MessageTypeFindNode:
		return "FIND_NODE"
	case MessageTypePing:
		return "PING"
	case MessageTypeInvoke:
		return "INVOKE"
	case MessageTypePut:
		return "PUT"
	case MessageTypeRemove:
		return "REMOVE"
	case MessageTypeTransfer:
		return "TRANSFER"
	case MessageTypeReply:
		return "REPLY"
	default:
		return "UNKNOWN"
	}
}

// ============================================================================
//                              消息结构
// ============================================================================

// Message 传输信封
type Message struct {
	// Type 消息类型
	Type MessageType `json:"type"`

	// RequestID 请求 ID，响应沿用请求的 ID
	RequestID string `json:"request_id"`

	// Sender 发送者
	Sender types.IDAddressPair `json:"sender"`

	// Payload 类型相关的负载
	Payload json.RawMessage `json:"payload,omitempty"`

	// Error 对端处理失败时的错误信息
	Error string `json:"error,omitempty"`
}

// NewMessage 创建请求消息，payload 序列化为 JSON
func NewMessage(t MessageType, sender types.IDAddressPair, payload interface{}) (*Message, error) {
	msg := &Message{
		Type:      t,
		RequestID: uuid.NewString(),
		Sender:    sender,
	}
	if err := msg.SetPayload(payload); err != nil {
		return nil, err
	}
	return msg, nil
}

// NewReply 创建 req 的响应
func NewReply(req *Message, sender types.IDAddressPair, payload interface{}) (*Message, error) {
	reply := &Message{
		Type:      MessageTypeReply,
		RequestID: req.RequestID,
		Sender:    sender,
	}
	if err := reply.SetPayload(payload); err != nil {
		return nil, err
	}
	return reply, nil
}

// SetPayload 设置负载，nil 表示无负载
func (m *Message) SetPayload(payload interface{}) error {
	if payload == nil {
		m.Payload = nil
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("transport: encode %s payload: %w", m.Type, err)
	}
	m.Payload = data
	return nil
}

// DecodePayload 解码负载到 v
func (m *Message) DecodePayload(v interface{}) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("transport: empty %s payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("transport: decode %s payload: %w", m.Type, err)
	}
	return nil
}

// Encode 编码消息为字节数组
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage 从字节数组解码消息
func DecodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ============================================================================
//                              传输接口
// ============================================================================

// Handler 消息处理器
//
// 返回的 reply 只在 SendAndReceive 时送回请求方；返回错误时请求方收到 ErrRemote。
type Handler func(ctx context.Context, msg *Message) (*Message, error)

// Transport 节点间消息传输
type Transport interface {
	// Address 本地地址
	Address() string

	// Send 单向发送
	Send(ctx context.Context, addr string, msg *Message) error

	// SendAndReceive 发送并等待响应，受 ctx 超时约束
	SendAndReceive(ctx context.Context, addr string, msg *Message) (*Message, error)

	// Handle 注册消息处理器，同一类型重复注册时覆盖
	Handle(t MessageType, h Handler)

	// Close 关闭传输
	Close() error
}

//go:generate mockgen -destination=mocks/transport_mock.go -package=mocks github.com/dep2p/go-simdht/internal/core/transport Transport
