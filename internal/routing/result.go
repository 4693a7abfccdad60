package routing

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dep2p/go-simdht/pkg/types"
)

// RoutingHop 路由经过的一跳
type RoutingHop struct {
	Pair types.IDAddressPair
	Time time.Time
}

// RoutingResult 一次路由的结果，创建后不再修改
type RoutingResult struct {
	// Target 路由目标
	Target types.ID

	// Route 经过的节点，第一个是发起者
	Route []RoutingHop

	// Responsible 按到目标距离排序的责任候选
	Responsible []types.IDAddressPair
}

// LastHop 返回路由的最后一跳
func (r RoutingResult) LastHop() types.IDAddressPair {
	if len(r.Route) == 0 {
		return types.IDAddressPair{}
	}
	return r.Route[len(r.Route)-1].Pair
}

// Hops 返回跳数，不含发起者
func (r RoutingResult) Hops() int {
	if len(r.Route) == 0 {
		return 0
	}
	return len(r.Route) - 1
}

// Pairs 返回路由经过的节点
func (r RoutingResult) Pairs() []types.IDAddressPair {
	out := make([]types.IDAddressPair, len(r.Route))
	for i, h := range r.Route {
		out[i] = h.Pair
	}
	return out
}

// withLastHop 返回以 p 结尾的新结果，p 已是最后一跳时原样返回
func (r RoutingResult) withLastHop(p types.IDAddressPair, at time.Time) RoutingResult {
	if r.LastHop().Equal(p) {
		return r
	}
	route := make([]RoutingHop, len(r.Route), len(r.Route)+1)
	copy(route, r.Route)
	r.Route = append(route, RoutingHop{Pair: p, Time: at})
	return r
}

// String 返回 "target: a -> b -> c"
func (r RoutingResult) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s:", r.Target.ShortString())
	for i, h := range r.Route {
		if i > 0 {
			sb.WriteString(" ->")
		}
		fmt.Fprintf(&sb, " %s", h.Pair.ID.ShortString())
	}
	return sb.String()
}

// CallbackResult 在责任节点执行回调的结果
type CallbackResult struct {
	// Routing 路由结果，最后一跳是实际应答的节点
	Routing RoutingResult

	// Value 回调返回值
	Value json.RawMessage
}

// Invocation 一次回调调用
type Invocation struct {
	Target types.ID
	Kind   CallbackKind
	Args   json.RawMessage
}

// ============================================================================
//                              线上消息
// ============================================================================

// FindNodeRequest FIND_NODE 负载
type FindNodeRequest struct {
	Target   types.ID `json:"target"`
	MaxCount int      `json:"max_count"`
	Joining  bool     `json:"joining,omitempty"`
}

// FindNodeResponse FIND_NODE 响应
type FindNodeResponse struct {
	Candidates []types.IDAddressPair `json:"candidates"`
}

// InvokeEntry INVOKE 中的一项
type InvokeEntry struct {
	Target types.ID        `json:"target"`
	Kind   CallbackKind    `json:"kind"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// InvokeRequest INVOKE 负载，同一地址的多个调用合并为一条消息
type InvokeRequest struct {
	Entries []InvokeEntry `json:"entries"`
}

// InvokeResponse INVOKE 响应，与 Entries 一一对应
type InvokeResponse struct {
	Results []json.RawMessage `json:"results"`
}
