package dht

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-simdht/internal/routing"
)

const (
	outcomeOK            = "ok"
	outcomeRoutingFailed = "routing_failed"
	outcomeError         = "error"
)

// Metrics DHT 指标
//
//	simdht_dht_operations_total{op,outcome}  每个键一次
//	simdht_routing_hops                      成功路由的跳数
type Metrics struct {
	ops  *prometheus.CounterVec
	hops prometheus.Histogram
}

// NewMetrics 创建指标，reg 为 nil 时不注册
//
// 同一进程的多个节点应共享一个 Metrics。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simdht",
			Subsystem: "dht",
			Name:      "operations_total",
			Help:      "DHT operations per key by outcome.",
		}, []string{"op", "outcome"}),
		hops: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "simdht",
			Subsystem: "routing",
			Name:      "hops",
			Help:      "Hops taken by successful DHT routes.",
			Buckets:   prometheus.LinearBuckets(0, 1, 10),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ops, m.hops)
	}
	return m
}

// observe 记录一个键的操作结果
func (m *Metrics) observe(op string, err error) {
	outcome := outcomeOK
	switch {
	case err == nil:
	case errors.Is(err, routing.ErrRoutingFailed):
		outcome = outcomeRoutingFailed
	default:
		outcome = outcomeError
	}
	m.ops.WithLabelValues(op, outcome).Inc()
}

// observeRoute 记录路由跳数
func (m *Metrics) observeRoute(r routing.RoutingResult) {
	m.hops.Observe(float64(r.Hops()))
}
