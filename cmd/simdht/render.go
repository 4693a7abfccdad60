package main

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	simdht "github.com/dep2p/go-simdht"
	"github.com/dep2p/go-simdht/pkg/types"
)

// writeValues 每个值一行: value、剩余 TTL 秒数、可选的密钥哈希
func writeValues(w io.Writer, set types.ValueSet[string], now time.Time) {
	for _, v := range set {
		fmt.Fprintf(w, "value:       %s %d", v.Value, int64(v.RemainingTTL(now)/time.Second))
		if !v.HashedSecret.IsEmpty() {
			fmt.Fprintf(w, " %s", v.HashedSecret)
		}
		fmt.Fprintln(w)
	}
}

// writeSimilar 按内容键顺序输出相似性查询结果
func writeSimilar(w io.Writer, results map[types.ID]types.ValueSet[string], now time.Time) {
	if len(results) == 0 {
		fmt.Fprintln(w, "no values returned")
		return
	}
	keys := make([]types.ID, 0, len(results))
	for k := range results {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, types.ID.Compare)
	for _, k := range keys {
		fmt.Fprintf(w, "content key: %s\n", k)
		writeValues(w, results[k], now)
	}
}

// writeStatus 输出路由表和最近一次路由结果
func writeStatus(w io.Writer, n *simdht.Node) {
	fmt.Fprintf(w, "ID and address: %s %s\n", n.ID(), n.Address())
	fmt.Fprintln(w, "Routing table:")
	fmt.Fprintln(w, strings.TrimRight(n.RoutingTable(), "\n"))
	fmt.Fprintln(w, "Last routing results:")
	for _, r := range n.LastRoutingResults() {
		if !r.OK() {
			fmt.Fprintf(w, "  failed: %v\n", r.Err)
			continue
		}
		fmt.Fprintf(w, "  %s\n", r.Value)
	}
}
