// Package similarity 提供键相似度比较器
//
// 本地目录的相似性扫描和 DHT 的 getSimilar 都通过 Comparator 给键打分：
//   - Similarity(a, b) 取值 [0, 1]，且对称
//   - Order(reference) 按与 reference 的相似度降序排列候选键
//
// 当前只支持 Hamming 度量，ID 与字符串各有一个实现。
package similarity

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-simdht/pkg/types"
)

// MetricHamming 唯一支持的度量名
const MetricHamming = "Hamming"

// ErrUnsupportedMetric 不支持的相似度度量
var ErrUnsupportedMetric = errors.New("similarity: unsupported metric")

// Comparator 键相似度比较器，必须无状态且对称
type Comparator[K any] interface {
	// Similarity 返回 [0, 1] 之间的相似度，1 表示相同
	Similarity(a, b K) float64

	// Order 返回按与 reference 的相似度降序排列的比较函数
	Order(reference K) func(a, b K) int
}

// ============================================================================
//                              ID
// ============================================================================

// HammingID 按比特差异数计算 ID 相似度
//
// similarity = 1 - popcount(a XOR b) / bits，长度不同的 ID 相似度为 0。
type HammingID struct{}

// Similarity 实现 Comparator
func (HammingID) Similarity(a, b types.ID) float64 {
	if a.Size() != b.Size() || a.Size() == 0 {
		return 0
	}
	return 1 - float64(a.Xor(b).OnesCount())/float64(a.BitLen())
}

// Order 实现 Comparator，相似度相同时按 ID 自然序
func (h HammingID) Order(reference types.ID) func(a, b types.ID) int {
	return func(a, b types.ID) int {
		sa, sb := h.Similarity(reference, a), h.Similarity(reference, b)
		switch {
		case sa > sb:
			return -1
		case sa < sb:
			return 1
		}
		return a.Compare(b)
	}
}

// ============================================================================
//                              String
// ============================================================================

// HammingString 按字符差异数计算等长字符串的相似度
//
// 长度不同时相似度为 0；两个空串视为相同。
type HammingString struct{}

// Distance 返回等长字符串的不同字符数，长度不同时返回 -1
func (HammingString) Distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) != len(rb) {
		return -1
	}
	d := 0
	for i := range ra {
		if ra[i] != rb[i] {
			d++
		}
	}
	return d
}

// Similarity 实现 Comparator
func (h HammingString) Similarity(a, b string) float64 {
	d := h.Distance(a, b)
	if d < 0 {
		return 0
	}
	n := len([]rune(a))
	if n == 0 {
		return 1
	}
	return 1 - float64(d)/float64(n)
}

// Order 实现 Comparator，相似度相同时按字典序
func (h HammingString) Order(reference string) func(a, b string) int {
	return func(a, b string) int {
		sa, sb := h.Similarity(reference, a), h.Similarity(reference, b)
		switch {
		case sa > sb:
			return -1
		case sa < sb:
			return 1
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	}
}

// ============================================================================
//                              工厂
// ============================================================================

// ForID 按度量名返回 ID 比较器
func ForID(metric string) (Comparator[types.ID], error) {
	if metric != MetricHamming {
		return nil, fmt.Errorf("%w: %q (only %s is supported)", ErrUnsupportedMetric, metric, MetricHamming)
	}
	return HammingID{}, nil
}

// ForString 按度量名返回字符串比较器
func ForString(metric string) (Comparator[string], error) {
	if metric != MetricHamming {
		return nil, fmt.Errorf("%w: %q (only %s is supported)", ErrUnsupportedMetric, metric, MetricHamming)
	}
	return HammingString{}, nil
}

var (
	_ Comparator[types.ID] = HammingID{}
	_ Comparator[string]   = HammingString{}
)
