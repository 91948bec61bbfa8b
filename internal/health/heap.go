package health

import (
	"math"
	"runtime"
	"runtime/debug"
)

// DefaultHeapBudget is used when neither a budget nor a Go memory limit is
// configured.
const DefaultHeapBudget = 256 << 20

// HeapSampler reports free heap bytes.
type HeapSampler interface {
	HeapFree() uint64
}

// RuntimeHeap measures headroom as the distance between the live heap and a
// budget. A zero Budget falls back to the process memory limit (GOMEMLIMIT)
// and then to DefaultHeapBudget.
type RuntimeHeap struct {
	Budget uint64
}

func (h RuntimeHeap) Limit() uint64 {
	if h.Budget > 0 {
		return h.Budget
	}
	if lim := debug.SetMemoryLimit(-1); lim > 0 && lim < math.MaxInt64 {
		return uint64(lim)
	}
	return DefaultHeapBudget
}

func (h RuntimeHeap) HeapFree() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	limit := h.Limit()
	if ms.HeapAlloc >= limit {
		return 0
	}
	return limit - ms.HeapAlloc
}
