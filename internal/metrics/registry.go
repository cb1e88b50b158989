package metrics

import (
	"sync/atomic"
	"time"
)

const (
	// BucketCount is the number of latency histogram buckets.
	BucketCount   = 8
	cacheLineSize = 64
)

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

type histogram struct {
	buckets [BucketCount]uint64
}

// Registry is a fixed set of counters and histograms addressed by index.
type Registry struct {
	counters   []paddedCounter
	histograms []histogram
}

// NewRegistry allocates n counters and n histograms.
func NewRegistry(n int) *Registry {
	if n < 0 {
		n = 0
	}
	return &Registry{
		counters:   make([]paddedCounter, n),
		histograms: make([]histogram, n),
	}
}

// Len returns the number of slots.
func (r *Registry) Len() int {
	return len(r.counters)
}

// Inc increments counter i. Out-of-range indexes are ignored.
func (r *Registry) Inc(i int) {
	if i < 0 || i >= len(r.counters) {
		return
	}
	atomic.AddUint64(&r.counters[i].value, 1)
}

// Observe records d in histogram i.
func (r *Registry) Observe(i int, d time.Duration) {
	if i < 0 || i >= len(r.histograms) {
		return
	}
	atomic.AddUint64(&r.histograms[i].buckets[BucketIndex(d)], 1)
}

// Value returns counter i.
func (r *Registry) Value(i int) uint64 {
	if i < 0 || i >= len(r.counters) {
		return 0
	}
	return atomic.LoadUint64(&r.counters[i].value)
}

// Buckets returns the non-cumulative bucket counts of histogram i.
func (r *Registry) Buckets(i int) []uint64 {
	out := make([]uint64, BucketCount)
	if i < 0 || i >= len(r.histograms) {
		return out
	}
	for b := 0; b < BucketCount; b++ {
		out[b] = atomic.LoadUint64(&r.histograms[i].buckets[b])
	}
	return out
}

// BucketIndex maps a latency to its bucket.
func BucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
