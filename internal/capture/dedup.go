package capture

import (
	"github.com/bits-and-blooms/bloom/v3"
)

// defaultExactLimit caps the exact set kept next to the bloom filter.
const defaultExactLimit = 10000

// deduplicator remembers normalized URLs. The bloom filter answers every
// miss. Up to exactLimit keys are also kept exactly to settle its false
// positives; past that the filter alone decides, so memory stays bounded
// at the cost of its false-positive rate. It is not safe for concurrent use
// on its own; the collector guards it.
type deduplicator struct {
	filter     *bloom.BloomFilter
	exact      map[string]struct{}
	exactLimit int
	count      int
}

func newDeduplicator(estimatedItems, exactLimit int) *deduplicator {
	if estimatedItems < 1000 {
		estimatedItems = 1000
	}
	if exactLimit <= 0 {
		exactLimit = defaultExactLimit
	}
	return &deduplicator{
		filter:     bloom.NewWithEstimates(uint(estimatedItems), 0.001),
		exact:      make(map[string]struct{}),
		exactLimit: exactLimit,
	}
}

// Add records key and reports whether it was new.
func (d *deduplicator) Add(key string) bool {
	if d.filter.TestString(key) {
		if _, ok := d.exact[key]; ok || len(d.exact) >= d.exactLimit {
			return false
		}
	}
	d.filter.AddString(key)
	if len(d.exact) < d.exactLimit {
		d.exact[key] = struct{}{}
	}
	d.count++
	return true
}

// Len returns the number of keys accepted as new.
func (d *deduplicator) Len() int {
	return d.count
}
