package runtime

import (
	"fmt"
	"sync"
)

const DefaultMaxBytes int64 = 512 * 1024 * 1024

// ByteBudget bounds the bytes read across every chunk of one capture load.
type ByteBudget struct {
	mu      sync.Mutex
	current int64
	peak    int64
	limit   int64
}

func NewByteBudget(limit int64) *ByteBudget {
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	return &ByteBudget{limit: limit}
}

// Add records n bytes and reports whether the budget is now exceeded.
func (b *ByteBudget) Add(n int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > 0 {
		b.current += n
		if b.current > b.peak {
			b.peak = b.current
		}
	}
	return b.current > b.limit
}

// Remaining is the number of bytes that may still be added.
func (b *ByteBudget) Remaining() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r := b.limit - b.current; r > 0 {
		return r
	}
	return 0
}

// Peak is the highest byte count reached, including overshoot past the limit.
func (b *ByteBudget) Peak() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.peak
}

func (b *ByteBudget) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current <= b.limit {
		return nil
	}
	return fmt.Errorf("capture exceeds max bytes limit (%d); set TLAT_MAX_BYTES to override", b.limit)
}
