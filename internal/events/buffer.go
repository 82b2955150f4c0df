package events

import (
	"fmt"
	"sync"
)

// Buffer is a bounded, newest-first event buffer. When full, inserting
// evicts the oldest entry. The socket reader and the view goroutine both
// touch it, so every method is safe for concurrent use.
type Buffer struct {
	mu       sync.Mutex
	capacity int
	items    []ChangeEvent
}

// NewBuffer creates a buffer holding at most capacity events.
func NewBuffer(capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("events: buffer capacity must be positive, got %d", capacity)
	}
	return &Buffer{
		capacity: capacity,
		items:    make([]ChangeEvent, 0, capacity),
	}, nil
}

// Insert prepends the event, evicting the oldest entry when full.
func (b *Buffer) Insert(ev ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == b.capacity {
		b.items = b.items[:len(b.items)-1]
	}
	b.items = append([]ChangeEvent{ev}, b.items...)
}

// Items returns a snapshot copy, newest first.
func (b *Buffer) Items() []ChangeEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ChangeEvent, len(b.items))
	copy(out, b.items)
	return out
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int {
	return b.capacity
}

// Clear drops all buffered events. The capacity is unchanged.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = b.items[:0]
}

// Counts tallies buffered events per operation. It is a pure projection of
// the current contents: clearing the buffer zeroes it.
func (b *Buffer) Counts() map[Operation]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	counts := make(map[Operation]int)
	for _, ev := range b.items {
		counts[ev.Operation]++
	}
	return counts
}
