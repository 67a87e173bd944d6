// Package framequeue holds frames the user picked one at a time for a later
// batch export.
package framequeue

import (
	"errors"
	"sync"
	"time"

	"github.com/user/framegrab/pkg/pipeline"
)

// ErrOutOfRange is returned by Remove for a bad index.
var ErrOutOfRange = errors.New("queue index out of range")

// Item is one queued frame. Frame is nil when only the position was queued
// and the frame is captured at export time.
type Item struct {
	Name     string
	Position time.Duration
	Frame    *pipeline.CapturedFrame
	AddedAt  time.Time
}

// Queue is an ordered, concurrency-safe list of items.
type Queue struct {
	mu    sync.Mutex
	items []Item
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{}
}

// Add appends an item and returns the new length.
func (q *Queue) Add(item Item) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now()
	}
	q.items = append(q.items, item)
	return len(q.items)
}

// Remove deletes the item at index i.
func (q *Queue) Remove(i int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i < 0 || i >= len(q.items) {
		return ErrOutOfRange
	}
	q.items = append(q.items[:i], q.items[i+1:]...)
	return nil
}

// List returns a copy of the items in insertion order.
func (q *Queue) List() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Item(nil), q.items...)
}

// Clear empties the queue.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}

// Len returns the number of items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
