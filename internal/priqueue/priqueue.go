// Package priqueue implements the priority collection from spec §4.1: a
// concurrent mapping from integer priority to either a FIFO queue or a
// LIFO stack of items, with Get() always returning from the
// highest-priority non-empty bucket.
package priqueue

import (
	"container/list"
	"sync"

	"github.com/emirpasic/gods/sets/treeset"
	"github.com/emirpasic/gods/utils"
)

// Kind selects the tie-break discipline within a priority bucket.
type Kind int

const (
	// Queue dequeues items within a bucket in the order they were set
	// (FIFO).
	Queue Kind = iota
	// Stack dequeues items within a bucket in reverse of the order they
	// were set (LIFO).
	Stack
)

// Collection is the priority collection described by spec §4.1. The
// zero value is not usable; construct with New. A Collection is safe
// for concurrent use.
//
// The "set of currently-present priorities, sorted only when the set
// changes" that the spec calls for is backed by a gods treeset: a
// red-black tree keeps priorities in order incrementally, so there is no
// separate dirty-flag-and-resort pass to maintain — insertion and
// removal from the tree are themselves the only bookkeeping needed.
type Collection[T any] struct {
	mu         sync.Mutex
	kind       Kind
	buckets    map[int]*list.List
	priorities *treeset.Set
}

// descendingInt orders highest priority first so the tree's natural
// iteration order is already "best item next".
func descendingInt(a, b interface{}) int {
	return utils.IntComparator(b, a)
}

// New creates an empty Collection of the given kind.
func New[T any](kind Kind) *Collection[T] {
	return &Collection[T]{
		kind:       kind,
		buckets:    make(map[int]*list.List),
		priorities: treeset.NewWith(descendingInt),
	}
}

// Set inserts item into the bucket for priority. O(1) amortized for the
// bucket push; O(log n) in the number of distinct priorities currently
// present for the tree update.
func (c *Collection[T]) Set(item T, priority int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket, ok := c.buckets[priority]
	if !ok {
		bucket = list.New()
		c.buckets[priority] = bucket
		c.priorities.Add(priority)
	}

	if c.kind == Stack {
		bucket.PushFront(item)
	} else {
		bucket.PushBack(item)
	}
}

// Get removes and returns the item from the highest-priority non-empty
// bucket. Within that bucket, FIFO order is preserved for a Queue and
// LIFO order for a Stack — both disciplines pop from the bucket's front,
// since Set pushes to the back (queue) or the front (stack)
// respectively. ok is false if the collection is empty.
func (c *Collection[T]) Get() (item T, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.priorities.Empty() {
		var zero T
		return zero, false
	}

	it := c.priorities.Iterator()
	it.Next()
	priority := it.Value().(int)

	bucket := c.buckets[priority]
	front := bucket.Front()
	value := bucket.Remove(front).(T)

	if bucket.Len() == 0 {
		delete(c.buckets, priority)
		c.priorities.Remove(priority)
	}

	return value, true
}

// Len returns the total number of items across all buckets.
func (c *Collection[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, bucket := range c.buckets {
		n += bucket.Len()
	}
	return n
}

// Priorities returns the distinct priorities currently holding at least
// one item, highest first.
func (c *Collection[T]) Priorities() []int {
	c.mu.Lock()
	defer c.mu.Unlock()

	values := c.priorities.Values()
	out := make([]int, 0, len(values))
	for _, v := range values {
		out = append(out, v.(int))
	}
	return out
}
