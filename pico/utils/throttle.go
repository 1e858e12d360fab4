// Copyright 2017 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package utils

import (
	"sync"
	"time"

	"github.com/kevinms/leakybucket-go"
)

// throttleKey is the single bucket key of a queue's collector.
const throttleKey = "out"

// ThrottledQueue is a UniqueQueue whose dequeues are gated by a token budget:
// a burst of up to maxAtOnce entries, refilling at tokensPerInterval per
// interval. Enqueues beyond maxBacklog are silently dropped, the queue keeps
// its oldest waiting entries.
type ThrottledQueue struct {
	mu sync.Mutex

	queue      *UniqueQueue
	limiter    *leakybucket.Collector
	maxBacklog int
	stopped    bool
}

// NewThrottledQueue creates a queue allowing bursts of maxAtOnce dequeues and
// a sustained rate of tokensPerInterval dequeues per interval, holding at
// most maxBacklog waiting entries.
func NewThrottledQueue(keyOf KeyFunc, maxAtOnce, tokensPerInterval int, interval time.Duration, maxBacklog int) *ThrottledQueue {
	rate := float64(tokensPerInterval) / interval.Seconds()
	return &ThrottledQueue{
		queue:      NewUniqueQueue(keyOf),
		limiter:    leakybucket.NewCollector(rate, int64(maxAtOnce), false),
		maxBacklog: maxBacklog,
	}
}

// Enqueue appends the value unless it is a duplicate, the backlog is full or
// the queue is stopped. Returns whether the value was accepted.
func (q *ThrottledQueue) Enqueue(v interface{}) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped || q.queue.Len() >= q.maxBacklog {
		return false
	}
	return q.queue.Enqueue(v)
}

// Dequeue removes and returns the oldest entry, consuming one token. Returns
// nil when the backlog is empty or no token is available.
func (q *ThrottledQueue) Dequeue() interface{} {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped || q.limiter.Remaining(throttleKey) < 1 {
		return nil
	}
	v := q.queue.Dequeue()
	if v != nil {
		q.limiter.Add(throttleKey, 1)
	}
	return v
}

// DequeueMulti removes and returns up to n entries, bounded by the backlog
// and the available tokens.
func (q *ThrottledQueue) DequeueMulti(n int) []interface{} {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return nil
	}
	if tokens := int(q.limiter.Remaining(throttleKey)); n > tokens {
		n = tokens
	}
	values := q.queue.DequeueMulti(n)
	if len(values) > 0 {
		q.limiter.Add(throttleKey, int64(len(values)))
	}
	return values
}

// Available returns how many entries could be dequeued right now.
func (q *ThrottledQueue) Available() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return 0
	}
	available := q.queue.Len()
	if tokens := int(q.limiter.Remaining(throttleKey)); available > tokens {
		available = tokens
	}
	return available
}

// IsAvailable reports whether a dequeue would currently yield an entry.
func (q *ThrottledQueue) IsAvailable() bool {
	return q.Available() > 0
}

// Remove drops the entry sharing the value's key, if queued.
func (q *ThrottledQueue) Remove(v interface{}) {
	q.queue.Remove(v)
}

// Contains reports whether an entry with the value's key is queued.
func (q *ThrottledQueue) Contains(v interface{}) bool {
	return q.queue.Contains(v)
}

// Len returns the backlog length.
func (q *ThrottledQueue) Len() int {
	return q.queue.Len()
}

// Stop permanently halts the queue and drains the backlog.
func (q *ThrottledQueue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.stopped = true
	q.queue.Clear()
}
