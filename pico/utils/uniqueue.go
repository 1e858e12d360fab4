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
	"container/list"
	"sync"
)

// KeyFunc derives the identity key of a queue entry. A nil KeyFunc uses the
// entry itself, which must then be comparable.
type KeyFunc func(interface{}) interface{}

// UniqueQueue is a FIFO queue rejecting duplicate entries. Duplicate detection
// and removal work on the entry's key, so wrapper values sharing a key with
// their underlying identifier are interchangeable in removals.
type UniqueQueue struct {
	mu    sync.Mutex
	keyOf KeyFunc
	order *list.List
	index map[interface{}]*list.Element
}

// NewUniqueQueue creates an empty queue. keyOf may be nil.
func NewUniqueQueue(keyOf KeyFunc) *UniqueQueue {
	q := &UniqueQueue{
		keyOf: keyOf,
		order: list.New(),
		index: make(map[interface{}]*list.Element),
	}
	if q.keyOf == nil {
		q.keyOf = func(v interface{}) interface{} { return v }
	}
	return q
}

// Enqueue appends the value unless its key is already queued. Returns whether
// the value was accepted.
func (q *UniqueQueue) Enqueue(v interface{}) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.enqueue(v)
}

func (q *UniqueQueue) enqueue(v interface{}) bool {
	key := q.keyOf(v)
	if _, ok := q.index[key]; ok {
		return false
	}
	q.index[key] = q.order.PushBack(v)
	return true
}

// EnqueueAll appends every value whose key is not yet queued, preserving the
// input order of first occurrences.
func (q *UniqueQueue) EnqueueAll(vs []interface{}) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, v := range vs {
		q.enqueue(v)
	}
}

// Dequeue removes and returns the oldest entry, or nil if empty.
func (q *UniqueQueue) Dequeue() interface{} {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.dequeue()
}

func (q *UniqueQueue) dequeue() interface{} {
	front := q.order.Front()
	if front == nil {
		return nil
	}
	q.order.Remove(front)
	delete(q.index, q.keyOf(front.Value))
	return front.Value
}

// DequeueMulti removes and returns up to n entries in FIFO order.
func (q *UniqueQueue) DequeueMulti(n int) []interface{} {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.dequeueMulti(n)
}

func (q *UniqueQueue) dequeueMulti(n int) []interface{} {
	if n > q.order.Len() {
		n = q.order.Len()
	}
	if n <= 0 {
		return nil
	}
	values := make([]interface{}, 0, n)
	for len(values) < n {
		values = append(values, q.dequeue())
	}
	return values
}

// Remove drops the entry sharing the value's key, if queued.
func (q *UniqueQueue) Remove(v interface{}) {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := q.keyOf(v)
	if elem, ok := q.index[key]; ok {
		q.order.Remove(elem)
		delete(q.index, key)
	}
}

// Contains reports whether an entry with the value's key is queued.
func (q *UniqueQueue) Contains(v interface{}) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, ok := q.index[q.keyOf(v)]
	return ok
}

// Len returns the number of queued entries.
func (q *UniqueQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.order.Len()
}

// Clear drops all queued entries.
func (q *UniqueQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.order.Init()
	q.index = make(map[interface{}]*list.Element)
}
