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

// Package utils contains protocol-agnostic containers used by the consensus
// agent: bounded sets, unique and throttled queues, named timers and a keyed
// task serializer.
package utils

import (
	"container/list"
	"sync"
)

// LimitHashSet is a bounded set with FIFO eviction: once the capacity is
// exceeded the oldest entries are dropped until the bound holds again.
// Re-adding a present element is a no-op and does not refresh its age.
type LimitHashSet struct {
	mu    sync.Mutex
	limit int
	order *list.List
	index map[interface{}]*list.Element
}

// NewLimitHashSet creates a set bounded to limit entries.
func NewLimitHashSet(limit int) *LimitHashSet {
	return &LimitHashSet{
		limit: limit,
		order: list.New(),
		index: make(map[interface{}]*list.Element),
	}
}

// Add inserts the value, evicting the oldest entries if the bound is
// exceeded. Returns false if the value was already present.
func (s *LimitHashSet) Add(v interface{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[v]; ok {
		return false
	}
	s.index[v] = s.order.PushBack(v)
	for s.order.Len() > s.limit {
		oldest := s.order.Front()
		s.order.Remove(oldest)
		delete(s.index, oldest.Value)
	}
	return true
}

// Contains reports whether the value is in the set.
func (s *LimitHashSet) Contains(v interface{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.index[v]
	return ok
}

// Remove drops the value from the set if present.
func (s *LimitHashSet) Remove(v interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.index[v]; ok {
		s.order.Remove(elem)
		delete(s.index, v)
	}
}

// Len returns the number of entries.
func (s *LimitHashSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.order.Len()
}

// Values returns the entries in insertion order.
func (s *LimitHashSet) Values() []interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := make([]interface{}, 0, s.order.Len())
	for elem := s.order.Front(); elem != nil; elem = elem.Next() {
		values = append(values, elem.Value)
	}
	return values
}
