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
	"errors"
	"sync"
)

var (
	// ErrCanceled rejects tasks dropped by Clear or Close before running.
	ErrCanceled = errors.New("task canceled")
	// ErrSyncClosed rejects pushes to a closed synchronizer.
	ErrSyncClosed = errors.New("synchronizer is closed")
)

// Synchronizer serializes tasks grouped by a string key: tasks sharing a key
// run one at a time in submission order, tasks under different keys run
// independently. A task failing does not block its successors.
type Synchronizer struct {
	mu      sync.Mutex
	queues  map[string][]*syncTask
	running map[string]bool
	closed  bool
}

type syncTask struct {
	fn   func()
	done chan error
}

// NewSynchronizer creates an empty synchronizer.
func NewSynchronizer() *Synchronizer {
	return &Synchronizer{
		queues:  make(map[string][]*syncTask),
		running: make(map[string]bool),
	}
}

// Push appends the task to the key's queue and returns immediately. The task
// runs once every earlier task under the same key has settled.
func (s *Synchronizer) Push(key string, fn func()) error {
	return s.push(key, &syncTask{fn: fn})
}

// PushWait appends the task like Push and blocks until it has run. It returns
// ErrCanceled if the task was dropped before running.
func (s *Synchronizer) PushWait(key string, fn func()) error {
	task := &syncTask{fn: fn, done: make(chan error, 1)}
	if err := s.push(key, task); err != nil {
		return err
	}
	return <-task.done
}

func (s *Synchronizer) push(key string, task *syncTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSyncClosed
	}
	s.queues[key] = append(s.queues[key], task)
	if !s.running[key] {
		s.running[key] = true
		go s.drain(key)
	}
	return nil
}

func (s *Synchronizer) drain(key string) {
	for {
		s.mu.Lock()
		queue := s.queues[key]
		if len(queue) == 0 {
			delete(s.queues, key)
			delete(s.running, key)
			s.mu.Unlock()
			return
		}
		task := queue[0]
		s.queues[key] = queue[1:]
		s.mu.Unlock()

		task.fn()
		if task.done != nil {
			task.done <- nil
		}
	}
}

// Clear drops every queued but not yet started task, rejecting their waiters
// with ErrCanceled. Running tasks are unaffected.
func (s *Synchronizer) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clear()
}

func (s *Synchronizer) clear() {
	for key, queue := range s.queues {
		for _, task := range queue {
			if task.done != nil {
				task.done <- ErrCanceled
			}
		}
		s.queues[key] = nil
	}
}

// Close clears queued tasks and rejects all future pushes.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.clear()
}
