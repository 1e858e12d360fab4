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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynchronizerOrdering(t *testing.T) {
	s := NewSynchronizer()
	defer s.Close()

	var (
		mu  sync.Mutex
		ran []int
	)
	gate := make(chan struct{})
	for i := 0; i < 100; i++ {
		i := i
		require.NoError(t, s.Push("key", func() {
			if i == 0 {
				<-gate
			}
			mu.Lock()
			ran = append(ran, i)
			mu.Unlock()
		}))
	}
	// The first task blocks the whole queue until released.
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Empty(t, ran)
	mu.Unlock()
	close(gate)

	require.NoError(t, s.PushWait("key", func() {}))
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, ran, 100)
	for i, v := range ran {
		assert.Equal(t, i, v, "task ran out of order")
	}
}

func TestSynchronizerIndependentKeys(t *testing.T) {
	s := NewSynchronizer()
	defer s.Close()

	gate := make(chan struct{})
	require.NoError(t, s.Push("slow", func() { <-gate }))

	// A task under another key is not held up by the blocked queue.
	done := make(chan struct{})
	require.NoError(t, s.Push("fast", func() { close(done) }))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("independent key blocked")
	}
	close(gate)
}

func TestSynchronizerClear(t *testing.T) {
	s := NewSynchronizer()
	defer s.Close()

	gate := make(chan struct{})
	require.NoError(t, s.Push("key", func() { <-gate }))

	errc := make(chan error, 1)
	go func() {
		errc <- s.PushWait("key", func() { t.Error("canceled task ran") })
	}()
	time.Sleep(20 * time.Millisecond)
	s.Clear()
	close(gate)

	assert.Equal(t, ErrCanceled, <-errc)
}

func TestSynchronizerClosed(t *testing.T) {
	s := NewSynchronizer()
	s.Close()

	assert.Equal(t, ErrSyncClosed, s.Push("key", func() {}))
	assert.Equal(t, ErrSyncClosed, s.PushWait("key", func() {}))
}
