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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottledQueueTokenGate(t *testing.T) {
	// Burst of 3, refilling one token per second.
	q := NewThrottledQueue(nil, 3, 1, time.Second, 100)
	for i := 0; i < 10; i++ {
		q.Enqueue(i)
	}
	require.True(t, q.IsAvailable())

	// Only the burst allowance comes out at once.
	assert.Len(t, q.DequeueMulti(10), 3)
	assert.False(t, q.IsAvailable())
	assert.Nil(t, q.Dequeue())
	assert.Equal(t, 7, q.Len())
}

func TestThrottledQueueRefill(t *testing.T) {
	// Burst of 2, refilling 2 tokens per 100ms.
	q := NewThrottledQueue(nil, 2, 2, 100*time.Millisecond, 100)
	for i := 0; i < 6; i++ {
		q.Enqueue(i)
	}
	assert.Len(t, q.DequeueMulti(10), 2)
	assert.Equal(t, 0, q.Available())

	time.Sleep(150 * time.Millisecond)
	assert.Len(t, q.DequeueMulti(10), 2)
}

func TestThrottledQueueBacklogBound(t *testing.T) {
	q := NewThrottledQueue(nil, 10, 10, time.Second, 3)

	require.True(t, q.Enqueue("a"))
	require.True(t, q.Enqueue("b"))
	require.True(t, q.Enqueue("c"))

	// Entries beyond the backlog bound are dropped, the oldest stay.
	require.False(t, q.Enqueue("d"))
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, "a", q.Dequeue())
}

func TestThrottledQueueStop(t *testing.T) {
	q := NewThrottledQueue(nil, 10, 10, time.Second, 100)
	q.Enqueue("a")

	q.Stop()
	assert.Equal(t, 0, q.Len())
	assert.False(t, q.Enqueue("b"))
	assert.Nil(t, q.Dequeue())
	assert.False(t, q.IsAvailable())
}
