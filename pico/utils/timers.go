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
)

// Timers is a registry of named one-shot timers and repeating intervals.
// Setting a name that is already registered replaces the previous timer.
type Timers struct {
	mu        sync.Mutex
	oneshots  map[string]*oneshot
	intervals map[string]*interval
}

type oneshot struct {
	timer *time.Timer
	fn    func()
}

type interval struct {
	ticker *time.Ticker
	quit   chan struct{}
}

// NewTimers creates an empty registry.
func NewTimers() *Timers {
	return &Timers{
		oneshots:  make(map[string]*oneshot),
		intervals: make(map[string]*interval),
	}
}

// Set arms a one-shot timer firing fn after d, replacing any timer already
// registered under name.
func (t *Timers) Set(name string, d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.clear(name)
	entry := &oneshot{fn: fn}
	entry.timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		if t.oneshots[name] == entry {
			delete(t.oneshots, name)
		}
		t.mu.Unlock()
		fn()
	})
	t.oneshots[name] = entry
}

// SetInterval arms a repeating timer firing fn every d, replacing any timer
// already registered under name.
func (t *Timers) SetInterval(name string, d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.clear(name)
	entry := &interval{
		ticker: time.NewTicker(d),
		quit:   make(chan struct{}),
	}
	t.intervals[name] = entry
	go func() {
		for {
			select {
			case <-entry.ticker.C:
				fn()
			case <-entry.quit:
				return
			}
		}
	}()
}

// Reset re-arms the named one-shot timer to fire after d from now. Missing
// timers are ignored.
func (t *Timers) Reset(name string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.oneshots[name]; ok {
		entry.timer.Stop()
		fn := entry.fn
		t.clear(name)
		replacement := &oneshot{fn: fn}
		replacement.timer = time.AfterFunc(d, func() {
			t.mu.Lock()
			if t.oneshots[name] == replacement {
				delete(t.oneshots, name)
			}
			t.mu.Unlock()
			fn()
		})
		t.oneshots[name] = replacement
	}
}

// Has reports whether a timer is registered under name.
func (t *Timers) Has(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, one := t.oneshots[name]
	_, rep := t.intervals[name]
	return one || rep
}

// Clear stops and removes the named timer.
func (t *Timers) Clear(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.clear(name)
}

func (t *Timers) clear(name string) {
	if entry, ok := t.oneshots[name]; ok {
		entry.timer.Stop()
		delete(t.oneshots, name)
	}
	if entry, ok := t.intervals[name]; ok {
		entry.ticker.Stop()
		close(entry.quit)
		delete(t.intervals, name)
	}
}

// ClearAll stops and removes every registered timer.
func (t *Timers) ClearAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for name := range t.oneshots {
		t.clear(name)
	}
	for name := range t.intervals {
		t.clear(name)
	}
}
