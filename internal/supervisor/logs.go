// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"sync"
	"time"
)

const defaultLogBufferSize = 1000

// LogBuffer is a thread-safe ring buffer of backend output lines with
// subscription support.
type LogBuffer struct {
	mu       sync.RWMutex
	lines    []LogLine
	capacity int
	size     int
	head     int // next write position
	sequence int64

	subMu       sync.RWMutex
	subscribers map[chan LogLine]struct{}
}

// LogLine is a single line of combined backend output.
type LogLine struct {
	Line     string    `json:"line"`
	Sequence int64     `json:"seq"`
	Time     time.Time `json:"time"`
}

// NewLogBuffer creates a new log buffer with the given capacity.
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = defaultLogBufferSize
	}
	return &LogBuffer{
		lines:       make([]LogLine, capacity),
		capacity:    capacity,
		subscribers: make(map[chan LogLine]struct{}),
	}
}

// Write adds a single line to the buffer and notifies subscribers.
func (b *LogBuffer) Write(line string) {
	b.mu.Lock()
	b.sequence++
	entry := LogLine{Line: line, Sequence: b.sequence, Time: time.Now()}
	b.lines[b.head] = entry
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
	b.mu.Unlock()

	b.subMu.RLock()
	for ch := range b.subscribers {
		select {
		case ch <- entry:
		default:
			// Subscriber too slow
		}
	}
	b.subMu.RUnlock()
}

// Subscribe returns a channel that receives new lines.
// The channel has a buffer of 100 lines.
func (b *LogBuffer) Subscribe() chan LogLine {
	ch := make(chan LogLine, 100)
	b.subMu.Lock()
	b.subscribers[ch] = struct{}{}
	b.subMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscription channel.
func (b *LogBuffer) Unsubscribe(ch chan LogLine) {
	b.subMu.Lock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
	b.subMu.Unlock()
}

// Lines returns the text of the last n lines, oldest first.
func (b *LogBuffer) Lines(n int) []string {
	entries := b.Entries(n)
	result := make([]string, len(entries))
	for i, e := range entries {
		result[i] = e.Line
	}
	return result
}

// Entries returns the last n lines with their metadata, oldest first.
func (b *LogBuffer) Entries(n int) []LogLine {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || b.size == 0 {
		return []LogLine{}
	}
	if n > b.size {
		n = b.size
	}

	result := make([]LogLine, n)
	// head points to next write position, so most recent is at head-1
	start := (b.head - n + b.capacity) % b.capacity
	for i := 0; i < n; i++ {
		result[i] = b.lines[(start+i)%b.capacity]
	}
	return result
}

// Sequence returns the sequence number of the most recent line.
func (b *LogBuffer) Sequence() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sequence
}

// Size returns the number of lines in the buffer.
func (b *LogBuffer) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}
