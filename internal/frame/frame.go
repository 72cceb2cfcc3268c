// Package frame holds the latest camera frame in a single-slot buffer.
//
// The camera callback runs on the driving adapter's read goroutine while
// consumers poll from elsewhere, so the slot owns its data behind a mutex.
// Writes overwrite; reads return the latest frame or nothing.
package frame

import "sync"

// Frame is one camera image as delivered by the driving engine.
type Frame struct {
	Seq    int64
	Width  int
	Height int
	Data   []byte // raw pixel payload, format is engine-defined
}

// Buffer is a single-slot frame store. The zero value is ready to use.
type Buffer struct {
	mu     sync.Mutex
	latest Frame
	filled bool
}

// Store overwrites the slot with f. The buffer keeps its own copy of the
// pixel data so callers may reuse their slice.
func (b *Buffer) Store(f Frame) {
	data := make([]byte, len(f.Data))
	copy(data, f.Data)
	f.Data = data

	b.mu.Lock()
	b.latest = f
	b.filled = true
	b.mu.Unlock()
}

// Latest returns the most recent frame, or ok=false if none was stored yet.
func (b *Buffer) Latest() (Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest, b.filled
}
