// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bufpool

import (
	"fmt"
	"sync"
)

// defaultInitialSize is the starting capacity of a freshly allocated
// buffer. Most protocol messages (method calls, sync requests, small
// property batches) fit without growing.
const defaultInitialSize = 256

// defaultRetainLimit caps the capacity of buffers kept in the pool.
// A buffer that grew past this (a large history dump, say) is shrunk
// back to a fresh allocation on release so one oversized message does
// not pin memory for the life of the pool.
const defaultRetainLimit = 1 << 20

// Options configures a Pool.
type Options struct {
	// InitialSize is the capacity of newly allocated buffers.
	// Zero means 256 bytes.
	InitialSize int

	// RetainLimit is the largest buffer capacity kept on release.
	// Larger buffers are replaced by a fresh InitialSize allocation
	// (the pool capacity does not change). Zero means 1 MiB.
	RetainLimit int
}

// Pool is a fixed-growth pool of reusable buffers.
type Pool struct {
	mu          sync.Mutex
	free        []*Buffer
	capacity    int
	initialSize int
	retainLimit int
	closed      bool
}

// New creates an empty pool. Buffers are allocated lazily.
func New(options Options) *Pool {
	if options.InitialSize <= 0 {
		options.InitialSize = defaultInitialSize
	}
	if options.RetainLimit <= 0 {
		options.RetainLimit = defaultRetainLimit
	}
	return &Pool{
		initialSize: options.InitialSize,
		retainLimit: options.RetainLimit,
	}
}

// Acquire returns an empty buffer owned by the caller until it calls
// Release. If the pool has no free buffer it grows by one allocation.
func (p *Pool) Acquire() *Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		panic("bufpool: Acquire on closed pool")
	}

	if count := len(p.free); count > 0 {
		buffer := p.free[count-1]
		p.free[count-1] = nil
		p.free = p.free[:count-1]
		buffer.checkedOut = true
		return buffer
	}

	p.capacity++
	return &Buffer{
		pool:       p,
		data:       make([]byte, 0, p.initialSize),
		checkedOut: true,
	}
}

// Capacity returns the number of buffers the pool has ever allocated.
func (p *Pool) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity
}

// Pooled returns the number of buffers currently available.
func (p *Pool) Pooled() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Outstanding returns the number of buffers currently checked out.
func (p *Pool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity - len(p.free)
}

// Close releases the pool. Every acquired buffer must have been
// released first; an outstanding buffer is an ownership bug and
// panics with the count.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if outstanding := p.capacity - len(p.free); outstanding != 0 {
		panic(fmt.Sprintf("bufpool: closing pool with %d of %d buffers still checked out",
			outstanding, p.capacity))
	}
	p.closed = true
	p.free = nil
}

func (p *Pool) put(buffer *Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !buffer.checkedOut {
		panic("bufpool: buffer released twice")
	}
	buffer.checkedOut = false
	if cap(buffer.data) > p.retainLimit {
		buffer.data = make([]byte, 0, p.initialSize)
	} else {
		buffer.data = buffer.data[:0]
	}
	p.free = append(p.free, buffer)
}

// Buffer is a growable byte slice borrowed from a Pool. A Buffer must
// have exactly one owner; the owner calls Release exactly once.
type Buffer struct {
	pool       *Pool
	data       []byte
	checkedOut bool
}

// Bytes returns the buffer contents. The slice is valid until the next
// mutating call or Release.
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the number of bytes in the buffer.
func (b *Buffer) Len() int { return len(b.data) }

// Append appends bytes to the buffer.
func (b *Buffer) Append(data ...byte) {
	b.data = append(b.data, data...)
}

// Set replaces the buffer contents with a copy of data.
func (b *Buffer) Set(data []byte) {
	b.data = append(b.data[:0], data...)
}

// Resize sets the length of the buffer to n, growing the backing array
// if needed. New bytes are zero. Returns the resized contents for
// in-place filling (e.g. by a decompressor or io.ReadFull).
func (b *Buffer) Resize(n int) []byte {
	if n <= cap(b.data) {
		b.data = b.data[:n]
		clear(b.data)
		return b.data
	}
	b.data = make([]byte, n)
	return b.data
}

// Reset empties the buffer without releasing it.
func (b *Buffer) Reset() { b.data = b.data[:0] }

// Release returns the buffer to its pool. The buffer must not be used
// afterwards. Releasing twice panics.
func (b *Buffer) Release() {
	b.pool.put(b)
}
