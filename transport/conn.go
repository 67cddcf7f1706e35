// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/bureau-foundation/liveprobe/lib/netutil"
)

// ErrClosed is returned by Write and Flush after Close.
var ErrClosed = errors.New("transport: connection closed")

// DefaultReadSize is the read buffer size of a Conn.
const DefaultReadSize = 64 * 1024

// ConnOptions configures a Conn.
type ConnOptions struct {
	// ReadSize is the size of each read from the socket. Zero means
	// DefaultReadSize.
	ReadSize int

	Logger *slog.Logger
}

// Conn adapts a net.Conn to an endpoint stream. A reader goroutine
// delivers received bytes on Data; a writer goroutine drains an
// unbounded queue of frames, so Write never blocks on the socket.
type Conn struct {
	conn   net.Conn
	logger *slog.Logger
	data   chan []byte
	done   chan struct{}

	mu       sync.Mutex
	queue    [][]byte
	queued   uint64
	written  uint64
	writeErr error
	closed   bool
	// progress is closed and replaced whenever the writer finishes a
	// frame or fails, waking Flush callers.
	progress chan struct{}
	wake     chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewConn starts the reader and writer goroutines for conn.
func NewConn(conn net.Conn, options ConnOptions) *Conn {
	if options.ReadSize <= 0 {
		options.ReadSize = DefaultReadSize
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	c := &Conn{
		conn:     conn,
		logger:   options.Logger.With("remote", conn.RemoteAddr().String()),
		data:     make(chan []byte, 16),
		done:     make(chan struct{}),
		progress: make(chan struct{}),
		wake:     make(chan struct{}, 1),
	}
	go c.readLoop(options.ReadSize)
	go c.writeLoop()
	return c
}

// Data delivers received bytes. The channel is closed when the peer
// hangs up, a read fails, or Close is called.
func (c *Conn) Data() <-chan []byte { return c.data }

// LocalAddr returns the local network address.
func (c *Conn) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Write queues one frame. The frame is copied, so the caller may reuse
// p. Write fails once the connection is closed or a previous write
// failed.
func (c *Conn) Write(p []byte) (int, error) {
	frame := make([]byte, len(p))
	copy(frame, p)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrClosed
	}
	if c.writeErr != nil {
		err := c.writeErr
		c.mu.Unlock()
		return 0, err
	}
	c.queue = append(c.queue, frame)
	c.queued++
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return len(p), nil
}

// Flush blocks until every frame queued before the call has been
// written to the socket.
func (c *Conn) Flush(ctx context.Context) error {
	c.mu.Lock()
	target := c.queued
	c.mu.Unlock()

	for {
		c.mu.Lock()
		written, err, closed, progress := c.written, c.writeErr, c.closed, c.progress
		c.mu.Unlock()

		if written >= target {
			return nil
		}
		if err != nil {
			return err
		}
		if closed {
			return ErrClosed
		}
		select {
		case <-progress:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close closes the socket and stops both goroutines. Frames still
// queued are discarded; call Flush first to deliver them.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.signalProgressLocked()
		c.mu.Unlock()
		close(c.done)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *Conn) signalProgressLocked() {
	close(c.progress)
	c.progress = make(chan struct{})
}

func (c *Conn) readLoop(size int) {
	defer close(c.data)
	for {
		buffer := make([]byte, size)
		n, err := c.conn.Read(buffer)
		if n > 0 {
			select {
			case c.data <- buffer[:n]:
			case <-c.done:
				return
			}
		}
		if err != nil {
			select {
			case <-c.done:
			default:
				if netutil.IsExpectedCloseError(err) {
					c.logger.Debug("peer closed the connection", "error", err)
				} else {
					c.logger.Warn("read failed", "error", err)
				}
			}
			return
		}
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
		}

		for {
			c.mu.Lock()
			if c.closed || len(c.queue) == 0 {
				c.mu.Unlock()
				break
			}
			frame := c.queue[0]
			c.queue[0] = nil
			c.queue = c.queue[1:]
			c.mu.Unlock()

			_, err := c.conn.Write(frame)

			c.mu.Lock()
			if err != nil && c.closed {
				c.mu.Unlock()
				return
			}
			if err != nil {
				c.writeErr = err
				c.queue = nil
				c.signalProgressLocked()
				c.mu.Unlock()
				if netutil.IsExpectedCloseError(err) {
					c.logger.Debug("peer went away during write, closing connection", "error", err)
				} else {
					c.logger.Warn("write failed, closing connection", "error", err)
				}
				c.Close()
				return
			}
			c.written++
			c.signalProgressLocked()
			c.mu.Unlock()
		}
	}
}
