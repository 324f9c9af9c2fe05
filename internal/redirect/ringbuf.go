package redirect

import "sync"

// RingBuffer is a fixed-size circular buffer that overwrites the oldest data
// when full. It keeps the tail of a captured stream and counts what it had
// to drop.
type RingBuffer struct {
	mu      sync.Mutex
	buf     []byte
	size    int
	pos     int  // next write position
	full    bool // true once the buffer has wrapped at least once
	written int64
}

// NewRingBuffer creates a ring buffer with the given capacity.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 1
	}
	return &RingBuffer{
		buf:  make([]byte, size),
		size: size,
	}
}

// Write appends data to the buffer, overwriting oldest bytes if full.
// It never fails, so a producer writing through it is never blocked.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(p)
	if n == 0 {
		return 0, nil
	}
	rb.written += int64(n)

	// Larger than the buffer: only the tail survives.
	if n >= rb.size {
		copy(rb.buf, p[n-rb.size:])
		rb.pos = 0
		rb.full = true
		return n, nil
	}

	remaining := rb.size - rb.pos
	if n <= remaining {
		copy(rb.buf[rb.pos:], p)
	} else {
		copy(rb.buf[rb.pos:], p[:remaining])
		copy(rb.buf, p[remaining:])
	}

	newPos := rb.pos + n
	if newPos >= rb.size {
		rb.full = true
		newPos -= rb.size
	}
	rb.pos = newPos

	return n, nil
}

// Snapshot returns the buffered data in order without resetting the buffer,
// along with the number of bytes that were overwritten so far.
func (rb *RingBuffer) Snapshot() ([]byte, int64) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	var result []byte
	if rb.full {
		// [pos..size) + [0..pos)
		result = make([]byte, rb.size)
		copy(result, rb.buf[rb.pos:])
		copy(result[rb.size-rb.pos:], rb.buf[:rb.pos])
	} else {
		result = make([]byte, rb.pos)
		copy(result, rb.buf[:rb.pos])
	}
	return result, rb.written - int64(len(result))
}

// Len returns the number of bytes currently in the buffer.
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.full {
		return rb.size
	}
	return rb.pos
}

// Written returns the number of bytes ever written.
func (rb *RingBuffer) Written() int64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.written
}

// Dropped returns the number of bytes lost to overflow.
func (rb *RingBuffer) Dropped() int64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	kept := int64(rb.pos)
	if rb.full {
		kept = int64(rb.size)
	}
	return rb.written - kept
}
