package audiocore

import "sync/atomic"

// RingBuffer is a fixed-capacity single-producer single-consumer sample queue.
//
// Exactly one goroutine may call the producer methods (TryWrite, Prefill) and
// exactly one goroutine may call Read. Neither side blocks, locks or
// allocates. Indices run freely and are reduced modulo capacity on access;
// the producer stores its index only after the samples are copied in, and the
// consumer stores its index only after the samples are copied out.
type RingBuffer struct {
	buf      []float32
	capacity uint64

	write atomic.Uint64
	_     [56]byte // keep the indices on separate cache lines
	read  atomic.Uint64
}

// NewRingBuffer allocates a ring holding exactly capacity samples.
// It panics if capacity is not positive.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		panic("audiocore: ring buffer capacity must be positive")
	}
	return &RingBuffer{
		buf:      make([]float32, capacity),
		capacity: uint64(capacity),
	}
}

// Capacity returns the number of samples the ring can hold.
func (rb *RingBuffer) Capacity() int {
	return int(rb.capacity)
}

// Len returns the number of buffered samples. The answer is exact when called
// from either the producer or the consumer goroutine and approximate otherwise.
func (rb *RingBuffer) Len() int {
	r := rb.read.Load()
	w := rb.write.Load()
	n := w - r
	if n > rb.capacity {
		n = rb.capacity
	}
	return int(n)
}

// Free returns the number of samples that can be written without dropping.
func (rb *RingBuffer) Free() int {
	return int(rb.capacity) - rb.Len()
}

// TryWrite copies as many samples as fit and returns that count.
// Samples that do not fit are dropped from the tail of the slice.
func (rb *RingBuffer) TryWrite(samples []float32) int {
	return rb.writeScaled(samples, 1)
}

// Prefill writes up to n zero samples through the producer path and returns
// the number written.
func (rb *RingBuffer) Prefill(n int) int {
	if n <= 0 {
		return 0
	}
	w := rb.write.Load()
	free := rb.capacity - (w - rb.read.Load())
	count := min(uint64(n), free)
	for i := range count {
		rb.buf[(w+i)%rb.capacity] = 0
	}
	rb.write.Store(w + count)
	return int(count)
}

// writeScaled is TryWrite with every sample multiplied by gain on the way in.
func (rb *RingBuffer) writeScaled(samples []float32, gain float32) int {
	w := rb.write.Load()
	free := rb.capacity - (w - rb.read.Load())
	n := min(uint64(len(samples)), free)
	if n == 0 {
		return 0
	}

	pos := w % rb.capacity
	first := min(n, rb.capacity-pos)
	if gain == 1 {
		copy(rb.buf[pos:pos+first], samples[:first])
		copy(rb.buf[:n-first], samples[first:n])
	} else {
		head := rb.buf[pos : pos+first]
		for i := range head {
			head[i] = samples[i] * gain
		}
		tail := rb.buf[:n-first]
		for i := range tail {
			tail[i] = samples[int(first)+i] * gain
		}
	}

	rb.write.Store(w + n)
	return int(n)
}

// Read copies up to len(dst) buffered samples into dst and returns the count.
// The caller is responsible for padding a short read.
func (rb *RingBuffer) Read(dst []float32) int {
	r := rb.read.Load()
	avail := rb.write.Load() - r
	n := min(uint64(len(dst)), avail)
	if n == 0 {
		return 0
	}

	pos := r % rb.capacity
	first := min(n, rb.capacity-pos)
	copy(dst[:first], rb.buf[pos:pos+first])
	copy(dst[first:n], rb.buf[:n-first])

	rb.read.Store(r + n)
	return int(n)
}

// indices returns the raw producer and consumer positions.
func (rb *RingBuffer) indices() (write, read uint64) {
	read = rb.read.Load()
	write = rb.write.Load()
	return write, read
}
