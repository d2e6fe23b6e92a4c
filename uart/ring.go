package uart

import (
	"sync/atomic"
)

// Ring is a single-producer, single-consumer byte ring over caller storage.
// The backend event path is the only producer, RxGet the only consumer.
type Ring struct {
	buf []byte
	rd  atomic.Uint64 // consumer index (monotonic)
	wr  atomic.Uint64 // producer index (monotonic)
}

func NewRing(storage []byte) *Ring {
	return &Ring{buf: storage}
}

func (r *Ring) Size() int {
	if r == nil {
		return 0
	}
	return len(r.buf)
}

func (r *Ring) Available() int {
	return int(r.wr.Load() - r.rd.Load())
}

func (r *Ring) Space() int {
	return len(r.buf) - r.Available()
}

// Put copies as much of src as fits and returns the number of bytes stored.
func (r *Ring) Put(src []byte) int {
	rd := r.rd.Load()
	wr := r.wr.Load()
	space := len(r.buf) - int(wr-rd)
	n := len(src)
	if n > space {
		n = space
	}
	if n <= 0 {
		return 0
	}
	idx := int(wr % uint64(len(r.buf)))
	first := copy(r.buf[idx:], src[:n])
	if first < n {
		copy(r.buf, src[first:n])
	}
	r.wr.Store(wr + uint64(n)) // publish
	return n
}

// Get moves up to len(dst) bytes out of the ring.
func (r *Ring) Get(dst []byte) int {
	rd := r.rd.Load()
	wr := r.wr.Load()
	n := int(wr - rd)
	if n > len(dst) {
		n = len(dst)
	}
	if n <= 0 {
		return 0
	}
	idx := int(rd % uint64(len(r.buf)))
	first := copy(dst[:n], r.buf[idx:])
	if first < n {
		copy(dst[first:n], r.buf)
	}
	r.rd.Store(rd + uint64(n)) // release
	return n
}

// Reset discards buffered data. Only safe while the producer is stopped.
func (r *Ring) Reset() {
	r.rd.Store(r.wr.Load())
}
