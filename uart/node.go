package uart

import (
	"sync"
	"sync/atomic"

	"github.com/mklimuk/peripherals"
)

// txNode owns a private copy of one Write payload. It belongs to the producer
// until enqueued, to the transport while queued or pending, and goes back to
// the pool once the completion path releases it.
type txNode struct {
	data     []byte
	buf      []byte
	released bool
}

// nodePool recycles tx nodes so completion handlers do not allocate. The byte
// budget stands in for a fixed heap: 0 means unlimited.
type nodePool struct {
	pool   sync.Pool
	budget int64

	inUse     atomic.Int64
	allocated atomic.Uint64
	freed     atomic.Uint64
}

func (p *nodePool) get(payload []byte) (*txNode, error) {
	size := int64(len(payload))
	if p.budget > 0 && p.inUse.Add(size) > p.budget {
		p.inUse.Add(-size)
		return nil, peripherals.ErrOutOfMemory
	} else if p.budget <= 0 {
		p.inUse.Add(size)
	}
	n, _ := p.pool.Get().(*txNode)
	if n == nil {
		n = &txNode{}
	}
	if cap(n.buf) < len(payload) {
		n.buf = make([]byte, len(payload))
	}
	n.data = n.buf[:len(payload)]
	copy(n.data, payload)
	n.released = false
	p.allocated.Add(1)
	return n, nil
}

func (p *nodePool) put(n *txNode) {
	if n == nil {
		return
	}
	if n.released {
		panic("uart: tx node released twice")
	}
	n.released = true
	p.inUse.Add(-int64(len(n.data)))
	p.freed.Add(1)
	n.data = nil
	p.pool.Put(n)
}

// Stats reports tx node accounting.
type Stats struct {
	Allocated   uint64
	Freed       uint64
	Outstanding int
	BytesInUse  int
	Queued      int
}

func (p *nodePool) stats() Stats {
	a := p.allocated.Load()
	f := p.freed.Load()
	return Stats{
		Allocated:   a,
		Freed:       f,
		Outstanding: int(a - f),
		BytesInUse:  int(p.inUse.Load()),
	}
}
