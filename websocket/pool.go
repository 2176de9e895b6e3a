package websocket

import "sync"

// messagePool recycles the byte buffers used to assemble inbound
// messages, so a connection reading many fragmented messages back to
// back doesn't keep reallocating. Each Conn owns one messagePool; it
// is not shared across connections.
//
// A pool has a soft capacity: once outstanding (checked-out, not yet
// released) buffers reach that count, acquire blocks on a buffered
// channel instead of allocating further. That block is this package's
// realization of OUT_OF_MESSAGES backpressure - the reading goroutine
// simply pauses until release() makes room, with no separate signal or
// resume path needed.
type messagePool struct {
	pool    sync.Pool
	tickets chan struct{}
}

// newMessagePool creates a pool that allows at most capacity buffers
// to be checked out at once. A non-positive capacity means unbounded.
func newMessagePool(capacity int) *messagePool {
	p := &messagePool{
		pool: sync.Pool{
			New: func() any { return new([]byte) },
		},
	}
	if capacity > 0 {
		p.tickets = make(chan struct{}, capacity)
		for i := 0; i < capacity; i++ {
			p.tickets <- struct{}{}
		}
	}
	return p
}

// acquire blocks, if the pool is at capacity, until a buffer is
// available, then returns one truncated to zero length.
func (p *messagePool) acquire() *[]byte {
	if p.tickets != nil {
		<-p.tickets
	}
	buf := p.pool.Get().(*[]byte)
	*buf = (*buf)[:0]
	return buf
}

// release returns buf to the pool, making it available to the next
// acquire and, if the pool is capacity-limited, unblocking one waiter.
func (p *messagePool) release(buf *[]byte) {
	p.pool.Put(buf)
	if p.tickets != nil {
		p.tickets <- struct{}{}
	}
}
