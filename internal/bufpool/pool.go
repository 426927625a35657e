// Package bufpool recycles the byte slices outbound frames are assembled in.
package bufpool

import "sync"

// Pool hands out reusable byte slices. Slices that grew beyond the pool's
// maximum are dropped on Put so one huge frame does not pin memory.
type Pool struct {
	pool    sync.Pool
	maxSize int
}

// New returns a pool of slices with initialSize capacity, keeping only
// slices of at most maxSize capacity.
func New(initialSize, maxSize int) *Pool {
	return &Pool{
		pool: sync.Pool{
			New: func() any {
				b := make([]byte, 0, initialSize)
				return &b
			},
		},
		maxSize: maxSize,
	}
}

// Get returns an empty slice.
func (p *Pool) Get() *[]byte {
	b := p.pool.Get().(*[]byte)
	*b = (*b)[:0]
	return b
}

// Put returns b to the pool. b must not be used afterwards.
func (p *Pool) Put(b *[]byte) {
	if b == nil || cap(*b) > p.maxSize {
		return
	}
	*b = (*b)[:0]
	p.pool.Put(b)
}
