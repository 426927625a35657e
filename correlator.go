package kt

import (
	"fmt"
	"sync"

	"github.com/edwingeng/deque/v2"
)

// correlator pairs responses with requests by position. The wire carries no
// request identifier, so the queue order must equal the write order: push
// happens under the client's submit lock, immediately before the write.
type correlator struct {
	mu     sync.Mutex
	queue  *deque.Deque[*Operation]
	closed error
}

func newCorrelator() *correlator {
	return &correlator{queue: deque.NewDeque[*Operation]()}
}

// push appends op at the tail. It fails once the correlator is closed.
func (c *correlator) push(op *Operation) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed != nil {
		return c.closed
	}
	c.queue.PushBack(op)
	return nil
}

// pop removes the head.
func (c *correlator) pop() (*Operation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.queue.Len() == 0 {
		return nil, false
	}
	return c.queue.PopFront(), true
}

// len returns the number of operations waiting for a response.
func (c *correlator) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

// close rejects further pushes with ErrConnectionClosed and fails every
// queued operation. The head receives cause itself, since the failure
// happened while its response was expected; the others receive
// ErrConnectionClosed wrapping cause. Returns the number of operations failed.
func (c *correlator) close(cause error) int {
	c.mu.Lock()
	if c.closed == nil {
		c.closed = fmt.Errorf("%w: %w", ErrConnectionClosed, cause)
	}
	pending := make([]*Operation, 0, c.queue.Len())
	for c.queue.Len() > 0 {
		pending = append(pending, c.queue.PopFront())
	}
	closedErr := c.closed
	c.mu.Unlock()

	for i, op := range pending {
		if i == 0 {
			op.fail(cause)
			continue
		}
		op.fail(closedErr)
	}
	return len(pending)
}
