package kt

import (
	"context"
	"fmt"
	"sync"
)

// Operation is the handle of one submitted request. It completes exactly
// once, with a Response or a failure, when the matching frame is read or the
// connection goes away.
type Operation struct {
	req  *Request
	done chan struct{}
	once sync.Once

	// written before done is closed, read after
	resp *Response
	err  error
}

func newOperation(req *Request) *Operation {
	return &Operation{req: req, done: make(chan struct{})}
}

// Request returns the request the operation carries.
func (op *Operation) Request() *Request {
	return op.req
}

// Done is closed when the operation completes.
func (op *Operation) Done() <-chan struct{} {
	return op.done
}

// Result returns the outcome. It must only be called after Done is closed.
func (op *Operation) Result() (*Response, error) {
	return op.resp, op.err
}

// Wait blocks until the operation completes or ctx ends.
//
// When ctx ends first the returned error wraps both ErrOutcomeUnknown and
// ctx.Err(). The operation is not withdrawn: the request may have been
// applied, and its response will still be consumed in order.
func (op *Operation) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-op.done:
		return op.resp, op.err
	default:
	}

	select {
	case <-op.done:
		return op.resp, op.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrOutcomeUnknown, ctx.Err())
	}
}

// complete hands resp to the waiter. It never blocks.
func (op *Operation) complete(resp *Response) bool {
	completed := false
	op.once.Do(func() {
		op.resp = resp
		close(op.done)
		completed = true
	})
	return completed
}

// fail hands err to the waiter. It never blocks.
func (op *Operation) fail(err error) bool {
	completed := false
	op.once.Do(func() {
		op.err = err
		close(op.done)
		completed = true
	})
	return completed
}
