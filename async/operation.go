// Package async implements notification primitives for asynchronous work.
package async

// OpFuture represents an operation which is executing in the background. The
// operation has completed when Done selects. Err may be invoked to determine
// whether the operation succeeded or failed.
type OpFuture interface {
	// Done selects when operation background execution has finished.
	Done() <-chan struct{}
	// Err blocks until Done and returns the final error of the OpFuture.
	Err() error
}

// AsyncOperation is a simple, minimal implementation of OpFuture.
type AsyncOperation struct {
	doneCh chan struct{} // Closed to signal operation has completed.
	err    error         // Error on operation completion.
}

// NewAsyncOperation returns a new AsyncOperation.
func NewAsyncOperation() *AsyncOperation { return &AsyncOperation{doneCh: make(chan struct{})} }

// Done selects when Resolve is called.
func (o *AsyncOperation) Done() <-chan struct{} { return o.doneCh }

// Err blocks until Resolve is called, then returns its error.
func (o *AsyncOperation) Err() error {
	<-o.Done()
	return o.err
}

// Resolve marks the AsyncOperation as completed with the given error.
// Resolve may be called only once.
func (o *AsyncOperation) Resolve(err error) {
	o.err = err
	close(o.doneCh)
}

// FinishedOperation is a convenience that returns an already-resolved AsyncOperation.
func FinishedOperation(err error) *AsyncOperation {
	var op = NewAsyncOperation()
	op.Resolve(err)
	return op
}

// Promise is a simple notification primitive for asynchronous events.
type Promise chan struct{}

// Resolve wakes any clients currently waiting on the Promise.
func (p Promise) Resolve() { close(p) }

// Resolved returns true if the Promise has been resolved.
func (p Promise) Resolved() bool {
	select {
	case <-p:
		return true
	default:
		return false
	}
}
