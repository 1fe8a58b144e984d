package socketutil

import "context"

// WaitCloser ties a cancellable context to the final value of the goroutine
// watching it. Close and Wait may be called any number of times.
type WaitCloser[T any] struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	result *T
}

func NewWaitCloser[T any](ctx context.Context) WaitCloser[T] {
	derived, cancel := context.WithCancel(ctx)
	return WaitCloser[T]{
		ctx: derived, cancel: cancel, done: make(chan struct{}), result: new(T),
	}
}

// Close cancels the context and waits for Finish.
func (w WaitCloser[T]) Close() T {
	w.cancel()
	return w.Wait()
}

// Wait blocks until Finish without cancelling.
func (w WaitCloser[T]) Wait() T {
	<-w.done
	return *w.result
}

func (w WaitCloser[T]) Context() context.Context {
	return w.ctx
}

func (w WaitCloser[T]) Done() <-chan struct{} {
	return w.ctx.Done()
}

// Finished is closed once Finish was called.
func (w WaitCloser[T]) Finished() <-chan struct{} {
	return w.done
}

// Finish must be called exactly once.
func (w WaitCloser[T]) Finish(t T) {
	*w.result = t
	w.cancel()
	close(w.done)
}
