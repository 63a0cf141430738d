package main

import (
	"context"

	"github.com/gravitational/trace"
)

type refreshLooper interface {
	RefreshLoop(ctx context.Context)
}

// watcher runs the refresh loop in the background and stops it on shutdown.
type watcher struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func newWatcher(ctx context.Context, looper refreshLooper) *watcher {
	ctx, cancel := context.WithCancel(ctx)
	w := &watcher{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		looper.RefreshLoop(ctx)
	}()
	return w
}

// Done is closed once the refresh loop has returned.
func (w *watcher) Done() <-chan struct{} {
	return w.done
}

// Shutdown implements lib.Terminable
func (w *watcher) Shutdown(ctx context.Context) error {
	w.cancel()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return trace.Wrap(ctx.Err())
	}
}

// Close implements lib.Terminable
func (w *watcher) Close() {
	w.cancel()
}
