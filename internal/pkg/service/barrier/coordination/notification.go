package coordination

import (
	"context"
	"sync"
)

// Notification fires at most once, on the first change after the listing.
// The Done channel is closed when the notification fires or fails, Err returns the failure.
type Notification interface {
	Done() <-chan struct{}
	Err() error
	// Cancel stops the underlying watch, the Done channel is not closed by the cancellation.
	Cancel()
}

// OneShot is a Notification implementation shared by coordinators.
type OneShot struct {
	done   chan struct{}
	once   sync.Once
	lock   sync.Mutex
	err    error
	cancel context.CancelFunc
}

func NewOneShot(cancel context.CancelFunc) *OneShot {
	if cancel == nil {
		cancel = func() {}
	}
	return &OneShot{done: make(chan struct{}), cancel: cancel}
}

// Fire closes the Done channel, only the first call has an effect.
func (n *OneShot) Fire(err error) {
	n.once.Do(func() {
		n.lock.Lock()
		n.err = err
		n.lock.Unlock()
		close(n.done)
		n.cancel()
	})
}

func (n *OneShot) Done() <-chan struct{} {
	return n.done
}

func (n *OneShot) Err() error {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.err
}

func (n *OneShot) Cancel() {
	n.cancel()
}
