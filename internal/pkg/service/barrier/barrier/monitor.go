package barrier

import (
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/membership"
)

// checkShrink fails if the snapshot is smaller than the previous one, a participant must not leave before the barrier passed.
func (r *runState) checkShrink(snapshot membership.Snapshot) error {
	if r.last.Len() > 0 && snapshot.Len() < r.last.Len() {
		return &MembershipShrinkError{Path: r.config.Path, Previous: r.last.Len(), Current: snapshot.Len()}
	}
	return nil
}

// resetIdle restarts the idle timeout, a pending expiration is discarded.
func (r *runState) resetIdle() {
	r.stopIdle()
	r.idle.Reset(r.config.IdleTimeout)
}

func (r *runState) stopIdle() {
	if !r.idle.Stop() {
		select {
		case <-r.idle.Chan():
		default:
		}
	}
}
