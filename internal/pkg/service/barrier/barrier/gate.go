package barrier

import (
	"context"

	"github.com/keboola/go-barrier/internal/pkg/service/barrier/membership"
)

// evaluateGate switches the run to the passed state, when the snapshot reached the quorum.
// There is no way back, the caller stops watching after the transition.
func (r *runState) evaluateGate(ctx context.Context, snapshot membership.Snapshot) {
	if r.passed {
		return
	}

	if snapshot.Len() < r.config.Count {
		r.observer.Waiting(ctx, snapshot.Len(), r.config.Count)
		return
	}

	r.passed = true
	r.stopIdle()
	r.observer.Passed(ctx, snapshot.Len(), r.clock.Since(r.started))
	if r.isLeader() {
		r.observer.LeaderAnnounced(ctx, r.leader)
	}
}
