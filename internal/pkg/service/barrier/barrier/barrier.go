// Package barrier implements the rendezvous barrier.
//
// Each participant registers an ordered ephemeral node under the barrier path and waits until
// the count of nodes reaches the quorum. The participant with the smallest node name is the leader,
// it aggregates payloads of all participants. A participant which disappears before the barrier passed
// or no new registration within the idle timeout terminates the run.
package barrier

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"

	"github.com/keboola/go-barrier/internal/pkg/log"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/aggregation"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/coordination"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/membership"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/observer"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/origin"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/participant"
)

type Dependencies interface {
	Logger() log.Logger
	Clock() clockwork.Clock
	Coordinator() coordination.Service
	OriginResolver() origin.Resolver
	Observer() observer.Observer
}

// Result of a passed barrier.
type Result struct {
	// Name of the participant node.
	Name string
	// Leader is empty, if the participant has no value.
	Leader       string
	IsLeader     bool
	Participants int
	Elapsed      time.Duration
	// Report is the last aggregation report, it is set only for the leader.
	Report *aggregation.Report
}

// runState is owned by the goroutine which drives the Enter call, so it needs no locks.
type runState struct {
	config   Config
	logger   log.Logger
	clock    clockwork.Clock
	service  coordination.Service
	origin   origin.Resolver
	observer observer.Observer

	name     string
	payload  participant.Payload
	started  time.Time
	idle     clockwork.Timer
	last     membership.Snapshot
	passed   bool
	leader   string
	metadata map[string]participant.Payload
	// leaderPayload is cached by a non-leader
	leaderPayload *participant.Payload
	report        *aggregation.Report
}

// Enter registers the participant and blocks until the barrier passed or the run failed.
// The error is one of InvalidConfigError, RegistrationError, MembershipShrinkError, StallTimeoutError, WatchError or the context error.
// The participant node is kept, it is released with the coordination session.
func Enter(ctx context.Context, d Dependencies, cfg Config) (Result, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		err = &InvalidConfigError{err: err}
		d.Observer().Fatal(ctx, err)
		return Result{}, err
	}

	r := &runState{
		config:   cfg,
		logger:   d.Logger().WithComponent("barrier").With(attribute.String("barrier.path", cfg.Path)),
		clock:    d.Clock(),
		service:  d.Coordinator(),
		origin:   d.OriginResolver(),
		observer: d.Observer(),
		metadata: make(map[string]participant.Payload),
	}

	result, err := r.run(ctx)
	if err != nil {
		r.observer.Fatal(ctx, err)
		return Result{}, err
	}
	return result, nil
}

func (r *runState) run(ctx context.Context) (Result, error) {
	r.started = r.clock.Now()
	r.idle = r.clock.NewTimer(r.config.IdleTimeout)
	defer r.idle.Stop()

	if err := r.register(ctx); err != nil {
		return Result{}, err
	}

	watcher := membership.NewWatcher(r.service, r.config.Path)
	defer watcher.Close()

	for {
		snapshot, notification, err := watcher.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			return Result{}, &WatchError{Path: r.config.Path, err: err}
		}

		if err := r.onSnapshot(ctx, snapshot); err != nil {
			return Result{}, err
		}

		if r.passed {
			return r.result(), nil
		}

		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-r.idle.Chan():
			return Result{}, &StallTimeoutError{
				Path:    r.config.Path,
				Timeout: r.config.IdleTimeout,
				Ready:   r.last.Len(),
				Total:   r.config.Count,
			}
		case <-notification.Done():
			if err := notification.Err(); err != nil {
				return Result{}, &WatchError{Path: r.config.Path, err: err}
			}
		}
	}
}

// onSnapshot processes one membership snapshot, the order of the steps matches one round of the protocol.
func (r *runState) onSnapshot(ctx context.Context, snapshot membership.Snapshot) error {
	if err := r.checkShrink(snapshot); err != nil {
		return err
	}

	added := snapshot.Added(r.last)
	r.last = snapshot
	r.logger.Debugf(ctx, `listed %d participants, %d added, revision %d`, snapshot.Len(), len(added), snapshot.Revision)

	if len(added) > 0 {
		r.resetIdle()
		r.onAdded(ctx, snapshot, added)
	}

	r.evaluateGate(ctx, snapshot)
	return nil
}

func (r *runState) result() Result {
	return Result{
		Name:         r.name,
		Leader:       r.leader,
		IsLeader:     r.isLeader(),
		Participants: r.last.Len(),
		Elapsed:      r.clock.Since(r.started),
		Report:       r.report,
	}
}
