package barrier

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/keboola/go-barrier/internal/pkg/service/barrier/aggregation"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/coordination"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/membership"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/participant"
)

type fetchResult struct {
	payload participant.Payload
	err     error
}

// onAdded is called for each snapshot with new participants.
// The leader is fixed by the first such snapshot, a smaller name registered later doesn't change it.
// A participant without the value takes no part in the leader role.
func (r *runState) onAdded(ctx context.Context, snapshot membership.Snapshot, added []string) {
	if !r.payload.HasValue() {
		return
	}

	if r.leader == "" {
		r.leader = snapshot.Names[0]
		r.logger.Infof(ctx, `leader is "%s"`, r.leader)
	}

	if r.isLeader() {
		r.aggregate(ctx, snapshot, added)
	} else {
		r.reportLeaderMetadata(ctx)
	}
}

func (r *runState) isLeader() bool {
	return r.leader != "" && r.leader == r.name
}

// aggregate fetches payloads of the new participants in parallel and reports statistics of all known participants.
func (r *runState) aggregate(ctx context.Context, snapshot membership.Snapshot, added []string) {
	start := r.clock.Now()

	// Each fetch writes to its own slot, a failure doesn't cancel other fetches
	results := make([]fetchResult, len(added))
	grp := &errgroup.Group{}
	grp.SetLimit(r.config.FetchConcurrency)
	for i, name := range added {
		i, name := i, name
		grp.Go(func() error {
			results[i].payload, results[i].err = r.fetch(ctx, name)
			return nil
		})
	}
	_ = grp.Wait()

	for i, name := range added {
		if err := results[i].err; err != nil {
			r.observer.MetadataFetchFailed(ctx, name, &MetadataFetchError{Name: name, err: err})
			continue
		}
		r.metadata[name] = results[i].payload
	}

	report := aggregation.Compute(snapshot.Names, r.metadata)
	report.Added = len(added)
	report.Elapsed = r.clock.Since(start)
	r.report = &report
	r.observer.Aggregated(ctx, report)
}

// reportLeaderMetadata fetches the leader payload once, a failed fetch is repeated on the next delta.
func (r *runState) reportLeaderMetadata(ctx context.Context) {
	if r.leaderPayload == nil {
		r.logger.Debugf(ctx, `metadata of the leader "%s" are not cached, fetching`, r.leader)
		payload, err := r.fetch(ctx, r.leader)
		if err != nil {
			r.observer.MetadataFetchFailed(ctx, r.leader, &MetadataFetchError{Name: r.leader, err: err})
		} else {
			r.leaderPayload = &payload
		}
	}
	r.observer.LeaderMetadata(ctx, r.leader, r.leaderPayload)
}

func (r *runState) fetch(ctx context.Context, name string) (participant.Payload, error) {
	data, err := r.service.GetData(ctx, coordination.JoinPath(r.config.Path, name))
	if err != nil {
		return participant.Payload{}, err
	}
	return participant.Decode(data)
}
