// Package observer receives events of a barrier run and reports them to logs, GitHub Actions annotations and metrics.
package observer

import (
	"context"
	"time"

	"github.com/keboola/go-barrier/internal/pkg/service/barrier/aggregation"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/participant"
	"github.com/keboola/go-barrier/internal/pkg/utils/errors"
)

// Observer is notified from the goroutine which drives the barrier run, so calls are never concurrent.
type Observer interface {
	// Registered is called once, when the participant node has been created.
	Registered(ctx context.Context, name string, payload participant.Payload)
	// Waiting is called on each snapshot smaller than the quorum.
	Waiting(ctx context.Context, ready, total int)
	// Aggregated is called by the leader on each membership delta with additions.
	Aggregated(ctx context.Context, report aggregation.Report)
	// LeaderMetadata is called by a non-leader on each membership delta with additions.
	// The payload is nil, if the leader metadata could not be fetched.
	LeaderMetadata(ctx context.Context, leader string, payload *participant.Payload)
	// MetadataFetchFailed reports a non-fatal error, the participant is excluded from the aggregation.
	MetadataFetchFailed(ctx context.Context, name string, err error)
	// Passed is called once, when the quorum has been reached.
	Passed(ctx context.Context, count int, elapsed time.Duration)
	// LeaderAnnounced is called once after Passed, only by the leader.
	LeaderAnnounced(ctx context.Context, leader string)
	// Fatal is called once, when the run failed.
	Fatal(ctx context.Context, err error)
}

// Multi dispatches each event to all observers in order.
type Multi []Observer

type Nop struct{}

func (m Multi) Registered(ctx context.Context, name string, payload participant.Payload) {
	for _, o := range m {
		o.Registered(ctx, name, payload)
	}
}

func (m Multi) Waiting(ctx context.Context, ready, total int) {
	for _, o := range m {
		o.Waiting(ctx, ready, total)
	}
}

func (m Multi) Aggregated(ctx context.Context, report aggregation.Report) {
	for _, o := range m {
		o.Aggregated(ctx, report)
	}
}

func (m Multi) LeaderMetadata(ctx context.Context, leader string, payload *participant.Payload) {
	for _, o := range m {
		o.LeaderMetadata(ctx, leader, payload)
	}
}

func (m Multi) MetadataFetchFailed(ctx context.Context, name string, err error) {
	for _, o := range m {
		o.MetadataFetchFailed(ctx, name, err)
	}
}

func (m Multi) Passed(ctx context.Context, count int, elapsed time.Duration) {
	for _, o := range m {
		o.Passed(ctx, count, elapsed)
	}
}

func (m Multi) LeaderAnnounced(ctx context.Context, leader string) {
	for _, o := range m {
		o.LeaderAnnounced(ctx, leader)
	}
}

func (m Multi) Fatal(ctx context.Context, err error) {
	for _, o := range m {
		o.Fatal(ctx, err)
	}
}

func (Nop) Registered(context.Context, string, participant.Payload)      {}
func (Nop) Waiting(context.Context, int, int)                            {}
func (Nop) Aggregated(context.Context, aggregation.Report)               {}
func (Nop) LeaderMetadata(context.Context, string, *participant.Payload) {}
func (Nop) MetadataFetchFailed(context.Context, string, error)           {}
func (Nop) Passed(context.Context, int, time.Duration)                   {}
func (Nop) LeaderAnnounced(context.Context, string)                      {}
func (Nop) Fatal(context.Context, error)                                 {}

// ErrorWithName is implemented by the typed errors of the barrier run.
type ErrorWithName interface {
	error
	ErrorName() string
}

// ErrorType returns a short name of the error, it is used as a metric label.
func ErrorType(err error) string {
	var withName ErrorWithName
	switch {
	case errors.As(err, &withName):
		return withName.ErrorName()
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadlineExceeded"
	default:
		return "unknown"
	}
}
