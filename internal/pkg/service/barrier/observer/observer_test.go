package observer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/keboola/go-barrier/internal/pkg/log"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/aggregation"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/participant"
	"github.com/keboola/go-barrier/internal/pkg/utils/errors"
)

type namedError struct{}

func (namedError) Error() string {
	return "participants count decreased"
}

func (namedError) ErrorName() string {
	return "membershipShrink"
}

func TestLog(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	logger := log.NewDebugLogger()
	o := NewLog(logger, "barrier")

	o.Registered(ctx, "participant-0000000000", participant.Payload{Repository: "org/repo", Value: participant.Float(5), Address: "A"})
	o.Waiting(ctx, 1, 3)
	o.Aggregated(ctx, aggregation.Report{
		Count:           3,
		Values:          3,
		Max:             15,
		Min:             5,
		Mean:            10,
		UniqueAddresses: 2,
		TopAddresses:    []aggregation.AddressCount{{Address: "A", Count: 2}, {Address: "B", Count: 1}},
		Added:           1,
		Elapsed:         300 * time.Millisecond,
	})
	o.LeaderMetadata(ctx, "participant-0000000000", nil)
	o.MetadataFetchFailed(ctx, "participant-0000000001", errors.New(`cannot fetch metadata of participant "participant-0000000001": not found`))
	o.Passed(ctx, 3, 1500*time.Millisecond)
	o.LeaderAnnounced(ctx, "participant-0000000000")
	o.Fatal(ctx, errors.New("some error"))

	logger.AssertJSONMessages(t, `
{"level":"info","message":"registered participant \"participant-0000000000\", repository \"org/repo\", value 5, address \"A\"","component":"barrier","barrier.path":"barrier"}
{"level":"info","message":"barrier \"barrier\" is waiting, ready: 1 / 3"}
{"level":"info","message":"participants with metadata: 3","duration":"300ms"}
{"level":"info","message":"max: 15, min: 5, mean: 10"}
{"level":"info","message":"unique addresses: 2"}
{"level":"info","message":"top addresses: [\"A\"=2, \"B\"=1]"}
{"level":"info","message":"added participants: 1"}
{"level":"info","message":"metadata fetched in 0.3 s"}
{"level":"warn","message":"metadata of the leader \"participant-0000000000\" are not available"}
{"level":"warn","message":"cannot fetch metadata of participant \"participant-0000000001\": not found","participant":"participant-0000000001"}
{"level":"info","message":"barrier passed, all 3 participants are ready","duration":"1.5s"}
{"level":"info","message":"barrier took 1.5 s"}
{"level":"info","message":"participant \"participant-0000000000\" is the leader"}
{"level":"error","message":"barrier failed: some error"}
`)
}

func TestLog_NoValues(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	logger := log.NewDebugLogger()
	o := NewLog(logger, "barrier")
	o.Aggregated(ctx, aggregation.Report{Count: 1, UniqueAddresses: 1, Added: 1})
	o.LeaderMetadata(ctx, "participant-0000000000", &participant.Payload{Address: "B"})

	logger.AssertJSONMessages(t, `
{"level":"info","message":"no participant value"}
{"level":"info","message":"leader \"participant-0000000000\" metadata: repository \"\", value none, address \"B\""}
`)
}

func TestGitHub(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var out strings.Builder
	o := NewGitHub(&out)
	o.Waiting(ctx, 1, 2)
	o.Passed(ctx, 2, time.Second)
	o.LeaderAnnounced(ctx, "participant-0000000000")
	o.Fatal(ctx, errors.New("line 1\nline 2 100%"))

	assert.Equal(t, "::notice::participant-0000000000\n::error::line 1%0Aline 2 100%25\n", out.String())
}

func TestMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	reg := prometheus.NewPedanticRegistry()
	o := NewMetrics(reg)
	o.SetQuorum(3)
	o.Waiting(ctx, 2, 3)
	assert.Equal(t, float64(2), testutil.ToFloat64(o.participants))
	assert.Equal(t, float64(3), testutil.ToFloat64(o.quorum))

	o.Aggregated(ctx, aggregation.Report{Values: 3, Max: 15, Min: 5, Mean: 10, UniqueAddresses: 2})
	o.MetadataFetchFailed(ctx, "participant-0000000001", errors.New("not found"))
	o.Passed(ctx, 3, 2*time.Second)
	o.LeaderAnnounced(ctx, "participant-0000000000")
	o.Fatal(ctx, namedError{})
	o.Fatal(ctx, errors.PrefixError(context.Canceled, "run stopped"))

	assert.Equal(t, float64(15), testutil.ToFloat64(o.valueMax))
	assert.Equal(t, float64(5), testutil.ToFloat64(o.valueMin))
	assert.Equal(t, float64(10), testutil.ToFloat64(o.valueMean))
	assert.Equal(t, float64(2), testutil.ToFloat64(o.uniqueAddresses))
	assert.Equal(t, float64(1), testutil.ToFloat64(o.aggregations))
	assert.Equal(t, float64(1), testutil.ToFloat64(o.fetchFailures))
	assert.Equal(t, float64(3), testutil.ToFloat64(o.participants))
	assert.Equal(t, float64(1), testutil.ToFloat64(o.passed))
	assert.Equal(t, float64(2), testutil.ToFloat64(o.elapsed))
	assert.Equal(t, float64(1), testutil.ToFloat64(o.leader))
	assert.Equal(t, float64(1), testutil.ToFloat64(o.failures.WithLabelValues("membershipShrink")))
	assert.Equal(t, float64(1), testutil.ToFloat64(o.failures.WithLabelValues("canceled")))

	count, err := testutil.GatherAndCount(reg)
	assert.NoError(t, err)
	assert.Equal(t, 14, count)
}

func TestMulti(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var out1, out2 strings.Builder
	o := Multi{NewGitHub(&out1), Nop{}, NewGitHub(&out2)}
	o.Registered(ctx, "participant-0000000000", participant.Payload{})
	o.Waiting(ctx, 1, 2)
	o.Aggregated(ctx, aggregation.Report{})
	o.LeaderMetadata(ctx, "participant-0000000000", nil)
	o.MetadataFetchFailed(ctx, "participant-0000000000", errors.New("err"))
	o.Passed(ctx, 2, time.Second)
	o.LeaderAnnounced(ctx, "participant-0000000000")

	assert.Equal(t, "::notice::participant-0000000000\n", out1.String())
	assert.Equal(t, out1.String(), out2.String())
}

func TestErrorType(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "membershipShrink", ErrorType(errors.PrefixError(namedError{}, "prefix")))
	assert.Equal(t, "deadlineExceeded", ErrorType(context.DeadlineExceeded))
	assert.Equal(t, "unknown", ErrorType(errors.New("foo")))
}
