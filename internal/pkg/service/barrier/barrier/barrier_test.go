package barrier

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/go-barrier/internal/pkg/log"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/aggregation"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/coordination"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/coordination/memory"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/observer"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/origin"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/participant"
	"github.com/keboola/go-barrier/internal/pkg/utils/errors"
)

const testPath = "barrier"

type testDeps struct {
	logger   log.DebugLogger
	clock    *clockwork.FakeClock
	session  *memory.Session
	origin   origin.Resolver
	recorder *recorder
}

type resolverFn func(ctx context.Context) (string, error)

// recorder is an observer which stores all events.
type recorder struct {
	lock    sync.Mutex
	events  []string
	reports []aggregation.Report
	leader  *participant.Payload
}

type runResult struct {
	result Result
	err    error
}

func newTestDeps(t *testing.T, store *memory.Store, address string) *testDeps {
	t.Helper()
	session := store.NewSession()
	t.Cleanup(session.Close)
	return &testDeps{
		logger:   log.NewDebugLogger(),
		clock:    clockwork.NewFakeClock(),
		session:  session,
		origin:   origin.Static(address),
		recorder: &recorder{},
	}
}

func testConfig(count int, value *float64) Config {
	cfg := NewConfig()
	cfg.Path = testPath
	cfg.Count = count
	cfg.Value = value
	cfg.Repository = "org/repo"
	cfg.IdleTimeout = time.Minute
	return cfg
}

func (d *testDeps) Logger() log.Logger                            { return d.logger }
func (d *testDeps) Clock() clockwork.Clock                        { return d.clock }
func (d *testDeps) Coordinator() coordination.Service             { return d.session }
func (d *testDeps) OriginResolver() origin.Resolver               { return d.origin }
func (d *testDeps) Observer() observer.Observer                   { return d.recorder }
func (fn resolverFn) Address(ctx context.Context) (string, error) { return fn(ctx) }

// enterAsync runs Enter in a goroutine, the result is sent to the returned channel.
func enterAsync(ctx context.Context, d Dependencies, cfg Config) <-chan runResult {
	ch := make(chan runResult, 1)
	go func() {
		result, err := Enter(ctx, d, cfg)
		ch <- runResult{result: result, err: err}
	}()
	return ch
}

func waitForResult(t *testing.T, ch <-chan runResult) runResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(10 * time.Second):
		require.FailNow(t, "timeout while waiting for the barrier result")
		return runResult{}
	}
}

func assertNoResult(t *testing.T, ch <-chan runResult) {
	t.Helper()
	select {
	case r := <-ch:
		require.FailNow(t, "unexpected barrier result", "%#v", r)
	case <-time.After(100 * time.Millisecond):
	}
}

// registerForeign creates a participant node without running the barrier.
func registerForeign(t *testing.T, session *memory.Session, payload participant.Payload) string {
	t.Helper()
	data, err := participant.Encode(payload)
	require.NoError(t, err)
	name, err := session.CreateOrderedEphemeralChild(context.Background(), testPath, participant.NamePrefix, data)
	require.NoError(t, err)
	return name
}

func TestEnter_SingleParticipant(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := memory.NewStore()
	d := newTestDeps(t, store, "A")

	result, err := Enter(ctx, d, testConfig(1, participant.Float(5)))
	require.NoError(t, err)

	assert.Equal(t, "participant-0000000000", result.Name)
	assert.Equal(t, "participant-0000000000", result.Leader)
	assert.True(t, result.IsLeader)
	assert.Equal(t, 1, result.Participants)
	require.NotNil(t, result.Report)
	assert.Equal(t, 1, result.Report.Count)
	assert.Equal(t, []string{
		"registered participant-0000000000",
		"aggregated count=1 added=1",
		"passed 1",
		"leaderAnnounced participant-0000000000",
	}, d.recorder.Events())

	// The node is kept until the session is closed
	assert.Equal(t, []string{"participant-0000000000"}, store.Children(testPath))
	d.session.Close()
	assert.Empty(t, store.Children(testPath))
}

func TestEnter_QuorumOfThree(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := memory.NewStore()
	participants := []struct {
		value   float64
		address string
	}{{value: 5, address: "A"}, {value: 10, address: "A"}, {value: 15, address: "B"}}

	// Participants are started one by one, so the node names are deterministic
	var deps []*testDeps
	var results []<-chan runResult
	for i, p := range participants {
		d := newTestDeps(t, store, p.address)
		deps = append(deps, d)
		results = append(results, enterAsync(ctx, d, testConfig(3, participant.Float(p.value))))
		d.recorder.WaitFor(t, fmt.Sprintf("registered participant-%010d", i))
	}

	var runs []runResult
	for i := range participants {
		r := waitForResult(t, results[i])
		runs = append(runs, r)
		require.NoError(t, r.err)
		assert.Equal(t, fmt.Sprintf("participant-%010d", i), r.result.Name)
		assert.Equal(t, "participant-0000000000", r.result.Leader)
		assert.Equal(t, i == 0, r.result.IsLeader)
		assert.Equal(t, 3, r.result.Participants)
		assert.Equal(t, 1, deps[i].recorder.Count("passed 3"))
	}

	// Leader
	leader := deps[0].recorder
	assert.Equal(t, 1, leader.Count("leaderAnnounced participant-0000000000"))
	report := leader.LastReport()
	assert.Equal(t, 3, report.Count)
	assert.Equal(t, 3, report.Values)
	assert.InDelta(t, 15, report.Max, 0.0001)
	assert.InDelta(t, 5, report.Min, 0.0001)
	assert.InDelta(t, 10, report.Mean, 0.0001)
	assert.Equal(t, 2, report.UniqueAddresses)
	assert.Equal(t, aggregation.AddressCount{Address: "A", Count: 2}, report.TopAddresses[0])
	require.NotNil(t, runs[0].result.Report)
	assert.Equal(t, report, *runs[0].result.Report)

	// Non-leaders report the leader metadata
	for _, d := range deps[1:] {
		assert.Equal(t, 0, d.recorder.Count("leaderAnnounced participant-0000000000"))
		assert.Empty(t, d.recorder.Reports())
		assert.GreaterOrEqual(t, d.recorder.Count("leaderMetadata participant-0000000000"), 1)
		leaderPayload := d.recorder.LeaderPayload()
		require.NotNil(t, leaderPayload)
		assert.Equal(t, participant.Payload{Repository: "org/repo", Value: participant.Float(5), Address: "A"}, *leaderPayload)
	}
}

func TestEnter_MembershipShrink(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := memory.NewStore()
	d := newTestDeps(t, store, "A")
	ch := enterAsync(ctx, d, testConfig(3, participant.Float(1)))
	d.recorder.WaitFor(t, "waiting 1/3")

	other := store.NewSession()
	registerForeign(t, other, participant.Payload{Value: participant.Float(2), Address: "B"})
	d.recorder.WaitFor(t, "waiting 2/3")

	// The second participant disconnects
	other.Close()

	r := waitForResult(t, ch)
	require.Error(t, r.err)
	var shrinkErr *MembershipShrinkError
	require.True(t, errors.As(r.err, &shrinkErr))
	assert.Equal(t, 2, shrinkErr.Previous)
	assert.Equal(t, 1, shrinkErr.Current)
	assert.Equal(t, `participants count of barrier "barrier" decreased (2 -> 1), a participant probably exited unexpectedly`, r.err.Error())
	assert.Equal(t, 0, d.recorder.Count("passed 2"))
	assert.Equal(t, 1, d.recorder.Count("fatal membershipShrink"))
}

func TestEnter_StallTimeout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := memory.NewStore()
	d := newTestDeps(t, store, "A")
	ch := enterAsync(ctx, d, testConfig(3, participant.Float(1)))
	d.recorder.WaitFor(t, "waiting 1/3")

	// A new participant resets the idle timer
	d.clock.Advance(50 * time.Second)
	registerForeign(t, store.NewSession(), participant.Payload{Address: "B"})
	d.recorder.WaitFor(t, "waiting 2/3")
	d.clock.Advance(50 * time.Second)
	assertNoResult(t, ch)

	d.clock.Advance(10 * time.Second)
	r := waitForResult(t, ch)
	require.Error(t, r.err)
	var stallErr *StallTimeoutError
	require.True(t, errors.As(r.err, &stallErr))
	assert.Equal(t, 2, stallErr.Ready)
	assert.Equal(t, 3, stallErr.Total)
	assert.Equal(t, `no new participant of barrier "barrier" registered within 1m0s, ready: 2 / 3`, r.err.Error())
	assert.Equal(t, 1, d.recorder.Count("fatal stallTimeout"))
}

func TestEnter_LeaderIsFixed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := memory.NewStore()
	d := newTestDeps(t, store, "A")
	ch := enterAsync(ctx, d, testConfig(2, participant.Float(1)))
	d.recorder.WaitFor(t, "waiting 1/2")

	// The name sorts before the leader name
	data, err := participant.Encode(participant.Payload{Value: participant.Float(3), Address: "B"})
	require.NoError(t, err)
	name, err := store.NewSession().CreateOrderedEphemeralChild(ctx, testPath, "a-", data)
	require.NoError(t, err)
	assert.Equal(t, "a-0000000001", name)

	r := waitForResult(t, ch)
	require.NoError(t, r.err)
	assert.Equal(t, "participant-0000000000", r.result.Leader)
	assert.True(t, r.result.IsLeader)
	assert.Equal(t, 1, d.recorder.Count("leaderAnnounced participant-0000000000"))
	require.NotNil(t, r.result.Report)
	assert.Equal(t, 2, r.result.Report.Count)
	assert.InDelta(t, 2, r.result.Report.Mean, 0.0001)
}

func TestEnter_NotLeaderWithSmallerForeignNode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := memory.NewStore()
	other := store.NewSession()
	require.NoError(t, other.EnsurePath(ctx, testPath))
	leader := registerForeign(t, other, participant.Payload{Repository: "org/leader", Value: participant.Float(7), Address: "L"})

	d := newTestDeps(t, store, "A")
	result, err := Enter(ctx, d, testConfig(2, participant.Float(1)))
	require.NoError(t, err)

	assert.Equal(t, "participant-0000000001", result.Name)
	assert.Equal(t, leader, result.Leader)
	assert.False(t, result.IsLeader)
	assert.Nil(t, result.Report)
	assert.Equal(t, []string{
		"registered participant-0000000001",
		"leaderMetadata participant-0000000000",
		"passed 2",
	}, d.recorder.Events())
	assert.Equal(t, "org/leader", d.recorder.LeaderPayload().Repository)
}

func TestEnter_WithoutValue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := memory.NewStore()
	d := newTestDeps(t, store, "A")
	result, err := Enter(ctx, d, testConfig(1, nil))
	require.NoError(t, err)

	assert.Empty(t, result.Leader)
	assert.False(t, result.IsLeader)
	assert.Nil(t, result.Report)
	assert.Equal(t, []string{"registered participant-0000000000", "passed 1"}, d.recorder.Events())
}

func TestEnter_RegistrationError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cases := []struct {
		name string
		op   memory.Op
	}{
		{name: "ensure path", op: memory.OpEnsurePath},
		{name: "create child", op: memory.OpCreateChild},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := memory.NewStore()
			store.InjectFault(tc.op, testPath, errors.New("disk full"))
			d := newTestDeps(t, store, "A")

			_, err := Enter(ctx, d, testConfig(1, participant.Float(1)))
			require.Error(t, err)
			var regErr *RegistrationError
			require.True(t, errors.As(err, &regErr))
			assert.Equal(t, `cannot register participant in barrier "barrier": disk full`, err.Error())
			assert.Equal(t, []string{"fatal registration"}, d.recorder.Events())
			assert.Empty(t, store.Children(testPath))
		})
	}
}

func TestEnter_InvalidConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		config   Config
		expected string
	}{
		{
			name:     "zero fetch concurrency",
			config:   Config{Path: testPath, Count: 1, Value: participant.Float(5), IdleTimeout: time.Minute, SessionTTL: time.Minute},
			expected: "fetchConcurrency must be 1 or greater",
		},
		{
			name:     "zero count",
			config:   Config{Path: testPath, Value: participant.Float(5), IdleTimeout: time.Minute, FetchConcurrency: 1, SessionTTL: time.Minute},
			expected: "count must be 1 or greater",
		},
		{
			name:     "zero idle timeout",
			config:   Config{Path: testPath, Count: 1, Value: participant.Float(5), FetchConcurrency: 1, SessionTTL: time.Minute},
			expected: "idleTimeout is a required field",
		},
		{
			name:     "empty path",
			config:   Config{Path: "//", Count: 1, IdleTimeout: time.Minute, FetchConcurrency: 1, SessionTTL: time.Minute},
			expected: "path",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			store := memory.NewStore()
			d := newTestDeps(t, store, "A")

			r := waitForResult(t, enterAsync(ctx, d, tc.config))
			require.Error(t, r.err)
			var configErr *InvalidConfigError
			require.True(t, errors.As(r.err, &configErr))
			assert.Contains(t, r.err.Error(), "invalid barrier configuration:")
			assert.Contains(t, r.err.Error(), tc.expected)
			assert.Equal(t, []string{"fatal invalidConfig"}, d.recorder.Events())
			assert.Empty(t, store.Children(testPath))
		})
	}
}

func TestEnter_WatchError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := memory.NewStore()
	store.InjectFault(memory.OpListChildren, testPath, errors.New("connection lost"))
	d := newTestDeps(t, store, "A")

	_, err := Enter(ctx, d, testConfig(1, participant.Float(1)))
	require.Error(t, err)
	var watchErr *WatchError
	require.True(t, errors.As(err, &watchErr))
	assert.Equal(t, `cannot watch participants of barrier "barrier": connection lost`, err.Error())
	assert.Equal(t, 1, d.recorder.Count("fatal watch"))
}

func TestEnter_MetadataFetchFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := memory.NewStore()
	d := newTestDeps(t, store, "A")
	ch := enterAsync(ctx, d, testConfig(2, participant.Float(1)))
	d.recorder.WaitFor(t, "waiting 1/2")

	// Invalid payload
	_, err := store.NewSession().CreateOrderedEphemeralChild(ctx, testPath, participant.NamePrefix, []byte("{"))
	require.NoError(t, err)

	r := waitForResult(t, ch)
	require.NoError(t, r.err)
	assert.Equal(t, 1, d.recorder.Count("fetchFailed participant-0000000001"))
	require.NotNil(t, r.result.Report)
	assert.Equal(t, 1, r.result.Report.Count)
	assert.Equal(t, 1, r.result.Report.Added)
	assert.Equal(t, 1, d.recorder.Count("passed 2"))
}

func TestEnter_OriginLookupFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := memory.NewStore()
	d := newTestDeps(t, store, "")
	d.origin = resolverFn(func(context.Context) (string, error) {
		return "", errors.New("network is unreachable")
	})

	result, err := Enter(ctx, d, testConfig(1, participant.Float(1)))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Participants)
	d.logger.AssertJSONMessages(t, `{"level":"warn","message":"cannot resolve origin address: network is unreachable","component":"barrier","barrier.path":"barrier"}`)

	data, err := d.session.GetData(ctx, coordination.JoinPath(testPath, result.Name))
	require.NoError(t, err)
	payload, err := participant.Decode(data)
	require.NoError(t, err)
	assert.Empty(t, payload.Address)
}

func TestEnter_ContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memory.NewStore()
	d := newTestDeps(t, store, "A")
	ch := enterAsync(ctx, d, testConfig(2, participant.Float(1)))
	d.recorder.WaitFor(t, "waiting 1/2")
	cancel()

	r := waitForResult(t, ch)
	require.ErrorIs(t, r.err, context.Canceled)
	assert.Equal(t, 1, d.recorder.Count("fatal canceled"))
}

func TestConfig_Normalize(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	cfg.Path = "/ci//barrier/"
	cfg.Normalize()
	assert.Equal(t, "ci/barrier", cfg.Path)
	require.NoError(t, cfg.Validate())

	cfg.Path = "/"
	assert.Error(t, cfg.Validate())
}

func (r *recorder) add(event string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) Events() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return slices.Clone(r.events)
}

func (r *recorder) Count(event string) int {
	count := 0
	for _, e := range r.Events() {
		if e == event {
			count++
		}
	}
	return count
}

func (r *recorder) WaitFor(t *testing.T, event string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return r.Count(event) > 0
	}, 10*time.Second, 5*time.Millisecond, "event %q not found in %v", event, r.Events())
}

func (r *recorder) Reports() []aggregation.Report {
	r.lock.Lock()
	defer r.lock.Unlock()
	return slices.Clone(r.reports)
}

func (r *recorder) LastReport() aggregation.Report {
	reports := r.Reports()
	if len(reports) == 0 {
		return aggregation.Report{}
	}
	return reports[len(reports)-1]
}

func (r *recorder) LeaderPayload() *participant.Payload {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.leader
}

func (r *recorder) Registered(_ context.Context, name string, _ participant.Payload) {
	r.add("registered " + name)
}

func (r *recorder) Waiting(_ context.Context, ready, total int) {
	r.add(fmt.Sprintf("waiting %d/%d", ready, total))
}

func (r *recorder) Aggregated(_ context.Context, report aggregation.Report) {
	r.lock.Lock()
	r.reports = append(r.reports, report)
	r.lock.Unlock()
	r.add(fmt.Sprintf("aggregated count=%d added=%d", report.Count, report.Added))
}

func (r *recorder) LeaderMetadata(_ context.Context, leader string, payload *participant.Payload) {
	r.lock.Lock()
	r.leader = payload
	r.lock.Unlock()
	r.add("leaderMetadata " + leader)
}

func (r *recorder) MetadataFetchFailed(_ context.Context, name string, _ error) {
	r.add("fetchFailed " + name)
}

func (r *recorder) Passed(_ context.Context, count int, _ time.Duration) {
	r.add(fmt.Sprintf("passed %d", count))
}

func (r *recorder) LeaderAnnounced(_ context.Context, leader string) {
	r.add("leaderAnnounced " + leader)
}

func (r *recorder) Fatal(_ context.Context, err error) {
	r.add("fatal " + observer.ErrorType(err))
}
