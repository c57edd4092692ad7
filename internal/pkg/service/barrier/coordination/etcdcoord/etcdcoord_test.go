package etcdcoord

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/go-barrier/internal/pkg/log"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/coordination"
	"github.com/keboola/go-barrier/internal/pkg/service/common/etcdop"
	"github.com/keboola/go-barrier/internal/pkg/utils/errors"
	"github.com/keboola/go-barrier/internal/pkg/utils/etcdhelper"
)

var _ coordination.Service = (*Coordinator)(nil)

func newCoordinatorForTest(t *testing.T, cluster *etcdhelper.Cluster, namespace string) *Coordinator {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	client := cluster.Client(t, namespace)
	session, err := etcdop.NewSession(ctx, context.Background(), log.NewNopLogger(), client, 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = session.Close()
	})
	return New(log.NewNopLogger(), client, session)
}

func TestCoordinator(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cluster := etcdhelper.ClusterForTest(t)
	namespace := etcdhelper.NamespaceForTest()
	c1 := newCoordinatorForTest(t, cluster, namespace)
	c2 := newCoordinatorForTest(t, cluster, namespace)

	// Path
	require.NoError(t, c1.EnsurePath(ctx, "/barrier/"))
	require.NoError(t, c2.EnsurePath(ctx, "barrier"))
	data, err := c1.GetData(ctx, "barrier")
	require.NoError(t, err)
	assert.Equal(t, "0", string(data))

	// Children
	name1, err := c1.CreateOrderedEphemeralChild(ctx, "barrier", "participant-", []byte(`{"ip":"A"}`))
	require.NoError(t, err)
	assert.Equal(t, "participant-0000000000", name1)

	listing, notification, err := c2.ListChildren(ctx, "barrier")
	require.NoError(t, err)
	defer notification.Cancel()
	assert.Equal(t, []string{name1}, listing.Names)

	name2, err := c2.CreateOrderedEphemeralChild(ctx, "barrier", "participant-", []byte(`{"ip":"B"}`))
	require.NoError(t, err)
	assert.Equal(t, "participant-0000000001", name2)

	select {
	case <-notification.Done():
		require.NoError(t, notification.Err())
	case <-ctx.Done():
		require.Fail(t, "notification has not been fired")
	}

	data, err = c1.GetData(ctx, coordination.JoinPath("barrier", name2))
	require.NoError(t, err)
	assert.Equal(t, `{"ip":"B"}`, string(data))

	// Ephemeral child disappears with the session
	listing, notification, err = c1.ListChildren(ctx, "barrier")
	require.NoError(t, err)
	assert.Equal(t, []string{name1, name2}, listing.Names)
	require.NoError(t, c2.session.Close())
	<-notification.Done()

	listing, notification, err = c1.ListChildren(ctx, "barrier")
	require.NoError(t, err)
	notification.Cancel()
	assert.Equal(t, []string{name1}, listing.Names)
}

func TestCoordinator_ConcurrentSequence(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cluster := etcdhelper.ClusterForTest(t)
	namespace := etcdhelper.NamespaceForTest()
	c := newCoordinatorForTest(t, cluster, namespace)
	require.NoError(t, c.EnsurePath(ctx, "barrier"))

	const count = 10
	names := make([]string, count)
	wg := &sync.WaitGroup{}
	for i := 0; i < count; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			name, err := c.CreateOrderedEphemeralChild(ctx, "barrier", "participant-", nil)
			assert.NoError(t, err)
			names[i] = name
		}()
	}
	wg.Wait()

	listing, notification, err := c.ListChildren(ctx, "barrier")
	require.NoError(t, err)
	notification.Cancel()
	assert.Len(t, listing.Names, count)
	assert.ElementsMatch(t, listing.Names, names)
	assert.Equal(t, "participant-0000000000", listing.Names[0])
	assert.Equal(t, "participant-0000000009", listing.Names[count-1])

	// The parent key holds the sequence, children are checked above
	etcdhelper.AssertKeys(t, cluster.Client(t, namespace), []string{"barrier"}, etcdhelper.WithIgnoredKeyPattern(`^barrier/participant-`))
}

func TestCoordinator_NotFound(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c := newCoordinatorForTest(t, etcdhelper.ClusterForTest(t), etcdhelper.NamespaceForTest())

	_, err := c.CreateOrderedEphemeralChild(ctx, "missing", "participant-", nil)
	assert.True(t, errors.Is(err, coordination.ErrNotFound))

	_, _, err = c.ListChildren(ctx, "missing")
	assert.True(t, errors.Is(err, coordination.ErrNotFound))

	_, err = c.GetData(ctx, "missing")
	assert.True(t, errors.Is(err, coordination.ErrNotFound))
}
