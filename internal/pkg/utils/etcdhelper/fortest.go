// Package etcdhelper provides an etcd cluster and assertions for tests.
package etcdhelper

import (
	"context"
	"fmt"
	"testing"

	etcd "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/namespace"
	"go.etcd.io/etcd/tests/v3/integration"

	"github.com/keboola/go-barrier/internal/pkg/idgenerator"
)

// Cluster is an embedded etcd cluster for tests.
type Cluster struct {
	cluster *integration.ClusterV3
}

// ClusterForTest starts an embedded single node etcd cluster, it is terminated after the test.
func ClusterForTest(t *testing.T) *Cluster {
	t.Helper()
	integration.BeforeTestExternal(t)
	cluster := integration.NewClusterV3(t, &integration.ClusterConfig{Size: 1})
	t.Cleanup(func() {
		cluster.Terminate(t)
	})
	cluster.WaitLeader(t)
	return &Cluster{cluster: cluster}
}

// Endpoints returns client URLs of the cluster.
func (c *Cluster) Endpoints() []string {
	return c.cluster.Client(0).Endpoints()
}

// Client returns a new client prefixed by an unique namespace, so a test cannot see keys of other tests.
func (c *Cluster) Client(t *testing.T, nsPrefix string) *etcd.Client {
	t.Helper()
	client, err := etcd.New(etcd.Config{Endpoints: c.Endpoints()})
	if err != nil {
		t.Fatalf("cannot create etcd client: %s", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})

	client.KV = namespace.NewKV(client.KV, nsPrefix)
	client.Lease = namespace.NewLease(client.Lease, nsPrefix)
	client.Watcher = namespace.NewWatcher(client.Watcher, nsPrefix)
	return client
}

// ClientForTest starts a cluster and returns a namespaced client.
func ClientForTest(t *testing.T) *etcd.Client {
	t.Helper()
	return ClusterForTest(t).Client(t, NamespaceForTest())
}

func NamespaceForTest() string {
	return fmt.Sprintf("unit-%s/", idgenerator.EtcdNamespaceForTest())
}

// DumpAllKeys returns all keys visible by the client, sorted.
func DumpAllKeys(ctx context.Context, client etcd.KV) ([]string, error) {
	resp, err := client.Get(ctx, "", etcd.WithFromKey(), etcd.WithKeysOnly(), etcd.WithSort(etcd.SortByKey, etcd.SortAscend))
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		keys = append(keys, string(kv.Key))
	}
	return keys, nil
}
