// Package etcdcoord implements the coordination service on top of etcd v3.
//
// Mapping of the coordination primitives:
//   - A path is a key, the key of a parent path stores the next sequence number of its ordered children.
//   - An ordered child is allocated by a transaction, which compares the parent key revision and increments the sequence.
//   - An ephemeral child is a key attached to the session lease.
//   - A one-shot notification is a prefix watch from the listing revision + 1, cancelled after the first event.
package etcdcoord

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	etcd "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/keboola/go-barrier/internal/pkg/log"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/coordination"
	"github.com/keboola/go-barrier/internal/pkg/service/common/etcdop"
	"github.com/keboola/go-barrier/internal/pkg/utils/errors"
)

const initialSequence = "0"

// Coordinator implements coordination.Service, ephemeral children are bound to the session.
type Coordinator struct {
	logger  log.Logger
	client  *etcd.Client
	session *concurrency.Session
}

type sequenceConflictError struct {
	parent string
}

func (e sequenceConflictError) Error() string {
	return fmt.Sprintf(`sequence of "%s" has been modified concurrently`, e.parent)
}

func New(logger log.Logger, client *etcd.Client, session *concurrency.Session) *Coordinator {
	return &Coordinator{logger: logger.WithComponent("coordinator"), client: client, session: session}
}

func (c *Coordinator) EnsurePath(ctx context.Context, path string) error {
	key := etcdop.NewKey(coordination.NormalizePath(path))
	created, err := key.PutIfNotExists(c.client, initialSequence).Do(ctx)
	if err != nil {
		return errors.PrefixErrorf(err, `cannot create path "%s"`, key.Key())
	}
	if created {
		c.logger.Debugf(ctx, `created path "%s"`, key.Key())
	}
	return nil
}

// CreateOrderedEphemeralChild allocates the next sequence of the parent and creates the child in one transaction.
// The transaction is retried with a backoff, if the parent has been modified concurrently.
func (c *Coordinator) CreateOrderedEphemeralChild(ctx context.Context, parent, prefix string, data []byte) (string, error) {
	parentKey := etcdop.NewKey(coordination.NormalizePath(parent))

	var name string
	create := func() error {
		kv, err := parentKey.Get(c.client).Do(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if kv == nil {
			return backoff.Permanent(errors.PrefixErrorf(coordination.ErrNotFound, `parent "%s"`, parentKey.Key()))
		}

		sequence, err := strconv.ParseInt(string(kv.Value), 10, 64)
		if err != nil {
			return backoff.Permanent(errors.PrefixErrorf(err, `parent "%s" contains invalid sequence`, parentKey.Key()))
		}

		childName := prefix + fmt.Sprintf(coordination.SequenceFormat, sequence)
		childKey := etcdop.NewKey(coordination.JoinPath(parentKey.Key(), childName))
		resp, err := c.client.Txn(ctx).
			If(etcd.Compare(etcd.ModRevision(parentKey.Key()), "=", kv.ModRevision)).
			Then(
				etcd.OpPut(parentKey.Key(), strconv.FormatInt(sequence+1, 10)),
				etcd.OpPut(childKey.Key(), string(data), etcd.WithLease(c.session.Lease())),
			).
			Commit()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !resp.Succeeded {
			return sequenceConflictError{parent: parentKey.Key()}
		}

		name = childName
		return nil
	}

	notify := func(err error, delay time.Duration) {
		c.logger.Debugf(ctx, "%s, retrying in %s", err, delay)
	}

	if err := backoff.RetryNotify(create, backoff.WithContext(newSequenceBackoff(), ctx), notify); err != nil {
		return "", errors.PrefixErrorf(err, `cannot create child of "%s"`, parentKey.Key())
	}
	return name, nil
}

func (c *Coordinator) ListChildren(ctx context.Context, path string) (coordination.Listing, coordination.Notification, error) {
	key := etcdop.NewKey(coordination.NormalizePath(path))
	found, err := key.Exists(c.client).Do(ctx)
	if err != nil {
		return coordination.Listing{}, nil, errors.PrefixErrorf(err, `cannot list children of "%s"`, key.Key())
	}
	if !found {
		return coordination.Listing{}, nil, errors.PrefixErrorf(coordination.ErrNotFound, `path "%s"`, key.Key())
	}

	pfx := etcdop.NewPrefix(key.Key())
	kvs, err := pfx.GetAll(c.client, etcd.WithKeysOnly()).Do(ctx)
	if err != nil {
		return coordination.Listing{}, nil, errors.PrefixErrorf(err, `cannot list children of "%s"`, key.Key())
	}

	listing := coordination.Listing{Revision: kvs.Revision}
	for _, kv := range kvs.KVs {
		if name := string(kv.Key)[len(pfx.Prefix()):]; coordination.IsDirectChild(name) {
			listing.Names = append(listing.Names, name)
		}
	}

	// Watch changes after the listing, so no change is lost
	watchCtx, cancel := context.WithCancel(ctx)
	notification := coordination.NewOneShot(cancel)
	go func() {
		for resp := range pfx.Watch(watchCtx, c.client, etcd.WithRev(kvs.Revision+1)) {
			if resp.Err != nil {
				notification.Fire(resp.Err)
				return
			}
			for _, event := range resp.Events {
				if coordination.IsDirectChild(string(event.KV.Key)[len(pfx.Prefix()):]) {
					notification.Fire(nil)
					return
				}
			}
		}
		if watchCtx.Err() == nil {
			notification.Fire(errors.Errorf(`watch of "%s" has been closed`, pfx.Prefix()))
		}
	}()

	return listing, notification, nil
}

func (c *Coordinator) GetData(ctx context.Context, path string) ([]byte, error) {
	key := etcdop.NewKey(coordination.NormalizePath(path))
	kv, err := key.Get(c.client).Do(ctx)
	if err != nil {
		return nil, errors.PrefixErrorf(err, `cannot get data of "%s"`, key.Key())
	}
	if kv == nil {
		return nil, errors.PrefixErrorf(coordination.ErrNotFound, `path "%s"`, key.Key())
	}
	return kv.Value, nil
}

func newSequenceBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.RandomizationFactor = 0.5
	b.InitialInterval = 5 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second
	b.Reset()
	return b
}
