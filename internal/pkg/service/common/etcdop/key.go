package etcdop

import (
	"context"

	etcd "go.etcd.io/etcd/client/v3"

	"github.com/keboola/go-barrier/internal/pkg/utils/errors"
)

// Key represents an etcd key - one key, not a prefix.
type Key string

func NewKey(v string) Key {
	return Key(v)
}

func (v Key) Key() string {
	return string(v)
}

func (v Key) Exists(client etcd.KV, opts ...etcd.OpOption) BoolOp {
	opts = append([]etcd.OpOption{etcd.WithCountOnly()}, opts...)
	return newOp(
		client,
		func(_ context.Context) (etcd.Op, error) {
			return etcd.OpGet(v.Key(), opts...), nil
		},
		func(_ context.Context, r etcd.OpResponse) (bool, error) {
			switch count := r.Get().Count; count {
			case 0:
				return false, nil
			case 1:
				return true, nil
			default:
				return false, errors.Errorf(`etcd exists: at most one result expected, found %d results`, count)
			}
		},
	)
}

// Get returns the KV pair or nil if the key doesn't exist.
func (v Key) Get(client etcd.KV, opts ...etcd.OpOption) Op[*KeyValue] {
	return newOp(
		client,
		func(_ context.Context) (etcd.Op, error) {
			return etcd.OpGet(v.Key(), opts...), nil
		},
		func(_ context.Context, r etcd.OpResponse) (*KeyValue, error) {
			switch count := r.Get().Count; count {
			case 0:
				return nil, nil
			case 1:
				return r.Get().Kvs[0], nil
			default:
				return nil, errors.Errorf(`etcd get: at most one result expected, found %d results`, count)
			}
		},
	)
}

func (v Key) Put(client etcd.KV, val string, opts ...etcd.OpOption) Op[NoResult] {
	return newOp(
		client,
		func(_ context.Context) (etcd.Op, error) {
			return etcd.OpPut(v.Key(), val, opts...), nil
		},
		func(_ context.Context, _ etcd.OpResponse) (NoResult, error) {
			// response is always OK
			return NoResult{}, nil
		},
	)
}

// PutIfNotExists returns true if the key has been created.
func (v Key) PutIfNotExists(client etcd.KV, val string, opts ...etcd.OpOption) BoolOp {
	return newOp(
		client,
		func(_ context.Context) (etcd.Op, error) {
			return etcd.OpTxn(
				[]etcd.Cmp{etcd.Compare(etcd.Version(v.Key()), "=", 0)},
				[]etcd.Op{etcd.OpPut(v.Key(), val, opts...)},
				nil,
			), nil
		},
		func(_ context.Context, r etcd.OpResponse) (bool, error) {
			return r.Txn().Succeeded, nil
		},
	)
}

func (v Key) Delete(client etcd.KV, opts ...etcd.OpOption) BoolOp {
	return newOp(
		client,
		func(_ context.Context) (etcd.Op, error) {
			return etcd.OpDelete(v.Key(), opts...), nil
		},
		func(_ context.Context, r etcd.OpResponse) (bool, error) {
			switch count := r.Del().Deleted; count {
			case 0:
				return false, nil
			case 1:
				return true, nil
			default:
				return false, errors.Errorf(`etcd delete: at most one result expected, found %d results`, count)
			}
		},
	)
}
