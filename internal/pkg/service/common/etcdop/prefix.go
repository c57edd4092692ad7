package etcdop

import (
	"context"
	"strings"

	etcd "go.etcd.io/etcd/client/v3"
)

// Prefix represents an etcd keys prefix - multiple keys prefix, not a one key.
type Prefix string

// KeyValues is a result of a prefix listing, Revision is the store revision at the time of the listing.
type KeyValues struct {
	KVs      []*KeyValue
	Revision int64
}

func NewPrefix(v string) Prefix {
	return Prefix(strings.Trim(v, "/"))
}

func (v Prefix) Prefix() string {
	return string(v) + "/"
}

func (v Prefix) Add(str string) Prefix {
	return Prefix(v.Prefix() + str)
}

func (v Prefix) Key(key string) Key {
	return Key(v.Prefix() + key)
}

// GetAll returns all KV pairs under the prefix, sorted by key, and the listing revision.
func (v Prefix) GetAll(client etcd.KV, opts ...etcd.OpOption) Op[KeyValues] {
	opts = append([]etcd.OpOption{etcd.WithPrefix(), etcd.WithSort(etcd.SortByKey, etcd.SortAscend)}, opts...)
	return newOp(
		client,
		func(_ context.Context) (etcd.Op, error) {
			return etcd.OpGet(v.Prefix(), opts...), nil
		},
		func(_ context.Context, r etcd.OpResponse) (KeyValues, error) {
			get := r.Get()
			return KeyValues{KVs: get.Kvs, Revision: get.Header.Revision}, nil
		},
	)
}
