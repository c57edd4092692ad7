// Package etcdop provides a small framework on top of etcd low-level operations.
//
// See Key and Prefix types. Examples can be found in the tests.
//
// Goals:
// - Reduce the risk of an error when defining an operation.
// - Distinguish between operations over one key (Key type) and several keys (Prefix type).
package etcdop

import (
	"context"

	"go.etcd.io/etcd/api/v3/mvccpb"
	etcd "go.etcd.io/etcd/client/v3"
)

type KeyValue = mvccpb.KeyValue

type opFactory func(ctx context.Context) (etcd.Op, error)

type processor[R any] func(ctx context.Context, r etcd.OpResponse) (R, error)

// Op is a lazy etcd operation with a typed result.
type Op[R any] struct {
	client    etcd.KV
	factory   opFactory
	processor processor[R]
}

type BoolOp = Op[bool]

type NoResult struct{}

func newOp[R any](client etcd.KV, factory opFactory, p processor[R]) Op[R] {
	return Op[R]{client: client, factory: factory, processor: p}
}

// Op returns raw etcd.Op, it can be used in a transaction.
func (v Op[R]) Op(ctx context.Context) (etcd.Op, error) {
	return v.factory(ctx)
}

// Do executes the operation and maps the response to the result.
func (v Op[R]) Do(ctx context.Context) (result R, err error) {
	etcdOp, err := v.factory(ctx)
	if err != nil {
		return result, err
	}
	r, err := v.client.Do(ctx, etcdOp)
	if err != nil {
		return result, err
	}
	return v.processor(ctx, r)
}
