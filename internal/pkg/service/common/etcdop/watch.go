package etcdop

import (
	"context"

	"go.etcd.io/etcd/api/v3/mvccpb"
	etcd "go.etcd.io/etcd/client/v3"

	"github.com/keboola/go-barrier/internal/pkg/utils/errors"
)

type EventType int32

const (
	CreateEvent EventType = iota
	UpdateEvent
	DeleteEvent
)

type WatchEvent struct {
	Type EventType
	KV   *KeyValue
}

// WatchResponse contains events of one revision or an error.
type WatchResponse struct {
	Events   []WatchEvent
	Revision int64
	Err      error
}

// Watch the prefix, the output channel is closed when the ctx is done or the watcher is closed.
func (v Prefix) Watch(ctx context.Context, client etcd.Watcher, opts ...etcd.OpOption) <-chan WatchResponse {
	opts = append([]etcd.OpOption{etcd.WithPrefix()}, opts...)
	rawCh := client.Watch(ctx, v.Prefix(), opts...)
	outCh := make(chan WatchResponse)
	go func() {
		defer close(outCh)
		for resp := range rawCh {
			out := WatchResponse{Revision: resp.Header.Revision}
			if err := resp.Err(); err != nil {
				out.Err = errors.PrefixErrorf(err, `watch "%s" failed`, v.Prefix())
			}
			for _, event := range resp.Events {
				out.Events = append(out.Events, WatchEvent{Type: mapEventType(event), KV: event.Kv})
			}

			select {
			case outCh <- out:
			case <-ctx.Done():
				return
			}
		}
	}()
	return outCh
}

func mapEventType(event *etcd.Event) EventType {
	switch event.Type {
	case mvccpb.PUT:
		if event.Kv.CreateRevision == event.Kv.ModRevision {
			return CreateEvent
		}
		return UpdateEvent
	case mvccpb.DELETE:
		return DeleteEvent
	default:
		panic(errors.Errorf(`unexpected event type "%s"`, event.Type.String()))
	}
}
