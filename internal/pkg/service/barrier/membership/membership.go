// Package membership lists participants of a barrier and re-arms a change notification on each listing.
package membership

import (
	"context"
	"slices"

	"github.com/keboola/go-barrier/internal/pkg/service/barrier/coordination"
)

// Snapshot is a sorted set of participant names at a point in time.
type Snapshot struct {
	Names    []string
	Revision int64
}

func (s Snapshot) Len() int {
	return len(s.Names)
}

func (s Snapshot) Contains(name string) bool {
	_, found := slices.BinarySearch(s.Names, name)
	return found
}

// Added returns names present in the snapshot but not in the previous one, in the sorted order.
func (s Snapshot) Added(previous Snapshot) []string {
	var out []string
	for _, name := range s.Names {
		if !previous.Contains(name) {
			out = append(out, name)
		}
	}
	return out
}

// Watcher delivers snapshots one at a time, the caller pulls the next one after the notification.
type Watcher struct {
	service      coordination.Service
	path         string
	notification coordination.Notification
}

func NewWatcher(service coordination.Service, path string) *Watcher {
	return &Watcher{service: service, path: path}
}

// Next cancels the previous notification, lists the children and arms a new one-shot notification.
// The notification is registered together with the listing, so no later change is missed.
func (w *Watcher) Next(ctx context.Context) (Snapshot, coordination.Notification, error) {
	w.cancel()

	listing, notification, err := w.service.ListChildren(ctx, w.path)
	if err != nil {
		return Snapshot{}, nil, err
	}
	w.notification = notification

	names := slices.Clone(listing.Names)
	slices.Sort(names)
	return Snapshot{Names: names, Revision: listing.Revision}, notification, nil
}

// Close cancels the pending notification.
func (w *Watcher) Close() {
	w.cancel()
}

func (w *Watcher) cancel() {
	if w.notification != nil {
		w.notification.Cancel()
		w.notification = nil
	}
}
