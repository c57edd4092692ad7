// Package memory provides an in-process coordination service.
//
// It is used by tests and by the local dry-run mode, all participants must share one Store.
// Each Session is a client handle, its ephemeral nodes are removed when the session is closed.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/keboola/go-barrier/internal/pkg/service/barrier/coordination"
	"github.com/keboola/go-barrier/internal/pkg/utils/errors"
)

type Op string

const (
	OpEnsurePath   Op = "ensurePath"
	OpCreateChild  Op = "createChild"
	OpListChildren Op = "listChildren"
	OpGetData      Op = "getData"
)

type Store struct {
	lock     sync.Mutex
	revision int64
	nodes    map[string]*node
	watches  map[string][]*coordination.OneShot
	faults   map[fault]error
	sessions int
}

type node struct {
	data     []byte
	owner    *Session
	sequence int
}

type fault struct {
	op   Op
	path string
}

type Session struct {
	store  *Store
	id     int
	closed bool
}

func NewStore() *Store {
	return &Store{
		nodes:   make(map[string]*node),
		watches: make(map[string][]*coordination.OneShot),
		faults:  make(map[fault]error),
	}
}

// NewSession creates a client handle of the store.
func (s *Store) NewSession() *Session {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.sessions++
	return &Session{store: s, id: s.sessions}
}

// InjectFault makes all following operations of the type over the path fail with the error.
// Nil error removes the fault.
func (s *Store) InjectFault(op Op, path string, err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	key := fault{op: op, path: coordination.NormalizePath(path)}
	if err == nil {
		delete(s.faults, key)
	} else {
		s.faults[key] = err
	}
}

// Delete removes the node, it simulates an external modification.
func (s *Store) Delete(path string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	path = coordination.NormalizePath(path)
	if _, found := s.nodes[path]; !found {
		return false
	}
	s.deleteNode(path)
	return true
}

// Children returns sorted names of direct children of the path.
func (s *Store) Children(path string) []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.children(coordination.NormalizePath(path))
}

// Close removes all ephemeral nodes of the session, the session cannot be used after.
func (sess *Session) Close() {
	s := sess.store
	s.lock.Lock()
	defer s.lock.Unlock()
	if sess.closed {
		return
	}
	sess.closed = true

	var paths []string
	for path, n := range s.nodes {
		if n.owner == sess {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	for _, path := range paths {
		s.deleteNode(path)
	}
}

func (sess *Session) EnsurePath(ctx context.Context, path string) error {
	s := sess.store
	s.lock.Lock()
	defer s.lock.Unlock()
	path = coordination.NormalizePath(path)
	if err := sess.check(ctx, OpEnsurePath, path); err != nil {
		return err
	}

	// Create all missing ancestors, like "mkdir -p"
	parts := strings.Split(path, "/")
	for i := range parts {
		current := strings.Join(parts[:i+1], "/")
		if _, found := s.nodes[current]; !found {
			s.putNode(current, &node{})
		}
	}
	return nil
}

func (sess *Session) CreateOrderedEphemeralChild(ctx context.Context, parent, prefix string, data []byte) (string, error) {
	s := sess.store
	s.lock.Lock()
	defer s.lock.Unlock()
	parent = coordination.NormalizePath(parent)
	if err := sess.check(ctx, OpCreateChild, parent); err != nil {
		return "", err
	}

	parentNode, found := s.nodes[parent]
	if !found {
		return "", errors.PrefixErrorf(coordination.ErrNotFound, `parent "%s"`, parent)
	}

	name := prefix + fmt.Sprintf(coordination.SequenceFormat, parentNode.sequence)
	parentNode.sequence++
	s.putNode(coordination.JoinPath(parent, name), &node{data: append([]byte(nil), data...), owner: sess})
	return name, nil
}

func (sess *Session) ListChildren(ctx context.Context, path string) (coordination.Listing, coordination.Notification, error) {
	s := sess.store
	s.lock.Lock()
	defer s.lock.Unlock()
	path = coordination.NormalizePath(path)
	if err := sess.check(ctx, OpListChildren, path); err != nil {
		return coordination.Listing{}, nil, err
	}
	if _, found := s.nodes[path]; !found {
		return coordination.Listing{}, nil, errors.PrefixErrorf(coordination.ErrNotFound, `path "%s"`, path)
	}

	// The notification is registered atomically with the listing
	var notification *coordination.OneShot
	notification = coordination.NewOneShot(func() {
		go s.removeWatch(path, notification)
	})
	s.watches[path] = append(s.watches[path], notification)
	return coordination.Listing{Names: s.children(path), Revision: s.revision}, notification, nil
}

func (sess *Session) GetData(ctx context.Context, path string) ([]byte, error) {
	s := sess.store
	s.lock.Lock()
	defer s.lock.Unlock()
	path = coordination.NormalizePath(path)
	if err := sess.check(ctx, OpGetData, path); err != nil {
		return nil, err
	}
	n, found := s.nodes[path]
	if !found {
		return nil, errors.PrefixErrorf(coordination.ErrNotFound, `path "%s"`, path)
	}
	return append([]byte(nil), n.data...), nil
}

func (sess *Session) check(ctx context.Context, op Op, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sess.closed {
		return errors.New("session is closed")
	}
	if err := sess.store.faults[fault{op: op, path: path}]; err != nil {
		return err
	}
	return nil
}

func (s *Store) children(path string) []string {
	var names []string
	prefix := path + "/"
	for key := range s.nodes {
		if name, found := strings.CutPrefix(key, prefix); found && coordination.IsDirectChild(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (s *Store) putNode(path string, n *node) {
	s.revision++
	s.nodes[path] = n
	s.notifyParent(path)
}

func (s *Store) deleteNode(path string) {
	s.revision++
	delete(s.nodes, path)
	s.notifyParent(path)
}

// notifyParent fires and removes all one-shot notifications registered on the parent of the path.
func (s *Store) notifyParent(path string) {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return
	}
	parent := path[:idx]
	watches := s.watches[parent]
	delete(s.watches, parent)
	for _, w := range watches {
		w.Fire(nil)
	}
}

func (s *Store) removeWatch(path string, notification *coordination.OneShot) {
	s.lock.Lock()
	defer s.lock.Unlock()
	watches := s.watches[path]
	for i, w := range watches {
		if w == notification {
			s.watches[path] = append(watches[:i:i], watches[i+1:]...)
			break
		}
	}
	if len(s.watches[path]) == 0 {
		delete(s.watches, path)
	}
}
