// Package coordination defines the coordination service consumed by the barrier.
//
// The service provides hierarchical paths, ordered ephemeral children,
// children listing with a one-shot change notification and reading of a node data.
package coordination

import (
	"context"
	"strings"

	"github.com/keboola/go-barrier/internal/pkg/utils/errors"
)

// ErrNotFound is returned when a path doesn't exist.
var ErrNotFound = errors.New("not found")

// SequenceFormat is the format of the sequence suffix of an ordered child name, names sort lexicographically in creation order.
const SequenceFormat = "%010d"

type Service interface {
	// EnsurePath creates the path, if it doesn't exist.
	EnsurePath(ctx context.Context, path string) error
	// CreateOrderedEphemeralChild creates a child "<prefix><sequence>" of the parent path.
	// The child is removed when the session of the owner ends.
	CreateOrderedEphemeralChild(ctx context.Context, parent, prefix string, data []byte) (name string, err error)
	// ListChildren returns sorted names of direct children and a one-shot notification of the next change.
	ListChildren(ctx context.Context, path string) (Listing, Notification, error)
	// GetData returns the data of the node.
	GetData(ctx context.Context, path string) ([]byte, error)
}

// Listing is a result of the ListChildren operation.
type Listing struct {
	Names    []string
	Revision int64
}

// NormalizePath removes leading, trailing and duplicate slashes, so "/barrier/" becomes "barrier".
func NormalizePath(path string) string {
	var parts []string
	for _, part := range strings.Split(path, "/") {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, "/")
}

// JoinPath joins the parent path and the child name.
func JoinPath(parent, name string) string {
	return NormalizePath(parent + "/" + name)
}

// IsDirectChild returns true if the relative name doesn't contain a nested path.
func IsDirectChild(name string) bool {
	return name != "" && !strings.Contains(name, "/")
}
