// Package lock implements ConcurrencyGate: a named, time-bounded
// exclusive lock per machine instance, held around send-and-persist.
package lock

import (
	"context"
	"time"

	"github.com/statecraftio/statecraft/pkg/statecraft"
)

// DefaultTimeout is the bounded acquisition wait.
const DefaultTimeout = 60 * time.Second

// Gate is the ConcurrencyGate contract. Acquire blocks up to its configured
// timeout; on success the returned release func must be called on every
// exit path.
type Gate interface {
	Acquire(ctx context.Context, rootEventID string) (release func(), err error)
}

// lockName is the named-lock key used by every Gate implementation.
func lockName(rootEventID string) string {
	return "mre:" + rootEventID
}

// alreadyRunning adapts the shared error type for Gate implementations.
func alreadyRunning(rootEventID string) error {
	return &statecraft.AlreadyRunning{RootEventID: rootEventID}
}
