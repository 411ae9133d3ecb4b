// Package shared implements the shared-state broker: a keyed store through
// which independent component instances read and write the same logical
// value.
//
// The runtime reads every shared field from the broker when a component is
// mounted or hydrated and writes changed values back after its actions ran.
// Concurrent writers to one key race (read, mutate, write). With the default
// LastWriterWins consistency the later write silently wins; CompareAndSwap
// turns a lost race into ErrConflict instead. Stores that cannot swap
// atomically only support LastWriterWins.
package shared

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrConflict is returned by Broker.Put under CompareAndSwap consistency when
// the stored value changed since it was read.
var ErrConflict = errors.New("shared: concurrent write conflict")

// Store is the external key-value store. No transactional guarantees are
// assumed. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value for key, or ok=false if it was never set.
	Get(ctx context.Context, key string) (value json.RawMessage, ok bool, err error)
	// Set overwrites key.
	Set(ctx context.Context, key string, value json.RawMessage) error
}

// Swapper is implemented by stores that can write conditionally.
type Swapper interface {
	// CompareAndSwap stores next only if the current value equals prev.
	// A nil prev means the key must not exist yet.
	CompareAndSwap(ctx context.Context, key string, prev, next json.RawMessage) (bool, error)
}

// Notifier is told about every successful write.
type Notifier interface {
	Publish(key string)
}
