package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Consistency selects how the broker resolves concurrent writes to one key.
type Consistency int

const (
	// LastWriterWins overwrites unconditionally. Two islands incrementing the
	// same counter concurrently can lose one increment.
	LastWriterWins Consistency = iota
	// CompareAndSwap writes only if the value is unchanged since it was read
	// and reports ErrConflict otherwise. Requires a Swapper store.
	CompareAndSwap
)

func (c Consistency) String() string {
	switch c {
	case LastWriterWins:
		return "last-writer-wins"
	case CompareAndSwap:
		return "compare-and-swap"
	default:
		return fmt.Sprintf("Consistency(%d)", int(c))
	}
}

// ParseConsistency parses the String form of a Consistency.
func ParseConsistency(s string) (Consistency, error) {
	switch s {
	case "", "last-writer-wins", "lww":
		return LastWriterWins, nil
	case "compare-and-swap", "cas":
		return CompareAndSwap, nil
	default:
		return 0, fmt.Errorf("shared: unknown consistency %q", s)
	}
}

// Option configures a Broker.
type Option func(*Broker)

// WithConsistency sets the write discipline.
func WithConsistency(c Consistency) Option {
	return func(b *Broker) {
		b.consistency = c
	}
}

// WithNotifier registers a notifier called after every successful write.
func WithNotifier(n Notifier) Option {
	return func(b *Broker) {
		b.notifiers = append(b.notifiers, n)
	}
}

// Broker wraps a Store with a consistency policy and change notification.
type Broker struct {
	store       Store
	consistency Consistency
	notifiers   []Notifier
}

// NewBroker creates a broker. It fails if CompareAndSwap is requested for a
// store that does not implement Swapper.
func NewBroker(store Store, opts ...Option) (*Broker, error) {
	if store == nil {
		return nil, errors.New("shared: nil store")
	}
	b := &Broker{store: store}
	for _, opt := range opts {
		opt(b)
	}
	if b.consistency == CompareAndSwap {
		if _, ok := store.(Swapper); !ok {
			return nil, fmt.Errorf("shared: %T does not support compare-and-swap", store)
		}
	}
	return b, nil
}

// Consistency returns the configured write discipline.
func (b *Broker) Consistency() Consistency {
	return b.consistency
}

// Get reads key from the store.
func (b *Broker) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	v, ok, err := b.store.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("shared: get %q: %w", key, err)
	}
	return v, ok, nil
}

// Put writes next to key. prev is the value observed when the caller read the
// key (nil if it was absent); it is only consulted under CompareAndSwap.
func (b *Broker) Put(ctx context.Context, key string, prev, next json.RawMessage) error {
	switch b.consistency {
	case CompareAndSwap:
		swapped, err := b.store.(Swapper).CompareAndSwap(ctx, key, prev, next)
		if err != nil {
			return fmt.Errorf("shared: swap %q: %w", key, err)
		}
		if !swapped {
			return fmt.Errorf("shared: swap %q: %w", key, ErrConflict)
		}
	default:
		if err := b.store.Set(ctx, key, next); err != nil {
			return fmt.Errorf("shared: set %q: %w", key, err)
		}
	}
	for _, n := range b.notifiers {
		n.Publish(key)
	}
	return nil
}
