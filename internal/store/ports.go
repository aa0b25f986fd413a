// Package store defines the tree store the views read from and the
// services write to, plus the path, tree and subscription plumbing shared
// by its backends.
package store

import (
	"context"
	"errors"
)

var (
	ErrInvalidPath = errors.New("invalid path")
	ErrNotObject   = errors.New("target is not an object")
	ErrClosed      = errors.New("store is closed")
)

// Listener receives the current value at a subscribed path. Values are
// shared with other listeners and must be treated as read-only.
type Listener func(value any)

// ErrorListener receives read failures for a subscribed path.
type ErrorListener func(err error)

// Ports for the tree store.
type (
	Subscriber interface {
		// Subscribe delivers the current value at path once, then again on
		// every change at, above or below path.
		Subscribe(ctx context.Context, path string, onChange Listener, onError ErrorListener) (*Subscription, error)
		// Unsubscribe stops both listeners. It is safe to call repeatedly.
		Unsubscribe(sub *Subscription)
	}

	Reader interface {
		ReadOnce(ctx context.Context, path string) (any, error)
	}

	Writer interface {
		// Write replaces the value at path. A nil value deletes it.
		Write(ctx context.Context, path string, value any) error
		// Update merges partial into the object at path. Keys may be
		// nested paths such as "payments/p1".
		Update(ctx context.Context, path string, partial map[string]any) error
	}

	Store interface {
		Subscriber
		Reader
		Writer
		Close() error
	}
)
