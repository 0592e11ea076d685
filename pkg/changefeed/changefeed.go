// Package changefeed signals that a recipient's notification set changed.
// Signals carry no data; listeners reload from the store.
package changefeed

import (
	"context"
	"errors"
)

var ErrBusClosed = errors.New("changefeed: bus closed")

type Bus interface {
	// Publish tells every listener of recipientID to reload.
	Publish(ctx context.Context, recipientID string) error
	// Subscribe returns a channel that receives one value per change, with
	// bursts coalesced. The channel is closed when ctx is cancelled or the
	// bus shuts down.
	Subscribe(ctx context.Context, recipientID string) (<-chan struct{}, error)
	Close() error
}

// signal is a non-blocking send that coalesces pending changes.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
