// Package feed keeps a live, grouped view of one recipient's notifications.
//
// A Feed loads the recipient's raw notifications, subscribes to change
// signals and reloads on each one. Every reload recomputes the display list
// once; all readers of that version share the same Snapshot.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"jobboard-notify-be/internal/entity"
	"jobboard-notify-be/internal/mapper"
	"jobboard-notify-be/internal/model"
	"jobboard-notify-be/internal/pkg/logger"
	"jobboard-notify-be/pkg/changefeed"
	"jobboard-notify-be/pkg/grouping"
)

var ErrFeedClosed = errors.New("feed closed")

type Reader interface {
	GetNotificationsByRecipient(ctx context.Context, recipientID string) ([]model.Notification, error)
}

type Store interface {
	Reader
	BatchWriter
}

// Snapshot is immutable once published. Readers must not modify its slices.
type Snapshot struct {
	Version     uint64
	Raw         []entity.RawNotification
	Display     []entity.DisplayNotification
	UnreadCount int
	// Err is set once the feed stopped; the data is the last good version.
	Err error
}

type Feed struct {
	recipientID string
	store       Store
	mutator     *ReadStateMutator
	mapper      *mapper.NotificationMapper
	logger      logger.ILogger

	mu           sync.RWMutex
	current      Snapshot
	listeners    map[uint64]func(Snapshot)
	nextListener uint64

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Open subscribes to changes for recipientID and loads the first snapshot.
// ctx bounds only the initial load; the feed lives until Close.
func Open(ctx context.Context, recipientID string, store Store, bus changefeed.Bus, log logger.ILogger) (*Feed, error) {
	runCtx, cancel := context.WithCancel(context.Background())

	// Subscribe before loading so a change between the two is not lost.
	changes, err := bus.Subscribe(runCtx, recipientID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to subscribe feed for %s: %w", recipientID, err)
	}

	f := &Feed{
		recipientID: recipientID,
		store:       store,
		mutator:     NewReadStateMutator(PublishingWriter(store, bus, log)),
		mapper:      mapper.NewNotificationMapper(),
		logger:      log,
		listeners:   make(map[uint64]func(Snapshot)),
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	if err := f.reload(ctx); err != nil {
		cancel()
		return nil, err
	}

	go f.run(runCtx, changes)
	return f, nil
}

func (f *Feed) RecipientID() string {
	return f.recipientID
}

func (f *Feed) Snapshot() Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

func (f *Feed) Err() error {
	return f.Snapshot().Err
}

// Listen registers fn for every new snapshot. fn runs on the feed goroutine
// and must not block. The returned func unregisters it.
func (f *Feed) Listen(fn func(Snapshot)) func() {
	f.mu.Lock()
	id := f.nextListener
	f.nextListener++
	f.listeners[id] = fn
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

// MarkAsRead marks the display record id as read. The feed itself is not
// changed; the next pushed snapshot reflects the write.
func (f *Feed) MarkAsRead(ctx context.Context, id string) error {
	return f.mutator.MarkAsRead(ctx, f.recipientID, f.Snapshot().Display, id)
}

func (f *Feed) MarkAllAsRead(ctx context.Context) error {
	return f.mutator.MarkAllAsRead(ctx, f.recipientID, f.Snapshot().Display)
}

// Close unregisters the change listener and waits for the feed goroutine.
// Writes already in flight are not affected.
func (f *Feed) Close() {
	f.closeOnce.Do(func() {
		f.cancel()
		<-f.done

		f.mu.Lock()
		if f.current.Err == nil {
			f.current.Err = ErrFeedClosed
		}
		f.listeners = make(map[uint64]func(Snapshot))
		f.mu.Unlock()
	})
}

func (f *Feed) run(ctx context.Context, changes <-chan struct{}) {
	defer close(f.done)

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				if ctx.Err() == nil {
					f.fail(changefeed.ErrBusClosed)
				}
				return
			}
			if err := f.reload(ctx); err != nil {
				if ctx.Err() == nil {
					f.fail(err)
				}
				return
			}
		}
	}
}

func (f *Feed) reload(ctx context.Context) error {
	rows, err := f.store.GetNotificationsByRecipient(ctx, f.recipientID)
	if err != nil {
		return fmt.Errorf("failed to load notifications for %s: %w", f.recipientID, err)
	}

	raw := f.mapper.ToEntities(rows)
	display := grouping.Group(raw)

	f.mu.Lock()
	f.current = Snapshot{
		Version:     f.current.Version + 1,
		Raw:         raw,
		Display:     display,
		UnreadCount: grouping.UnreadCount(display),
	}
	snap := f.current
	f.mu.Unlock()

	f.notify(snap)
	return nil
}

// fail stops the feed for good; there is no retry.
func (f *Feed) fail(err error) {
	f.logger.Error("Feed", "Notification feed stopped", map[string]interface{}{
		"recipient_id": f.recipientID,
		"error":        err.Error(),
	})

	f.mu.Lock()
	f.current.Err = err
	snap := f.current
	f.mu.Unlock()

	f.notify(snap)
}

func (f *Feed) notify(snap Snapshot) {
	f.mu.RLock()
	fns := make([]func(Snapshot), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.RUnlock()

	for _, fn := range fns {
		fn(snap)
	}
}

type publishingWriter struct {
	BatchWriter
	bus    changefeed.Bus
	logger logger.ILogger
}

// PublishingWriter signals the bus after every successful write so open
// feeds reload. A failed signal is logged; the write already succeeded.
func PublishingWriter(w BatchWriter, bus changefeed.Bus, log logger.ILogger) BatchWriter {
	return &publishingWriter{BatchWriter: w, bus: bus, logger: log}
}

func (w *publishingWriter) MarkAsRead(ctx context.Context, recipientID string, ids []string) error {
	if err := w.BatchWriter.MarkAsRead(ctx, recipientID, ids); err != nil {
		return err
	}
	if err := w.bus.Publish(ctx, recipientID); err != nil {
		w.logger.Warn("Feed", "Failed to signal notification change", map[string]interface{}{
			"recipient_id": recipientID,
			"error":        err.Error(),
		})
	}
	return nil
}
