package feed

import (
	"context"
	"errors"

	"jobboard-notify-be/internal/entity"
	"jobboard-notify-be/pkg/grouping"
)

// ErrUnknownSummary is returned for a summary id that is not in the current
// display list, usually because a newer application changed the summary.
var ErrUnknownSummary = errors.New("notification summary not found")

// BatchWriter applies isRead=true to every id atomically.
type BatchWriter interface {
	MarkAsRead(ctx context.Context, recipientID string, ids []string) error
}

// ReadStateMutator translates display records back into raw ids and writes
// them in one batch. It never touches the display list it is given.
type ReadStateMutator struct {
	writer BatchWriter
}

func NewReadStateMutator(writer BatchWriter) *ReadStateMutator {
	return &ReadStateMutator{writer: writer}
}

// MarkAsRead resolves id against display. Raw ids absent from the list are
// written as-is and the store decides whether they exist.
func (m *ReadStateMutator) MarkAsRead(ctx context.Context, recipientID string, display []entity.DisplayNotification, id string) error {
	for _, d := range display {
		if d.ID != id {
			continue
		}
		if d.IsSummary() {
			return m.writer.MarkAsRead(ctx, recipientID, d.OriginalIDs)
		}
		if d.IsRead {
			return nil
		}
		return m.writer.MarkAsRead(ctx, recipientID, []string{id})
	}

	if grouping.IsSummaryID(id) {
		return ErrUnknownSummary
	}
	return m.writer.MarkAsRead(ctx, recipientID, []string{id})
}

// MarkAllAsRead writes every unread raw id behind display in one batch and
// skips the write entirely when nothing is unread.
func (m *ReadStateMutator) MarkAllAsRead(ctx context.Context, recipientID string, display []entity.DisplayNotification) error {
	ids := UnreadIDs(display)
	if len(ids) == 0 {
		return nil
	}
	return m.writer.MarkAsRead(ctx, recipientID, ids)
}

// UnreadIDs expands summaries into their raw ids.
func UnreadIDs(display []entity.DisplayNotification) []string {
	var ids []string
	for _, d := range display {
		switch {
		case d.IsSummary():
			ids = append(ids, d.OriginalIDs...)
		case !d.IsRead:
			ids = append(ids, d.ID)
		}
	}
	return ids
}
