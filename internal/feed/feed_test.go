package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"jobboard-notify-be/internal/model"
	"jobboard-notify-be/internal/pkg/logger"
	"jobboard-notify-be/internal/repository/memory"
	"jobboard-notify-be/pkg/changefeed"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second
const tick = 10 * time.Millisecond

func newApplication(recipientID, jobID, sender string) *model.Notification {
	return &model.Notification{
		RecipientID: recipientID,
		TypeCode:    "NEW_APPLICATION",
		JobID:       jobID,
		JobTitle:    "Engineer",
		SenderName:  sender,
		Message:     sender + " applied",
	}
}

func setup(t *testing.T) (*memory.NotificationRepository, *changefeed.GoChannelBus) {
	t.Helper()
	bus := changefeed.NewGoChannelBus(nil)
	t.Cleanup(func() { bus.Close() })
	return memory.NewNotificationRepository(), bus
}

func create(t *testing.T, repo *memory.NotificationRepository, bus changefeed.Bus, n *model.Notification) {
	t.Helper()
	require.NoError(t, repo.CreateNotification(context.Background(), n))
	require.NoError(t, bus.Publish(context.Background(), n.RecipientID))
}

func TestFeed_EmptyRecipient(t *testing.T) {
	repo, bus := setup(t)

	f, err := Open(context.Background(), "company-1", repo, bus, logger.NewNopLogger())
	require.NoError(t, err)
	defer f.Close()

	snap := f.Snapshot()
	assert.Equal(t, uint64(1), snap.Version)
	assert.Empty(t, snap.Display)
	assert.Zero(t, snap.UnreadCount)
	assert.NoError(t, snap.Err)

	// Nothing unread, nothing to write, no new version.
	require.NoError(t, f.MarkAllAsRead(context.Background()))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, uint64(1), f.Snapshot().Version)
}

func TestFeed_ReloadsAndRegroupsOnChange(t *testing.T) {
	repo, bus := setup(t)
	create(t, repo, bus, newApplication("company-1", "J1", "Carol"))

	f, err := Open(context.Background(), "company-1", repo, bus, logger.NewNopLogger())
	require.NoError(t, err)
	defer f.Close()

	require.Len(t, f.Snapshot().Display, 1)
	assert.False(t, f.Snapshot().Display[0].IsSummary())

	create(t, repo, bus, newApplication("company-1", "J1", "Bob"))

	require.Eventually(t, func() bool {
		d := f.Snapshot().Display
		return len(d) == 1 && d[0].IsSummary()
	}, waitFor, tick)

	snap := f.Snapshot()
	assert.Equal(t, 2, snap.Display[0].ApplicantCount)
	assert.Equal(t, "Bob, Carol", snap.Display[0].SenderName)
	assert.Equal(t, 1, snap.UnreadCount)
	assert.Len(t, snap.Raw, 2)
}

func TestFeed_IgnoresOtherRecipients(t *testing.T) {
	repo, bus := setup(t)

	f, err := Open(context.Background(), "company-1", repo, bus, logger.NewNopLogger())
	require.NoError(t, err)
	defer f.Close()

	create(t, repo, bus, newApplication("company-2", "J1", "Eve"))
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, uint64(1), f.Snapshot().Version)
	assert.Empty(t, f.Snapshot().Display)
}

func TestFeed_MarkAsReadOnSummaryPushesNewSnapshot(t *testing.T) {
	repo, bus := setup(t)
	create(t, repo, bus, newApplication("company-1", "J1", "Carol"))
	create(t, repo, bus, newApplication("company-1", "J1", "Bob"))
	create(t, repo, bus, newApplication("company-1", "J1", "Alice"))

	f, err := Open(context.Background(), "company-1", repo, bus, logger.NewNopLogger())
	require.NoError(t, err)
	defer f.Close()

	summary := f.Snapshot().Display[0]
	require.Equal(t, 3, summary.ApplicantCount)

	require.NoError(t, f.MarkAsRead(context.Background(), summary.ID))

	require.Eventually(t, func() bool {
		return f.Snapshot().UnreadCount == 0
	}, waitFor, tick)

	snap := f.Snapshot()
	require.Len(t, snap.Display, 3, "read applications are no longer grouped")
	for _, d := range snap.Display {
		assert.True(t, d.IsRead)
	}
}

func TestFeed_ListenersShareOneSnapshotPerVersion(t *testing.T) {
	repo, bus := setup(t)

	f, err := Open(context.Background(), "company-1", repo, bus, logger.NewNopLogger())
	require.NoError(t, err)
	defer f.Close()

	var mu sync.Mutex
	var badge, list []Snapshot
	f.Listen(func(s Snapshot) { mu.Lock(); badge = append(badge, s); mu.Unlock() })
	stop := f.Listen(func(s Snapshot) { mu.Lock(); list = append(list, s); mu.Unlock() })

	create(t, repo, bus, newApplication("company-1", "J1", "Alice"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(badge) == 1 && len(list) == 1
	}, waitFor, tick)

	mu.Lock()
	assert.Equal(t, badge[0].Version, list[0].Version)
	assert.Equal(t, badge[0].Display, list[0].Display)
	mu.Unlock()

	stop()
	create(t, repo, bus, newApplication("company-1", "J2", "Bob"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(badge) == 2
	}, waitFor, tick)

	mu.Lock()
	assert.Len(t, list, 1)
	mu.Unlock()
}

func TestFeed_ReloadErrorIsTerminal(t *testing.T) {
	repo, bus := setup(t)

	f, err := Open(context.Background(), "company-1", repo, bus, logger.NewNopLogger())
	require.NoError(t, err)
	defer f.Close()

	errs := make(chan error, 4)
	f.Listen(func(s Snapshot) { errs <- s.Err })

	boom := errors.New("permission denied")
	repo.FailWith(boom, nil)
	require.NoError(t, bus.Publish(context.Background(), "company-1"))

	select {
	case got := <-errs:
		assert.ErrorIs(t, got, boom)
	case <-time.After(waitFor):
		t.Fatal("listener was not told about the failure")
	}
	assert.ErrorIs(t, f.Err(), boom)

	// No retry once failed.
	repo.FailWith(nil, nil)
	require.NoError(t, bus.Publish(context.Background(), "company-1"))
	time.Sleep(50 * time.Millisecond)
	assert.ErrorIs(t, f.Err(), boom)
	assert.Equal(t, uint64(1), f.Snapshot().Version)
}

func TestFeed_InitialLoadFailure(t *testing.T) {
	repo, bus := setup(t)
	boom := errors.New("store unreachable")
	repo.FailWith(boom, nil)

	_, err := Open(context.Background(), "company-1", repo, bus, logger.NewNopLogger())
	assert.ErrorIs(t, err, boom)
}

func TestFeed_WriteFailureLeavesSnapshot(t *testing.T) {
	repo, bus := setup(t)
	create(t, repo, bus, newApplication("company-1", "J1", "Alice"))

	f, err := Open(context.Background(), "company-1", repo, bus, logger.NewNopLogger())
	require.NoError(t, err)
	defer f.Close()

	boom := errors.New("permission denied")
	repo.FailWith(nil, boom)

	before := f.Snapshot()
	err = f.MarkAllAsRead(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, before, f.Snapshot())
	assert.Equal(t, 1, f.Snapshot().UnreadCount)
}

func TestFeed_CloseStopsUpdates(t *testing.T) {
	repo, bus := setup(t)

	f, err := Open(context.Background(), "company-1", repo, bus, logger.NewNopLogger())
	require.NoError(t, err)

	f.Close()
	f.Close()
	assert.ErrorIs(t, f.Err(), ErrFeedClosed)

	create(t, repo, bus, newApplication("company-1", "J1", "Alice"))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, uint64(1), f.Snapshot().Version)
}

func TestFeed_BusShutdownIsReported(t *testing.T) {
	repo, bus := setup(t)

	f, err := Open(context.Background(), "company-1", repo, bus, logger.NewNopLogger())
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, bus.Close())

	require.Eventually(t, func() bool {
		return errors.Is(f.Err(), changefeed.ErrBusClosed)
	}, waitFor, tick)
}
