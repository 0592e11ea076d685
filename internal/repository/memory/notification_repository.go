package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"jobboard-notify-be/internal/model"
	"jobboard-notify-be/internal/repository"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// NotificationRepository keeps notifications in process memory. It backs
// local development without a database and the service tests.
type NotificationRepository struct {
	// recipient id -> []model.Notification, newest first
	cache *cache.Cache
	types map[string]model.NotificationType

	// Guards read-modify-write sequences on cache entries.
	mu       sync.Mutex
	lastTime time.Time

	failWrites error
	failReads  error
}

func NewNotificationRepository() *NotificationRepository {
	types := make(map[string]model.NotificationType)
	for _, t := range model.DefaultNotificationTypes() {
		types[t.Code] = t
	}
	return &NotificationRepository{
		cache: cache.New(cache.NoExpiration, 0),
		types: types,
	}
}

func (r *NotificationRepository) CreateNotification(ctx context.Context, notification *model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failWrites != nil {
		return r.failWrites
	}
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = r.nextTimestamp()
	}

	list := r.load(notification.RecipientID)
	list = append(list, *notification)
	slices.SortStableFunc(list, func(a, b model.Notification) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	r.cache.Set(notification.RecipientID, list, cache.NoExpiration)
	return nil
}

func (r *NotificationRepository) GetNotificationsByRecipient(ctx context.Context, recipientID string) ([]model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failReads != nil {
		return nil, r.failReads
	}
	return slices.Clone(r.load(recipientID)), nil
}

func (r *NotificationRepository) MarkAsRead(ctx context.Context, recipientID string, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failWrites != nil {
		return r.failWrites
	}

	list := slices.Clone(r.load(recipientID))
	index := make(map[string]int, len(list))
	for i, n := range list {
		index[n.ID] = i
	}
	for _, id := range ids {
		if _, ok := index[id]; !ok {
			return repository.ErrNotificationNotFound
		}
	}

	now := time.Now().UTC()
	for _, id := range ids {
		n := &list[index[id]]
		n.IsRead = true
		if n.ReadAt == nil {
			n.ReadAt = &now
		}
	}
	r.cache.Set(recipientID, list, cache.NoExpiration)
	return nil
}

func (r *NotificationRepository) GetNotificationTypeByCode(ctx context.Context, code string) (*model.NotificationType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.types[code]
	if !ok {
		return nil, repository.ErrNotificationTypeNotFound
	}
	return &t, nil
}

// PutNotificationType registers or replaces a type.
func (r *NotificationRepository) PutNotificationType(t model.NotificationType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[t.Code] = t
}

// FailWith makes subsequent reads and writes return the given errors. Nil
// clears a failure.
func (r *NotificationRepository) FailWith(reads, writes error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failReads = reads
	r.failWrites = writes
}

func (r *NotificationRepository) load(recipientID string) []model.Notification {
	if x, found := r.cache.Get(recipientID); found {
		return x.([]model.Notification)
	}
	return nil
}

// nextTimestamp is strictly increasing so created_at ordering is total.
func (r *NotificationRepository) nextTimestamp() time.Time {
	now := time.Now().UTC().Truncate(time.Microsecond)
	if !now.After(r.lastTime) {
		now = r.lastTime.Add(time.Microsecond)
	}
	r.lastTime = now
	return now
}
