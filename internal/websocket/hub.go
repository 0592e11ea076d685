package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"jobboard-notify-be/internal/dto"
	"jobboard-notify-be/internal/feed"
	"jobboard-notify-be/internal/pkg/logger"
)

// FeedOpener is implemented by service.NotificationService.
type FeedOpener interface {
	OpenFeed(ctx context.Context, recipientID string) (*feed.Feed, error)
}

// defaultOpenTimeout bounds the initial load of a feed, which runs on the
// hub goroutine.
const defaultOpenTimeout = 5 * time.Second

type recipientFeed struct {
	feed     *feed.Feed
	unlisten func()
}

type Hub struct {
	// Registered clients map: RecipientID -> List of Clients (multi-device)
	clients map[string][]*Client

	// One live feed per recipient, shared by all of its clients.
	feeds map[string]*recipientFeed

	register   chan *Client
	unregister chan *Client
	failed     chan *feed.Feed
	done       chan struct{}

	mu sync.RWMutex

	opener      FeedOpener
	openTimeout time.Duration
	logger      logger.ILogger
}

// Message is the frame pushed to websocket clients.
type Message struct {
	Type  string                        `json:"type"`
	Data  *dto.NotificationListResponse `json:"data,omitempty"`
	Error string                        `json:"error,omitempty"`
}

const (
	MessageTypeNotifications = "notifications"
	MessageTypeError         = "error"
)

func NewHub(opener FeedOpener, log logger.ILogger) *Hub {
	return &Hub{
		clients:    make(map[string][]*Client),
		feeds:      make(map[string]*recipientFeed),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		failed:     make(chan *feed.Feed),
		done:       make(chan struct{}),
		opener:      opener,
		openTimeout: defaultOpenTimeout,
		logger:      log,
	}
}

// Run serves registrations until ctx is done, then closes every feed.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			h.addClient(ctx, client)

		case client := <-h.unregister:
			h.removeClient(client)

		case f := <-h.failed:
			h.dropFeed(f)
		}
	}
}

// Register blocks until the hub has accepted client. It reports false once
// the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Feed returns the live feed of a recipient, or nil when nobody is connected.
func (h *Hub) Feed(recipientID string) *feed.Feed {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if rf, ok := h.feeds[recipientID]; ok {
		return rf.feed
	}
	return nil
}

// ClientCount returns the number of connections of a recipient.
func (h *Hub) ClientCount(recipientID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[recipientID])
}

func (h *Hub) addClient(ctx context.Context, client *Client) {
	h.mu.RLock()
	rf, ok := h.feeds[client.RecipientID]
	h.mu.RUnlock()

	if ok {
		h.mu.Lock()
		h.clients[client.RecipientID] = append(h.clients[client.RecipientID], client)
		h.mu.Unlock()
		h.logger.Info("Hub", "Client registered", map[string]interface{}{"recipient_id": client.RecipientID})
		h.sendSnapshot(client, rf.feed.Snapshot())
		return
	}

	openCtx, cancel := context.WithTimeout(ctx, h.openTimeout)
	f, err := h.opener.OpenFeed(openCtx, client.RecipientID)
	cancel()
	if err != nil {
		h.logger.Error("Hub", "Failed to open notification feed", map[string]interface{}{
			"recipient_id": client.RecipientID,
			"error":        err.Error(),
		})
		client.Send <- encode(Message{Type: MessageTypeError, Error: "notifications unavailable"})
		close(client.Send)
		return
	}

	recipientID := client.RecipientID
	rf = &recipientFeed{feed: f}

	// Publish the feed before listening so a failure from here on reaches
	// dispatch and is handed to Run.
	h.mu.Lock()
	h.feeds[recipientID] = rf
	h.clients[recipientID] = append(h.clients[recipientID], client)
	h.mu.Unlock()

	rf.unlisten = f.Listen(func(snap feed.Snapshot) {
		h.dispatch(f, recipientID, snap)
	})

	h.logger.Info("Hub", "Client registered", map[string]interface{}{"recipient_id": recipientID})

	// The feed may have stopped before the listener was attached.
	snap := f.Snapshot()
	h.sendSnapshot(client, snap)
	if snap.Err != nil {
		h.dropFeed(f)
	}
}

// sendSnapshot is best effort; a concurrent dispatch may repeat this version
// and clients replace state on each frame.
func (h *Hub) sendSnapshot(client *Client, snap feed.Snapshot) {
	h.sendTo(client, snapshotMessage(snap))
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	clients, ok := h.clients[client.RecipientID]
	if !ok {
		h.mu.Unlock()
		return
	}
	for i, c := range clients {
		if c == client {
			h.clients[client.RecipientID] = append(clients[:i], clients[i+1:]...)
			close(client.Send)
			break
		}
	}

	var rf *recipientFeed
	if len(h.clients[client.RecipientID]) == 0 {
		delete(h.clients, client.RecipientID)
		rf = h.feeds[client.RecipientID]
		delete(h.feeds, client.RecipientID)
	}
	h.mu.Unlock()

	if rf != nil {
		rf.unlisten()
		rf.feed.Close()
		h.logger.Info("Hub", "Client completely unregistered", map[string]interface{}{"recipient_id": client.RecipientID})
	}
}

// dropFeed disconnects every client of a stopped feed so they reconnect
// against a fresh one.
func (h *Hub) dropFeed(f *feed.Feed) {
	recipientID := f.RecipientID()

	h.mu.Lock()
	rf, ok := h.feeds[recipientID]
	if !ok || rf.feed != f {
		h.mu.Unlock()
		f.Close()
		return
	}
	clients := h.clients[recipientID]
	delete(h.clients, recipientID)
	delete(h.feeds, recipientID)
	for _, c := range clients {
		close(c.Send)
	}
	h.mu.Unlock()

	rf.unlisten()
	rf.feed.Close()
}

func (h *Hub) shutdown() {
	close(h.done)

	h.mu.Lock()
	feeds := h.feeds
	for _, clients := range h.clients {
		for _, c := range clients {
			close(c.Send)
		}
	}
	h.clients = make(map[string][]*Client)
	h.feeds = make(map[string]*recipientFeed)
	h.mu.Unlock()

	for _, rf := range feeds {
		rf.unlisten()
		rf.feed.Close()
	}
}

// dispatch runs on the feed goroutine and never blocks on a slow client.
func (h *Hub) dispatch(f *feed.Feed, recipientID string, snap feed.Snapshot) {
	data := snapshotMessage(snap)

	h.mu.RLock()
	if rf, ok := h.feeds[recipientID]; !ok || rf.feed != f {
		h.mu.RUnlock()
		return
	}
	for _, client := range h.clients[recipientID] {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn("Hub", "Client Send buffer full, dropping message", map[string]interface{}{"recipient_id": recipientID})
		}
	}
	h.mu.RUnlock()

	if snap.Err != nil {
		// Run waits on the feed goroutine when closing, so hand off asynchronously.
		go func() {
			select {
			case h.failed <- f:
			case <-h.done:
			}
		}()
	}
}

// sendTo delivers to a client that is still registered. The hub closes Send
// under the write lock, so holding the read lock makes the send safe.
func (h *Hub) sendTo(client *Client, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients[client.RecipientID] {
		if c != client {
			continue
		}
		select {
		case client.Send <- data:
		default:
		}
		return
	}
}

func snapshotMessage(snap feed.Snapshot) []byte {
	if snap.Err != nil {
		return encode(Message{Type: MessageTypeError, Error: snap.Err.Error()})
	}
	list := dto.ToNotificationListResponse(snap.Display, snap.UnreadCount)
	return encode(Message{Type: MessageTypeNotifications, Data: &list})
}

func encode(m Message) []byte {
	data, _ := json.Marshal(m)
	return data
}
