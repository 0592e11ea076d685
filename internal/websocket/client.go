package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 32
)

const (
	ActionMarkRead    = "mark_read"
	ActionMarkAllRead = "mark_all_read"
)

// Command is a client-to-server frame.
type Command struct {
	Action string `json:"action"`
	ID     string `json:"id,omitempty"`
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	Hub *Hub

	// The websocket connection.
	Conn *websocket.Conn

	RecipientID string

	// Buffered channel of outbound messages.
	Send chan []byte
}

func NewClient(hub *Hub, conn *websocket.Conn, recipientID string) *Client {
	return &Client{Hub: hub, Conn: conn, RecipientID: recipientID, Send: make(chan []byte, sendBuffer)}
}

// readPump pumps commands from the websocket connection to the recipient's feed.
func (c *Client) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("Client", "Unexpected websocket close", map[string]interface{}{
					"recipient_id": c.RecipientID,
					"error":        err.Error(),
				})
			}
			break
		}
		c.handleCommand(raw)
	}
}

// handleCommand applies a read-state command. The result reaches the client
// as the next pushed snapshot, so only failures are answered directly.
func (c *Client) handleCommand(raw []byte) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		c.reply(Message{Type: MessageTypeError, Error: "malformed command"})
		return
	}

	f := c.Hub.Feed(c.RecipientID)
	if f == nil {
		c.reply(Message{Type: MessageTypeError, Error: "notifications unavailable"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	var err error
	switch cmd.Action {
	case ActionMarkRead:
		err = f.MarkAsRead(ctx, cmd.ID)
	case ActionMarkAllRead:
		err = f.MarkAllAsRead(ctx)
	default:
		c.reply(Message{Type: MessageTypeError, Error: "unknown action " + cmd.Action})
		return
	}
	if err != nil {
		c.Hub.logger.Warn("Client", "Read-state command failed", map[string]interface{}{
			"recipient_id": c.RecipientID,
			"action":       cmd.Action,
			"error":        err.Error(),
		})
		c.reply(Message{Type: MessageTypeError, Error: err.Error()})
	}
}

func (c *Client) reply(m Message) {
	c.Hub.sendTo(c, encode(m))
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
