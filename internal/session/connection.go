package session

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"relaychat/internal/eventbus"
)

// connection adapts a gorilla websocket to presence.Connection. It
// owns a bounded outbound queue drained by a single writer goroutine,
// so command-handling goroutines never block on a slow reader on the
// other end of the socket - mirroring the teacher's
// internal/ws/hub.go broadcast loop, but moved from "write directly
// from whichever goroutine is broadcasting" to "enqueue, let one
// writer own the wire" so backpressure can be applied per connection.
type connection struct {
	id          string
	userID      int64
	connectedAt time.Time

	conn *websocket.Conn

	mu      sync.Mutex
	queue   []*eventbus.Event
	closed  bool
	closeCh chan struct{}
	notify  chan struct{}

	capacity int
}

func newConnection(conn *websocket.Conn, userID int64, capacity int) *connection {
	if capacity <= 0 {
		capacity = 64
	}
	c := &connection{
		id:          uuid.NewString(),
		userID:      userID,
		connectedAt: time.Now(),
		conn:        conn,
		closeCh:     make(chan struct{}),
		notify:      make(chan struct{}, 1),
		capacity:    capacity,
	}
	go c.writeLoop()
	return c
}

func (c *connection) ID() string             { return c.id }
func (c *connection) UserID() int64          { return c.userID }
func (c *connection) ConnectedAt() time.Time { return c.connectedAt }

// Send applies the spec §4.3 backpressure policy: a StreamData frame
// for a generation already queued is coalesced into the queued frame
// (its text appended, its done flag carried over) rather than queued
// twice; when the queue is otherwise full, the oldest
// non-stream event is dropped to make room before the connection is
// closed with reason "overrun".
func (c *connection) Send(event any) bool {
	e, ok := event.(*eventbus.Event)
	if !ok {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}

	if e.StreamData != nil {
		for i, q := range c.queue {
			if q.StreamData != nil &&
				q.StreamData.ConversationID == e.StreamData.ConversationID &&
				q.StreamData.QuerierID == e.StreamData.QuerierID {
				merged := *q.StreamData
				merged.Message += e.StreamData.Message
				merged.Done = merged.Done || e.StreamData.Done
				c.queue[i] = &eventbus.Event{Type: e.Type, StreamData: &merged}
				c.signalLocked()
				return true
			}
		}
	}

	if len(c.queue) >= c.capacity {
		dropped := false
		for i, q := range c.queue {
			if q.StreamData == nil {
				c.queue = append(c.queue[:i], c.queue[i+1:]...)
				dropped = true
				break
			}
		}
		if !dropped {
			c.closeLocked("overrun")
			return false
		}
	}

	c.queue = append(c.queue, e)
	c.signalLocked()
	return true
}

func (c *connection) signalLocked() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *connection) writeLoop() {
	for {
		select {
		case <-c.closeCh:
			return
		case <-c.notify:
			for {
				c.mu.Lock()
				if len(c.queue) == 0 {
					c.mu.Unlock()
					break
				}
				e := c.queue[0]
				c.queue = c.queue[1:]
				c.mu.Unlock()

				payload, err := json.Marshal(e)
				if err != nil {
					slog.Error("marshal outbound event", "error", err)
					continue
				}
				if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					slog.Warn("websocket write failed", "conn_id", c.id, "error", err)
					c.Close("write_error")
					return
				}
			}
		}
	}
}

func (c *connection) Close(reason string) {
	c.mu.Lock()
	c.closeLocked(reason)
	c.mu.Unlock()
}

func (c *connection) closeLocked(reason string) {
	if c.closed {
		return
	}
	c.closed = true
	close(c.closeCh)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(time.Second))
	_ = c.conn.Close()
}
