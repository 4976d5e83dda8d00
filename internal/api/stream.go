package api

import (
	"sync"
	"time"
)

const (
	streamBuffer    = 32
	streamWriteWait = 10 * time.Second
)

// CheckpointEvent describes websocket payloads emitted after each checkpoint.
type CheckpointEvent struct {
	Type           string    `json:"type"`
	RecordID       string    `json:"record_id,omitempty"`
	CheckpointName string    `json:"checkpoint_name"`
	Decision       string    `json:"decision"`
	Status         int       `json:"status"`
	VerificationID string    `json:"verification_id,omitempty"`
	Message        string    `json:"message,omitempty"`
	DurationMs     int64     `json:"duration_ms"`
	Timestamp      time.Time `json:"timestamp"`
}

// streamConn is the subset of *websocket.Conn the notifier writes through.
type streamConn interface {
	WriteJSON(v interface{}) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// wsClient owns a websocket connection and its outbound queue.
type wsClient struct {
	conn streamConn
	send chan CheckpointEvent
}

// CheckpointNotifier keeps track of active websocket clients and broadcasts checkpoint events.
// Each client is written by its own goroutine; Broadcast never waits on a socket.
type CheckpointNotifier struct {
	mu        sync.Mutex
	clients   map[*wsClient]struct{}
	lastEvent *CheckpointEvent
}

// NewCheckpointNotifier constructs a notifier instance.
func NewCheckpointNotifier() *CheckpointNotifier {
	return &CheckpointNotifier{clients: make(map[*wsClient]struct{})}
}

// Register attaches a websocket connection and replays the latest event to it.
func (n *CheckpointNotifier) Register(conn streamConn) *wsClient {
	client := &wsClient{conn: conn, send: make(chan CheckpointEvent, streamBuffer)}
	n.mu.Lock()
	n.clients[client] = struct{}{}
	if n.lastEvent != nil {
		client.send <- *n.lastEvent
	}
	n.mu.Unlock()

	go client.writePump()
	return client
}

// Unregister removes the websocket client from the notifier and closes the socket.
func (n *CheckpointNotifier) Unregister(client *wsClient) {
	if client == nil {
		return
	}
	n.mu.Lock()
	n.dropLocked(client)
	n.mu.Unlock()
	_ = client.conn.Close()
}

// Broadcast queues the supplied event for all registered websocket clients.
// A client whose queue is full is disconnected.
func (n *CheckpointNotifier) Broadcast(event CheckpointEvent) {
	if n == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	snapshot := event
	n.lastEvent = &snapshot
	for client := range n.clients {
		select {
		case client.send <- event:
		default:
			n.dropLocked(client)
		}
	}
}

// ClientCount reports the number of connected websocket clients.
func (n *CheckpointNotifier) ClientCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.clients)
}

// dropLocked must be called with n.mu held.
func (n *CheckpointNotifier) dropLocked(client *wsClient) {
	if _, ok := n.clients[client]; !ok {
		return
	}
	delete(n.clients, client)
	close(client.send)
}

func (c *wsClient) writePump() {
	defer c.conn.Close()
	for event := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := c.conn.WriteJSON(event); err != nil {
			return
		}
	}
}
