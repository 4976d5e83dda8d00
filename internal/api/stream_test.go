package api

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingConn struct {
	written chan CheckpointEvent
}

func (r *recordingConn) WriteJSON(v interface{}) error {
	r.written <- v.(CheckpointEvent)
	return nil
}

func (r *recordingConn) SetWriteDeadline(time.Time) error { return nil }

func (r *recordingConn) Close() error { return nil }

// stalledConn blocks every write until it is closed.
type stalledConn struct {
	release chan struct{}
	once    sync.Once
}

func newStalledConn() *stalledConn {
	return &stalledConn{release: make(chan struct{})}
}

func (s *stalledConn) WriteJSON(interface{}) error {
	<-s.release
	return errors.New("connection closed")
}

func (s *stalledConn) SetWriteDeadline(time.Time) error { return nil }

func (s *stalledConn) Close() error {
	s.once.Do(func() { close(s.release) })
	return nil
}

func TestNotifierReplaysLastEvent(t *testing.T) {
	n := NewCheckpointNotifier()
	n.Broadcast(CheckpointEvent{Type: "checkpoint", CheckpointName: "LOGIN"})

	conn := &recordingConn{written: make(chan CheckpointEvent, 4)}
	client := n.Register(conn)
	defer n.Unregister(client)

	select {
	case event := <-conn.written:
		if event.CheckpointName != "LOGIN" || event.Timestamp.IsZero() {
			t.Fatalf("unexpected replay %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected last event replayed")
	}

	n.Broadcast(CheckpointEvent{Type: "checkpoint", CheckpointName: "PAYMENT"})
	select {
	case event := <-conn.written:
		if event.CheckpointName != "PAYMENT" {
			t.Fatalf("unexpected event %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected broadcast delivered")
	}
}

func TestNotifierDropsStalledClient(t *testing.T) {
	n := NewCheckpointNotifier()
	stalled := newStalledConn()
	client := n.Register(stalled)
	defer n.Unregister(client)

	done := make(chan struct{})
	go func() {
		for i := 0; i < streamBuffer*2; i++ {
			n.Broadcast(CheckpointEvent{Type: "checkpoint", CheckpointName: "LOGIN"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("broadcast blocked on a stalled client")
	}
	if got := n.ClientCount(); got != 0 {
		t.Fatalf("expected stalled client dropped, %d remain", got)
	}
}
