package ws

import (
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSocket records written frames in place of a real websocket.
type fakeSocket struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (f *fakeSocket) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.frames = append(f.frames, cp)
	return nil
}

func (f *fakeSocket) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSocket) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func (f *fakeSocket) last(t *testing.T) Event {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.frames)
	var ev Event
	require.NoError(t, json.Unmarshal(f.frames[len(f.frames)-1], &ev))
	return ev
}

func waitFrames(t *testing.T, f *fakeSocket, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return f.count() == n },
		time.Second, 5*time.Millisecond)
}

func TestBroadcast_DeliversToAllSessionConnections(t *testing.T) {
	r := NewRegistry()
	tab1, tab2 := &fakeSocket{}, &fakeSocket{}
	c1, c2 := NewConn(tab1), NewConn(tab2)
	defer c1.Close()
	defer c2.Close()

	r.Add("session-a", c1)
	r.Add("session-a", c2)

	n := r.Broadcast("session-a", Event{Type: "new_webhook", Webhook: map[string]string{"id": "r1"}})
	assert.Equal(t, 2, n)

	waitFrames(t, tab1, 1)
	waitFrames(t, tab2, 1)
	assert.Equal(t, "new_webhook", tab1.last(t).Type)
}

func TestBroadcast_IsolatedBetweenSessions(t *testing.T) {
	r := NewRegistry()
	mine, theirs := &fakeSocket{}, &fakeSocket{}
	cm, ct := NewConn(mine), NewConn(theirs)
	defer cm.Close()
	defer ct.Close()

	r.Add("session-a", cm)
	r.Add("session-b", ct)

	n := r.Broadcast("session-a", Event{Type: "new_webhook"})
	assert.Equal(t, 1, n)

	waitFrames(t, mine, 1)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, theirs.count(), "session B must receive nothing")
}

func TestBroadcast_UnknownSessionIsNoop(t *testing.T) {
	r := NewRegistry()
	assert.Zero(t, r.Broadcast("ghost", Event{Type: "new_webhook"}))
}

func TestRemove_PrunesEmptySessions(t *testing.T) {
	r := NewRegistry()
	c := NewConn(&fakeSocket{})
	defer c.Close()

	r.Add("session-a", c)
	assert.Equal(t, 1, r.Sessions())

	r.Remove("session-a", c)
	assert.Zero(t, r.Sessions(), "empty session entry must be pruned")

	// Idempotent: removing again (or for an unknown slug) is harmless.
	r.Remove("session-a", c)
	r.Remove("never-added", c)
	assert.Zero(t, r.Sessions())
}

func TestRegistry_NoGrowthAfterChurn(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 100; i++ {
		c := NewConn(&fakeSocket{})
		r.Add("churny", c)
		r.Broadcast("churny", Event{Type: "new_webhook"})
		r.Remove("churny", c)
		c.Close()
	}
	assert.Zero(t, r.Sessions())
}

func TestBroadcast_SkipsClosedConnections(t *testing.T) {
	r := NewRegistry()
	c := NewConn(&fakeSocket{})
	r.Add("session-a", c)

	c.Close()
	assert.Zero(t, r.Broadcast("session-a", Event{Type: "new_webhook"}))
}

func TestBroadcast_DropsWhenPeerBacklogged(t *testing.T) {
	// A connection whose writer is gone fills its buffer; broadcasts keep
	// returning without blocking.
	c := &Conn{w: &fakeSocket{}, send: make(chan []byte, sendBuffer), done: make(chan struct{})}
	// No writeLoop started: nothing drains the buffer.

	r := NewRegistry()
	r.Add("session-a", c)

	delivered := 0
	done := make(chan struct{})
	go func() {
		for i := 0; i < sendBuffer*2; i++ {
			delivered += r.Broadcast("session-a", Event{Type: "new_webhook"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a backlogged peer")
	}
	assert.Equal(t, sendBuffer, delivered, "only buffered sends count as queued")
}

func TestRemoveConcurrentWithBroadcast(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		c := NewConn(&fakeSocket{})
		r.Add("busy", c)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.Broadcast("busy", Event{Type: "new_webhook"})
			}
		}()
		go func(c *Conn) {
			defer wg.Done()
			r.Remove("busy", c)
			c.Close()
		}(c)
	}
	wg.Wait()
	assert.Zero(t, r.Sessions())
}
