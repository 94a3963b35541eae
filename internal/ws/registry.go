// Package ws implements the realtime fanout registry: live dashboard
// connections keyed by session slug, with best-effort broadcast of capture
// events.
package ws

import (
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	// sendBuffer bounds the per-connection outbound queue. A full buffer
	// means the peer is too slow; the event is dropped for that peer.
	sendBuffer = 16

	writeWait = 10 * time.Second
)

// Event is the envelope pushed to dashboard clients.
type Event struct {
	Type    string `json:"type"`
	Webhook any    `json:"webhook"`
}

// MessageWriter is the subset of *websocket.Conn the registry writes to.
type MessageWriter interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Conn wraps one live socket with a buffered outbound queue and a single
// writer goroutine, so a slow or dead peer never blocks a broadcaster.
type Conn struct {
	w    MessageWriter
	send chan []byte
	done chan struct{}
	once sync.Once
}

func NewConn(w MessageWriter) *Conn {
	c := &Conn{
		w:    w,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *Conn) writeLoop() {
	for {
		select {
		case msg := <-c.send:
			_ = c.w.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.w.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// trySend queues a payload without blocking. It reports false when the
// connection is closing or its buffer is full.
func (c *Conn) trySend(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close shuts the writer down and closes the underlying socket. Safe to
// call more than once and concurrently with broadcasts.
func (c *Conn) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.w.Close()
	})
}

// Registry tracks live connections per session slug. It owns its own
// synchronization; callers never lock around it.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]map[*Conn]struct{}
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]map[*Conn]struct{})}
}

func (r *Registry) Add(slug string, c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[slug]
	if !ok {
		set = make(map[*Conn]struct{})
		r.conns[slug] = set
	}
	set[c] = struct{}{}
}

// Remove is idempotent. When the last connection for a slug goes away the
// slug entry is pruned, so churn does not grow the map.
func (r *Registry) Remove(slug string, c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[slug]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.conns, slug)
	}
}

// Broadcast serializes event once and queues it on every live connection
// for slug. Connections that are closing or backed up are skipped. Returns
// the number of connections the event was queued for.
func (r *Registry) Broadcast(slug string, event Event) int {
	payload, err := json.Marshal(event)
	if err != nil {
		return 0
	}

	r.mu.RLock()
	set := r.conns[slug]
	targets := make([]*Conn, 0, len(set))
	for c := range set {
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.trySend(payload) {
			delivered++
		}
	}
	return delivered
}

// Sessions returns the number of slugs with at least one live connection.
func (r *Registry) Sessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
