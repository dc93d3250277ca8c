package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Policy decides what happens to a client that cannot keep up.
type Policy int

const (
	// Queue buffers messages per client and disconnects a client whose
	// buffer fills. Suited to event streams where every message matters.
	Queue Policy = iota

	// Latest keeps only the newest undelivered message per client. Suited
	// to camera frames and status, where a stale message is worthless.
	Latest
)

func (p Policy) String() string {
	if p == Latest {
		return "latest"
	}
	return "queue"
}

// Hub fans messages out to its clients from a single goroutine.
type Hub struct {
	name   string
	logger *slog.Logger
	policy Policy
	buffer int // per-client send buffer

	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client

	// Guards clients for ClientCount; Run is the only writer.
	mu sync.RWMutex

	running  atomic.Bool
	dropped  atomic.Uint64 // broadcasts lost on a full hub queue
	evicted  atomic.Uint64 // slow clients disconnected under Queue
	quit     chan struct{}
	quitOnce sync.Once
}

// Option configures a Hub.
type Option func(*Hub)

// WithPolicy sets the slow-client policy. Latest uses a one-message client
// buffer unless WithBuffer says otherwise.
func WithPolicy(p Policy) Option {
	return func(h *Hub) {
		h.policy = p
		if p == Latest {
			h.buffer = 1
		}
	}
}

// WithBuffer sets the per-client send buffer.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// New creates a hub. Call Run in a goroutine.
func New(name string, logger *slog.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		name:       name,
		policy:     Queue,
		buffer:     256,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = logger.With("component", "hub", "hub", name, "policy", h.policy.String())
	return h
}

// Run delivers broadcasts until Stop, then closes every client.
func (h *Hub) Run() {
	h.running.Store(true)
	defer h.running.Store(false)

	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client connected", "client", c.id, "clients", n)

		case c := <-h.unregister:
			h.remove(c, "client disconnected")

		case m := <-h.broadcast:
			h.deliver(m)
		}
	}
}

func (h *Hub) deliver(m Message) {
	h.mu.RLock()
	var slow []*Client
	for c := range h.clients {
		if !c.offer(m, h.policy) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.evicted.Add(1)
		h.remove(c, "dropped slow client")
	}
}

func (h *Hub) remove(c *Client, why string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.logger.Debug(why, "client", c.id, "clients", n, "skipped", c.Skipped())
	}
}

// Stop ends Run. It is safe to call more than once.
func (h *Hub) Stop() {
	h.quitOnce.Do(func() { close(h.quit) })
}

// Broadcast queues msg for every client. It never blocks; when the hub
// queue is full the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		if h.dropped.Add(1)%100 == 1 {
			h.logger.Warn("broadcast queue full, dropping messages", "dropped", h.dropped.Load())
		}
	}
}

// BroadcastJSON encodes v and broadcasts it.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(NewJSONMessage(data))
	return nil
}

// BroadcastBinary broadcasts raw bytes such as a JPEG frame.
func (h *Hub) BroadcastBinary(data []byte) {
	h.Broadcast(NewBinaryMessage(data))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many broadcasts were lost on a full hub queue.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Evicted returns how many slow clients were disconnected.
func (h *Hub) Evicted() uint64 {
	return h.evicted.Load()
}

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}
