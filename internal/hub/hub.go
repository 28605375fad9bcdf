package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Topics a browser can subscribe to
const (
	TopicMap   = "map"
	TopicStats = "stats"
)

type Client struct {
	ID     string
	Send   chan []byte
	topics map[string]struct{}
	mu     sync.RWMutex

	sendMu sync.Mutex
	closed bool
}

func NewClient(id string, bufferSize int) *Client {
	return &Client{
		ID:     id,
		Send:   make(chan []byte, bufferSize),
		topics: make(map[string]struct{}),
	}
}

// Offer queues data without blocking. It reports false when the buffer is
// full or the hub already closed the client.
func (c *Client) Offer(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

func (c *Client) HasTopic(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.topics[topic]
	return ok
}

func (c *Client) AddTopics(topics []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		c.topics[t] = struct{}{}
	}
}

func (c *Client) RemoveTopics(topics []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		delete(c.topics, t)
	}
}

func (c *Client) GetTopics() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	topics := make([]string, 0, len(c.topics))
	for t := range c.topics {
		topics = append(topics, t)
	}
	return topics
}

// Message is the envelope of everything pushed to browsers
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type lifecycle struct {
	client   *Client
	register bool
}

type outbound struct {
	topic string
	data  []byte
}

type Hub struct {
	mu           sync.RWMutex
	clients      map[*Client]struct{}
	topicClients map[string]map[*Client]struct{}

	// register and unregister share one channel so they are applied in the
	// order they were issued
	lifecycle chan lifecycle
	broadcast chan outbound
	running   atomic.Bool

	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:      make(map[*Client]struct{}),
		topicClients: make(map[string]map[*Client]struct{}),
		lifecycle:    make(chan lifecycle, 32),
		broadcast:    make(chan outbound, 256),
		logger:       logger.With("component", "hub"),
	}
}

func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer h.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case ev := <-h.lifecycle:
			if ev.register {
				h.addClient(ev.client)
			} else {
				h.removeClient(ev.client)
			}

		case msg := <-h.broadcast:
			h.fanout(msg)
		}
	}
}

// Running reports whether Run is currently serving
func (h *Hub) Running() bool {
	return h.running.Load()
}

func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.AddTopics(topics)

	for _, t := range topics {
		if h.topicClients[t] == nil {
			h.topicClients[t] = make(map[*Client]struct{})
		}
		h.topicClients[t][client] = struct{}{}
	}
}

func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.RemoveTopics(topics)

	for _, t := range topics {
		if h.topicClients[t] != nil {
			delete(h.topicClients[t], client)
			if len(h.topicClients[t]) == 0 {
				delete(h.topicClients, t)
			}
		}
	}
}

// Publish queues a message for every client subscribed to topic. Messages are
// dropped, not blocked on, when the hub is backed up.
func (h *Hub) Publish(topic, msgType string, payload any) {
	data, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		h.logger.Error("failed to encode message", "type", msgType, "error", err)
		return
	}
	select {
	case h.broadcast <- outbound{topic: topic, data: data}:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "topic", topic, "type", msgType)
	}
}

func (h *Hub) Register(client *Client) {
	h.lifecycle <- lifecycle{client: client, register: true}
}

func (h *Hub) Unregister(client *Client) {
	h.lifecycle <- lifecycle{client: client}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) fanout(msg outbound) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.topicClients[msg.topic] {
		if !client.Offer(msg.data) {
			h.logger.Debug("client send buffer full", "client_id", client.ID)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("client registered", "client_id", client.ID, "total", total)
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	for _, t := range client.GetTopics() {
		if h.topicClients[t] != nil {
			delete(h.topicClients[t], client)
			if len(h.topicClients[t]) == 0 {
				delete(h.topicClients, t)
			}
		}
	}

	delete(h.clients, client)
	client.close()
	h.logger.Debug("client unregistered", "client_id", client.ID, "total", len(h.clients))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.close()
	}
	h.clients = make(map[*Client]struct{})
	h.topicClients = make(map[string]map[*Client]struct{})
}
