// Package websocket pushes refreshed rankings to connected browsers.
// Clients subscribe to a scope ("overall" or a category) and receive a
// ranking_update each time a committed mutation changes it.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/tcbb-predictions/internal/config"
	"github.com/tcbb-predictions/internal/domain"
	"github.com/tcbb-predictions/internal/metrics"
)

// Message types
const (
	MessageTypeRankingUpdate = "ranking_update"
	MessageTypeSubscribe     = "subscribe"
	MessageTypeSubscribed    = "subscribed"
	MessageTypeUnsubscribe   = "unsubscribe"
	MessageTypeUnsubscribed  = "unsubscribed"
	MessageTypePing          = "ping"
	MessageTypePong          = "pong"
	MessageTypeError         = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      string       `json:"type"`
	Scope     domain.Scope `json:"scope,omitempty"`
	Data      any          `json:"data,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	// subscribers by scope
	clients    map[domain.Scope]map[*Client]bool
	allClients map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	broadcast   chan *Message
	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest

	mu      sync.RWMutex
	cfg     config.RealtimeConfig
	metrics *metrics.Recorder
	logger  *slog.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client *Client
	scope  domain.Scope
}

// NewHub creates a new Hub
func NewHub(cfg config.RealtimeConfig, rec *metrics.Recorder, logger *slog.Logger) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[domain.Scope]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		cfg:         cfg,
		metrics:     rec,
		logger:      logger,
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop. It returns after Stop.
func (h *Hub) Run() {
	h.logger.Info("websocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.closeAll()
			h.logger.Info("websocket hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			n := len(h.allClients)
			h.mu.Unlock()
			h.metrics.SetWebsocketClients(n)
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				h.dropLocked(client)
			}
			n := len(h.allClients)
			h.mu.Unlock()
			h.metrics.SetWebsocketClients(n)
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if !h.allClients[req.client] {
				h.mu.Unlock()
				continue
			}
			if _, ok := h.clients[req.scope]; !ok {
				h.clients[req.scope] = make(map[*Client]bool)
			}
			h.clients[req.scope][req.client] = true
			h.mu.Unlock()
			// acknowledged only once the subscription is in place
			req.client.sendAck(MessageTypeSubscribed, req.scope)
			h.logger.Debug("client subscribed", "client_id", req.client.id, "scope", req.scope)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.clients[req.scope]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.clients, req.scope)
				}
			}
			h.mu.Unlock()
			req.client.sendAck(MessageTypeUnsubscribed, req.scope)
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "scope", req.scope)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub and closes every client's send queue
func (h *Hub) Stop() {
	h.cancel()
}

// dropLocked must be called with mu held.
func (h *Hub) dropLocked(client *Client) {
	delete(h.allClients, client)
	for scope, clients := range h.clients {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.clients, scope)
			}
		}
	}
	client.close()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for client := range h.allClients {
		h.dropLocked(client)
	}
	h.mu.Unlock()
	h.metrics.SetWebsocketClients(0)
}

// broadcastMessage sends a message to the scope's subscribers, or to every
// client when the message has no scope.
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	targets := h.allClients
	if message.Scope != "" {
		targets = h.clients[message.Scope]
	}
	for client := range targets {
		if !client.enqueue(data) {
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

// BroadcastRanking queues a ranking for the subscribers of its scope. It
// never blocks the caller.
func (h *Hub) BroadcastRanking(r *domain.Ranking) {
	if r == nil {
		return
	}
	message := &Message{
		Type:      MessageTypeRankingUpdate,
		Scope:     r.Scope,
		Data:      r,
		Timestamp: h.now(),
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping ranking", "scope", r.Scope)
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Subscribe adds a client to a scope subscription
func (h *Hub) Subscribe(client *Client, scope domain.Scope) {
	select {
	case h.subscribe <- &subscriptionRequest{client: client, scope: scope}:
	case <-h.ctx.Done():
	}
}

// Unsubscribe removes a client from a scope subscription
func (h *Hub) Unsubscribe(client *Client, scope domain.Scope) {
	select {
	case h.unsubscribe <- &subscriptionRequest{client: client, scope: scope}:
	case <-h.ctx.Done():
	}
}

// SubscriberCount returns the number of subscribers for a scope
func (h *Hub) SubscriberCount(scope domain.Scope) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[scope])
}

// TotalConnections returns the total number of connected clients
func (h *Hub) TotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
