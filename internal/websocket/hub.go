package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/scrim-arena/internal/domain"
)

// Message types
const (
	MessageTypeMatchState          = "match_state_changed"
	MessageTypeReportResult        = "report_result"
	MessageTypeAchievementUnlocked = "achievement_unlocked"
	MessageTypeSubscribe           = "subscribe"
	MessageTypeUnsubscribe         = "unsubscribe"
	MessageTypePing                = "ping"
	MessageTypePong                = "pong"
	MessageTypeError               = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	MatchID   string      `json:"match_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// AchievementAnnouncement is broadcast when a player unlocks an achievement.
type AchievementAnnouncement struct {
	PlayerID    string `json:"player_id"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// MatchStateUpdate is broadcast whenever a match changes state or roster.
type MatchStateUpdate struct {
	Match *domain.Match `json:"match"`
}

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	// Registered clients by match ID
	clients map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Outbound messages
	broadcast chan *Message

	// Subscription requests
	subscribe chan *subscriptionRequest

	// Unsubscription requests
	unsubscribe chan *subscriptionRequest

	mu sync.RWMutex

	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client  *Client
	matchID string
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[string]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.removeClient(client)

		case req := <-h.subscribe:
			h.mu.Lock()
			if h.clients[req.matchID] == nil {
				h.clients[req.matchID] = make(map[*Client]bool)
			}
			h.clients[req.matchID][req.client] = true
			h.mu.Unlock()

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if subs := h.clients[req.matchID]; subs != nil {
				delete(subs, req.client)
				if len(subs) == 0 {
					delete(h.clients, req.matchID)
				}
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

// Stop shuts the hub down and disconnects all clients
func (h *Hub) Stop() {
	h.cancel()
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Subscribe subscribes a client to a match's events
func (h *Hub) Subscribe(client *Client, matchID string) {
	select {
	case h.subscribe <- &subscriptionRequest{client: client, matchID: matchID}:
	case <-h.ctx.Done():
	}
}

// Unsubscribe removes a client's match subscription
func (h *Hub) Unsubscribe(client *Client, matchID string) {
	select {
	case h.unsubscribe <- &subscriptionRequest{client: client, matchID: matchID}:
	case <-h.ctx.Done():
	}
}

// Broadcast queues a message for delivery. Match-scoped messages go only to
// that match's subscribers; unscoped messages go to every client.
func (h *Hub) Broadcast(message *Message) {
	select {
	case h.broadcast <- message:
	case <-h.ctx.Done():
	default:
		h.logger.Warn("broadcast queue full, dropping message", "type", message.Type)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}

func (h *Hub) deliver(message *Message) {
	payload, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0)
	if message.MatchID != "" {
		for client := range h.clients[message.MatchID] {
			targets = append(targets, client)
		}
	} else {
		for client := range h.allClients {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		select {
		case client.send <- payload:
		default:
			// Slow consumer; drop the connection rather than block the hub.
			h.removeClient(client)
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.allClients[client]; ok {
		delete(h.allClients, client)
		close(client.send)
	}
	for matchID, subs := range h.clients {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.clients, matchID)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for client := range h.allClients {
		close(client.send)
	}
	h.allClients = make(map[*Client]bool)
	h.clients = make(map[string]map[*Client]bool)
	h.mu.Unlock()
	h.logger.Info("WebSocket hub stopped")
}
