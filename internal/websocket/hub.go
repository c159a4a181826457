package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/storyreel/api/internal/model"
	"github.com/storyreel/api/internal/store"
	"go.uber.org/zap"
)

const (
	sendBuffer      = 256
	broadcastBuffer = 1024
	pingInterval    = 30 * time.Second

	// stateWait bounds how long a scene or project change waits for room in
	// the broadcast queue.
	stateWait = 5 * time.Second
)

// Client represents a WebSocket client
type Client struct {
	ProjectID string
	Conn      *websocket.Conn
	Send      chan []byte
}

// Hub fans studio events out to the clients watching a project.
type Hub struct {
	// Clients grouped by project ID
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage

	done   chan struct{}
	logger *zap.Logger
	mu     sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	ProjectID string
	Message   []byte
}

// NewHub creates a new Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, broadcastBuffer),
		done:       make(chan struct{}),
		logger:     logger.Named("ws_hub"),
	}
}

// Run starts the hub's main loop and returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, clients := range h.clients {
				for client := range clients {
					close(client.Send)
				}
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.ProjectID] == nil {
				h.clients[client.ProjectID] = make(map[*Client]bool)
			}
			h.clients[client.ProjectID][client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", zap.String("project_id", client.ProjectID))

		case client := <-h.unregister:
			h.mu.Lock()
			h.drop(client)
			h.mu.Unlock()
			h.logger.Debug("client unregistered", zap.String("project_id", client.ProjectID))

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients[msg.ProjectID] {
				select {
				case client.Send <- msg.Message:
				default:
					h.drop(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop removes client. Callers hold h.mu.
func (h *Hub) drop(client *Client) {
	clients, ok := h.clients[client.ProjectID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.clients, client.ProjectID)
	}
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Subscribers returns how many clients watch projectID.
func (h *Hub) Subscribers(projectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[projectID])
}

// publish queues v for the project's subscribers. Progress messages are
// dropped when the queue is full. State changes wait up to stateWait so live
// observers see every scene transition in order. Store listeners call it
// with the store lock held; the hub loop never takes that lock. A client that
// still misses a change (queue stuck, or dropped as a slow reader) recovers
// by reconnecting and reading /api/studio, which is the source of truth.
func (h *Hub) publish(projectID string, v interface{}, wait bool) {
	if projectID == "" {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("failed to marshal message", zap.Error(err))
		return
	}
	msg := &BroadcastMessage{ProjectID: projectID, Message: data}
	select {
	case h.broadcast <- msg:
		return
	case <-h.done:
		return
	default:
	}
	if !wait {
		h.logger.Debug("broadcast queue full, progress dropped", zap.String("project_id", projectID))
		return
	}

	timer := time.NewTimer(stateWait)
	defer timer.Stop()
	select {
	case h.broadcast <- msg:
	case <-h.done:
	case <-timer.C:
		h.logger.Error("broadcast queue stuck, state change dropped", zap.String("project_id", projectID))
	}
}

// BroadcastProgress sends an in-flight render step to project subscribers.
func (h *Hub) BroadcastProgress(projectID, sceneID, message string) {
	h.publish(projectID, model.WSProgressMessage{
		Type:      model.WSMessageTypeProgress,
		ProjectID: projectID,
		SceneID:   sceneID,
		Message:   message,
	}, false)
}

// Listen is a store.Listener that forwards published studio state.
func (h *Hub) Listen(c store.Change) {
	switch c.Kind {
	case store.ChangeScene:
		if c.Scene == nil {
			return
		}
		h.publish(c.ProjectID, model.WSSceneMessage{
			Type:      model.WSMessageTypeScene,
			ProjectID: c.ProjectID,
			Index:     c.Index,
			Total:     c.Total,
			Scene:     *c.Scene,
		}, true)
	case store.ChangeStatus, store.ChangeFinalVideo, store.ChangeProject:
		if c.Project == nil {
			return
		}
		h.publish(c.ProjectID, model.WSProjectMessage{
			Type:          model.WSMessageTypeProject,
			ProjectID:     c.ProjectID,
			Status:        c.Project.Status,
			FinalVideoURL: c.Project.FinalVideoURL,
		}, true)
	case store.ChangeAlert:
		if c.Alert == nil {
			return
		}
		h.publish(c.ProjectID, model.WSAlertMessage{
			Type:      model.WSMessageTypeAlert,
			ProjectID: c.ProjectID,
			Code:      c.Alert.Code,
			Message:   c.Alert.Message,
		}, true)
	}
}

// HandleConnection handles a WebSocket connection
func (h *Hub) HandleConnection(c *websocket.Conn, projectID string) {
	client := &Client{
		ProjectID: projectID,
		Conn:      c,
		Send:      make(chan []byte, sendBuffer),
	}

	h.Register(client)
	defer h.Unregister(client)

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					_ = c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read failed", zap.String("project_id", projectID), zap.Error(err))
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			pong, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
			h.publishTo(client, pong)
		}
	}
}

func (h *Hub) publishTo(client *Client, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.clients[client.ProjectID][client] {
		select {
		case client.Send <- data:
		default:
		}
	}
}
